package cli

import (
	"github.com/spf13/cobra"
	"github.com/vinicius-lino-figueiredo/shelfdb"
	"github.com/vinicius-lino-figueiredo/shelfdb/internal/books"
)

func (a *app) crudCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "crud",
		Short: "Create, read, update and delete a book",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a.out.section("1. CREATE OPERATION")
			created, err := a.books.Create(ctx, books.Alchemist())
			if err != nil {
				return err
			}
			book := created[0]
			a.out.success("Created book: %s", book.Title)

			a.out.section("2. READ OPERATIONS")
			all, err := a.db.Count(ctx, shelfdb.MatchAll{})
			if err != nil {
				return err
			}
			a.out.line("Total books: %d", all)

			var byID books.Book
			if err := a.db.Get(ctx, book.ID, &byID); err != nil {
				return err
			}
			a.out.line("Found by id: %s", byID.Title)

			cur, err := a.db.Find(ctx, shelfdb.Eq{Field: "genre", Value: "Fantasy"})
			if err != nil {
				return err
			}
			fantasy, err := books.All(ctx, cur)
			if err != nil {
				return err
			}
			a.out.line("Fantasy books: %d", len(fantasy))

			a.out.section("3. UPDATE OPERATIONS")
			var updated books.Book
			patch := shelfdb.M{"price": 16.99, "rating": 4.7}
			if err := a.db.Update(ctx, book.ID, patch, &updated); err != nil {
				return err
			}
			a.out.success("Updated book price: %s", money(updated.Price))

			n, err := a.db.UpdateMany(ctx,
				shelfdb.Eq{Field: "genre", Value: "Fantasy"},
				shelfdb.M{"$set": shelfdb.M{"inStock": true}},
			)
			if err != nil {
				return err
			}
			a.out.success("Updated %d fantasy books", n)

			a.out.section("4. DELETE OPERATIONS")
			var deleted books.Book
			if err := a.db.Get(ctx, book.ID, &deleted); err != nil {
				return err
			}
			if _, err := a.db.Delete(ctx, book.ID); err != nil {
				return err
			}
			a.out.success("Deleted book: %s", deleted.Title)

			n, err = a.db.DeleteMany(ctx, shelfdb.Lt("rating", 4.0))
			if err != nil {
				return err
			}
			a.out.success("Deleted %d low-rated books", n)

			final, err := a.db.Count(ctx, shelfdb.MatchAll{})
			if err != nil {
				return err
			}
			a.out.section("Final book count: %d", final)
			return nil
		},
	}
}
