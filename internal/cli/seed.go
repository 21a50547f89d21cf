package cli

import (
	"github.com/spf13/cobra"
	"github.com/vinicius-lino-figueiredo/shelfdb"
	"github.com/vinicius-lino-figueiredo/shelfdb/internal/books"
)

func (a *app) seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Replace every book by the sample books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			n, err := a.db.DeleteMany(ctx, shelfdb.MatchAll{})
			if err != nil {
				return err
			}
			a.out.success("Cleared %d existing books", n)

			created, err := a.books.Create(ctx, books.Seed()...)
			if err != nil {
				return err
			}
			a.out.success("Inserted %d books into the database", len(created))

			total, err := a.db.Count(ctx, shelfdb.MatchAll{})
			if err != nil {
				return err
			}
			a.out.line("Total books in database: %d", total)
			return nil
		},
	}
}
