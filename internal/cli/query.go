package cli

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vinicius-lino-figueiredo/shelfdb"
	"github.com/vinicius-lino-figueiredo/shelfdb/internal/books"
)

func (a *app) queryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query",
		Short: "Run equality, range, logical, array and regex queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runQueries(cmd.Context())
		},
	}
}

func (a *app) find(ctx context.Context, f shelfdb.Filter, opts ...shelfdb.FindOption) ([]books.Book, error) {
	cur, err := a.db.Find(ctx, f, opts...)
	if err != nil {
		return nil, err
	}
	return books.All(ctx, cur)
}

func (a *app) runQueries(ctx context.Context) error {
	a.out.section("1. BOOKS BY GENRE (Fiction)")
	res, err := a.find(ctx, shelfdb.Eq{Field: "genre", Value: "Fiction"})
	if err != nil {
		return err
	}
	a.bookTable(res, "title", "author")

	a.out.section("2. BOOKS PUBLISHED AFTER 1950")
	res, err = a.find(ctx, shelfdb.Gt("publicationYear", 1950))
	if err != nil {
		return err
	}
	a.bookTable(res, "title", "year")

	a.out.section("3. FANTASY BOOKS IN STOCK")
	filter, err := shelfdb.ParseFilter(map[string]any{
		"$and": []any{
			map[string]any{"genre": "Fantasy"},
			map[string]any{"inStock": true},
		},
	})
	if err != nil {
		return err
	}
	res, err = a.find(ctx, filter)
	if err != nil {
		return err
	}
	a.bookTable(res, "title", "price")

	a.out.section("4. BOOKS WITH \"adventure\" TAG")
	res, err = a.find(ctx, shelfdb.Eq{Field: "tags", Value: "adventure"})
	if err != nil {
		return err
	}
	a.bookTable(res, "title", "tags")

	a.out.section("5. BOOKS WITH \"The\" IN TITLE")
	res, err = a.find(ctx, shelfdb.Regex{Field: "title", Pattern: "the", CaseInsensitive: true})
	if err != nil {
		return err
	}
	a.bookTable(res, "title")

	a.out.section("6. BOOKS BETWEEN $10 AND $15")
	res, err = a.find(ctx, shelfdb.And{Filters: []shelfdb.Filter{
		shelfdb.Gte("price", 10),
		shelfdb.Lte("price", 15),
	}})
	if err != nil {
		return err
	}
	a.bookTable(res, "title", "price")

	a.out.section("7. TOP RATED BOOKS (Sorted by rating)")
	res, err = a.find(ctx, shelfdb.Gte("rating", 4.5),
		shelfdb.WithProjection(map[string]int{"title": 1, "author": 1, "rating": 1, "price": 1}),
		shelfdb.WithSort(shelfdb.SortKey{Key: "rating", Order: -1}),
	)
	if err != nil {
		return err
	}
	a.bookTable(res, "title", "rating", "price")

	a.out.section("8. PAGINATION (First 3 books)")
	res, err = a.find(ctx, shelfdb.MatchAll{},
		shelfdb.WithProjection(map[string]int{"title": 1, "author": 1}),
		shelfdb.WithLimit(3),
		shelfdb.WithSort(shelfdb.SortKey{Key: "title", Order: 1}),
	)
	if err != nil {
		return err
	}
	a.bookTable(res, "title", "author")

	a.out.section("9. STATISTICS")
	stats := []struct {
		label  string
		filter shelfdb.Filter
	}{
		{"Classic books", shelfdb.Eq{Field: "genre", Value: "Classic"}},
		{"Books in stock", shelfdb.Eq{Field: "inStock", Value: true}},
		{"High-rated books (4.5+)", shelfdb.Gte("rating", 4.5)},
	}
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		n, err := a.db.Count(ctx, s.filter)
		if err != nil {
			return err
		}
		rows = append(rows, []string{s.label, strconv.Itoa(n)})
	}
	a.out.table([]string{"statistic", "count"}, rows)
	return nil
}

// bookTable prints the given columns of each book.
func (a *app) bookTable(res []books.Book, columns ...string) {
	if len(res) == 0 {
		a.out.note("no books found")
		return
	}
	rows := make([][]string, len(res))
	for n, b := range res {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = bookColumn(b, c)
		}
		rows[n] = row
	}
	a.out.table(columns, rows)
}

func bookColumn(b books.Book, column string) string {
	switch column {
	case "id":
		return b.ID
	case "title":
		return b.Title
	case "author":
		return b.Author
	case "genre":
		return b.Genre
	case "year":
		return strconv.Itoa(b.PublicationYear)
	case "isbn":
		return b.ISBN
	case "price":
		return money(b.Price)
	case "rating":
		return decimal(b.Rating) + "/5"
	case "stock":
		return strconv.FormatBool(b.Available())
	case "tags":
		return strings.Join(b.Tags, ", ")
	default:
		return ""
	}
}
