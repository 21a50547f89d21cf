package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vinicius-lino-figueiredo/shelfdb"
)

// demoIndexes are created by the index command on top of the model indexes.
func demoIndexes() []shelfdb.IndexDescriptor {
	return []shelfdb.IndexDescriptor{
		{Fields: []shelfdb.IndexField{{Path: "genre", Order: 1}, {Path: "rating", Order: -1}}},
		{Fields: []shelfdb.IndexField{{Path: "title"}, {Path: "author"}}, Kind: shelfdb.IndexText},
		{Fields: []shelfdb.IndexField{{Path: "publicationYear", Order: -1}}},
	}
}

func (a *app) indexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Create indexes and compare query plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runIndexing(cmd.Context())
		},
	}
	cmd.AddCommand(a.indexDropCommand())
	return cmd
}

func (a *app) indexDropCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drop NAME...",
		Short: "Drop secondary indexes by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				if err := a.db.DropIndex(cmd.Context(), shelfdb.IndexHandle(name)); err != nil {
					return err
				}
				a.out.success("Dropped index %s", name)
			}
			return nil
		},
	}
}

func (a *app) runIndexing(ctx context.Context) error {
	a.out.section("1. CREATING INDEXES")
	for _, desc := range demoIndexes() {
		h, err := a.db.CreateIndex(ctx, desc)
		switch {
		case errors.Is(err, shelfdb.ErrIndexExists):
			a.out.note("Index %s already exists", desc.DefaultName())
		case err != nil:
			return err
		default:
			a.out.success("Created index %s", h)
		}
	}

	a.out.section("2. INDEX INFORMATION")
	indexes := a.db.Indexes()
	a.out.line("Total indexes: %d", len(indexes))
	rows := make([][]string, len(indexes))
	for n, desc := range indexes {
		rows[n] = []string{desc.Name, indexKey(desc), strconv.FormatBool(desc.Unique)}
	}
	a.out.table([]string{"name", "key", "unique"}, rows)

	a.out.section("3. PERFORMANCE ANALYSIS WITH EXPLAIN")
	a.out.line("Query for Fantasy books with high rating:")
	query := shelfdb.And{Filters: []shelfdb.Filter{
		shelfdb.Eq{Field: "genre", Value: "Fantasy"},
		shelfdb.Gte("rating", 4.5),
	}}
	stats, err := a.db.Explain(ctx, query)
	if err != nil {
		return err
	}
	a.statsTable(stats)

	a.out.section("4. TEXT SEARCH USING INDEX")
	res, err := a.find(ctx, shelfdb.Text{Search: "great fantasy"},
		shelfdb.WithTextScore("score"),
		shelfdb.WithSort(shelfdb.SortKey{Key: shelfdb.TextScoreKey}),
	)
	if err != nil {
		return err
	}
	a.out.line("Found %d books matching \"great fantasy\":", len(res))
	a.bookTable(res, "title", "author")

	a.out.section("5. HINTED QUERY")
	hinted := shelfdb.Eq{Field: "genre", Value: "Fantasy"}
	opts := []shelfdb.FindOption{
		shelfdb.WithProjection(map[string]int{"_id": 0, "title": 1, "genre": 1}),
		shelfdb.WithHint("genre_1_rating_-1"),
	}
	res, err = a.find(ctx, hinted, opts...)
	if err != nil {
		return err
	}
	stats, err = a.db.Explain(ctx, hinted, opts...)
	if err != nil {
		return err
	}
	a.out.line("Hinted query returned %d fantasy books using %s", len(res), stats.Index)

	a.out.section("6. SORTING PERFORMANCE")
	a.out.line("Sorting by publicationYear (indexed):")
	start := time.Now()
	res, err = a.find(ctx, shelfdb.MatchAll{},
		shelfdb.WithSort(shelfdb.SortKey{Key: "publicationYear", Order: -1}),
		shelfdb.WithLimit(5),
	)
	if err != nil {
		return err
	}
	a.out.line("Execution time: %s", millis(time.Since(start)))
	a.bookTable(res, "title", "year")

	a.out.section("7. QUERY PERFORMANCE METRICS")
	stats, err = a.db.Explain(ctx, shelfdb.Or{Filters: []shelfdb.Filter{
		shelfdb.Eq{Field: "genre", Value: "Fiction"},
		shelfdb.Gt("publicationYear", 2000),
		shelfdb.Gte("rating", 4.5),
	}})
	if err != nil {
		return err
	}
	a.statsTable(stats)
	return nil
}

func (a *app) statsTable(stats shelfdb.ExecutionStats) {
	index := string(stats.Index)
	if index == "" {
		index = "Collection Scan"
	}
	a.out.table([]string{"stage", "index", "keys examined", "docs examined", "returned", "time"}, [][]string{{
		stats.Stage,
		index,
		strconv.Itoa(stats.KeysExamined),
		strconv.Itoa(stats.DocsExamined),
		strconv.Itoa(stats.NReturned),
		millis(stats.Duration),
	}})
	if stats.Reason != "" {
		a.out.note("%s", stats.Reason)
	}
}

// indexKey formats the fields of desc like {genre: 1, rating: -1}.
func indexKey(desc shelfdb.IndexDescriptor) string {
	parts := make([]string, len(desc.Fields))
	for n, f := range desc.Fields {
		if desc.Kind == shelfdb.IndexText {
			parts[n] = f.Path + ": text"
			continue
		}
		parts[n] = fmt.Sprintf("%s: %d", f.Path, f.Order)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
