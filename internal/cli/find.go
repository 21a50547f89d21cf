package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vinicius-lino-figueiredo/shelfdb"
)

type findFlags struct {
	sort       []string
	projection string
	skip       int
	limit      int
	hint       string
	explain    bool
	columns    []string
}

func (a *app) findCommand() *cobra.Command {
	var flags findFlags

	cmd := &cobra.Command{
		Use:   "find [FILTER]",
		Short: "Find books matching a JSON filter, such as '{\"rating\": {\"$gte\": 4.5}}'",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := shelfdb.Filter(shelfdb.MatchAll{})
			if len(args) == 1 {
				var raw map[string]any
				if err := json.Unmarshal([]byte(args[0]), &raw); err != nil {
					return fmt.Errorf("%w: filter: %w", shelfdb.ErrBadQuery, err)
				}
				f, err := shelfdb.ParseFilter(raw)
				if err != nil {
					return err
				}
				filter = f
			}

			opts, err := flags.options()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if flags.explain {
				stats, err := a.db.Explain(ctx, filter, opts...)
				if err != nil {
					return err
				}
				a.statsTable(stats)
				return nil
			}

			res, err := a.find(ctx, filter, opts...)
			if err != nil {
				return err
			}
			a.bookTable(res, flags.columns...)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&flags.sort, "sort", nil, "sort keys, such as rating:-1,title:1")
	f.StringVar(&flags.projection, "projection", "", "JSON projection, such as '{\"title\": 1}'")
	f.IntVar(&flags.skip, "skip", 0, "number of books to skip")
	f.IntVar(&flags.limit, "limit", 0, "maximum number of books, 0 for no limit")
	f.StringVar(&flags.hint, "hint", "", "name of the index to use")
	f.BoolVar(&flags.explain, "explain", false, "print the query plan instead of the books")
	f.StringSliceVar(&flags.columns, "columns", []string{"id", "title", "author", "genre", "year", "price", "rating"}, "columns to print")
	return cmd
}

func (f findFlags) options() ([]shelfdb.FindOption, error) {
	opts := []shelfdb.FindOption{
		shelfdb.WithSkip(f.skip),
		shelfdb.WithLimit(f.limit),
	}
	if f.hint != "" {
		opts = append(opts, shelfdb.WithHint(shelfdb.IndexHandle(f.hint)))
	}
	if f.projection != "" {
		var p map[string]int
		if err := json.Unmarshal([]byte(f.projection), &p); err != nil {
			return nil, fmt.Errorf("%w: projection: %w", shelfdb.ErrBadQuery, err)
		}
		opts = append(opts, shelfdb.WithProjection(p))
	}
	if len(f.sort) > 0 {
		keys, err := parseSortKeys(f.sort)
		if err != nil {
			return nil, err
		}
		opts = append(opts, shelfdb.WithSort(keys...))
	}
	return opts, nil
}

// parseSortKeys reads keys written as "field", "field:1" or "field:-1".
func parseSortKeys(raw []string) ([]shelfdb.SortKey, error) {
	keys := make([]shelfdb.SortKey, len(raw))
	for n, r := range raw {
		field, order, found := strings.Cut(r, ":")
		key := shelfdb.SortKey{Key: field, Order: 1}
		if found {
			switch order {
			case "1", "asc":
			case "-1", "desc":
				key.Order = -1
			default:
				return nil, fmt.Errorf("%w: sort order of %q must be 1 or -1", shelfdb.ErrBadQuery, field)
			}
		}
		if field == "" {
			return nil, fmt.Errorf("%w: empty sort key", shelfdb.ErrBadQuery)
		}
		keys[n] = key
	}
	return keys, nil
}
