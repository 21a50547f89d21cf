package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vinicius-lino-figueiredo/shelfdb"
)

type genreStat struct {
	Genre         string  `shelfdb:"_id"`
	Count         int     `shelfdb:"count"`
	AverageRating float64 `shelfdb:"averageRating"`
	AveragePrice  float64 `shelfdb:"averagePrice"`
}

type decadeStat struct {
	Decade        int      `shelfdb:"_id"`
	Count         int      `shelfdb:"count"`
	AverageRating float64  `shelfdb:"averageRating"`
	Books         []string `shelfdb:"books"`
}

type priceStat struct {
	TotalBooks   int     `shelfdb:"totalBooks"`
	AveragePrice float64 `shelfdb:"averagePrice"`
	MaxPrice     float64 `shelfdb:"maxPrice"`
	MinPrice     float64 `shelfdb:"minPrice"`
	PriceRange   float64 `shelfdb:"priceRange"`
}

type tagStat struct {
	Tag   string `shelfdb:"_id"`
	Count int    `shelfdb:"count"`
}

type stockStat struct {
	Genre     string `shelfdb:"_id"`
	StockInfo []struct {
		Status bool `shelfdb:"status"`
		Count  int  `shelfdb:"count"`
	} `shelfdb:"stockInfo"`
}

type authorStat struct {
	Author        string  `shelfdb:"_id"`
	BookCount     int     `shelfdb:"bookCount"`
	AverageRating float64 `shelfdb:"averageRating"`
	TotalPages    int     `shelfdb:"totalPages"`
}

// object and list keep the pipelines below close to the way they are
// usually written.
type object = map[string]any

type list = []any

func (a *app) aggregateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Group, unwind and summarize books with aggregation pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runAggregations(cmd.Context())
		},
	}
}

// aggregate parses raw, runs it over every book and decodes each result into a
// T.
func aggregate[T any](ctx context.Context, db shelfdb.ShelfDB, raw list) ([]T, error) {
	stages, err := shelfdb.ParsePipeline(raw)
	if err != nil {
		return nil, err
	}
	cur, err := db.Aggregate(ctx, shelfdb.MatchAll{}, stages...)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var res []T
	for cur.Next() {
		var v T
		if err := cur.Scan(ctx, &v); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, cur.Err()
}

func (a *app) runAggregations(ctx context.Context) error {
	a.out.section("1. BOOK COUNT BY GENRE")
	genres, err := aggregate[genreStat](ctx, a.db, list{
		object{"$group": object{
			"_id":           "$genre",
			"count":         object{"$sum": 1},
			"averageRating": object{"$avg": "$rating"},
			"averagePrice":  object{"$avg": "$price"},
		}},
		object{"$sort": list{object{"count": -1}, object{"_id": 1}}},
	})
	if err != nil {
		return err
	}
	rows := make([][]string, len(genres))
	for n, g := range genres {
		rows[n] = []string{g.Genre, strconv.Itoa(g.Count), decimal(g.AverageRating), money(g.AveragePrice)}
	}
	a.out.table([]string{"genre", "books", "avg rating", "avg price"}, rows)

	a.out.section("2. BOOKS BY DECADE")
	decades, err := aggregate[decadeStat](ctx, a.db, list{
		object{"$project": object{
			"title":           1,
			"publicationYear": 1,
			"rating":          1,
			"decade": object{"$subtract": list{
				"$publicationYear",
				object{"$mod": list{"$publicationYear", 10}},
			}},
		}},
		object{"$group": object{
			"_id":           "$decade",
			"count":         object{"$sum": 1},
			"averageRating": object{"$avg": "$rating"},
			"books":         object{"$push": "$title"},
		}},
		object{"$sort": object{"_id": 1}},
	})
	if err != nil {
		return err
	}
	rows = make([][]string, len(decades))
	for n, d := range decades {
		rows[n] = []string{fmt.Sprintf("%ds", d.Decade), strconv.Itoa(d.Count), decimal(d.AverageRating), strings.Join(d.Books, ", ")}
	}
	a.out.table([]string{"decade", "books", "avg rating", "titles"}, rows)

	a.out.section("3. PRICE ANALYSIS")
	prices, err := aggregate[priceStat](ctx, a.db, list{
		object{"$group": object{
			"_id":          nil,
			"totalBooks":   object{"$sum": 1},
			"averagePrice": object{"$avg": "$price"},
			"maxPrice":     object{"$max": "$price"},
			"minPrice":     object{"$min": "$price"},
		}},
		object{"$project": object{
			"totalBooks":   1,
			"averagePrice": 1,
			"maxPrice":     1,
			"minPrice":     1,
			"priceRange":   object{"$subtract": list{"$maxPrice", "$minPrice"}},
		}},
	})
	if err != nil {
		return err
	}
	if len(prices) == 0 {
		a.out.note("no books found")
	} else {
		p := prices[0]
		a.out.line("Total books: %d", p.TotalBooks)
		a.out.line("Average price: %s", money(p.AveragePrice))
		a.out.line("Price range: %s - %s (%s)", money(p.MinPrice), money(p.MaxPrice), money(p.PriceRange))
	}

	a.out.section("4. MOST POPULAR TAGS")
	tags, err := aggregate[tagStat](ctx, a.db, list{
		object{"$unwind": "$tags"},
		object{"$group": object{
			"_id":   "$tags",
			"count": object{"$sum": 1},
		}},
		object{"$sort": list{object{"count": -1}, object{"_id": 1}}},
		object{"$limit": 5},
	})
	if err != nil {
		return err
	}
	rows = make([][]string, len(tags))
	for n, t := range tags {
		rows[n] = []string{t.Tag, strconv.Itoa(t.Count)}
	}
	a.out.table([]string{"tag", "books"}, rows)

	a.out.section("5. STOCK STATUS BY GENRE")
	stock, err := aggregate[stockStat](ctx, a.db, list{
		object{"$group": object{
			"_id":   object{"genre": "$genre", "inStock": "$inStock"},
			"count": object{"$sum": 1},
		}},
		object{"$group": object{
			"_id": "$_id.genre",
			"stockInfo": object{"$push": object{
				"status": "$_id.inStock",
				"count":  "$count",
			}},
		}},
		object{"$sort": object{"_id": 1}},
	})
	if err != nil {
		return err
	}
	rows = make([][]string, len(stock))
	for n, s := range stock {
		var in, out int
		for _, info := range s.StockInfo {
			if info.Status {
				in += info.Count
			} else {
				out += info.Count
			}
		}
		rows[n] = []string{s.Genre, strconv.Itoa(in), strconv.Itoa(out)}
	}
	a.out.table([]string{"genre", "in stock", "out of stock"}, rows)

	a.out.section("6. AUTHOR STATISTICS")
	authors, err := aggregate[authorStat](ctx, a.db, list{
		object{"$group": object{
			"_id":           "$author",
			"bookCount":     object{"$sum": 1},
			"averageRating": object{"$avg": "$rating"},
			"totalPages":    object{"$sum": "$pageCount"},
		}},
		object{"$sort": list{object{"bookCount": -1}, object{"_id": 1}}},
		object{"$limit": 5},
	})
	if err != nil {
		return err
	}
	rows = make([][]string, len(authors))
	for n, au := range authors {
		rows[n] = []string{au.Author, strconv.Itoa(au.BookCount), decimal(au.AverageRating), strconv.Itoa(au.TotalPages)}
	}
	a.out.table([]string{"author", "books", "avg rating", "total pages"}, rows)
	return nil
}
