// Package books holds the book model used by the command line tool: its
// validation rules, its indexes and the sample data.
package books

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vinicius-lino-figueiredo/shelfdb"
)

// DefaultLanguage is set on books created without a language.
const DefaultLanguage = "English"

var bookValidate = validator.New()

// Book is a book record. InStock is a pointer so that a missing value can
// default to true.
type Book struct {
	ID              string    `shelfdb:"_id,omitempty"`
	Title           string    `shelfdb:"title" validate:"required"`
	Author          string    `shelfdb:"author" validate:"required"`
	Genre           string    `shelfdb:"genre" validate:"required"`
	PublicationYear int       `shelfdb:"publicationYear" validate:"required"`
	ISBN            string    `shelfdb:"isbn" validate:"required,isbn13"`
	Publisher       string    `shelfdb:"publisher,omitempty"`
	PageCount       int       `shelfdb:"pageCount,omitempty" validate:"gte=0"`
	Language        string    `shelfdb:"language"`
	Price           float64   `shelfdb:"price,omitempty" validate:"gte=0"`
	Rating          float64   `shelfdb:"rating" validate:"gte=0,lte=5"`
	InStock         *bool     `shelfdb:"inStock"`
	Tags            []string  `shelfdb:"tags,omitempty"`
	CreatedAt       time.Time `shelfdb:"createdAt,omitzero"`
	UpdatedAt       time.Time `shelfdb:"updatedAt,omitzero"`
}

// Available reports whether the book is in stock.
func (b Book) Available() bool {
	return b.InStock == nil || *b.InStock
}

// WithDefaults returns a copy of b with the default language and stock
// status filled in.
func (b Book) WithDefaults() Book {
	if b.Language == "" {
		b.Language = DefaultLanguage
	}
	if b.InStock == nil {
		b.InStock = Bool(true)
	}
	return b
}

// Validate checks required fields, the isbn checksum and the rating range.
func (b Book) Validate() error {
	if err := bookValidate.Struct(b); err != nil {
		return fmt.Errorf("%w: book %q: %w", shelfdb.ErrBadQuery, b.Title, err)
	}
	return nil
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}

// Indexes returns the indexes declared by the model: a unique index on isbn
// and single field indexes on title and author.
func Indexes() []shelfdb.IndexDescriptor {
	return []shelfdb.IndexDescriptor{
		{Fields: []shelfdb.IndexField{{Path: "isbn", Order: 1}}, Unique: true},
		{Fields: []shelfdb.IndexField{{Path: "title", Order: 1}}},
		{Fields: []shelfdb.IndexField{{Path: "author", Order: 1}}},
	}
}

// Collection stores books in a database, applying defaults and validation
// before every insertion.
type Collection struct {
	db shelfdb.ShelfDB
}

// Open returns a collection over db, creating the model indexes that are not
// there yet.
func Open(ctx context.Context, db shelfdb.ShelfDB) (*Collection, error) {
	for _, desc := range Indexes() {
		if _, err := db.CreateIndex(ctx, desc); err != nil && !errors.Is(err, shelfdb.ErrIndexExists) {
			return nil, fmt.Errorf("creating index %s: %w", desc.DefaultName(), err)
		}
	}
	return &Collection{db: db}, nil
}

// DB returns the underlying database.
func (c *Collection) DB() shelfdb.ShelfDB {
	return c.db
}

// Create validates and inserts books, all or none, and returns them as
// stored, with their ids and timestamps.
func (c *Collection) Create(ctx context.Context, books ...Book) ([]Book, error) {
	docs := make([]any, len(books))
	for n, b := range books {
		b = b.WithDefaults()
		if err := b.Validate(); err != nil {
			return nil, err
		}
		docs[n] = b
	}

	cur, err := c.db.Insert(ctx, docs...)
	if err != nil {
		return nil, err
	}
	return All(ctx, cur)
}

// All drains cur into a list of books and closes it.
func All(ctx context.Context, cur shelfdb.Cursor) ([]Book, error) {
	defer cur.Close()
	var res []Book
	for cur.Next() {
		var b Book
		if err := cur.Scan(ctx, &b); err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
