// Package indexer contains the default [domain.IndexManager] implementation.
// It is not safe for concurrent use: the record store calls it from within
// its commit section.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/index"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// IDDescriptor describes the implicit index every store has.
var IDDescriptor = domain.IndexDescriptor{
	Name:   string(domain.IDIndex),
	Fields: []domain.IndexField{{Path: domain.IDField, Order: 1}},
	Unique: true,
}

// Indexer implements [domain.IndexManager].
type Indexer struct {
	indexes        map[domain.IndexHandle]domain.Index
	order          []domain.IndexHandle
	text           domain.IndexHandle
	comparer       domain.Comparer
	fieldNavigator domain.FieldNavigator
}

// NewIndexer returns a new implementation of [domain.IndexManager] holding
// only the implicit [domain.IDIndex].
func NewIndexer(opts ...Option) (domain.IndexManager, error) {
	i := &Indexer{
		indexes:        make(map[domain.IndexHandle]domain.Index),
		comparer:       comparer.NewComparer(),
		fieldNavigator: fieldnavigator.NewFieldNavigator(data.NewDocument),
	}
	for _, opt := range opts {
		opt(i)
	}

	idx, err := i.newIndex(IDDescriptor)
	if err != nil {
		return nil, err
	}
	i.indexes[domain.IDIndex] = idx
	i.order = append(i.order, domain.IDIndex)
	return i, nil
}

func (i *Indexer) newIndex(desc domain.IndexDescriptor) (domain.Index, error) {
	opts := []index.Option{
		index.WithComparer(i.comparer),
		index.WithFieldNavigator(i.fieldNavigator),
	}
	if desc.Kind == domain.IndexText {
		return index.NewTextIndex(desc, opts...)
	}
	return index.NewIndex(desc, opts...)
}

// CreateIndex implements [domain.IndexManager].
func (i *Indexer) CreateIndex(ctx context.Context, desc domain.IndexDescriptor, existing iter.Seq[domain.Document]) (domain.IndexHandle, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if desc.Kind == domain.IndexText && i.text != "" {
		return "", fmt.Errorf("%w: text index %q already exists", domain.ErrIndexExists, i.text)
	}
	h := desc.Handle()
	if _, ok := i.indexes[h]; ok {
		return "", fmt.Errorf("%w: %q", domain.ErrIndexExists, h)
	}
	for _, other := range i.order {
		if sameKeys(i.indexes[other].Descriptor(), desc) {
			return "", fmt.Errorf("%w: %q has the same fields", domain.ErrIndexExists, other)
		}
	}

	idx, err := i.newIndex(desc)
	if err != nil {
		return "", err
	}

	var docs []domain.Document
	if existing != nil {
		docs = slices.Collect(existing)
	}
	if err := idx.Insert(ctx, docs...); err != nil {
		return "", fmt.Errorf("building index %q: %w", h, err)
	}

	i.indexes[h] = idx
	i.order = append(i.order, h)
	if desc.Kind == domain.IndexText {
		i.text = h
	}
	return h, nil
}

func sameKeys(a, b domain.IndexDescriptor) bool {
	if a.Kind != b.Kind || len(a.Fields) != len(b.Fields) {
		return false
	}
	for n := range a.Fields {
		if a.Fields[n].Path != b.Fields[n].Path {
			return false
		}
		if a.Kind == domain.IndexTree && a.Fields[n].Order != b.Fields[n].Order {
			return false
		}
	}
	return true
}

// Drop implements [domain.IndexManager].
func (i *Indexer) Drop(ctx context.Context, h domain.IndexHandle) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if h == domain.IDIndex {
		return fmt.Errorf("%w: cannot drop %s", domain.ErrBadQuery, domain.IDIndex)
	}
	if _, ok := i.indexes[h]; !ok {
		return fmt.Errorf("%w: index %q", domain.ErrNotFound, h)
	}
	delete(i.indexes, h)
	i.order = slices.DeleteFunc(i.order, func(o domain.IndexHandle) bool { return o == h })
	if i.text == h {
		i.text = ""
	}
	return nil
}

// Indexes implements [domain.IndexManager].
func (i *Indexer) Indexes() []domain.IndexDescriptor {
	res := make([]domain.IndexDescriptor, len(i.order))
	for n, h := range i.order {
		res[n] = i.indexes[h].Descriptor()
	}
	return res
}

// Lookup implements [domain.IndexManager].
func (i *Indexer) Lookup(ctx context.Context, h domain.IndexHandle, r domain.KeyRange) (iter.Seq2[string, error], error) {
	idx, ok := i.indexes[h]
	if !ok {
		return nil, fmt.Errorf("%w: index %q", domain.ErrNotFound, h)
	}
	return idx.Lookup(ctx, r)
}

// Insert implements [domain.IndexManager]. If any index fails, the documents
// are removed from the indexes already updated.
func (i *Indexer) Insert(ctx context.Context, docs ...domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	for n, h := range i.order {
		if err := i.indexes[h].Insert(ctx, docs...); err != nil {
			undo := context.WithoutCancel(ctx)
			errs := []error{err}
			for _, done := range i.order[:n] {
				errs = append(errs, i.indexes[done].Remove(undo, docs...))
			}
			return errors.Join(errs...)
		}
	}
	return nil
}

// Remove implements [domain.IndexManager].
func (i *Indexer) Remove(ctx context.Context, docs ...domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var errs []error
	for _, h := range i.order {
		errs = append(errs, i.indexes[h].Remove(ctx, docs...))
	}
	return errors.Join(errs...)
}

// Update implements [domain.IndexManager]. If any index fails, the indexes
// already updated get the old versions back.
func (i *Indexer) Update(ctx context.Context, pairs ...domain.Update) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	for n, h := range i.order {
		if err := i.indexes[h].Update(ctx, pairs...); err != nil {
			undo := context.WithoutCancel(ctx)
			revert := make([]domain.Update, len(pairs))
			for m, p := range pairs {
				revert[m] = domain.Update{OldDoc: p.NewDoc, NewDoc: p.OldDoc}
			}
			errs := []error{err}
			for _, done := range i.order[:n] {
				errs = append(errs, i.indexes[done].Update(undo, revert...))
			}
			return errors.Join(errs...)
		}
	}
	return nil
}

// TextScorer implements [domain.IndexManager].
func (i *Indexer) TextScorer() (domain.TextScorer, bool) {
	if i.text == "" {
		return nil, false
	}
	scorer, ok := i.indexes[i.text].(domain.TextScorer)
	return scorer, ok
}
