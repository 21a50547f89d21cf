// Package index contains the default [domain.Index] implementations: ordered
// tree indexes over field values and an inverted text index.
package index

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/vinicius-lino-figueiredo/bst"
	"github.com/vinicius-lino-figueiredo/bst/adapter/avl"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// Index implements [domain.Index] with an AVL tree keyed by tuples of field
// values. Documents holding arrays in indexed fields get one key per element.
type Index struct {
	desc  domain.IndexDescriptor
	addrs [][]string
	// set once any document had more than one value for a field
	multikey bool
	// Exported to allow testing. Should not be a problem because Index is
	// used as interface.
	Tree           bst.BST[any, string]
	bstComparer    bst.Comparer[any, string]
	comparer       domain.Comparer
	fieldNavigator domain.FieldNavigator
}

// NewIndex returns a new tree implementation of [domain.Index].
func NewIndex(desc domain.IndexDescriptor, opts ...Option) (domain.Index, error) {
	o := options{
		comparer:       comparer.NewComparer(),
		fieldNavigator: fieldnavigator.NewFieldNavigator(data.NewDocument),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if desc.Kind != domain.IndexTree {
		return nil, fmt.Errorf("%w: not a tree index", domain.ErrBadQuery)
	}
	if err := validateFields(desc); err != nil {
		return nil, err
	}
	if desc.Name == "" {
		desc.Name = desc.DefaultName()
	}

	orders := make([]int, len(desc.Fields))
	addrs := make([][]string, len(desc.Fields))
	for n, f := range desc.Fields {
		if f.Order != 1 && f.Order != -1 {
			return nil, fmt.Errorf("%w: index direction of %q must be 1 or -1, got %d", domain.ErrBadQuery, f.Path, f.Order)
		}
		orders[n] = f.Order
		addr, err := o.fieldNavigator.GetAddress(f.Path)
		if err != nil {
			return nil, err
		}
		addrs[n] = addr
	}

	bstComparer := newTupleComparer(o.comparer, orders)

	return &Index{
		desc:           desc,
		addrs:          addrs,
		Tree:           avl.NewBST(desc.Unique, 8, bstComparer),
		bstComparer:    bstComparer,
		comparer:       o.comparer,
		fieldNavigator: o.fieldNavigator,
	}, nil
}

func validateFields(desc domain.IndexDescriptor) error {
	if len(desc.Fields) == 0 {
		return fmt.Errorf("%w: index needs at least one field", domain.ErrBadQuery)
	}
	seen := make(map[string]bool, len(desc.Fields))
	for _, f := range desc.Fields {
		if f.Path == "" {
			return fmt.Errorf("%w: empty index field", domain.ErrBadQuery)
		}
		if seen[f.Path] {
			return fmt.Errorf("%w: field %q indexed twice", domain.ErrBadQuery, f.Path)
		}
		seen[f.Path] = true
	}
	return nil
}

// Descriptor implements [domain.Index].
func (i *Index) Descriptor() domain.IndexDescriptor {
	return i.desc
}

// fieldKeys returns the values a single field contributes to the keys of a
// document, and whether the field was defined at all.
func (i *Index) fieldKeys(doc domain.Document, addr []string) ([]any, bool, error) {
	fields, _, err := i.fieldNavigator.GetField(doc, addr...)
	if err != nil {
		return nil, false, err
	}
	var (
		values  []any
		defined bool
	)
	for _, f := range fields {
		v, ok := f.Get()
		if !ok {
			// missing fields are indexed as null
			values = append(values, nil)
			continue
		}
		defined = true
		if list, ok := v.([]any); ok {
			values = append(values, list...)
			continue
		}
		values = append(values, v)
	}
	if len(values) > 1 {
		i.multikey = true
	}
	if len(values) == 0 {
		// so are empty arrays
		values = []any{nil}
	}
	return values, defined, nil
}

// getKeys returns the distinct keys of a document. A nil result means the
// document is not indexed.
func (i *Index) getKeys(doc domain.Document) ([]any, error) {
	tuples := [][]any{{}}
	anyDefined := false
	for _, addr := range i.addrs {
		values, defined, err := i.fieldKeys(doc, addr)
		if err != nil {
			return nil, err
		}
		anyDefined = anyDefined || defined
		next := make([][]any, 0, len(tuples)*len(values))
		for _, t := range tuples {
			for _, v := range values {
				next = append(next, append(slices.Clip(t), v))
			}
		}
		tuples = next
	}

	if i.desc.Sparse && !anyDefined {
		return nil, nil
	}

	keys := make([]any, len(tuples))
	for n, t := range tuples {
		keys[n] = t
	}
	var err error
	slices.SortFunc(keys, func(a, b any) int {
		c, cErr := i.bstComparer.CompareKeys(a, b)
		if cErr != nil && err == nil {
			err = cErr
		}
		return c
	})
	if err != nil {
		return nil, err
	}
	return slices.CompactFunc(keys, func(a, b any) bool {
		c, _ := i.bstComparer.CompareKeys(a, b)
		return c == 0
	}), nil
}

type entry struct {
	key any
	id  string
}

func docID(doc domain.Document) (string, error) {
	id, ok := doc.ID().(string)
	if !ok {
		return "", fmt.Errorf("%w: document id must be a string, got %T", domain.ErrTypeMismatch, doc.ID())
	}
	return id, nil
}

// Insert implements [domain.Index].
func (i *Index) Insert(ctx context.Context, docs ...domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	inserted := make([]entry, 0, len(docs))

	var err error
DocInsertion:
	for _, d := range docs {
		var id string
		if id, err = docID(d); err != nil {
			break
		}
		var keys []any
		if keys, err = i.getKeys(d); err != nil {
			break
		}
		for _, k := range keys {
			if err = i.Tree.Insert(k, id); err != nil {
				if e := new(bst.ErrUniqueViolated); errors.As(err, e) {
					err = fmt.Errorf("%w: %w", domain.ErrDuplicateKey, err)
				}
				break DocInsertion
			}
			inserted = append(inserted, entry{key: k, id: id})
		}
	}
	if err != nil {
		return errors.Join(err, i.deleteEntries(inserted))
	}
	return nil
}

func (i *Index) deleteEntries(entries []entry) error {
	var errs []error
	for _, e := range entries {
		if err := i.Tree.Delete(e.key, &e.id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Remove implements [domain.Index].
func (i *Index) Remove(ctx context.Context, docs ...domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	errs := make([]error, 0, len(docs))
	for _, d := range docs {
		id, err := docID(d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		keys, err := i.getKeys(d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, k := range keys {
			if err := i.Tree.Delete(k, &id); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Update implements [domain.Index].
func (i *Index) Update(ctx context.Context, pairs ...domain.Update) error {
	return updatePairs(ctx, i, pairs)
}

// updatePairs removes every old version and inserts the new ones, restoring
// the old versions if any insertion fails.
func updatePairs(ctx context.Context, idx domain.Index, pairs []domain.Update) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	olds := make([]domain.Document, len(pairs))
	news := make([]domain.Document, len(pairs))
	for n, p := range pairs {
		olds[n], news[n] = p.OldDoc, p.NewDoc
	}

	subCtx := context.WithoutCancel(ctx)
	if err := idx.Remove(subCtx, olds...); err != nil {
		return errors.Join(err, idx.Insert(subCtx, olds...))
	}
	if err := idx.Insert(subCtx, news...); err != nil {
		// Insert already rolled back the new versions
		return errors.Join(err, idx.Insert(subCtx, olds...))
	}
	return nil
}

// Lookup implements [domain.Index].
func (i *Index) Lookup(ctx context.Context, r domain.KeyRange) (iter.Seq2[string, error], error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	queries, err := i.queries(r)
	if err != nil {
		return nil, err
	}

	return func(yield func(string, error) bool) {
		for _, q := range queries {
			for id, err := range i.Tree.Query(q) {
				if err == nil {
					err = ctx.Err()
				}
				if !yield(id, err) || err != nil {
					return
				}
			}
		}
	}, nil
}

func (i *Index) queries(r domain.KeyRange) ([]bst.Query[any], error) {
	n := len(i.desc.Fields)
	if len(r.Prefix) > n || (len(r.Prefix) == n && (r.In != nil || r.Lower != nil || r.Upper != nil)) {
		return nil, fmt.Errorf("%w: key range has more fields than index %q", domain.ErrBadQuery, i.desc.Name)
	}
	if r.In != nil && (r.Lower != nil || r.Upper != nil) {
		return nil, fmt.Errorf("%w: key range cannot hold points and bounds", domain.ErrBadQuery)
	}

	if r.In != nil {
		points, err := i.sortedPoints(len(r.Prefix), r.In)
		if err != nil {
			return nil, err
		}
		res := make([]bst.Query[any], len(points))
		for n, p := range points {
			res[n] = i.pointQuery(append(slices.Clip(r.Prefix), p))
		}
		return res, nil
	}

	if r.Lower == nil && r.Upper == nil {
		return []bst.Query[any]{i.pointQuery(r.Prefix)}, nil
	}

	return []bst.Query[any]{i.rangeQuery(r.Prefix, r.Lower, r.Upper)}, nil
}

// sortedPoints orders points the way the tree stores them, so results come
// out in index order.
func (i *Index) sortedPoints(field int, points []any) ([]any, error) {
	res := slices.Clone(points)
	var err error
	slices.SortFunc(res, func(a, b any) int {
		c, cErr := i.comparer.Compare(a, b)
		if cErr != nil && err == nil {
			err = cErr
		}
		if i.desc.Fields[field].Order < 0 {
			c = -c
		}
		return c
	})
	if err != nil {
		return nil, err
	}
	return slices.CompactFunc(res, func(a, b any) bool {
		c, _ := i.comparer.Compare(a, b)
		return c == 0
	}), nil
}

// pad fills the remaining fields of a tuple with the given sentinel.
func (i *Index) pad(t []any, s sentinel) []any {
	res := make([]any, len(i.desc.Fields))
	copy(res, t)
	for n := len(t); n < len(res); n++ {
		res[n] = s
	}
	return res
}

func (i *Index) pointQuery(prefix []any) bst.Query[any] {
	return bst.Query[any]{
		GreaterThan: &bst.Bound[any]{Value: i.pad(prefix, minKey), IncludeEqual: true},
		LowerThan:   &bst.Bound[any]{Value: i.pad(prefix, maxKey), IncludeEqual: true},
	}
}

// rangeQuery builds the tree bounds for a range on the field following the
// prefix. Value bounds are swapped for descending fields, and a missing side
// is limited to the kind of the other one.
func (i *Index) rangeQuery(prefix []any, lower, upper *domain.Bound) bst.Query[any] {
	field := len(prefix)
	desc := i.desc.Fields[field].Order < 0

	var lowerVal, upperVal any
	lowerIncl, upperIncl := true, true
	switch {
	case lower != nil && upper != nil:
		lowerVal, lowerIncl = lower.Value, lower.Inclusive
		upperVal, upperIncl = upper.Value, upper.Inclusive
	case lower != nil:
		lowerVal, lowerIncl = lower.Value, lower.Inclusive
		upperVal = kindBound(domain.KindOf(lower.Value), true)
	default:
		lowerVal = kindBound(domain.KindOf(upper.Value), false)
		upperVal, upperIncl = upper.Value, upper.Inclusive
	}
	if desc {
		lowerVal, upperVal = upperVal, lowerVal
		lowerIncl, upperIncl = upperIncl, lowerIncl
		// the kind sentinels keep their meaning in tree order
		if s, ok := lowerVal.(sentinel); ok {
			s.high = false
			lowerVal = s
		}
		if s, ok := upperVal.(sentinel); ok {
			s.high = true
			upperVal = s
		}
	}

	lowerPad, upperPad := minKey, maxKey
	if !lowerIncl {
		lowerPad = maxKey
	}
	if !upperIncl {
		upperPad = minKey
	}

	return bst.Query[any]{
		GreaterThan: &bst.Bound[any]{
			Value:        i.pad(append(slices.Clip(prefix), lowerVal), lowerPad),
			IncludeEqual: lowerIncl,
		},
		LowerThan: &bst.Bound[any]{
			Value:        i.pad(append(slices.Clip(prefix), upperVal), upperPad),
			IncludeEqual: upperIncl,
		},
	}
}

// Multikey reports whether any document indexed so far had more than one value
// for an indexed field. Opposite bounds on such an index cannot be merged,
// since different elements of an array may satisfy each of them.
func (i *Index) Multikey() bool {
	return i.multikey
}

// GetNumberOfKeys implements [domain.Index].
func (i *Index) GetNumberOfKeys() int {
	return i.Tree.GetNumberOfKeys()
}
