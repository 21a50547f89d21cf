package index

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/vinicius-lino-figueiredo/bst"
	"github.com/vinicius-lino-figueiredo/bst/adapter/avl"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]bool{
	"a": true, "about": true, "an": true, "and": true, "are": true,
	"as": true, "at": true, "be": true, "but": true, "by": true,
	"for": true, "from": true, "has": true, "have": true, "he": true,
	"her": true, "his": true, "i": true, "in": true, "is": true,
	"it": true, "its": true, "of": true, "on": true, "or": true,
	"she": true, "that": true, "the": true, "their": true, "they": true,
	"this": true, "to": true, "was": true, "were": true, "will": true,
	"with": true, "you": true,
}

type textField struct {
	addr   []string
	weight int
}

// TextIndex implements [domain.Index] and [domain.TextScorer] with an
// inverted index from normalized terms to document ids.
type TextIndex struct {
	desc   domain.IndexDescriptor
	fields []textField
	// Exported to allow testing.
	Tree           bst.BST[any, string]
	fieldNavigator domain.FieldNavigator
}

// NewTextIndex returns a new text implementation of [domain.Index]. The
// returned index also implements [domain.TextScorer].
func NewTextIndex(desc domain.IndexDescriptor, opts ...Option) (domain.Index, error) {
	o := options{
		comparer:       comparer.NewComparer(),
		fieldNavigator: fieldnavigator.NewFieldNavigator(data.NewDocument),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if desc.Kind != domain.IndexText {
		return nil, fmt.Errorf("%w: not a text index", domain.ErrBadQuery)
	}
	if desc.Unique {
		return nil, fmt.Errorf("%w: text indexes cannot be unique", domain.ErrBadQuery)
	}
	if err := validateFields(desc); err != nil {
		return nil, err
	}
	if desc.Name == "" {
		desc.Name = desc.DefaultName()
	}

	fields := make([]textField, len(desc.Fields))
	for n, f := range desc.Fields {
		addr, err := o.fieldNavigator.GetAddress(f.Path)
		if err != nil {
			return nil, err
		}
		weight := 1
		if w, ok := desc.Weights[f.Path]; ok {
			if w <= 0 {
				return nil, fmt.Errorf("%w: weight of %q must be positive", domain.ErrBadQuery, f.Path)
			}
			weight = w
		}
		fields[n] = textField{addr: addr, weight: weight}
	}
	for path := range desc.Weights {
		if !slices.Contains(desc.Paths(), path) {
			return nil, fmt.Errorf("%w: weight given for field %q, which is not indexed", domain.ErrBadQuery, path)
		}
	}

	return &TextIndex{
		desc:           desc,
		fields:         fields,
		Tree:           avl.NewBST(false, 8, termComparer{}),
		fieldNavigator: o.fieldNavigator,
	}, nil
}

// Terms splits s into lower-cased words without diacritics, leaving out
// common English words.
func Terms(s string) []string {
	// transformers keep state, so each call gets its own chain
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC, cases.Fold())
	normalized, _, err := transform.String(t, s)
	if err != nil {
		normalized = strings.ToLower(s)
	}
	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	res := words[:0]
	for _, w := range words {
		if !stopWords[w] {
			res = append(res, w)
		}
	}
	return res
}

// Descriptor implements [domain.Index].
func (t *TextIndex) Descriptor() domain.IndexDescriptor {
	return t.desc
}

// weightedTerms returns the weighted number of occurrences of each term in
// the indexed fields of doc.
func (t *TextIndex) weightedTerms(doc domain.Document) (map[string]int, error) {
	res := make(map[string]int)
	for _, f := range t.fields {
		values, _, err := t.fieldNavigator.GetField(doc, f.addr...)
		if err != nil {
			return nil, err
		}
		for _, gs := range values {
			v, _ := gs.Get()
			var texts []string
			switch v := v.(type) {
			case string:
				texts = []string{v}
			case []any:
				for _, item := range v {
					if s, ok := item.(string); ok {
						texts = append(texts, s)
					}
				}
			}
			for _, text := range texts {
				for _, term := range Terms(text) {
					res[term] += f.weight
				}
			}
		}
	}
	return res, nil
}

// Insert implements [domain.Index].
func (t *TextIndex) Insert(ctx context.Context, docs ...domain.Document) error {
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
		var terms map[string]int
		if terms, err = t.weightedTerms(d); err != nil {
			break
		}
		for _, term := range slices.Sorted(maps.Keys(terms)) {
			if err = t.Tree.Insert(term, id); err != nil {
				break DocInsertion
			}
			inserted = append(inserted, entry{key: term, id: id})
		}
	}
	if err != nil {
		var errs []error
		for _, e := range inserted {
			if err := t.Tree.Delete(e.key, &e.id); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(append([]error{err}, errs...)...)
	}
	return nil
}

// Remove implements [domain.Index].
func (t *TextIndex) Remove(ctx context.Context, docs ...domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var errs []error
	for _, d := range docs {
		id, err := docID(d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		terms, err := t.weightedTerms(d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for term := range terms {
			if err := t.Tree.Delete(term, &id); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Update implements [domain.Index].
func (t *TextIndex) Update(ctx context.Context, pairs ...domain.Update) error {
	return updatePairs(ctx, t, pairs)
}

// Lookup implements [domain.Index]. It returns the ids of documents holding
// any term of r.Search.
func (t *TextIndex) Lookup(ctx context.Context, r domain.KeyRange) (iter.Seq2[string, error], error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if strings.TrimSpace(r.Search) == "" {
		return nil, fmt.Errorf("%w: empty text search", domain.ErrBadQuery)
	}

	terms := slices.Compact(slices.Sorted(slices.Values(Terms(r.Search))))
	return func(yield func(string, error) bool) {
		for _, term := range terms {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			found, err := t.Tree.Search(term)
			if err != nil {
				yield("", err)
				return
			}
			if found == nil {
				continue
			}
			for _, id := range slices.Clone(found.Values()) {
				if !yield(id, nil) {
					return
				}
			}
		}
	}, nil
}

// Score implements [domain.TextScorer]. The score is the sum of the field
// weight of every occurrence of a search term.
func (t *TextIndex) Score(doc domain.Document, search string) float64 {
	terms, err := t.weightedTerms(doc)
	if err != nil {
		return 0
	}
	score := 0
	for _, term := range slices.Compact(slices.Sorted(slices.Values(Terms(search)))) {
		score += terms[term]
	}
	return float64(score)
}

// GetNumberOfKeys implements [domain.Index].
func (t *TextIndex) GetNumberOfKeys() int {
	return t.Tree.GetNumberOfKeys()
}
