// Package projector contains the default [domain.Projector] implementation.
package projector

import (
	"fmt"
	"maps"
	"slices"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// ErrMixOmitType is returned when user provides a projection object with
// mixed "omit" and "keep" values.
var ErrMixOmitType = fmt.Errorf("%w: can't both keep and omit fields except for _id", domain.ErrBadQuery)

// Projector implements [domain.Projector].
type Projector struct {
	fn     domain.FieldNavigator
	docFac domain.DocumentFactory
}

// Option changes a [Projector] built by [NewProjector].
type Option func(*Projector)

// WithFieldNavigator sets how projected paths are read. By default a navigator
// over the document factory is used.
func WithFieldNavigator(fn domain.FieldNavigator) Option {
	return func(p *Projector) { p.fn = fn }
}

// WithDocumentFactory sets the factory of the projected documents.
func WithDocumentFactory(df domain.DocumentFactory) Option {
	return func(p *Projector) { p.docFac = df }
}

// NewProjector returns a new implementation of [domain.Projector].
func NewProjector(opts ...Option) domain.Projector {
	p := Projector{docFac: data.NewDocument}
	for _, opt := range opts {
		opt(&p)
	}
	if p.fn == nil {
		p.fn = fieldnavigator.NewFieldNavigator(p.docFac)
	}
	return &p
}

// Prepare implements [domain.Projector]. Values must be 1 (keep) or 0 (omit).
// The identifier is kept unless explicitly omitted.
func (q *Projector) Prepare(proj map[string]int) (func(domain.Document) (domain.Document, error), error) {
	if len(proj) == 0 {
		return func(doc domain.Document) (domain.Document, error) { return doc, nil }, nil
	}

	id, idMentioned := proj[domain.IDField]
	if id != 0 && id != 1 {
		return nil, fmt.Errorf("%w: projection of %q must be 0 or 1", domain.ErrBadQuery, domain.IDField)
	}
	keepID := !idMentioned || id == 1

	var (
		addrs      = make([][]string, 0, len(proj))
		fields     = 0
		keepFields = 0
	)
	for _, field := range slices.Sorted(maps.Keys(proj)) {
		if field == domain.IDField {
			continue
		}
		value := proj[field]
		if value != 0 && value != 1 {
			return nil, fmt.Errorf("%w: projection of %q must be 0 or 1", domain.ErrBadQuery, field)
		}
		fields++
		keepFields += value
		if keepFields > 0 && keepFields != fields {
			return nil, ErrMixOmitType
		}
		if field == "" {
			return nil, fmt.Errorf("%w: empty projection field", domain.ErrBadQuery)
		}
		addr, err := q.fn.GetAddress(field)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}

	// {_id: 1} alone keeps only the identifier
	keep := keepFields > 0 || (idMentioned && id == 1 && fields == 0)

	return func(doc domain.Document) (domain.Document, error) {
		projected, err := q.projectDoc(doc, addrs, keep)
		if err != nil {
			return nil, err
		}
		if keepID && doc.Has(domain.IDField) {
			projected.Set(domain.IDField, doc.ID())
		} else {
			projected.Unset(domain.IDField)
		}
		return projected, nil
	}, nil
}

func (q *Projector) projectDoc(doc domain.Document, p [][]string, keep bool) (domain.Document, error) {
	if keep {
		return q.positiveProject(doc, p)
	}
	return q.negativeProject(doc, p)
}

func (q *Projector) positiveProject(doc domain.Document, p [][]string) (domain.Document, error) {
	res, err := q.docFac(nil)
	if err != nil {
		return nil, err
	}

	for _, field := range p {
		values, expanded, err := q.fn.GetField(doc, field...)
		if err != nil {
			return nil, err
		}
		fieldValues, ok := q.readFields(values, expanded)
		if !ok {
			continue
		}
		created, err := q.fn.EnsureField(res, field...)
		if err != nil {
			return nil, err
		}
		for _, c := range created {
			c.Set(data.Clone(fieldValues))
		}
	}
	return res, nil
}

// readFields joins the values of an expanded array into a list.
func (q *Projector) readFields(f []domain.GetSetter, expanded bool) (any, bool) {
	if !expanded {
		return f[0].Get()
	}
	res := make([]any, 0, len(f))
	for _, field := range f {
		if value, defined := field.Get(); defined {
			res = append(res, value)
		}
	}
	return res, len(res) > 0
}

func (q *Projector) negativeProject(doc domain.Document, p [][]string) (domain.Document, error) {
	res, err := q.docFac(doc)
	if err != nil {
		return nil, err
	}
	for _, field := range p {
		values, _, err := q.fn.GetField(res, field...)
		if err != nil {
			return nil, err
		}
		for _, value := range values {
			value.Unset()
		}
	}
	return res, nil
}
