package indexer

import (
	"fmt"
	"strings"

	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

type multikeyer interface {
	Multikey() bool
}

// clauses holds the top-level conjunctive clauses of a filter, by field.
type clauses struct {
	eq     map[string]any
	in     map[string][]any
	cmp    map[string][]domain.Cmp
	search *domain.Text
	or     bool
}

func newClauses(f domain.Filter) clauses {
	c := clauses{
		eq:  make(map[string]any),
		in:  make(map[string][]any),
		cmp: make(map[string][]domain.Cmp),
	}
	for _, clause := range flatten(f) {
		switch t := clause.(type) {
		case domain.Eq:
			if _, ok := c.eq[t.Field]; !ok && indexable(t.Value) {
				c.eq[t.Field] = t.Value
			}
		case domain.In:
			if _, ok := c.in[t.Field]; ok {
				continue
			}
			if values, ok := indexableValues(t.Values); ok {
				c.in[t.Field] = values
			}
		case domain.Cmp:
			c.cmp[t.Field] = append(c.cmp[t.Field], t)
		case domain.Text:
			if c.search == nil {
				c.search = &t
			}
		case domain.Or:
			c.or = true
		}
	}
	return c
}

// flatten returns the clauses of nested conjunctions. A disjunction of
// equalities on the same field becomes an [domain.In].
func flatten(f domain.Filter) []domain.Filter {
	switch t := f.(type) {
	case nil, domain.MatchAll:
		return nil
	case domain.And:
		var res []domain.Filter
		for _, sub := range t.Filters {
			res = append(res, flatten(sub)...)
		}
		return res
	case domain.Or:
		if in, ok := orToIn(t); ok {
			return []domain.Filter{in}
		}
		return []domain.Filter{t}
	default:
		return []domain.Filter{f}
	}
}

func orToIn(o domain.Or) (domain.In, bool) {
	var res domain.In
	for n, branch := range o.Filters {
		var (
			field  string
			values []any
		)
		switch t := branch.(type) {
		case domain.Eq:
			field, values = t.Field, []any{t.Value}
		case domain.In:
			field, values = t.Field, t.Values
		default:
			return domain.In{}, false
		}
		if n > 0 && field != res.Field {
			return domain.In{}, false
		}
		res.Field = field
		res.Values = append(res.Values, values...)
	}
	if len(o.Filters) == 0 {
		return domain.In{}, false
	}
	return res, true
}

// indexable reports whether an equality on v can be answered by an index.
// Arrays are stored element by element, so a whole array cannot be looked up.
func indexable(v any) bool {
	k := domain.KindOf(v)
	return k != domain.KindArray && k != domain.KindOther
}

func indexableValues(values []any) ([]any, bool) {
	for _, v := range values {
		if !indexable(v) {
			return nil, false
		}
	}
	return values, true
}

func containsText(f domain.Filter) bool {
	switch t := f.(type) {
	case domain.Text:
		return true
	case domain.And:
		for _, sub := range t.Filters {
			if containsText(sub) {
				return true
			}
		}
	case domain.Or:
		for _, sub := range t.Filters {
			if containsText(sub) {
				return true
			}
		}
	case domain.Not:
		return containsText(t.Filter)
	}
	return false
}

type candidate struct {
	handle     domain.IndexHandle
	r          domain.KeyRange
	eqFields   []string
	inField    string
	rangeField string
	uniqueFull bool
}

func (c candidate) useful() bool {
	return len(c.r.Prefix) > 0 || c.inField != "" || c.rangeField != ""
}

// better ranks candidates by equality prefix length, then range, then
// points, then unique indexes fully covered by equalities.
func (c candidate) better(o candidate) bool {
	if len(c.eqFields) != len(o.eqFields) {
		return len(c.eqFields) > len(o.eqFields)
	}
	if (c.rangeField != "") != (o.rangeField != "") {
		return c.rangeField != ""
	}
	if (c.inField != "") != (o.inField != "") {
		return c.inField != ""
	}
	return c.uniqueFull && !o.uniqueFull
}

func (c candidate) reason() string {
	var parts []string
	if len(c.eqFields) > 0 {
		parts = append(parts, "equality on "+strings.Join(c.eqFields, ", "))
	}
	if c.inField != "" {
		parts = append(parts, "points on "+c.inField)
	}
	if c.rangeField != "" {
		parts = append(parts, "range on "+c.rangeField)
	}
	if c.uniqueFull {
		parts = append(parts, "unique match")
	}
	return strings.Join(parts, ", ")
}

func (i *Indexer) candidate(h domain.IndexHandle, c clauses) candidate {
	idx := i.indexes[h]
	desc := idx.Descriptor()
	res := candidate{handle: h}

	nonNil := false
	for _, f := range desc.Fields {
		v, ok := c.eq[f.Path]
		if !ok {
			break
		}
		// sparse indexes leave out documents where every field is missing
		if desc.Sparse && v == nil && !nonNil {
			break
		}
		nonNil = nonNil || v != nil
		res.r.Prefix = append(res.r.Prefix, v)
		res.eqFields = append(res.eqFields, f.Path)
	}

	k := len(res.eqFields)
	if k == len(desc.Fields) {
		res.uniqueFull = desc.Unique
		return res
	}

	next := desc.Fields[k].Path
	if k == 0 {
		if values, ok := c.in[next]; ok && !(desc.Sparse && hasNil(values)) {
			res.r.In = values
			res.inField = next
			return res
		}
	}

	multikey := false
	if m, ok := idx.(multikeyer); ok {
		multikey = m.Multikey()
	}
	res.r.Lower, res.r.Upper = i.mergeBounds(c.cmp[next], multikey)
	if res.r.Lower != nil || res.r.Upper != nil {
		res.rangeField = next
	}
	return res
}

func hasNil(values []any) bool {
	for _, v := range values {
		if v == nil {
			return true
		}
	}
	return false
}

// mergeBounds keeps the tightest bound on each side. Opposite bounds are only
// merged when a single value must satisfy both.
func (i *Indexer) mergeBounds(cmps []domain.Cmp, multikey bool) (lower, upper *domain.Bound) {
	for _, c := range cmps {
		switch domain.KindOf(c.Value) {
		case domain.KindNumber, domain.KindString, domain.KindTime:
		default:
			continue
		}
		switch c.Op {
		case domain.OpGt, domain.OpGte:
			b := &domain.Bound{Value: c.Value, Inclusive: c.Op == domain.OpGte}
			if lower == nil || i.tighter(b, lower, 1) {
				lower = b
			}
		case domain.OpLt, domain.OpLte:
			b := &domain.Bound{Value: c.Value, Inclusive: c.Op == domain.OpLte}
			if upper == nil || i.tighter(b, upper, -1) {
				upper = b
			}
		}
	}
	if lower != nil && upper != nil && (multikey || !i.comparer.Comparable(lower.Value, upper.Value)) {
		upper = nil
	}
	return lower, upper
}

// tighter reports whether a restricts more than b. dir is 1 for lower bounds
// and -1 for upper bounds.
func (i *Indexer) tighter(a, b *domain.Bound, dir int) bool {
	if !i.comparer.Comparable(a.Value, b.Value) {
		return false
	}
	c, err := i.comparer.Compare(a.Value, b.Value)
	if err != nil {
		return false
	}
	if c == 0 {
		return !a.Inclusive && b.Inclusive
	}
	return c*dir > 0
}

// ChoosePlan implements [domain.IndexManager].
func (i *Indexer) ChoosePlan(f domain.Filter, hint domain.IndexHandle) (domain.Plan, error) {
	if containsText(f) && i.text == "" {
		return domain.Plan{}, fmt.Errorf("%w: text search needs a text index", domain.ErrBadQuery)
	}
	c := newClauses(f)

	if hint != "" {
		return i.hintedPlan(hint, c)
	}

	if c.search != nil {
		return domain.Plan{
			Index:  i.text,
			Range:  domain.KeyRange{Search: c.search.Search},
			Reason: "text search",
		}, nil
	}

	var best *candidate
	for _, h := range i.order {
		if i.indexes[h].Descriptor().Kind != domain.IndexTree {
			continue
		}
		cand := i.candidate(h, c)
		if !cand.useful() {
			continue
		}
		if best == nil || cand.better(*best) {
			best = &cand
		}
	}

	if best == nil {
		reason := "no index covers the filter"
		if c.or {
			reason = "$or cannot use an index"
		}
		return domain.Plan{Reason: reason}, nil
	}
	return domain.Plan{Index: best.handle, Range: best.r, Reason: best.reason()}, nil
}

func (i *Indexer) hintedPlan(hint domain.IndexHandle, c clauses) (domain.Plan, error) {
	idx, ok := i.indexes[hint]
	if !ok {
		return domain.Plan{}, fmt.Errorf("%w: hinted index %q", domain.ErrNotFound, hint)
	}
	if idx.Descriptor().Kind == domain.IndexText {
		if c.search == nil {
			return domain.Plan{}, fmt.Errorf("%w: hinted text index needs a text search", domain.ErrBadQuery)
		}
		return domain.Plan{
			Index:  hint,
			Range:  domain.KeyRange{Search: c.search.Search},
			Reason: "hint, text search",
		}, nil
	}
	cand := i.candidate(hint, c)
	if !cand.useful() {
		return domain.Plan{Index: hint, Reason: "hint, full index walk"}, nil
	}
	return domain.Plan{Index: hint, Range: cand.r, Reason: "hint, " + cand.reason()}, nil
}
