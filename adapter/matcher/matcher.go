// Package matcher compiles filter trees into predicates and parses mongo-like
// query objects into filter trees.
package matcher

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

type predicate = func(domain.Document) (bool, error)

var cmpOps = map[domain.CmpOp]func(int) bool{
	domain.OpGt:  func(c int) bool { return c > 0 },
	domain.OpGte: func(c int) bool { return c >= 0 },
	domain.OpLt:  func(c int) bool { return c < 0 },
	domain.OpLte: func(c int) bool { return c <= 0 },
}

// Matcher implements [domain.Matcher].
type Matcher struct {
	comparer       domain.Comparer
	fieldNavigator domain.FieldNavigator
}

// NewMatcher returns a new implementation of [domain.Matcher].
func NewMatcher(opts ...Option) domain.Matcher {
	m := &Matcher{
		comparer:       comparer.NewComparer(),
		fieldNavigator: fieldnavigator.NewFieldNavigator(data.NewDocument),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Compile implements [domain.Matcher].
func (m *Matcher) Compile(f domain.Filter, opts ...domain.CompileOption) (domain.Predicate, error) {
	var co domain.CompileOptions
	for _, opt := range opts {
		opt(&co)
	}
	c := &compiler{Matcher: m, scorer: co.TextScorer}
	p, err := c.compile(f)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type compiler struct {
	*Matcher
	scorer domain.TextScorer
}

func (c *compiler) compile(f domain.Filter) (predicate, error) {
	switch t := f.(type) {
	case nil, domain.MatchAll:
		return func(domain.Document) (bool, error) { return true, nil }, nil
	case domain.Eq:
		return c.eq(t)
	case domain.Cmp:
		return c.cmp(t)
	case domain.In:
		return c.in(t)
	case domain.Contains:
		return c.contains(t)
	case domain.Regex:
		return c.regex(t)
	case domain.Exists:
		return c.exists(t)
	case domain.Text:
		return c.text(t)
	case domain.And:
		return c.and(t)
	case domain.Or:
		return c.or(t)
	case domain.Not:
		return c.not(t)
	default:
		return nil, domain.ErrUnknownOperator{Operator: f.FilterOp()}
	}
}

func (c *compiler) address(op, field string) ([]string, error) {
	if field == "" {
		return nil, fmt.Errorf("%w: %s with an empty field name", domain.ErrBadQuery, op)
	}
	return c.fieldNavigator.GetAddress(field)
}

func checkLiteral(op string, v any) error {
	if domain.KindOf(v) == domain.KindOther {
		return fmt.Errorf("%w: %s does not support values of type %T", domain.ErrBadQuery, op, v)
	}
	return nil
}

// anyField returns a predicate that matches when fn holds for one of the
// values the address resolves to.
func (c *compiler) anyField(addr []string, fn func(value any, defined bool) bool) predicate {
	return func(doc domain.Document) (bool, error) {
		fields, _, err := c.fieldNavigator.GetField(doc, addr...)
		if err != nil {
			return false, err
		}
		for _, field := range fields {
			if fn(field.Get()) {
				return true, nil
			}
		}
		return false, nil
	}
}

func (c *compiler) same(a, b any) bool {
	comp, err := c.comparer.Compare(a, b)
	return err == nil && comp == 0
}

// equals reports whether value holds v, directly or as an array element. A nil
// v is held by undefined values.
func (c *compiler) equals(value any, defined bool, v any) bool {
	if !defined {
		return v == nil
	}
	if c.same(value, v) {
		return true
	}
	list, ok := value.([]any)
	if !ok || domain.KindOf(v) == domain.KindArray {
		return false
	}
	return slices.ContainsFunc(list, func(item any) bool { return c.same(item, v) })
}

func (c *compiler) eq(f domain.Eq) (predicate, error) {
	addr, err := c.address(f.FilterOp(), f.Field)
	if err != nil {
		return nil, err
	}
	if err := checkLiteral(f.FilterOp(), f.Value); err != nil {
		return nil, err
	}
	return c.anyField(addr, func(value any, defined bool) bool {
		return c.equals(value, defined, f.Value)
	}), nil
}

func (c *compiler) cmp(f domain.Cmp) (predicate, error) {
	test, ok := cmpOps[f.Op]
	if !ok {
		return nil, domain.ErrUnknownOperator{Operator: string(f.Op)}
	}
	switch kind := domain.KindOf(f.Value); kind {
	case domain.KindNumber, domain.KindString, domain.KindTime:
	default:
		return nil, domain.ErrCompArgType{Op: string(f.Op), Actual: kind}
	}
	addr, err := c.address(string(f.Op), f.Field)
	if err != nil {
		return nil, err
	}

	satisfies := func(value any) bool {
		if !c.comparer.Comparable(value, f.Value) {
			return false
		}
		comp, err := c.comparer.Compare(value, f.Value)
		return err == nil && test(comp)
	}
	return c.anyField(addr, func(value any, defined bool) bool {
		if !defined {
			return false
		}
		if list, ok := value.([]any); ok {
			return slices.ContainsFunc(list, satisfies)
		}
		return satisfies(value)
	}), nil
}

func (c *compiler) in(f domain.In) (predicate, error) {
	addr, err := c.address(f.FilterOp(), f.Field)
	if err != nil {
		return nil, err
	}
	for _, v := range f.Values {
		if err := checkLiteral(f.FilterOp(), v); err != nil {
			return nil, err
		}
	}
	return c.anyField(addr, func(value any, defined bool) bool {
		for _, v := range f.Values {
			if c.equals(value, defined, v) {
				return true
			}
		}
		return false
	}), nil
}

func (c *compiler) contains(f domain.Contains) (predicate, error) {
	addr, err := c.address(f.FilterOp(), f.Field)
	if err != nil {
		return nil, err
	}
	if err := checkLiteral(f.FilterOp(), f.Value); err != nil {
		return nil, err
	}
	return c.anyField(addr, func(value any, _ bool) bool {
		list, ok := value.([]any)
		return ok && slices.ContainsFunc(list, func(item any) bool { return c.same(item, f.Value) })
	}), nil
}

func (c *compiler) regex(f domain.Regex) (predicate, error) {
	addr, err := c.address(f.FilterOp(), f.Field)
	if err != nil {
		return nil, err
	}
	pattern := f.Pattern
	if f.CaseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrBadQuery, err)
	}

	matches := func(v any) bool {
		s, ok := v.(string)
		return ok && re.MatchString(s)
	}
	return c.anyField(addr, func(value any, _ bool) bool {
		if list, ok := value.([]any); ok {
			return slices.ContainsFunc(list, matches)
		}
		return matches(value)
	}), nil
}

func (c *compiler) exists(f domain.Exists) (predicate, error) {
	addr, err := c.address(f.FilterOp(), f.Field)
	if err != nil {
		return nil, err
	}
	defined := c.anyField(addr, func(_ any, defined bool) bool { return defined })
	return func(doc domain.Document) (bool, error) {
		ok, err := defined(doc)
		if err != nil {
			return false, err
		}
		return ok == f.Exists, nil
	}, nil
}

func (c *compiler) text(f domain.Text) (predicate, error) {
	if strings.TrimSpace(f.Search) == "" {
		return nil, fmt.Errorf("%w: empty text search", domain.ErrBadQuery)
	}
	if c.scorer == nil {
		return nil, fmt.Errorf("%w: text search requires a text index", domain.ErrBadQuery)
	}
	scorer := c.scorer
	return func(doc domain.Document) (bool, error) {
		return scorer.Score(doc, f.Search) > 0, nil
	}, nil
}

func (c *compiler) children(op string, filters []domain.Filter) ([]predicate, error) {
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: %s needs at least one filter", domain.ErrBadQuery, op)
	}
	res := make([]predicate, len(filters))
	for n, f := range filters {
		p, err := c.compile(f)
		if err != nil {
			return nil, err
		}
		res[n] = p
	}
	return res, nil
}

func (c *compiler) and(f domain.And) (predicate, error) {
	preds, err := c.children(f.FilterOp(), f.Filters)
	if err != nil {
		return nil, err
	}
	return func(doc domain.Document) (bool, error) {
		for _, p := range preds {
			ok, err := p(doc)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}, nil
}

func (c *compiler) or(f domain.Or) (predicate, error) {
	preds, err := c.children(f.FilterOp(), f.Filters)
	if err != nil {
		return nil, err
	}
	return func(doc domain.Document) (bool, error) {
		for _, p := range preds {
			ok, err := p(doc)
			if err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}, nil
}

func (c *compiler) not(f domain.Not) (predicate, error) {
	if f.Filter == nil {
		return nil, fmt.Errorf("%w: $not needs a filter", domain.ErrBadQuery)
	}
	p, err := c.compile(f.Filter)
	if err != nil {
		return nil, err
	}
	return func(doc domain.Document) (bool, error) {
		ok, err := p(doc)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}, nil
}
