package pipeline

import (
	"context"
	"fmt"
	"iter"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
	"github.com/vinicius-lino-figueiredo/shelfdb/pkg/uncomparable"
)

// accumulator folds the values of one group.
type accumulator interface {
	add(value any, defined bool) error
	result() any
}

type accFactory func() accumulator

type sumAcc struct {
	sum any
}

func (a *sumAcc) add(v any, _ bool) error {
	if domain.KindOf(v) != domain.KindNumber {
		return nil
	}
	res, err := add(string(domain.AccSum), a.sum, v)
	a.sum = res
	return err
}

func (a *sumAcc) result() any { return a.sum }

type avgAcc struct {
	sum   float64
	count int
}

func (a *avgAcc) add(v any, _ bool) error {
	if f, ok := data.AsFloat(v); ok {
		a.sum += f
		a.count++
	}
	return nil
}

func (a *avgAcc) result() any {
	if a.count == 0 {
		return nil
	}
	return a.sum / float64(a.count)
}

// extremeAcc keeps the smallest (or largest) value in the comparer order.
type extremeAcc struct {
	cmpr  domain.Comparer
	sign  int
	value any
	set   bool
}

func (a *extremeAcc) add(v any, defined bool) error {
	if !defined || v == nil {
		return nil
	}
	if !a.set {
		a.value, a.set = v, true
		return nil
	}
	comp, err := a.cmpr.Compare(v, a.value)
	if err != nil {
		return err
	}
	if comp*a.sign > 0 {
		a.value = v
	}
	return nil
}

func (a *extremeAcc) result() any { return data.Clone(a.value) }

type countAcc struct {
	n int
}

func (a *countAcc) add(any, bool) error {
	a.n++
	return nil
}

func (a *countAcc) result() any { return a.n }

type pushAcc struct {
	values []any
}

func (a *pushAcc) add(v any, defined bool) error {
	if defined {
		a.values = append(a.values, data.Clone(v))
	}
	return nil
}

func (a *pushAcc) result() any { return a.values }

type firstAcc struct {
	value any
	seen  bool
}

func (a *firstAcc) add(v any, _ bool) error {
	if !a.seen {
		a.value, a.seen = data.Clone(v), true
	}
	return nil
}

func (a *firstAcc) result() any { return a.value }

type lastAcc struct {
	value any
}

func (a *lastAcc) add(v any, _ bool) error {
	a.value = data.Clone(v)
	return nil
}

func (a *lastAcc) result() any { return a.value }

// addToSetAcc keeps distinct values in first-seen order.
type addToSetAcc struct {
	set *uncomparable.Map[struct{}]
}

func (a *addToSetAcc) add(v any, defined bool) error {
	if !defined {
		return nil
	}
	if _, ok, err := a.set.Get(v); err != nil || ok {
		return err
	}
	return a.set.Set(data.Clone(v), struct{}{})
}

func (a *addToSetAcc) result() any {
	res := make([]any, 0, a.set.Len())
	for k := range a.set.Keys() {
		res = append(res, k)
	}
	return res
}

func (p *Pipeline) accFactory(op domain.AccOp) (accFactory, bool) {
	switch op {
	case domain.AccSum:
		return func() accumulator { return &sumAcc{sum: 0} }, true
	case domain.AccAvg:
		return func() accumulator { return &avgAcc{} }, true
	case domain.AccMin:
		return func() accumulator { return &extremeAcc{cmpr: p.cmpr, sign: -1} }, true
	case domain.AccMax:
		return func() accumulator { return &extremeAcc{cmpr: p.cmpr, sign: 1} }, true
	case domain.AccCount:
		return func() accumulator { return &countAcc{} }, true
	case domain.AccPush:
		return func() accumulator { return &pushAcc{values: []any{}} }, true
	case domain.AccFirst:
		return func() accumulator { return &firstAcc{} }, true
	case domain.AccLast:
		return func() accumulator { return &lastAcc{} }, true
	case domain.AccAddToSet:
		return func() accumulator {
			return &addToSetAcc{set: uncomparable.New[struct{}](p.hasher, p.cmpr)}
		}, true
	default:
		return nil, false
	}
}

type compiledAcc struct {
	name string
	eval evalFunc
	new  accFactory
}

type group struct {
	key  any
	accs []accumulator
}

func (p *Pipeline) compileGroup(g domain.Group) (stageFunc, error) {
	if g.Key == nil {
		return nil, fmt.Errorf("missing group key")
	}
	key, err := p.compileExpr(g.Key)
	if err != nil {
		return nil, fmt.Errorf("group key: %w", err)
	}

	seen := map[string]bool{domain.IDField: true}
	accs := make([]compiledAcc, len(g.Accumulators))
	for n, acc := range g.Accumulators {
		if err := checkName(acc.Name, seen); err != nil {
			return nil, err
		}
		factory, ok := p.accFactory(acc.Op)
		if !ok {
			return nil, fmt.Errorf("unknown accumulator %q", acc.Op)
		}
		c := compiledAcc{name: acc.Name, new: factory}
		if acc.Op != domain.AccCount {
			if c.eval, err = p.compileExpr(acc.Expr); err != nil {
				return nil, fmt.Errorf("accumulator %q: %w", acc.Name, err)
			}
		}
		accs[n] = c
	}

	return func(ctx context.Context, in iter.Seq2[domain.Document, error]) iter.Seq2[domain.Document, error] {
		return func(yield func(domain.Document, error) bool) {
			groups := uncomparable.New[*group](p.hasher, p.cmpr)
			for doc, err := range in {
				if err == nil {
					err = p.accumulate(doc, key, accs, groups)
				}
				if err != nil {
					yield(nil, err)
					return
				}
			}
			for g := range groups.Values() {
				out, err := p.docFac(nil)
				if err != nil {
					yield(nil, err)
					return
				}
				out.Set(domain.IDField, g.key)
				for n, acc := range accs {
					out.Set(acc.name, g.accs[n].result())
				}
				if !yield(out, nil) {
					return
				}
			}
		}
	}, nil
}

func (p *Pipeline) accumulate(doc domain.Document, key evalFunc, accs []compiledAcc, groups *uncomparable.Map[*group]) error {
	k, defined, err := key(doc)
	if err != nil {
		return err
	}
	if !defined {
		k = nil
	}
	g, ok, err := groups.Get(k)
	if err != nil {
		return err
	}
	if !ok {
		g = &group{key: data.Clone(k), accs: make([]accumulator, len(accs))}
		for n, acc := range accs {
			g.accs[n] = acc.new()
		}
		if err := groups.Set(g.key, g); err != nil {
			return err
		}
	}
	for n, acc := range accs {
		var (
			value   any
			defined bool
		)
		if acc.eval != nil {
			if value, defined, err = acc.eval(doc); err != nil {
				return fmt.Errorf("accumulator %q: %w", acc.name, err)
			}
		}
		if err := g.accs[n].add(value, defined); err != nil {
			return fmt.Errorf("accumulator %q: %w", acc.name, err)
		}
	}
	return nil
}
