// Package pipeline contains the default [domain.Pipeline] implementation.
//
// Stages are compiled once, before any document is read, and then chained as
// iterators. Match, Project, Unwind, Skip and Limit stream documents; Group and
// SortBy read their whole input before emitting anything.
package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/hasher"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

type stageFunc func(context.Context, iter.Seq2[domain.Document, error]) iter.Seq2[domain.Document, error]

// Pipeline implements [domain.Pipeline].
type Pipeline struct {
	mtchr  domain.Matcher
	cmpr   domain.Comparer
	fn     domain.FieldNavigator
	hasher domain.Hasher
	docFac domain.DocumentFactory
}

// NewPipeline returns a new implementation of [domain.Pipeline].
func NewPipeline(opts ...Option) domain.Pipeline {
	p := Pipeline{
		docFac: data.NewDocument,
		cmpr:   comparer.NewComparer(),
		hasher: hasher.NewHasher(),
	}
	for _, opt := range opts {
		opt(&p)
	}
	if p.fn == nil {
		p.fn = fieldnavigator.NewFieldNavigator(p.docFac)
	}
	if p.mtchr == nil {
		p.mtchr = matcher.NewMatcher(
			matcher.WithComparer(p.cmpr),
			matcher.WithFieldNavigator(p.fn),
		)
	}
	return &p
}

// Validate implements [domain.Pipeline].
func (p *Pipeline) Validate(stages []domain.Stage) error {
	_, err := p.compile(stages)
	return err
}

// Run implements [domain.Pipeline].
func (p *Pipeline) Run(ctx context.Context, stages []domain.Stage, source iter.Seq2[domain.Document, error]) (iter.Seq2[domain.Document, error], error) {
	fns, err := p.compile(stages)
	if err != nil {
		return nil, err
	}
	seq := withContext(ctx, source)
	for _, fn := range fns {
		seq = fn(ctx, seq)
	}
	return seq, nil
}

func withContext(ctx context.Context, source iter.Seq2[domain.Document, error]) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		if source == nil {
			return
		}
		for doc, err := range source {
			select {
			case <-ctx.Done():
				yield(nil, ctx.Err())
				return
			default:
			}
			if !yield(doc, err) || err != nil {
				return
			}
		}
	}
}

func (p *Pipeline) compile(stages []domain.Stage) ([]stageFunc, error) {
	res := make([]stageFunc, len(stages))
	for n, stage := range stages {
		if stage == nil {
			return nil, domain.ErrInvalidStage{Stage: "<nil>", Index: n, Reason: "missing stage"}
		}
		fn, err := p.compileStage(stage)
		if err != nil {
			return nil, domain.ErrInvalidStage{Stage: stage.StageName(), Index: n, Reason: err.Error()}
		}
		res[n] = fn
	}
	return res, nil
}

func (p *Pipeline) compileStage(stage domain.Stage) (stageFunc, error) {
	switch t := stage.(type) {
	case domain.Match:
		return p.compileMatch(t)
	case domain.Project:
		return p.compileProject(t)
	case domain.Group:
		return p.compileGroup(t)
	case domain.Unwind:
		return p.compileUnwind(t)
	case domain.SortBy:
		return p.compileSort(t)
	case domain.Limit:
		if t.N <= 0 {
			return nil, fmt.Errorf("limit must be positive, got %d", t.N)
		}
		return window(0, t.N), nil
	case domain.Skip:
		if t.N < 0 {
			return nil, fmt.Errorf("skip cannot be negative, got %d", t.N)
		}
		return window(t.N, 0), nil
	default:
		return nil, fmt.Errorf("unknown stage")
	}
}

// mapDocs runs fn on each document. fn returns the documents to emit.
func mapDocs(fn func(domain.Document) ([]domain.Document, error)) stageFunc {
	return func(_ context.Context, in iter.Seq2[domain.Document, error]) iter.Seq2[domain.Document, error] {
		return func(yield func(domain.Document, error) bool) {
			for doc, err := range in {
				if err != nil {
					yield(nil, err)
					return
				}
				out, err := fn(doc)
				if err != nil {
					yield(nil, err)
					return
				}
				for _, o := range out {
					if !yield(o, nil) {
						return
					}
				}
			}
		}
	}
}

func (p *Pipeline) compileMatch(m domain.Match) (stageFunc, error) {
	pred, err := p.mtchr.Compile(m.Filter)
	if err != nil {
		return nil, err
	}
	return mapDocs(func(doc domain.Document) ([]domain.Document, error) {
		ok, err := pred(doc)
		if err != nil || !ok {
			return nil, err
		}
		return []domain.Document{doc}, nil
	}), nil
}

func (p *Pipeline) compileProject(pr domain.Project) (stageFunc, error) {
	type field struct {
		addr []string
		eval evalFunc
	}
	seen := make(map[string]bool, len(pr.Fields))
	fields := make([]field, len(pr.Fields))
	for n, f := range pr.Fields {
		if err := checkName(f.Name, seen); err != nil {
			return nil, err
		}
		addr, err := p.fn.GetAddress(f.Name)
		if err != nil {
			return nil, err
		}
		eval, err := p.compileExpr(f.Expr)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		fields[n] = field{addr: addr, eval: eval}
	}

	return mapDocs(func(doc domain.Document) ([]domain.Document, error) {
		out, err := p.docFac(nil)
		if err != nil {
			return nil, err
		}
		if !pr.ExcludeID && doc.Has(domain.IDField) {
			out.Set(domain.IDField, data.Clone(doc.ID()))
		}
		for _, f := range fields {
			value, defined, err := f.eval(doc)
			if err != nil {
				return nil, err
			}
			if !defined {
				continue
			}
			targets, err := p.fn.EnsureField(out, f.addr...)
			if err != nil {
				return nil, err
			}
			for _, t := range targets {
				t.Set(data.Clone(value))
			}
		}
		if pr.ExcludeID {
			out.Unset(domain.IDField)
		}
		return []domain.Document{out}, nil
	}), nil
}

func (p *Pipeline) compileUnwind(u domain.Unwind) (stageFunc, error) {
	if u.Field == "" {
		return nil, fmt.Errorf("empty field path")
	}
	switch u.Policy {
	case domain.UnwindDrop, domain.UnwindStrict, domain.UnwindPreserve:
	default:
		return nil, fmt.Errorf("unknown unwind policy %d", u.Policy)
	}
	addr, err := p.fn.GetAddress(u.Field)
	if err != nil {
		return nil, err
	}

	return mapDocs(func(doc domain.Document) ([]domain.Document, error) {
		fields, expanded, err := p.fn.GetField(doc, addr...)
		if err != nil {
			return nil, err
		}
		var (
			value   any
			defined bool
		)
		if !expanded {
			value, defined = fields[0].Get()
		}
		list, isList := value.([]any)

		switch {
		case isList && len(list) > 0:
			return p.unwind(doc, addr, list)
		case u.Policy == domain.UnwindPreserve:
			if defined && (isList || value == nil) {
				out := data.Clone(doc).(domain.Document)
				targets, _, err := p.fn.GetField(out, addr...)
				if err != nil {
					return nil, err
				}
				for _, t := range targets {
					t.Unset()
				}
				return []domain.Document{out}, nil
			}
			return []domain.Document{doc}, nil
		case u.Policy == domain.UnwindStrict && !isList:
			kind := domain.KindOf(value)
			if !defined {
				kind = domain.KindUndefined
			}
			return nil, domain.ErrUnwindNotArray{Field: u.Field, Actual: kind}
		default:
			return nil, nil
		}
	}), nil
}

func (p *Pipeline) unwind(doc domain.Document, addr []string, list []any) ([]domain.Document, error) {
	res := make([]domain.Document, len(list))
	for n, item := range list {
		out := data.Clone(doc).(domain.Document)
		targets, err := p.fn.EnsureField(out, addr...)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			t.Set(data.Clone(item))
		}
		res[n] = out
	}
	return res, nil
}

type sortKey struct {
	addr  []string
	order int
}

func (p *Pipeline) compileSort(s domain.SortBy) (stageFunc, error) {
	if len(s.Keys) == 0 {
		return nil, fmt.Errorf("no sort keys")
	}
	keys := make([]sortKey, len(s.Keys))
	for n, k := range s.Keys {
		if k.Key == "" || k.Order == 0 {
			return nil, fmt.Errorf("invalid sort key %+v", k)
		}
		if k.Key == domain.TextScoreKey {
			return nil, fmt.Errorf("%s is only available to queries", domain.TextScoreKey)
		}
		addr, err := p.fn.GetAddress(k.Key)
		if err != nil {
			return nil, err
		}
		keys[n] = sortKey{addr: addr, order: cmp.Compare(k.Order, 0)}
	}

	return func(_ context.Context, in iter.Seq2[domain.Document, error]) iter.Seq2[domain.Document, error] {
		return func(yield func(domain.Document, error) bool) {
			var docs []domain.Document
			for doc, err := range in {
				if err != nil {
					yield(nil, err)
					return
				}
				docs = append(docs, doc)
			}
			var sortErr error
			slices.SortStableFunc(docs, func(a, b domain.Document) int {
				if sortErr != nil {
					return 0
				}
				comp, err := p.compareDocs(a, b, keys)
				if err != nil {
					sortErr = err
				}
				return comp
			})
			if sortErr != nil {
				yield(nil, fmt.Errorf("sorting: %w", sortErr))
				return
			}
			for _, doc := range docs {
				if !yield(doc, nil) {
					return
				}
			}
		}
	}, nil
}

func (p *Pipeline) compareDocs(a, b domain.Document, keys []sortKey) (int, error) {
	for _, key := range keys {
		fa, _, err := p.fn.GetField(a, key.addr...)
		if err != nil {
			return 0, err
		}
		fb, _, err := p.fn.GetField(b, key.addr...)
		if err != nil {
			return 0, err
		}
		comp, err := p.cmpr.Compare(getters(fa), getters(fb))
		if err != nil {
			return 0, err
		}
		if comp != 0 {
			return comp * key.order, nil
		}
	}
	return 0, nil
}

func getters(g []domain.GetSetter) []any {
	res := make([]any, len(g))
	for n, v := range g {
		res[n] = v
	}
	return res
}

// window skips the first skip documents and stops after limit documents, if
// limit is positive.
func window(skip, limit int) stageFunc {
	return func(_ context.Context, in iter.Seq2[domain.Document, error]) iter.Seq2[domain.Document, error] {
		return func(yield func(domain.Document, error) bool) {
			if limit < 0 {
				return
			}
			seen, emitted := 0, 0
			for doc, err := range in {
				if err != nil {
					yield(nil, err)
					return
				}
				if seen < skip {
					seen++
					continue
				}
				if !yield(doc, nil) {
					return
				}
				emitted++
				if limit > 0 && emitted == limit {
					return
				}
			}
		}
	}
}
