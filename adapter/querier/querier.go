// Package querier contains the default [domain.Querier] implementation.
//
// Candidates are read from the chosen index (or every record) inside a store
// snapshot and ordered by insertion. The predicate, projection, sort, skip and
// limit then run lazily, outside the store lock, while the caller iterates.
package querier

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/projector"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// Querier implements [domain.Querier].
type Querier struct {
	store   domain.RecordStore
	indexer domain.IndexManager
	mtchr   domain.Matcher
	cmpr    domain.Comparer
	fn      domain.FieldNavigator
	proj    domain.Projector
	docFac  domain.DocumentFactory
	metrics domain.Metrics
	log     *slog.Logger
}

// NewQuerier returns a new implementation of [domain.Querier] reading from
// store. indexer must be the index manager the store maintains.
func NewQuerier(store domain.RecordStore, indexer domain.IndexManager, opts ...Option) domain.Querier {
	q := Querier{
		store:   store,
		indexer: indexer,
		docFac:  data.NewDocument,
		cmpr:    comparer.NewComparer(),
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&q)
	}
	if q.fn == nil {
		q.fn = fieldnavigator.NewFieldNavigator(q.docFac)
	}
	if q.proj == nil {
		q.proj = projector.NewProjector(
			projector.WithDocumentFactory(q.docFac),
			projector.WithFieldNavigator(q.fn),
		)
	}
	if q.mtchr == nil {
		q.mtchr = matcher.NewMatcher(
			matcher.WithComparer(q.cmpr),
			matcher.WithFieldNavigator(q.fn),
		)
	}
	return &q
}

type sortKey struct {
	addr  []string
	order int
	score bool
}

// execution is a compiled query and its candidates.
type execution struct {
	plan       domain.Plan
	pred       domain.Predicate
	project    func(domain.Document) (domain.Document, error)
	sort       []sortKey
	skip       int
	limit      int
	scorer     domain.TextScorer
	search     string
	scoreField string
	candidates []domain.Record
	stats      domain.ExecutionStats
}

type match struct {
	doc   domain.Document
	score float64
}

// Find implements [domain.Querier]. Errors in the filter or in the options
// are returned before any document is read.
func (q *Querier) Find(ctx context.Context, f domain.Filter, opts ...domain.FindOption) (iter.Seq2[domain.Document, error], error) {
	ex, err := q.prepare(ctx, f, opts)
	if err != nil {
		return nil, err
	}
	return func(yield func(domain.Document, error) bool) {
		var err error
		stats := ex.stats
		start := time.Now()
		defer func() {
			stats.Duration = time.Since(start)
			q.observe(stats, err)
		}()
		for doc, dErr := range q.run(ctx, ex, &stats) {
			err = dErr
			if !yield(doc, dErr) || dErr != nil {
				return
			}
		}
	}, nil
}

// Count implements [domain.Querier].
func (q *Querier) Count(ctx context.Context, f domain.Filter) (int, error) {
	ex, err := q.prepare(ctx, f, nil)
	if err != nil {
		return 0, err
	}
	stats := ex.stats
	start := time.Now()
	for _, err := range q.matches(ctx, ex, &stats) {
		if err != nil {
			q.observe(stats, err)
			return 0, err
		}
		stats.NReturned++
	}
	stats.Duration = time.Since(start)
	q.observe(stats, nil)
	return stats.NReturned, nil
}

// Explain implements [domain.Querier]. The query runs to completion and its
// results are discarded.
func (q *Querier) Explain(ctx context.Context, f domain.Filter, opts ...domain.FindOption) (domain.ExecutionStats, error) {
	start := time.Now()
	ex, err := q.prepare(ctx, f, opts)
	if err != nil {
		return domain.ExecutionStats{}, err
	}
	stats := ex.stats
	for _, err := range q.run(ctx, ex, &stats) {
		if err != nil {
			return domain.ExecutionStats{}, err
		}
	}
	stats.Duration = time.Since(start)
	q.observe(stats, nil)
	return stats, nil
}

func (q *Querier) observe(stats domain.ExecutionStats, err error) {
	if q.metrics != nil && err == nil {
		q.metrics.ObserveQuery(stats)
	}
}

func (q *Querier) prepare(ctx context.Context, f domain.Filter, opts []domain.FindOption) (*execution, error) {
	var options domain.FindOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.Skip < 0 {
		return nil, fmt.Errorf("%w: negative skip %d", domain.ErrBadQuery, options.Skip)
	}
	if options.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", domain.ErrBadQuery, options.Limit)
	}
	if f == nil {
		f = domain.MatchAll{}
	}

	project, err := q.proj.Prepare(options.Projection)
	if err != nil {
		return nil, err
	}
	keys, err := q.sortKeys(options.Sort)
	if err != nil {
		return nil, err
	}

	ex := &execution{
		project:    project,
		sort:       keys,
		skip:       options.Skip,
		limit:      options.Limit,
		scoreField: options.TextScore,
	}
	search, hasText := textSearch(f)
	needsScore := ex.scoreField != "" || slices.ContainsFunc(keys, func(k sortKey) bool { return k.score })
	if needsScore && !hasText {
		return nil, fmt.Errorf("%w: text score requires a $text query", domain.ErrBadQuery)
	}

	err = q.store.Snapshot(ctx, func(snap domain.Snapshot) error {
		var compileOpts []domain.CompileOption
		if scorer, ok := q.indexer.TextScorer(); ok {
			compileOpts = append(compileOpts, domain.WithTextScorer(scorer))
			if needsScore {
				ex.scorer, ex.search = scorer, search
			}
		}
		pred, err := q.mtchr.Compile(f, compileOpts...)
		if err != nil {
			return err
		}
		plan, err := q.indexer.ChoosePlan(f, options.Hint)
		if err != nil {
			return err
		}
		ex.pred, ex.plan = pred, plan
		ex.stats = domain.ExecutionStats{
			Stage:  plan.Stage(),
			Index:  plan.Index,
			Reason: plan.Reason,
		}
		return q.collect(ctx, snap, ex)
	})
	if err != nil {
		return nil, err
	}

	q.log.Debug("query planned",
		slog.String("stage", ex.stats.Stage),
		slog.String("index", string(ex.stats.Index)),
		slog.String("reason", ex.stats.Reason),
		slog.Int("candidates", len(ex.candidates)),
	)
	return ex, nil
}

func (q *Querier) sortKeys(s domain.Sort) ([]sortKey, error) {
	res := make([]sortKey, 0, len(s))
	for _, key := range s {
		if key.Key == domain.TextScoreKey {
			res = append(res, sortKey{score: true})
			continue
		}
		if key.Key == "" || key.Order == 0 {
			return nil, fmt.Errorf("%w: invalid sort key %+v", domain.ErrBadQuery, key)
		}
		addr, err := q.fn.GetAddress(key.Key)
		if err != nil {
			return nil, err
		}
		res = append(res, sortKey{addr: addr, order: cmp.Compare(key.Order, 0)})
	}
	return res, nil
}

// textSearch returns the search of the first [domain.Text] node in f.
func textSearch(f domain.Filter) (string, bool) {
	switch t := f.(type) {
	case domain.Text:
		return t.Search, true
	case domain.And:
		return firstSearch(t.Filters)
	case domain.Or:
		return firstSearch(t.Filters)
	case domain.Not:
		return textSearch(t.Filter)
	}
	return "", false
}

func firstSearch(filters []domain.Filter) (string, bool) {
	for _, f := range filters {
		if search, ok := textSearch(f); ok {
			return search, true
		}
	}
	return "", false
}

// collect reads the candidates of the plan. Index entries can repeat ids, so
// they are deduplicated and put back in insertion order.
func (q *Querier) collect(ctx context.Context, snap domain.Snapshot, ex *execution) error {
	if ex.plan.Index == "" {
		ex.candidates = slices.Collect(snap.Records())
		return nil
	}
	ids, err := q.indexer.Lookup(ctx, ex.plan.Index, ex.plan.Range)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{})
	for id, err := range ids {
		if err != nil {
			return err
		}
		ex.stats.KeysExamined++
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if rec, ok := snap.Record(id); ok {
			ex.candidates = append(ex.candidates, rec)
		}
	}
	slices.SortFunc(ex.candidates, func(a, b domain.Record) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return nil
}

// matches yields the candidates accepted by the predicate.
func (q *Querier) matches(ctx context.Context, ex *execution, stats *domain.ExecutionStats) iter.Seq2[match, error] {
	return func(yield func(match, error) bool) {
		for _, rec := range ex.candidates {
			select {
			case <-ctx.Done():
				yield(match{}, ctx.Err())
				return
			default:
			}
			stats.DocsExamined++
			ok, err := ex.pred(rec.Doc)
			if err != nil {
				yield(match{}, fmt.Errorf("matching document: %w", err))
				return
			}
			if !ok {
				continue
			}
			m := match{doc: rec.Doc}
			if ex.scorer != nil {
				m.score = ex.scorer.Score(rec.Doc, ex.search)
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (q *Querier) run(ctx context.Context, ex *execution, stats *domain.ExecutionStats) iter.Seq2[domain.Document, error] {
	if len(ex.sort) > 0 {
		return q.sorted(ctx, ex, stats)
	}
	return func(yield func(domain.Document, error) bool) {
		skipped := 0
		for m, err := range q.matches(ctx, ex, stats) {
			if err != nil {
				yield(nil, err)
				return
			}
			if skipped < ex.skip {
				skipped++
				continue
			}
			if !q.emit(ex, m, stats, yield) {
				return
			}
			if ex.limit > 0 && stats.NReturned == ex.limit {
				return
			}
		}
	}
}

func (q *Querier) sorted(ctx context.Context, ex *execution, stats *domain.ExecutionStats) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		var all []match
		for m, err := range q.matches(ctx, ex, stats) {
			if err != nil {
				yield(nil, err)
				return
			}
			all = append(all, m)
		}

		var sortErr error
		slices.SortStableFunc(all, func(a, b match) int {
			if sortErr != nil {
				return 0
			}
			comp, err := q.compare(a, b, ex.sort)
			if err != nil {
				sortErr = err
			}
			return comp
		})
		if sortErr != nil {
			yield(nil, fmt.Errorf("sorting: %w", sortErr))
			return
		}

		for _, m := range window(all, ex.skip, ex.limit) {
			if !q.emit(ex, m, stats, yield) {
				return
			}
		}
	}
}

// emit projects a copy of the matched document and yields it.
func (q *Querier) emit(ex *execution, m match, stats *domain.ExecutionStats, yield func(domain.Document, error) bool) bool {
	doc, err := ex.project(data.Clone(m.doc).(domain.Document))
	if err != nil {
		yield(nil, fmt.Errorf("projecting: %w", err))
		return false
	}
	if ex.scoreField != "" {
		doc.Set(ex.scoreField, m.score)
	}
	stats.NReturned++
	return yield(doc, nil)
}

func (q *Querier) compare(a, b match, keys []sortKey) (int, error) {
	for _, key := range keys {
		if key.score {
			if comp := cmp.Compare(b.score, a.score); comp != 0 {
				return comp, nil
			}
			continue
		}
		comp, err := q.compareByKey(a.doc, b.doc, key)
		if err != nil || comp != 0 {
			return comp, err
		}
	}
	return 0, nil
}

func (q *Querier) compareByKey(a, b domain.Document, key sortKey) (int, error) {
	criterionA, _, err := q.fn.GetField(a, key.addr...)
	if err != nil {
		return 0, fmt.Errorf("getting field: %w", err)
	}
	criterionB, _, err := q.fn.GetField(b, key.addr...)
	if err != nil {
		return 0, fmt.Errorf("getting field: %w", err)
	}

	comp, err := q.cmpr.Compare(listFields(criterionA), listFields(criterionB))
	if err != nil {
		return 0, fmt.Errorf("comparing: %w", err)
	}
	return comp * key.order, nil
}

func listFields(g []domain.GetSetter) []any {
	res := make([]any, len(g))
	for n, v := range g {
		res[n] = v
	}
	return res
}

func window[T any](items []T, skip, limit int) []T {
	skip = min(skip, len(items))
	end := len(items)
	if limit > 0 {
		end = min(skip+limit, end)
	}
	return items[skip:end]
}
