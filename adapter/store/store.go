// Package store contains the default [domain.RecordStore] implementation.
//
// Mutations of a document hold its key in a lock table for the whole
// read-modify-write, and publish store and index changes together inside a
// short commit section. Readers take the commit section in read mode only
// while copying what they need, so no lock is held while callers iterate.
package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/idgenerator"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
	"github.com/vinicius-lino-figueiredo/shelfdb/pkg/ctxsync"
)

const (
	// CreatedAtField holds the insertion time when timestamps are on.
	CreatedAtField = "createdAt"
	// UpdatedAtField holds the last modification time when timestamps are
	// on.
	UpdatedAtField = "updatedAt"
)

// Change is a mutation the store is about to publish.
type Change struct {
	// Docs holds the inserted documents or the new version of an updated one.
	Docs []domain.Document
	// Deleted is the id of a removed document.
	Deleted string
}

// CommitHook runs inside the commit section once the indexes accept a change
// and before readers can see it. When it fails the index change is undone and
// the store keeps its previous state.
type CommitHook func(ctx context.Context, c Change) error

// Store implements [domain.RecordStore].
type Store struct {
	commit  sync.RWMutex
	locks   *ctxsync.KeyedMutex
	records map[string]domain.Record
	retired map[string]struct{}
	nextSeq uint64

	indexer     domain.IndexManager
	idGenerator domain.IDGenerator
	modifier    domain.Modifier
	docFac      domain.DocumentFactory
	timeGetter  domain.TimeGetter
	onCommit    CommitHook
}

// NewStore returns a new implementation of [domain.RecordStore] over the given
// index manager.
func NewStore(indexer domain.IndexManager, opts ...Option) domain.RecordStore {
	s := &Store{
		locks:       ctxsync.NewKeyedMutex(),
		records:     make(map[string]domain.Record),
		retired:     make(map[string]struct{}),
		indexer:     indexer,
		idGenerator: idgenerator.NewIDGenerator(),
		docFac:      data.NewDocument,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.modifier == nil {
		c := comparer.NewComparer()
		s.modifier = modifier.NewModifier(c, fieldnavigator.NewFieldNavigator(s.docFac))
	}
	return s
}

func (s *Store) prepare(obj any) (domain.Document, error) {
	doc, err := s.docFac(obj)
	if err != nil {
		return nil, err
	}
	// the factory may keep references to the caller's values
	doc = data.Clone(doc).(domain.Document)
	if err := data.CheckKeys(doc); err != nil {
		return nil, err
	}
	if err := checkValues(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func checkValues(v any) error {
	switch t := v.(type) {
	case domain.Document:
		for k, value := range t.Iter() {
			if err := checkValues(value); err != nil {
				return fmt.Errorf("field %q: %w", k, err)
			}
		}
	case []any:
		for _, item := range t {
			if err := checkValues(item); err != nil {
				return err
			}
		}
	default:
		if domain.KindOf(v) == domain.KindOther {
			return fmt.Errorf("%w: unsupported value of type %T", domain.ErrBadQuery, v)
		}
	}
	return nil
}

// Insert implements [domain.RecordStore].
func (s *Store) Insert(ctx context.Context, objs ...any) ([]domain.Document, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	docs := make([]domain.Document, len(objs))
	for n, obj := range objs {
		doc, err := s.prepare(obj)
		if err != nil {
			return nil, err
		}
		if !doc.Has(domain.IDField) {
			id, err := s.idGenerator.GenerateID()
			if err != nil {
				return nil, err
			}
			doc.Set(domain.IDField, id)
		}
		if s.timeGetter != nil {
			now := s.timeGetter.GetTime()
			if !doc.Has(CreatedAtField) {
				doc.Set(CreatedAtField, now)
			}
			doc.Set(UpdatedAtField, now)
		}
		docs[n] = doc
	}

	if err := s.add(ctx, docs, s.onCommit); err != nil {
		return nil, err
	}

	res := make([]domain.Document, len(docs))
	for n, doc := range docs {
		res[n] = data.Clone(doc).(domain.Document)
	}
	return res, nil
}

// Load implements [domain.RecordStore].
func (s *Store) Load(ctx context.Context, docs ...domain.Document) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	prepared := make([]domain.Document, len(docs))
	for n, d := range docs {
		doc, err := s.prepare(d)
		if err != nil {
			return err
		}
		if !doc.Has(domain.IDField) {
			return fmt.Errorf("%w: loaded document has no %s", domain.ErrBadQuery, domain.IDField)
		}
		prepared[n] = doc
	}
	return s.add(ctx, prepared, nil)
}

// add validates identifiers and publishes new documents. Either every
// document is added or none is.
func (s *Store) add(ctx context.Context, docs []domain.Document, hook CommitHook) error {
	ids := make([]string, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for n, doc := range docs {
		id, ok := doc.ID().(string)
		if !ok || id == "" {
			return fmt.Errorf("%w: %s must be a non-empty string, got %T", domain.ErrBadQuery, domain.IDField, doc.ID())
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s %q given twice", domain.ErrDuplicateKey, domain.IDField, id)
		}
		seen[id] = struct{}{}
		ids[n] = id
	}

	s.commit.Lock()
	defer s.commit.Unlock()

	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			return fmt.Errorf("%w: %s %q is in use", domain.ErrDuplicateKey, domain.IDField, id)
		}
		if _, ok := s.retired[id]; ok {
			return fmt.Errorf("%w: %s %q belonged to a deleted document", domain.ErrDuplicateKey, domain.IDField, id)
		}
	}

	if err := s.indexer.Insert(ctx, docs...); err != nil {
		return err
	}
	if hook != nil {
		if err := hook(ctx, Change{Docs: docs}); err != nil {
			return errors.Join(err, s.indexer.Remove(context.WithoutCancel(ctx), docs...))
		}
	}

	for n, doc := range docs {
		s.records[ids[n]] = domain.Record{Doc: doc, Seq: s.nextSeq}
		s.nextSeq++
	}
	return nil
}

// Update implements [domain.RecordStore].
func (s *Store) Update(ctx context.Context, id string, patch any) (domain.Document, error) {
	patchDoc, err := s.docFac(patch)
	if err != nil {
		return nil, err
	}

	if err := s.locks.LockWithContext(ctx, id); err != nil {
		return nil, err
	}
	defer s.locks.Unlock(id)

	s.commit.RLock()
	rec, ok := s.records[id]
	s.commit.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", domain.ErrNotFound, domain.IDField, id)
	}

	newDoc, err := s.modifier.Modify(rec.Doc, patchDoc)
	if err != nil {
		return nil, err
	}
	if err := checkValues(newDoc); err != nil {
		return nil, err
	}
	if s.timeGetter != nil {
		newDoc.Set(UpdatedAtField, s.timeGetter.GetTime())
	}

	s.commit.Lock()
	defer s.commit.Unlock()

	if err := s.indexer.Update(ctx, domain.Update{OldDoc: rec.Doc, NewDoc: newDoc}); err != nil {
		return nil, err
	}
	if err := s.stage(ctx, Change{Docs: []domain.Document{newDoc}}); err != nil {
		revert := domain.Update{OldDoc: newDoc, NewDoc: rec.Doc}
		return nil, errors.Join(err, s.indexer.Update(context.WithoutCancel(ctx), revert))
	}
	s.records[id] = domain.Record{Doc: newDoc, Seq: rec.Seq}

	return data.Clone(newDoc).(domain.Document), nil
}

// Delete implements [domain.RecordStore].
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.locks.LockWithContext(ctx, id); err != nil {
		return false, err
	}
	defer s.locks.Unlock(id)

	s.commit.Lock()
	defer s.commit.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	if err := s.indexer.Remove(ctx, rec.Doc); err != nil {
		return false, err
	}
	if err := s.stage(ctx, Change{Deleted: id}); err != nil {
		return false, errors.Join(err, s.indexer.Insert(context.WithoutCancel(ctx), rec.Doc))
	}
	delete(s.records, id)
	s.retired[id] = struct{}{}
	return true, nil
}

// Retire implements [domain.RecordStore].
func (s *Store) Retire(ids ...string) error {
	s.commit.Lock()
	defer s.commit.Unlock()

	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			return fmt.Errorf("%w: %s %q is in use", domain.ErrDuplicateKey, domain.IDField, id)
		}
	}
	for _, id := range ids {
		s.retired[id] = struct{}{}
	}
	return nil
}

// Retired implements [domain.RecordStore].
func (s *Store) Retired() []string {
	s.commit.RLock()
	defer s.commit.RUnlock()
	return slices.Sorted(maps.Keys(s.retired))
}

func (s *Store) stage(ctx context.Context, c Change) error {
	if s.onCommit == nil {
		return nil
	}
	return s.onCommit(ctx, c)
}

// Get implements [domain.RecordStore].
func (s *Store) Get(ctx context.Context, id string) (domain.Document, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.commit.RLock()
	rec, ok := s.records[id]
	s.commit.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", domain.ErrNotFound, domain.IDField, id)
	}
	return data.Clone(rec.Doc).(domain.Document), nil
}

// Scan implements [domain.RecordStore].
func (s *Store) Scan(ctx context.Context) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		var records []domain.Record
		err := s.Snapshot(ctx, func(snap domain.Snapshot) error {
			records = slices.Collect(snap.Records())
			return nil
		})
		if err != nil {
			yield(nil, err)
			return
		}
		for _, rec := range records {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(data.Clone(rec.Doc).(domain.Document), nil) {
				return
			}
		}
	}
}

// Len implements [domain.RecordStore].
func (s *Store) Len() int {
	s.commit.RLock()
	defer s.commit.RUnlock()
	return len(s.records)
}

// Snapshot implements [domain.RecordStore]. Records given to fn are shared
// with the store and must not be modified.
func (s *Store) Snapshot(ctx context.Context, fn func(domain.Snapshot) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.commit.RLock()
	defer s.commit.RUnlock()
	return fn(snapshot{records: s.records})
}

// CreateIndex implements [domain.RecordStore].
func (s *Store) CreateIndex(ctx context.Context, desc domain.IndexDescriptor) (domain.IndexHandle, error) {
	s.commit.Lock()
	defer s.commit.Unlock()

	existing := func(yield func(domain.Document) bool) {
		for rec := range (snapshot{records: s.records}).Records() {
			if !yield(rec.Doc) {
				return
			}
		}
	}
	return s.indexer.CreateIndex(ctx, desc, existing)
}

// DropIndex implements [domain.RecordStore].
func (s *Store) DropIndex(ctx context.Context, h domain.IndexHandle) error {
	s.commit.Lock()
	defer s.commit.Unlock()
	return s.indexer.Drop(ctx, h)
}

// Indexes implements [domain.RecordStore].
func (s *Store) Indexes() []domain.IndexDescriptor {
	s.commit.RLock()
	defer s.commit.RUnlock()
	return s.indexer.Indexes()
}

type snapshot struct {
	records map[string]domain.Record
}

// Record implements [domain.Snapshot].
func (s snapshot) Record(id string) (domain.Record, bool) {
	rec, ok := s.records[id]
	return rec, ok
}

// Records implements [domain.Snapshot].
func (s snapshot) Records() iter.Seq[domain.Record] {
	return func(yield func(domain.Record) bool) {
		records := slices.SortedFunc(maps.Values(s.records), func(a, b domain.Record) int {
			return cmp.Compare(a.Seq, b.Seq)
		})
		for _, rec := range records {
			if !yield(rec) {
				return
			}
		}
	}
}

// Len implements [domain.Snapshot].
func (s snapshot) Len() int {
	return len(s.records)
}
