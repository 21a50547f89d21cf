// Package datastore contains the default [domain.ShelfDB] implementation.
//
// The datastore wires a record store, its index manager and a querier into an
// engine, and keeps the data file in step with every successful mutation.
// Loading or dropping the database replaces the whole engine at once.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/cursor"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/hasher"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/idgenerator"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/indexer"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/metrics"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/persistence"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/pipeline"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/querier"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/store"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/timegetter"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
	"github.com/vinicius-lino-figueiredo/shelfdb/pkg/ctxsync"
)

// Mutation names reported to [domain.Metrics].
const (
	OpInsert      = "insert"
	OpUpdate      = "update"
	OpUpdateMany  = "updateMany"
	OpDelete      = "delete"
	OpDeleteMany  = "deleteMany"
	OpCreateIndex = "createIndex"
	OpDropIndex   = "dropIndex"
)

// engine holds the components that share one index manager.
type engine struct {
	indexer domain.IndexManager
	store   domain.RecordStore
	querier domain.Querier
}

// Datastore implements domain.ShelfDB.
type Datastore struct {
	filename              string
	timestampData         bool
	corruptAlertThreshold float64
	fileMode              os.FileMode
	dirMode               os.FileMode
	randomReader          io.Reader
	durable               bool
	executor              *ctxsync.Mutex
	current               atomic.Pointer[engine]
	log                   *slog.Logger

	serializer      domain.Serializer
	deserializer    domain.Deserializer
	storage         domain.Storage
	persistence     domain.Persistence
	comparer        domain.Comparer
	documentFactory domain.DocumentFactory
	cursorFactory   domain.CursorFactory
	decoder         domain.Decoder
	matcher         domain.Matcher
	modifier        domain.Modifier
	timeGetter      domain.TimeGetter
	hasher          domain.Hasher
	fieldNavigator  domain.FieldNavigator
	idGenerator     domain.IDGenerator
	pipeline        domain.Pipeline
	metrics         domain.Metrics
}

// NewDatastore returns a new implementation of Datastore. The database starts
// empty; call LoadDatabase to read the data file.
func NewDatastore(options ...Option) (domain.ShelfDB, error) {
	d := &Datastore{
		corruptAlertThreshold: 0.1,
		fileMode:              persistence.DefaultFileMode,
		dirMode:               persistence.DefaultDirMode,
		executor:              ctxsync.NewMutex(),
		log:                   slog.New(slog.DiscardHandler),
		comparer:              comparer.NewComparer(),
		documentFactory:       data.NewDocument,
		cursorFactory:         cursor.NewCursor,
		decoder:               decoder.NewDecoder(),
		timeGetter:            timegetter.NewTimeGetter(),
		hasher:                hasher.NewHasher(),
		metrics:               metrics.Nop(),
	}
	for _, option := range options {
		option(d)
	}

	if d.fieldNavigator == nil {
		d.fieldNavigator = fieldnavigator.NewFieldNavigator(d.documentFactory)
	}
	if d.matcher == nil {
		d.matcher = matcher.NewMatcher(
			matcher.WithComparer(d.comparer),
			matcher.WithFieldNavigator(d.fieldNavigator),
		)
	}
	if d.modifier == nil {
		d.modifier = modifier.NewModifier(d.comparer, d.fieldNavigator)
	}
	if d.idGenerator == nil {
		var opts []idgenerator.Option
		if d.randomReader != nil {
			opts = append(opts, idgenerator.WithReader(d.randomReader))
		}
		d.idGenerator = idgenerator.NewIDGenerator(opts...)
	}
	if d.pipeline == nil {
		d.pipeline = pipeline.NewPipeline(
			pipeline.WithMatcher(d.matcher),
			pipeline.WithComparer(d.comparer),
			pipeline.WithFieldNavigator(d.fieldNavigator),
			pipeline.WithHasher(d.hasher),
			pipeline.WithDocumentFactory(d.documentFactory),
		)
	}

	d.durable = d.persistence != nil || d.filename != ""
	if d.persistence == nil {
		persistenceOptions := []persistence.Option{
			persistence.WithFilename(d.filename),
			persistence.WithCorruptAlertThreshold(d.corruptAlertThreshold),
			persistence.WithFileMode(d.fileMode),
			persistence.WithDirMode(d.dirMode),
			persistence.WithSerializer(d.serializer),
			persistence.WithDeserializer(d.deserializer),
			persistence.WithDecoder(d.decoder),
			persistence.WithComparer(d.comparer),
			persistence.WithDocFactory(d.documentFactory),
			persistence.WithHasher(d.hasher),
			persistence.WithLogger(d.log),
		}
		if d.storage != nil {
			persistenceOptions = append(persistenceOptions, persistence.WithStorage(d.storage))
		}
		var err error
		if d.persistence, err = persistence.NewPersistence(persistenceOptions...); err != nil {
			return nil, err
		}
	}

	e, err := d.newEngine()
	if err != nil {
		return nil, err
	}
	d.current.Store(e)
	return d, nil
}

func (d *Datastore) newEngine() (*engine, error) {
	idx, err := indexer.NewIndexer(
		indexer.WithComparer(d.comparer),
		indexer.WithFieldNavigator(d.fieldNavigator),
	)
	if err != nil {
		return nil, err
	}
	storeOptions := []store.Option{
		store.WithIDGenerator(d.idGenerator),
		store.WithModifier(d.modifier),
		store.WithDocumentFactory(d.documentFactory),
		store.WithCommitHook(d.persistChange),
	}
	if d.timestampData {
		storeOptions = append(storeOptions, store.WithTimestamps(d.timeGetter))
	}
	st := store.NewStore(idx, storeOptions...)
	q := querier.NewQuerier(st, idx,
		querier.WithDocumentFactory(d.documentFactory),
		querier.WithMatcher(d.matcher),
		querier.WithComparer(d.comparer),
		querier.WithFieldNavigator(d.fieldNavigator),
		querier.WithMetrics(d.metrics),
		querier.WithLogger(d.log),
	)
	return &engine{indexer: idx, store: st, querier: q}, nil
}

// persistChange appends a mutation to the data file before the store makes it
// visible, so a failed write leaves both unchanged.
func (d *Datastore) persistChange(ctx context.Context, c store.Change) error {
	lines := c.Docs
	if c.Deleted != "" {
		lines = []domain.Document{persistence.Tombstone(c.Deleted)}
	}
	return d.persistence.PersistNewState(context.WithoutCancel(ctx), lines...)
}

func (d *Datastore) engine() *engine {
	return d.current.Load()
}

// lockWrites serializes mutations while a data file is attached, so lines are
// appended in the order the store applied them.
func (d *Datastore) lockWrites(ctx context.Context) (func(), error) {
	if !d.durable {
		return func() {}, nil
	}
	if err := d.executor.LockWithContext(ctx); err != nil {
		return nil, err
	}
	return d.executor.Unlock, nil
}

func (d *Datastore) newCursor(ctx context.Context, seq iter.Seq2[domain.Document, error]) (domain.Cursor, error) {
	return d.cursorFactory(ctx, seq, domain.WithCursorDecoder(d.decoder))
}

// LoadDatabase implements domain.ShelfDB.
func (d *Datastore) LoadDatabase(ctx context.Context) error {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return err
	}
	defer d.executor.Unlock()

	docs, indexes, err := d.persistence.LoadDatabase(ctx)
	if err != nil {
		return err
	}

	e, err := d.newEngine()
	if err != nil {
		return err
	}
	for _, desc := range indexes {
		if desc.Handle() == domain.IDIndex {
			continue
		}
		if _, err := e.store.CreateIndex(ctx, desc); err != nil {
			return fmt.Errorf("restoring index %q: %w", desc.Handle(), err)
		}
	}
	var live []domain.Document
	var retired []string
	for _, doc := range docs {
		if !persistence.IsTombstone(doc) {
			live = append(live, doc)
		} else if id, ok := doc.ID().(string); ok {
			retired = append(retired, id)
		}
	}
	if err := e.store.Retire(retired...); err != nil {
		return err
	}
	if err := e.store.Load(ctx, live...); err != nil {
		return err
	}

	d.current.Store(e)
	d.log.Info("database loaded",
		slog.String("filename", d.filename),
		slog.Int("documents", len(live)),
		slog.Int("deleted", len(retired)),
		slog.Int("indexes", len(indexes)),
	)
	return nil
}

// DropDatabase implements domain.ShelfDB.
func (d *Datastore) DropDatabase(ctx context.Context) error {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return err
	}
	defer d.executor.Unlock()
	ctx = context.WithoutCancel(ctx) // should complete this task

	e, err := d.newEngine()
	if err != nil {
		return err
	}
	d.current.Store(e)
	return d.persistence.DropDatabase(ctx)
}

// CompactDatafile implements domain.ShelfDB.
func (d *Datastore) CompactDatafile(ctx context.Context) error {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return err
	}
	defer d.executor.Unlock()

	e := d.engine()
	var docs []domain.Document
	for doc, err := range e.store.Scan(ctx) {
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}
	for _, id := range e.store.Retired() {
		docs = append(docs, persistence.Tombstone(id))
	}
	indexes := e.store.Indexes()
	if err := d.persistence.PersistCachedDatabase(ctx, docs, indexes); err != nil {
		return err
	}
	d.log.Info("data file compacted",
		slog.String("filename", d.filename),
		slog.Int("documents", len(docs)),
	)
	return nil
}

// Insert implements domain.ShelfDB.
func (d *Datastore) Insert(ctx context.Context, newDocs ...any) (domain.Cursor, error) {
	unlock, err := d.lockWrites(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := d.insert(ctx, newDocs)
	d.metrics.ObserveMutation(OpInsert, err)
	if err != nil {
		return nil, err
	}
	return d.newCursor(ctx, cursor.Documents(res))
}

func (d *Datastore) insert(ctx context.Context, newDocs []any) ([]domain.Document, error) {
	if len(newDocs) == 0 {
		return nil, nil
	}
	return d.engine().store.Insert(ctx, newDocs...)
}

// Get implements domain.ShelfDB.
func (d *Datastore) Get(ctx context.Context, id string, target any) error {
	doc, err := d.engine().store.Get(ctx, id)
	if err != nil {
		return err
	}
	return d.decoder.Decode(doc, target)
}

// Find implements domain.ShelfDB.
func (d *Datastore) Find(ctx context.Context, f domain.Filter, opts ...domain.FindOption) (domain.Cursor, error) {
	seq, err := d.engine().querier.Find(ctx, f, opts...)
	if err != nil {
		return nil, err
	}
	return d.newCursor(ctx, seq)
}

// FindOne implements domain.ShelfDB. It fails with [domain.ErrNotFound] when no
// document matches.
func (d *Datastore) FindOne(ctx context.Context, f domain.Filter, target any, opts ...domain.FindOption) error {
	opts = append(opts, domain.WithLimit(1))
	seq, err := d.engine().querier.Find(ctx, f, opts...)
	if err != nil {
		return err
	}
	for doc, err := range seq {
		if err != nil {
			return err
		}
		return d.decoder.Decode(doc, target)
	}
	return fmt.Errorf("%w: no document matches the filter", domain.ErrNotFound)
}

// Count implements domain.ShelfDB.
func (d *Datastore) Count(ctx context.Context, f domain.Filter) (int, error) {
	return d.engine().querier.Count(ctx, f)
}

// Explain implements domain.ShelfDB.
func (d *Datastore) Explain(ctx context.Context, f domain.Filter, opts ...domain.FindOption) (domain.ExecutionStats, error) {
	return d.engine().querier.Explain(ctx, f, opts...)
}

// Update implements domain.ShelfDB.
func (d *Datastore) Update(ctx context.Context, id string, patch any, target any) error {
	unlock, err := d.lockWrites(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := d.engine().store.Update(ctx, id, patch)
	d.metrics.ObserveMutation(OpUpdate, err)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	return d.decoder.Decode(doc, target)
}

// UpdateMany implements domain.ShelfDB. Documents are updated one at a time;
// when one fails, the ones before it keep their new version.
func (d *Datastore) UpdateMany(ctx context.Context, f domain.Filter, patch any) (int, error) {
	unlock, err := d.lockWrites(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n, err := d.updateMany(ctx, f, patch)
	d.metrics.ObserveMutation(OpUpdateMany, err)
	return n, err
}

func (d *Datastore) updateMany(ctx context.Context, f domain.Filter, patch any) (int, error) {
	e := d.engine()
	ids, err := d.matchingIDs(ctx, e, f)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if _, err := e.store.Update(ctx, id, patch); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// matchingIDs reads the ids first so documents are not changed while the
// query is still running over them.
func (d *Datastore) matchingIDs(ctx context.Context, e *engine, f domain.Filter) ([]string, error) {
	seq, err := e.querier.Find(ctx, f, domain.WithProjection(map[string]int{domain.IDField: 1}))
	if err != nil {
		return nil, err
	}
	var ids []string
	for doc, err := range seq {
		if err != nil {
			return nil, err
		}
		if id, ok := doc.ID().(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Delete implements domain.ShelfDB.
func (d *Datastore) Delete(ctx context.Context, id string) (bool, error) {
	unlock, err := d.lockWrites(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	deleted, err := d.engine().store.Delete(ctx, id)
	d.metrics.ObserveMutation(OpDelete, err)
	return deleted, err
}

// DeleteMany implements domain.ShelfDB.
func (d *Datastore) DeleteMany(ctx context.Context, f domain.Filter) (int, error) {
	unlock, err := d.lockWrites(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	n, err := d.deleteMany(ctx, f)
	d.metrics.ObserveMutation(OpDeleteMany, err)
	return n, err
}

func (d *Datastore) deleteMany(ctx context.Context, f domain.Filter) (int, error) {
	e := d.engine()
	ids, err := d.matchingIDs(ctx, e, f)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		deleted, err := e.store.Delete(ctx, id)
		if err != nil {
			return n, err
		}
		if deleted {
			n++
		}
	}
	return n, nil
}

// Aggregate implements domain.ShelfDB. Stages are validated before any
// document is read.
func (d *Datastore) Aggregate(ctx context.Context, f domain.Filter, stages ...domain.Stage) (domain.Cursor, error) {
	if err := d.pipeline.Validate(stages); err != nil {
		d.metrics.ObservePipeline(len(stages), 0, err)
		return nil, err
	}
	source, err := d.engine().querier.Find(ctx, f)
	if err != nil {
		d.metrics.ObservePipeline(len(stages), 0, err)
		return nil, err
	}
	out, err := d.pipeline.Run(ctx, stages, source)
	if err != nil {
		d.metrics.ObservePipeline(len(stages), 0, err)
		return nil, err
	}
	return d.newCursor(ctx, d.observePipeline(len(stages), out))
}

// observePipeline reports the aggregation once its output is exhausted,
// fails or is abandoned.
func (d *Datastore) observePipeline(stages int, seq iter.Seq2[domain.Document, error]) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		start := time.Now()
		var err error
		defer func() {
			d.metrics.ObservePipeline(stages, time.Since(start), err)
		}()
		for doc, e := range seq {
			if e != nil {
				err = e
			}
			if !yield(doc, e) {
				return
			}
		}
	}
}

// CreateIndex implements domain.ShelfDB.
func (d *Datastore) CreateIndex(ctx context.Context, desc domain.IndexDescriptor) (domain.IndexHandle, error) {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return "", err
	}
	defer d.executor.Unlock()

	h, err := d.createIndex(ctx, desc)
	d.metrics.ObserveMutation(OpCreateIndex, err)
	return h, err
}

func (d *Datastore) createIndex(ctx context.Context, desc domain.IndexDescriptor) (domain.IndexHandle, error) {
	e := d.engine()
	h, err := e.store.CreateIndex(ctx, desc)
	if err != nil {
		return "", err
	}
	for _, created := range e.store.Indexes() {
		if created.Handle() == h {
			desc = created
			break
		}
	}
	if err := d.persistence.PersistIndexes(context.WithoutCancel(ctx), []domain.IndexDescriptor{desc}, nil); err != nil {
		return "", errors.Join(err, e.store.DropIndex(context.WithoutCancel(ctx), h))
	}
	d.log.Debug("index created", slog.String("index", string(h)))
	return h, nil
}

// DropIndex implements domain.ShelfDB.
func (d *Datastore) DropIndex(ctx context.Context, h domain.IndexHandle) error {
	if err := d.executor.LockWithContext(ctx); err != nil {
		return err
	}
	defer d.executor.Unlock()

	err := d.dropIndex(ctx, h)
	d.metrics.ObserveMutation(OpDropIndex, err)
	return err
}

func (d *Datastore) dropIndex(ctx context.Context, h domain.IndexHandle) error {
	e := d.engine()
	var dropped domain.IndexDescriptor
	for _, desc := range e.store.Indexes() {
		if desc.Handle() == h {
			dropped = desc
			break
		}
	}
	if err := e.store.DropIndex(ctx, h); err != nil {
		return err
	}
	if err := d.persistence.PersistIndexes(context.WithoutCancel(ctx), nil, []string{string(h)}); err != nil {
		_, restoreErr := e.store.CreateIndex(context.WithoutCancel(ctx), dropped)
		return errors.Join(err, restoreErr)
	}
	return nil
}

// Indexes implements domain.ShelfDB.
func (d *Datastore) Indexes() []domain.IndexDescriptor {
	return d.engine().store.Indexes()
}
