package datastore

import (
	"io"
	"log/slog"
	"os"

	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// Option changes a [Datastore] built by [NewDatastore].
type Option func(*Datastore)

// WithFilename sets the data file. Without one the books live in memory only.
func WithFilename(f string) Option {
	return func(d *Datastore) { d.filename = f }
}

// WithTimestamps stamps createdAt on insert and updatedAt on every write.
func WithTimestamps(on bool) Option {
	return func(d *Datastore) { d.timestampData = on }
}

// WithCorruptionThreshold sets the share of unreadable data file lines
// tolerated when loading.
func WithCorruptionThreshold(c float64) Option {
	return func(d *Datastore) { d.corruptAlertThreshold = c }
}

// WithFileMode sets the permissions of a new data file.
func WithFileMode(m os.FileMode) Option {
	return func(d *Datastore) { d.fileMode = m }
}

// WithDirMode sets the permissions of missing parent directories.
func WithDirMode(m os.FileMode) Option {
	return func(d *Datastore) { d.dirMode = m }
}

// WithPersistence replaces the data file handling. Filename, modes,
// threshold, serializer and storage options are then ignored.
func WithPersistence(p domain.Persistence) Option {
	return func(d *Datastore) { d.persistence = p }
}

// WithSerializer sets how data file lines are written.
func WithSerializer(s domain.Serializer) Option {
	return func(d *Datastore) { d.serializer = s }
}

// WithDeserializer sets how data file lines are read.
func WithDeserializer(s domain.Deserializer) Option {
	return func(d *Datastore) { d.deserializer = s }
}

// WithStorage replaces the file system access of the default persistence.
func WithStorage(s domain.Storage) Option {
	return func(d *Datastore) { d.storage = s }
}

// WithComparer sets the ordering used by filters, indexes and sorts.
func WithComparer(c domain.Comparer) Option {
	return func(d *Datastore) { d.comparer = c }
}

// WithDocumentFactory sets how inserted values and patches become documents.
func WithDocumentFactory(f domain.DocumentFactory) Option {
	return func(d *Datastore) { d.documentFactory = f }
}

// WithDecoder sets the decoder used by cursors and by Get.
func WithDecoder(dec domain.Decoder) Option {
	return func(d *Datastore) { d.decoder = dec }
}

// WithMatcher sets the filter evaluator.
func WithMatcher(m domain.Matcher) Option {
	return func(d *Datastore) { d.matcher = m }
}

// WithCursorFactory sets how result sequences are wrapped.
func WithCursorFactory(f domain.CursorFactory) Option {
	return func(d *Datastore) { d.cursorFactory = f }
}

// WithModifier sets how update patches are applied.
func WithModifier(m domain.Modifier) Option {
	return func(d *Datastore) { d.modifier = m }
}

// WithTimeGetter sets the clock of [WithTimestamps].
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(d *Datastore) { d.timeGetter = t }
}

// WithHasher sets the hasher used to group documents in pipelines.
func WithHasher(h domain.Hasher) Option {
	return func(d *Datastore) { d.hasher = h }
}

// WithFieldNavigator sets how dotted paths are resolved.
func WithFieldNavigator(f domain.FieldNavigator) Option {
	return func(d *Datastore) { d.fieldNavigator = f }
}

// WithIDGenerator sets the source of ids for books inserted without one.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(d *Datastore) { d.idGenerator = g }
}

// WithRandomReader feeds the default id generator.
func WithRandomReader(r io.Reader) Option {
	return func(d *Datastore) { d.randomReader = r }
}

// WithPipeline sets the engine that runs aggregation stages.
func WithPipeline(p domain.Pipeline) Option {
	return func(d *Datastore) { d.pipeline = p }
}

// WithMetrics sets the recorder notified of queries, mutations and
// aggregations.
func WithMetrics(m domain.Metrics) Option {
	return func(d *Datastore) { d.metrics = m }
}

// WithLogger sets the logger. Query plans are logged at debug level, loads and
// compactions at info level.
func WithLogger(l *slog.Logger) Option {
	return func(d *Datastore) { d.log = l }
}
