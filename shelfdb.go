// Package shelfdb provides an embedded document database with secondary
// indexes, a small query language and aggregation pipelines.
//
// The basic usage starts with creating a new [ShelfDB] instance, which can be
// done by calling [NewDB]. Queries are trees of filter nodes ([Eq], [Cmp],
// [In], [Text], [And], ...) or mongo-like objects translated by [ParseFilter].
// Pipelines are lists of stages ([Group], [Unwind], [SortBy], ...) or objects
// translated by [ParsePipeline].
package shelfdb

import (
	"io"
	"log/slog"
	"os"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/datastore"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/pipeline"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

var (
	// ErrNotFound is returned when a document or an index does not exist.
	ErrNotFound = domain.ErrNotFound
	// ErrDuplicateKey is returned when a mutation would break a unique
	// index or reuse an identifier.
	ErrDuplicateKey = domain.ErrDuplicateKey
	// ErrBadQuery is returned for malformed filters, options, patches and
	// pipelines, before any document is read.
	ErrBadQuery = domain.ErrBadQuery
	// ErrTypeMismatch is returned when an operation meets a value of the
	// wrong kind.
	ErrTypeMismatch = domain.ErrTypeMismatch
	// ErrIndexExists is returned when creating an index that is already
	// there.
	ErrIndexExists = domain.ErrIndexExists
	// ErrCursorClosed is returned when trying to perform operations on a
	// closed [Cursor].
	ErrCursorClosed = domain.ErrCursorClosed
	// ErrScanBeforeNext is returned when calling [Cursor.Scan] before
	// calling [Cursor.Next].
	ErrScanBeforeNext = domain.ErrScanBeforeNext
	// ErrTargetNil is returned when user provides a nil value as a target
	// to decode data.
	ErrTargetNil = domain.ErrTargetNil
)

// ErrFieldName represents an invalid field name, usually for when a document is
// created with a reserved prefix or forbidden character.
type ErrFieldName = domain.ErrFieldName

// ErrInvalidStage is returned when a pipeline stage is malformed.
type ErrInvalidStage = domain.ErrInvalidStage

// ErrUnknownOperator is returned when a filter or an expression uses an
// operator that does not exist.
type ErrUnknownOperator = domain.ErrUnknownOperator

// ErrDatafileName is returned when the user specifies an invalid name for data
// file.
type ErrDatafileName = domain.ErrDatafileName

// ErrCorruptFiles is returned by [ShelfDB.LoadDatabase] when too many lines of
// the data file cannot be read.
type ErrCorruptFiles = domain.ErrCorruptFiles

// ErrDecode is returned by [Decoder.Decode] to wrap third party decoding
// errors.
type ErrDecode = domain.ErrDecode

// NewDB creates a new ShelfDB instance with the provided configuration options.
// Without [WithFilename] the database lives in memory only. Call
// [ShelfDB.LoadDatabase] before using a database backed by a file.
func NewDB(options ...Option) (ShelfDB, error) {
	return datastore.NewDatastore(options...)
}

// ParseFilter translates a mongo-like query object, such as
// {"rating": {"$gte": 4.5}}, into a [Filter].
func ParseFilter(query any) (Filter, error) {
	return matcher.Parse(query)
}

// ParsePipeline translates a list of mongo-like stage objects into stages.
func ParsePipeline(stages any) ([]Stage, error) {
	return pipeline.Parse(stages)
}

// ShelfDB is the database. See [domain.ShelfDB].
type ShelfDB = domain.ShelfDB

// M is the default [Document] implementation.
type M = data.M

// Document is a record held by the database.
type Document = domain.Document

// Cursor iterates over results.
type Cursor = domain.Cursor

// ExecutionStats reports how a query ran.
type ExecutionStats = domain.ExecutionStats

// IndexDescriptor defines a secondary index.
type IndexDescriptor = domain.IndexDescriptor

// IndexField is a path of an [IndexDescriptor] and its direction.
type IndexField = domain.IndexField

// IndexHandle identifies an index.
type IndexHandle = domain.IndexHandle

// Tree and text index kinds.
const (
	IndexTree = domain.IndexTree
	IndexText = domain.IndexText
)

// Filter is a node of a query tree.
type Filter = domain.Filter

// Filter nodes.
type (
	MatchAll = domain.MatchAll
	Eq       = domain.Eq
	Cmp      = domain.Cmp
	In       = domain.In
	Contains = domain.Contains
	Regex    = domain.Regex
	Exists   = domain.Exists
	Text     = domain.Text
	And      = domain.And
	Or       = domain.Or
	Not      = domain.Not
)

// Gt, Gte, Lt and Lte build range comparisons.
var (
	Gt  = domain.Gt
	Gte = domain.Gte
	Lt  = domain.Lt
	Lte = domain.Lte
)

// Stage is a step of an aggregation pipeline.
type Stage = domain.Stage

// Pipeline stages and expressions.
type (
	Match       = domain.Match
	Project     = domain.Project
	NamedExpr   = domain.NamedExpr
	Group       = domain.Group
	Accumulator = domain.Accumulator
	Unwind      = domain.Unwind
	SortBy      = domain.SortBy
	Limit       = domain.Limit
	Skip        = domain.Skip
	Expr        = domain.Expr
)

// Ref and Lit build field references and literal expressions.
var (
	Ref = domain.Ref
	Lit = domain.Lit
)

// Sort is an ordered list of sort keys.
type Sort = domain.Sort

// SortKey is a field and its order.
type SortKey = domain.SortKey

// TextScoreKey sorts the results of a [Text] query by relevance.
const TextScoreKey = domain.TextScoreKey

// FindOption configures queries.
type FindOption = domain.FindOption

// WithProjection keeps (1) or omits (0) fields of the results.
func WithProjection(p map[string]int) FindOption {
	return domain.WithProjection(p)
}

// WithSort sets the order of the results.
func WithSort(s ...SortKey) FindOption {
	return domain.WithSort(s...)
}

// WithSkip skips the first s results.
func WithSkip(s int) FindOption {
	return domain.WithSkip(s)
}

// WithLimit returns at most l results. Zero means no limit.
func WithLimit(l int) FindOption {
	return domain.WithLimit(l)
}

// WithHint forces the query to use the given index.
func WithHint(h IndexHandle) FindOption {
	return domain.WithHint(h)
}

// WithTextScore adds the relevance of text queries to each result under the
// given field.
func WithTextScore(field string) FindOption {
	return domain.WithTextScore(field)
}

// Interfaces that can be replaced through options.
type (
	Serializer      = domain.Serializer
	Deserializer    = domain.Deserializer
	Storage         = domain.Storage
	Persistence     = domain.Persistence
	Decoder         = domain.Decoder
	Comparer        = domain.Comparer
	TimeGetter      = domain.TimeGetter
	FieldNavigator  = domain.FieldNavigator
	Hasher          = domain.Hasher
	Matcher         = domain.Matcher
	Modifier        = domain.Modifier
	IDGenerator     = domain.IDGenerator
	Pipeline        = domain.Pipeline
	Metrics         = domain.Metrics
	DocumentFactory = domain.DocumentFactory
	CursorFactory   = domain.CursorFactory
)

// Option configures a database.
type Option = datastore.Option

// WithFilename sets the data file. Without it the database lives in memory
// only.
func WithFilename(f string) Option { return datastore.WithFilename(f) }

// WithTimestamps sets createdAt and updatedAt on inserted and updated
// documents.
func WithTimestamps(t bool) Option { return datastore.WithTimestamps(t) }

// WithCorruptionThreshold sets the share of unreadable data file lines
// tolerated when loading. Defaults to 0.1.
func WithCorruptionThreshold(c float64) Option { return datastore.WithCorruptionThreshold(c) }

// WithFileMode sets the permissions of the data file.
func WithFileMode(f os.FileMode) Option { return datastore.WithFileMode(f) }

// WithDirMode sets the permissions of the data file directory.
func WithDirMode(d os.FileMode) Option { return datastore.WithDirMode(d) }

// WithSerializer sets the serializer for converting data to bytes.
func WithSerializer(s Serializer) Option { return datastore.WithSerializer(s) }

// WithDeserializer sets the deserializer for converting bytes to data.
func WithDeserializer(d Deserializer) Option { return datastore.WithDeserializer(d) }

// WithStorage sets the storage implementation for file operations.
func WithStorage(s Storage) Option { return datastore.WithStorage(s) }

// WithPersistence sets the persistence implementation for data storage.
func WithPersistence(p Persistence) Option { return datastore.WithPersistence(p) }

// WithComparer sets the comparer for value comparison operations.
func WithComparer(c Comparer) Option { return datastore.WithComparer(c) }

// WithDocumentFactory sets the function for creating [Document] instances.
func WithDocumentFactory(d DocumentFactory) Option { return datastore.WithDocumentFactory(d) }

// WithDecoder sets the decoder used by cursors.
func WithDecoder(d Decoder) Option { return datastore.WithDecoder(d) }

// WithMatcher sets the matcher implementation for query evaluation.
func WithMatcher(m Matcher) Option { return datastore.WithMatcher(m) }

// WithCursorFactory sets the function for creating cursor instances.
func WithCursorFactory(c CursorFactory) Option { return datastore.WithCursorFactory(c) }

// WithModifier sets the modifier implementation for document updates.
func WithModifier(m Modifier) Option { return datastore.WithModifier(m) }

// WithTimeGetter sets the time getter for timestamping operations.
func WithTimeGetter(t TimeGetter) Option { return datastore.WithTimeGetter(t) }

// WithHasher sets the hasher used to group documents.
func WithHasher(h Hasher) Option { return datastore.WithHasher(h) }

// WithFieldNavigator sets the field getter for accessing document fields.
func WithFieldNavigator(f FieldNavigator) Option { return datastore.WithFieldNavigator(f) }

// WithIDGenerator sets the generator of new document ids.
func WithIDGenerator(g IDGenerator) Option { return datastore.WithIDGenerator(g) }

// WithRandomReader sets the reader used by the default [IDGenerator].
func WithRandomReader(r io.Reader) Option { return datastore.WithRandomReader(r) }

// WithPipeline sets the aggregation engine.
func WithPipeline(p Pipeline) Option { return datastore.WithPipeline(p) }

// WithMetrics sets the recorder of queries, mutations and aggregations.
func WithMetrics(m Metrics) Option { return datastore.WithMetrics(m) }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return datastore.WithLogger(l) }
