// Package domain contains domain-specific interfaces, entities and errors for
// shelfdb.
//
// This package defines the contracts implemented by the adapters (record
// store, index manager, query evaluator, aggregation pipeline and their
// collaborators) together with the structured filter and pipeline trees that
// callers build to talk to them.
package domain

import (
	"context"
	"io"
	"iter"
	"os"
	"time"
)

// Document represents a record held by the [RecordStore]. Documents returned
// to callers are copies, so they can be modified freely. Document is read by
// one goroutine at a time and doesn't need to be concurrency safe.
type Document interface {
	// ID returns the document ID, if any, or nil.
	ID() any
	// D returns the subdocument for the given key, if any.
	D(string) Document
	// Get returns the value under the given key, or nil if unset.
	Get(string) any
	// Set sets the value under the given key.
	Set(string, any)
	// Unset unsets the value under the given key.
	Unset(string)
	// Iter returns an unordered sequence of key-value pairs in the
	// document.
	Iter() iter.Seq2[string, any]
	// Keys returns an unordered sequence of keys in the document.
	Keys() iter.Seq[string]
	// Values returns an unordered sequence of values in the document.
	Values() iter.Seq[any]
	// Has reports whether a value is set under the given key.
	Has(string) bool
	// Len returns the number of set fields in the document.
	Len() int
}

// Comparer provides ordering and comparison operations for different data
// types.
type Comparer interface {
	// Compare returns -1, 0, or 1 based on the comparison of two values.
	Compare(any, any) (int, error)
	// Comparable returns true if two values can be compared by range
	// operators (number/number, string/string or time/time).
	Comparable(any, any) bool
}

// Hasher generates hash values for grouping and deduplication.
type Hasher interface {
	// Hash generates a hash value for the given data.
	Hash(any) (uint64, error)
}

// Getter represents a value that can be treated as undefined.
type Getter interface {
	// Get returns the value and a bool that tells whether the value counts
	// as defined. A missing key, an out of bounds index or any address
	// within a primitive value counts as undefined. An explicit nil does
	// not.
	Get() (value any, defined bool)
}

// GetSetter represents an addressable value in a [Document]. It is returned by
// [FieldNavigator] so unset values can be told apart from nil ones.
type GetSetter interface {
	Getter
	// Set will set a new value for the address.
	Set(any)
	// Unset removes the given value from the parent item.
	Unset()
}

// FieldNavigator provides field access operations with dot notation support.
type FieldNavigator interface {
	// GetField extracts values from nested documents, following path
	// parts. The bool reports whether an array was expanded on the way.
	GetField(any, ...string) ([]GetSetter, bool, error)
	// EnsureField works as GetField, but creates missing documents along
	// the path.
	EnsureField(any, ...string) ([]GetSetter, error)
	// GetAddress splits a dotted field path into its parts.
	GetAddress(field string) ([]string, error)
	// SplitFields parses comma separated field names.
	SplitFields(string) ([]string, error)
}

// Decoder converts documents into user-defined values.
type Decoder interface {
	// Decode writes source into target, which must be a pointer.
	Decode(source any, target any) error
}

// Serializer converts documents to bytes for storage.
type Serializer interface {
	// Serialize converts a document to bytes for persistence.
	Serialize(context.Context, any) ([]byte, error)
}

// Deserializer converts bytes back to documents.
type Deserializer interface {
	// Deserialize converts bytes back to a document.
	Deserialize(context.Context, []byte, any) error
}

// Storage provides low-level file operations with crash-safety guarantees.
type Storage interface {
	// AppendFile appends data to a file, creating it if necessary.
	AppendFile(string, os.FileMode, []byte) (int, error)
	// Exists checks if a file exists.
	Exists(string) (bool, error)
	// EnsureParentDirectoryExists creates parent directories if needed.
	EnsureParentDirectoryExists(string, os.FileMode) error
	// EnsureDatafileIntegrity recovers the data file from its backup when
	// a previous rewrite was interrupted.
	EnsureDatafileIntegrity(string, os.FileMode) error
	// CrashSafeWriteFileLines atomically replaces a file with the given
	// lines.
	CrashSafeWriteFileLines(string, [][]byte, os.FileMode, os.FileMode) error
	// ReadFileStream opens a file for streaming reads.
	ReadFileStream(string, os.FileMode) (io.ReadCloser, error)
	// Remove deletes a file.
	Remove(string) error
}

// Persistence keeps a data file in sync with the records of a store.
type Persistence interface {
	// LoadDatabase reads the data file, compacts it and returns the
	// documents and index descriptors. Deleted documents come back as
	// tombstones so their ids stay retired.
	LoadDatabase(ctx context.Context) ([]Document, []IndexDescriptor, error)
	// PersistNewState appends new document versions (or tombstones) to
	// the data file.
	PersistNewState(ctx context.Context, docs ...Document) error
	// PersistIndexes appends index creation or removal records.
	PersistIndexes(ctx context.Context, created []IndexDescriptor, removed []string) error
	// PersistCachedDatabase rewrites the whole data file.
	PersistCachedDatabase(ctx context.Context, docs []Document, indexes []IndexDescriptor) error
	// DropDatabase removes the data file.
	DropDatabase(ctx context.Context) error
}

// TimeGetter provides current time for timestamping operations.
type TimeGetter interface {
	// GetTime returns the current time.
	GetTime() time.Time
}

// IDGenerator creates identifiers for new documents.
type IDGenerator interface {
	// GenerateID returns a new identifier.
	GenerateID() (string, error)
}

// Modifier applies update patches to documents.
type Modifier interface {
	// Modify returns a new version of doc with the patch applied. doc is
	// never changed.
	Modify(doc Document, patch Document) (Document, error)
}

// Projector shapes documents returned by queries.
type Projector interface {
	// Prepare validates a projection and returns the function that
	// applies it. A nil or empty projection returns documents as they
	// are.
	Prepare(proj map[string]int) (func(Document) (Document, error), error)
}

// Predicate reports whether a document matches a compiled filter.
type Predicate func(Document) (bool, error)

// Matcher compiles filter trees into predicates.
type Matcher interface {
	// Compile validates the filter and returns a predicate. Structural
	// problems are reported as [ErrBadQuery].
	Compile(Filter, ...CompileOption) (Predicate, error)
}

// TextScorer scores documents against a text search.
type TextScorer interface {
	// Score returns the relevance of doc for the given search, or zero
	// when no term matches.
	Score(doc Document, search string) float64
}

// Index is a secondary index over the documents of a store.
type Index interface {
	// Descriptor returns the definition of the index.
	Descriptor() IndexDescriptor
	// Insert adds documents to the index. It either inserts every
	// document or none of them.
	Insert(ctx context.Context, docs ...Document) error
	// Remove removes documents from the index.
	Remove(ctx context.Context, docs ...Document) error
	// Update replaces old versions of documents by new ones. It either
	// updates every pair or none of them.
	Update(ctx context.Context, pairs ...Update) error
	// Lookup returns the ids of the documents within the given range, in
	// index order. Ids may repeat for multikey entries.
	Lookup(ctx context.Context, r KeyRange) (iter.Seq2[string, error], error)
	// GetNumberOfKeys returns the number of distinct keys in the index.
	GetNumberOfKeys() int
}

// IndexManager owns the secondary indexes of a store.
type IndexManager interface {
	// CreateIndex builds a new index over the existing documents.
	CreateIndex(ctx context.Context, desc IndexDescriptor, existing iter.Seq[Document]) (IndexHandle, error)
	// Drop removes an index.
	Drop(ctx context.Context, h IndexHandle) error
	// Indexes lists the descriptors of every index in creation order.
	Indexes() []IndexDescriptor
	// ChoosePlan selects the index used to answer the given filter.
	ChoosePlan(f Filter, hint IndexHandle) (Plan, error)
	// Lookup reads ids from an index.
	Lookup(ctx context.Context, h IndexHandle, r KeyRange) (iter.Seq2[string, error], error)
	// Insert adds documents to every index.
	Insert(ctx context.Context, docs ...Document) error
	// Remove removes documents from every index.
	Remove(ctx context.Context, docs ...Document) error
	// Update replaces document versions in every index.
	Update(ctx context.Context, pairs ...Update) error
	// TextScorer returns the text index, if there is one.
	TextScorer() (TextScorer, bool)
}

// Snapshot is a read-only, consistent view of a [RecordStore].
type Snapshot interface {
	// Record returns the stored version of a document.
	Record(id string) (Record, bool)
	// Records returns every record in insertion order.
	Records() iter.Seq[Record]
	// Len returns the number of records.
	Len() int
}

// RecordStore holds documents keyed by identifier.
type RecordStore interface {
	// Insert adds documents atomically and returns copies of the stored
	// versions.
	Insert(ctx context.Context, docs ...any) ([]Document, error)
	// Update applies a patch to the document with the given id.
	Update(ctx context.Context, id string, patch any) (Document, error)
	// Delete removes a document. It returns false if the id is unknown.
	Delete(ctx context.Context, id string) (bool, error)
	// Get returns a copy of a document.
	Get(ctx context.Context, id string) (Document, error)
	// Scan returns a restartable sequence over copies of every document
	// in insertion order.
	Scan(ctx context.Context) iter.Seq2[Document, error]
	// Len returns the number of stored documents.
	Len() int
	// Snapshot runs fn with a consistent read view of the store.
	Snapshot(ctx context.Context, fn func(Snapshot) error) error
	// CreateIndex creates a secondary index over the stored documents.
	CreateIndex(ctx context.Context, desc IndexDescriptor) (IndexHandle, error)
	// DropIndex removes a secondary index.
	DropIndex(ctx context.Context, h IndexHandle) error
	// Indexes lists the index descriptors.
	Indexes() []IndexDescriptor
	// Load restores documents that already carry identifiers.
	Load(ctx context.Context, docs ...Document) error
	// Retire marks ids of documents deleted before the store was loaded.
	Retire(ids ...string) error
	// Retired lists the ids of deleted documents.
	Retired() []string
}

// Querier evaluates filters against a store.
type Querier interface {
	// Find returns a lazy sequence of matching documents.
	Find(ctx context.Context, f Filter, opts ...FindOption) (iter.Seq2[Document, error], error)
	// Count returns the number of matching documents.
	Count(ctx context.Context, f Filter) (int, error)
	// Explain runs the query and reports how it was executed.
	Explain(ctx context.Context, f Filter, opts ...FindOption) (ExecutionStats, error)
}

// Pipeline executes aggregation stages over a document stream.
type Pipeline interface {
	// Validate reports structural problems in the stages.
	Validate(stages []Stage) error
	// Run validates the stages and returns the output stream.
	Run(ctx context.Context, stages []Stage, source iter.Seq2[Document, error]) (iter.Seq2[Document, error], error)
}

// Metrics records engine activity.
type Metrics interface {
	// ObserveQuery records a finished query.
	ObserveQuery(stats ExecutionStats)
	// ObserveMutation records a mutation attempt and its outcome.
	ObserveMutation(op string, err error)
	// ObservePipeline records a finished aggregation.
	ObservePipeline(stages int, d time.Duration, err error)
}

// Cursor provides iteration over query results.
type Cursor interface {
	// Scan decodes the current document into target.
	Scan(ctx context.Context, target any) error
	// Next advances the cursor to the next document, returning true if
	// available.
	Next() bool
	// Err returns any error that occurred during iteration.
	Err() error
	// Close releases cursor resources and should be called when done.
	Close() error
}

// ShelfDB is the database facade tying the store, the index manager, the
// query evaluator and the aggregation pipeline together.
type ShelfDB interface {
	// LoadDatabase reads the data file, if any, and compacts it.
	LoadDatabase(ctx context.Context) error
	// DropDatabase removes every document, every secondary index and the
	// data file.
	DropDatabase(ctx context.Context) error
	// CompactDatafile rewrites the data file from memory.
	CompactDatafile(ctx context.Context) error

	// Insert adds documents atomically.
	Insert(ctx context.Context, docs ...any) (Cursor, error)
	// Get decodes the document with the given id into target.
	Get(ctx context.Context, id string, target any) error
	// Find returns a cursor over matching documents.
	Find(ctx context.Context, f Filter, opts ...FindOption) (Cursor, error)
	// FindOne decodes the first matching document into target.
	FindOne(ctx context.Context, f Filter, target any, opts ...FindOption) error
	// Count returns the number of matching documents.
	Count(ctx context.Context, f Filter) (int, error)
	// Explain runs the query and reports how it was executed.
	Explain(ctx context.Context, f Filter, opts ...FindOption) (ExecutionStats, error)
	// Update applies a patch to the document with the given id and
	// decodes the new version into target, if not nil.
	Update(ctx context.Context, id string, patch any, target any) error
	// UpdateMany applies a patch to every matching document and returns
	// how many were updated.
	UpdateMany(ctx context.Context, f Filter, patch any) (int, error)
	// Delete removes the document with the given id.
	Delete(ctx context.Context, id string) (bool, error)
	// DeleteMany removes every matching document and returns how many
	// were removed.
	DeleteMany(ctx context.Context, f Filter) (int, error)

	// Aggregate runs a pipeline over the documents matching the filter.
	Aggregate(ctx context.Context, f Filter, stages ...Stage) (Cursor, error)

	// CreateIndex creates a secondary index.
	CreateIndex(ctx context.Context, desc IndexDescriptor) (IndexHandle, error)
	// DropIndex removes a secondary index.
	DropIndex(ctx context.Context, h IndexHandle) error
	// Indexes lists every index.
	Indexes() []IndexDescriptor
}
