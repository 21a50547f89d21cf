package domain

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"
)

// IDField is the document key holding the identifier.
const IDField = "_id"

// IDIndex is the handle of the implicit unique index over [IDField].
const IDIndex IndexHandle = "_id_"

// TextScoreKey can be used as a sort key to order results of a [Text] query
// by relevance, highest first.
const TextScoreKey = "$textScore"

// Kind enumerates the value kinds a document field can hold.
type Kind uint8

// Value kinds, in the order they are sorted by the default comparer.
const (
	KindUndefined Kind = iota
	KindNull
	KindNumber
	KindString
	KindBool
	KindTime
	KindArray
	KindDocument
	KindOther
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindNumber:    "number",
	KindString:    "string",
	KindBool:      "bool",
	KindTime:      "time",
	KindArray:     "array",
	KindDocument:  "document",
	KindOther:     "other",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// KindOf returns the kind of a value. Undefined [Getter] values are
// [KindUndefined]; defined ones are classified by their content.
func KindOf(v any) Kind {
	if g, ok := v.(Getter); ok {
		value, defined := g.Get()
		if !defined {
			return KindUndefined
		}
		v = value
	}
	switch v.(type) {
	case nil:
		return KindNull
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return KindNumber
	case string:
		return KindString
	case bool:
		return KindBool
	case time.Time:
		return KindTime
	case []any:
		return KindArray
	case Document:
		return KindDocument
	default:
		return KindOther
	}
}

// Record is a stored document version and the position it was inserted at.
type Record struct {
	Doc Document
	Seq uint64
}

// Update represents a pair of documents used in index update operations,
// containing both the old and new versions of a document.
type Update struct {
	OldDoc Document
	NewDoc Document
}

// IndexHandle identifies an index within an [IndexManager].
type IndexHandle string

// IndexKind tells how an index organizes its keys.
type IndexKind uint8

const (
	// IndexTree is an ordered index over field values.
	IndexTree IndexKind = iota
	// IndexText is an inverted index over the words of string fields.
	IndexText
)

// IndexField is one field covered by an index. Order is 1 for ascending and -1
// for descending; it is ignored by text indexes.
type IndexField struct {
	Path  string `json:"path" shelfdb:"path"`
	Order int    `json:"order" shelfdb:"order"`
}

// IndexDescriptor defines an index.
type IndexDescriptor struct {
	// Name is derived from the fields when empty.
	Name    string         `json:"name" shelfdb:"name"`
	Fields  []IndexField   `json:"fields" shelfdb:"fields"`
	Kind    IndexKind      `json:"kind" shelfdb:"kind"`
	Unique  bool           `json:"unique" shelfdb:"unique"`
	Sparse  bool           `json:"sparse" shelfdb:"sparse"`
	Weights map[string]int `json:"weights,omitempty" shelfdb:"weights,omitempty"`
}

// DefaultName returns the conventional name for the descriptor, such as
// "genre_1_rating_-1" or "title_text_author_text".
func (d IndexDescriptor) DefaultName() string {
	parts := make([]string, 0, len(d.Fields)*2)
	for _, f := range d.Fields {
		if d.Kind == IndexText {
			parts = append(parts, f.Path, "text")
			continue
		}
		parts = append(parts, f.Path, fmt.Sprint(f.Order))
	}
	return strings.Join(parts, "_")
}

// Handle returns the handle of the index described.
func (d IndexDescriptor) Handle() IndexHandle {
	if d.Name != "" {
		return IndexHandle(d.Name)
	}
	return IndexHandle(d.DefaultName())
}

// Paths returns the field paths covered by the descriptor.
func (d IndexDescriptor) Paths() []string {
	res := make([]string, len(d.Fields))
	for n, f := range d.Fields {
		res[n] = f.Path
	}
	return res
}

// Bound is one side of a [KeyRange].
type Bound struct {
	Value     any
	Inclusive bool
}

// KeyRange selects entries of an index. Tree indexes read Prefix as equality
// values for their leading fields, then either In (point values) or
// Lower/Upper (a range) for the next field. Text indexes read Search.
type KeyRange struct {
	Prefix []any
	In     []any
	Lower  *Bound
	Upper  *Bound
	Search string
}

// Plan is the index choice for a query. An empty Index means a full scan.
type Plan struct {
	Index  IndexHandle
	Range  KeyRange
	Reason string
}

// Stage returns "IXSCAN" when an index is used and "COLLSCAN" otherwise.
func (p Plan) Stage() string {
	if p.Index == "" {
		return "COLLSCAN"
	}
	return "IXSCAN"
}

// ExecutionStats reports how a query was executed.
type ExecutionStats struct {
	Stage        string
	Index        IndexHandle
	Reason       string
	KeysExamined int
	DocsExamined int
	NReturned    int
	Duration     time.Duration
}

// SortKey represents a single field and the order which should be used to
// sort it. A positive Order means ascending order and a negative one means
// descending order.
type SortKey struct {
	Key   string
	Order int
}

// Sort represents an ordered list of keys applied in sequence.
type Sort = []SortKey

// DocumentFactory represents a function that constructs [Document] instances
// from structured data types. If nil is provided, returns an empty document.
type DocumentFactory = func(any) (Document, error)

// CursorFactory represents a function that constructs [Cursor] instances over
// a sequence of documents.
type CursorFactory = func(context.Context, iter.Seq2[Document, error], ...CursorOption) (Cursor, error)
