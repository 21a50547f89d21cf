package domain

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNotFound is returned when an identifier, an index or a query
	// result does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when a mutation would break a unique
	// index or reuse an identifier. The mutation is not applied.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrBadQuery is returned when a filter, pipeline, patch or index
	// definition is malformed. It is detected before any scan.
	ErrBadQuery = errors.New("bad query")
	// ErrTypeMismatch is returned when a value of an unexpected kind stops
	// an operation that cannot skip it.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrIndexExists is returned when creating an index that is already
	// defined.
	ErrIndexExists = errors.New("index already exists")
	// ErrCannotModifyID is returned when a patch would change _id.
	ErrCannotModifyID = fmt.Errorf("%w: cannot modify _id", ErrBadQuery)
	// ErrCursorClosed is returned when using a closed [Cursor].
	ErrCursorClosed = errors.New("cursor is closed")
	// ErrScanBeforeNext is returned when calling [Cursor.Scan] before
	// [Cursor.Next].
	ErrScanBeforeNext = errors.New("called Scan before Next")
	// ErrTargetNil is returned when a nil decoding target is given.
	ErrTargetNil = errors.New("target interface is nil")
	// ErrNonPointer is returned when a decoding target is not a pointer.
	ErrNonPointer = errors.New("target is not a pointer")
)

// ErrUnknownOperator is returned when a filter, stage or expression node is
// not known by the component compiling it.
type ErrUnknownOperator struct {
	Operator string
}

func (e ErrUnknownOperator) Error() string {
	return fmt.Sprintf("unknown operator %q", e.Operator)
}

// Unwrap returns [ErrBadQuery].
func (e ErrUnknownOperator) Unwrap() error { return ErrBadQuery }

// ErrCompArgType is returned when a range comparison is built with a literal
// that cannot be ordered.
type ErrCompArgType struct {
	Op     string
	Actual Kind
}

func (e ErrCompArgType) Error() string {
	return fmt.Sprintf("%s needs a number, string or time, got %s", e.Op, e.Actual)
}

// Unwrap returns [ErrBadQuery].
func (e ErrCompArgType) Unwrap() error { return ErrBadQuery }

// ErrInvalidStage is returned when a pipeline stage is malformed.
type ErrInvalidStage struct {
	Stage  string
	Index  int
	Reason string
}

func (e ErrInvalidStage) Error() string {
	return fmt.Sprintf("stage %d (%s): %s", e.Index, e.Stage, e.Reason)
}

// Unwrap returns [ErrBadQuery].
func (e ErrInvalidStage) Unwrap() error { return ErrBadQuery }

// ErrFieldName represents an invalid field name, usually for when a document is
// created with a reserved prefix or forbidden character.
type ErrFieldName struct {
	Field  string
	Reason string
}

func (e ErrFieldName) Error() string {
	return fmt.Sprintf("invalid field name %q: %s", e.Field, e.Reason)
}

// Unwrap returns [ErrBadQuery].
func (e ErrFieldName) Unwrap() error { return ErrBadQuery }

// ErrUnwindNotArray is returned by a strict [Unwind] stage.
type ErrUnwindNotArray struct {
	Field  string
	Actual Kind
}

func (e ErrUnwindNotArray) Error() string {
	return fmt.Sprintf("cannot unwind %q: expected array, got %s", e.Field, e.Actual)
}

// Unwrap returns [ErrTypeMismatch].
func (e ErrUnwindNotArray) Unwrap() error { return ErrTypeMismatch }

// ErrArithmetic is returned when an arithmetic expression receives a value
// that is not a number.
type ErrArithmetic struct {
	Op     string
	Actual Kind
}

func (e ErrArithmetic) Error() string {
	return fmt.Sprintf("%s only supports numbers, got %s", e.Op, e.Actual)
}

// Unwrap returns [ErrTypeMismatch].
func (e ErrArithmetic) Unwrap() error { return ErrTypeMismatch }

// ErrDecode is returned by [Decoder.Decode] to wrap third party decoding
// errors.
type ErrDecode struct {
	Source any
	Target any
}

func (e ErrDecode) Error() string {
	return fmt.Sprintf("cannot decode %T into %T", e.Source, e.Target)
}

// ErrDatafileName is returned when the data file name is reserved or invalid.
type ErrDatafileName struct {
	Name   string
	Reason string
}

func (e ErrDatafileName) Error() string {
	return fmt.Sprintf("invalid datafile name %q: %s", e.Name, e.Reason)
}

// ErrCorruptFiles is returned when loading a data file with more unreadable
// lines than the accepted threshold.
type ErrCorruptFiles struct {
	CorruptionRate        float64
	CorruptItems          int
	DataLength            int
	CorruptAlertThreshold float64
}

func (e ErrCorruptFiles) Error() string {
	return fmt.Sprintf("%v%% of the data file is corrupt, more than the accepted %v%%", math.Floor(100*e.CorruptionRate), math.Floor(100*e.CorruptAlertThreshold))
}

// ErrFlushToStorage is returned when syncing a file to disk fails.
type ErrFlushToStorage struct {
	ErrorOnFsync error
	ErrorOnClose error
}

func (e ErrFlushToStorage) Error() string {
	err := e.ErrorOnFsync
	if err == nil {
		err = e.ErrorOnClose
	}
	return fmt.Sprint("storage flush error: ", err)
}

// Unwrap returns the underlying error.
func (e ErrFlushToStorage) Unwrap() error {
	if e.ErrorOnFsync != nil {
		return e.ErrorOnFsync
	}
	return e.ErrorOnClose
}
