// Package structure contains type-related operations, such as iterating over a
// value of type any and converting numbers. It is used to read query and
// pipeline definitions given as plain Go values.
package structure

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-reflect"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// TagName is the struct tag read by [Seq2].
const TagName = "shelfdb"

// ErrNilObj may be returned by [Seq] or [Seq2] when a nil value is passed as
// argument.
var ErrNilObj = errors.New("nil object")

var (
	docReflectType  = reflect.TypeOf((*domain.Document)(nil)).Elem()
	timeReflectType = reflect.TypeOf(time.Time{})
)

// ErrorNonObject is returned by [Seq2] when a value that is neither a struct,
// map nor a [domain.Document] is passed as argument.
type ErrorNonObject struct {
	Type reflect.Type
}

func (e ErrorNonObject) Error() string {
	return fmt.Sprintf("expected object, got %s", e.Type.String())
}

// ErrorNonList is returned by [Seq] when a value that is neither a slice nor
// an array is passed as argument.
type ErrorNonList struct {
	Type reflect.Type
}

func (e ErrorNonList) Error() string {
	return fmt.Sprintf("expected list, got %s", e.Type.String())
}

// Seq2 returns an iterator over the fields of a map with string keys, a struct
// or a [domain.Document], and the number of fields. Struct fields are named
// after their tag, if any.
func Seq2(obj any) (iter.Seq2[string, any], int, error) {
	switch t := obj.(type) {
	case nil:
		return nil, 0, ErrNilObj
	case domain.Document:
		return t.Iter(), t.Len(), nil
	case map[string]any:
		return iterMap(t), len(t), nil
	case map[string]int:
		return iterMap(t), len(t), nil
	case map[string]string:
		return iterMap(t), len(t), nil
	}

	v := reflect.ValueNoEscapeOf(obj)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, 0, ErrNilObj
		}
		v = v.Elem()
	}
	if v.Type().Implements(docReflectType) {
		doc := v.Interface().(domain.Document)
		return doc.Iter(), doc.Len(), nil
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, 0, ErrorNonObject{Type: v.Type()}
		}
		keys := v.MapKeys()
		return func(yield func(string, any) bool) {
			for _, k := range keys {
				if !yield(k.String(), v.MapIndex(k).Interface()) {
					return
				}
			}
		}, len(keys), nil
	case reflect.Struct:
		if v.Type() == timeReflectType {
			return nil, 0, ErrorNonObject{Type: v.Type()}
		}
		i, l := iterStruct(v)
		return i, l, nil
	}
	return nil, 0, ErrorNonObject{Type: v.Type()}
}

type field struct {
	key   string
	value any
}

func iterStruct(v reflect.Value) (iter.Seq2[string, any], int) {
	typ := v.Type()
	fields := make([]field, 0, typ.NumField())
	for n := range typ.NumField() {
		f := typ.Field(n)
		if f.PkgPath != "" {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup(TagName); ok {
			if tag == "-" {
				continue
			}
			opts := strings.Split(tag, ",")
			if opts[0] != "" {
				name = opts[0]
			}
			if len(opts) > 1 && (opts[1] == "omitempty" || opts[1] == "omitzero") && v.Field(n).IsZero() {
				continue
			}
		}
		fields = append(fields, field{key: name, value: v.Field(n).Interface()})
	}
	return func(yield func(string, any) bool) {
		for _, f := range fields {
			if !yield(f.key, f.value) {
				return
			}
		}
	}, len(fields)
}

func iterMap[T any](m map[string]T) iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for k, v := range m {
			if !yield(k, v) {
				return
			}
		}
	}
}

// Seq returns an iterator over a slice or array of any type, and its length.
// Byte slices are not considered lists.
func Seq(obj any) (iter.Seq[any], int, error) {
	switch t := obj.(type) {
	case nil:
		return nil, 0, ErrNilObj
	case []any:
		return iterSlice(t), len(t), nil
	case []string:
		return iterSlice(t), len(t), nil
	case []int:
		return iterSlice(t), len(t), nil
	case []float64:
		return iterSlice(t), len(t), nil
	case []byte:
		return nil, 0, ErrorNonList{Type: reflect.TypeOf(obj)}
	}

	v := reflect.ValueNoEscapeOf(obj)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, 0, ErrNilObj
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, 0, ErrorNonList{Type: v.Type()}
	}
	return func(yield func(any) bool) {
		for i := range v.Len() {
			if !yield(v.Index(i).Interface()) {
				return
			}
		}
	}, v.Len(), nil
}

func iterSlice[T any](m []T) iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, v := range m {
			if !yield(v) {
				return
			}
		}
	}
}

// AsInteger converts any built-in number to int and returns a flag that informs
// if the argument is a valid integer.
func AsInteger(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int8:
		return int(t), true
	case int16:
		return int(t), true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case uint:
		return int(t), true
	case uint8:
		return int(t), true
	case uint16:
		return int(t), true
	case uint32:
		return int(t), true
	case uint64:
		return int(t), true
	case float32:
		if trunc := math.Trunc(float64(t)); trunc == float64(t) {
			return int(trunc), true
		}
		return 0, false
	case float64:
		if trunc := math.Trunc(t); trunc == t {
			return int(trunc), true
		}
		return 0, false
	default:
		return 0, false
	}
}
