// Package data contains the default [domain.Document] implementation and the
// factory that builds documents from maps and structs.
package data

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-reflect"

	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// TagName is the struct tag read when converting structs into documents.
const TagName = "shelfdb"

var (
	timeTyp = reflect.TypeOf(time.Time{})
	docTyp  = reflect.TypeOf((*domain.Document)(nil)).Elem()
)

// M implements domain.Document by using a hashed map. Duplicates replace old
// values.
type M map[string]any

// NewDocument returns a new instance of [domain.Document]. Maps and structs
// are converted recursively: nested maps and structs become [M] and slices
// become []any. Passing nil returns an empty document.
func NewDocument(in any) (domain.Document, error) {
	if in == nil {
		return M{}, nil
	}
	if doc, ok := in.(domain.Document); ok {
		return Clone(doc).(domain.Document), nil
	}

	r := reflect.ValueNoEscapeOf(in)
	for r.Kind() == reflect.Interface || r.Kind() == reflect.Ptr {
		if r.IsNil() {
			return M{}, nil
		}
		r = r.Elem()
	}
	if r.Kind() != reflect.Struct && r.Kind() != reflect.Map || r.Type() == timeTyp {
		return nil, fmt.Errorf("%w: expected map or struct, got %s", domain.ErrBadQuery, r.Type().String())
	}
	v, err := parseReflect(r)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return M{}, nil
	}
	return v.(domain.Document), nil
}

func parseReflect(r reflect.Value) (any, error) {
	for r.Kind() == reflect.Ptr || r.Kind() == reflect.Interface {
		if r.IsNil() {
			return nil, nil
		}
		if r.Type().Implements(docTyp) {
			return Clone(r.Interface()), nil
		}
		r = r.Elem()
	}
	if r.IsValid() && r.Type().Implements(docTyp) {
		return Clone(r.Interface()), nil
	}
	switch r.Kind() {
	case reflect.Invalid:
		return nil, nil
	case reflect.Slice:
		if r.IsNil() {
			return nil, nil
		}
		fallthrough
	case reflect.Array:
		return parseList(r)
	case reflect.Struct:
		if r.Type() == timeTyp {
			return r.Interface(), nil
		}
		return parseStruct(r)
	case reflect.Map:
		if r.IsNil() {
			return nil, nil
		}
		return parseMap(r)
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		if r.IsNil() {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: unsupported value of type %s", domain.ErrBadQuery, r.Type().String())
	default:
		return r.Interface(), nil
	}
}

func parseStruct(r reflect.Value) (domain.Document, error) {
	typ := r.Type()
	res := make(M, r.NumField())
	for n := range r.NumField() {
		field := typ.Field(n)
		if field.PkgPath != "" {
			continue
		}
		name, value, ok, err := parseField(r.Field(n), field)
		if err != nil {
			return nil, err
		}
		if ok {
			res[name] = value
		}
	}
	return res, nil
}

func parseField(r reflect.Value, field reflect.StructField) (string, any, bool, error) {
	name := field.Name
	var opts []string
	if tag, ok := field.Tag.Lookup(TagName); ok {
		if tag == "-" {
			return "", nil, false, nil
		}
		opts = strings.Split(tag, ",")
		if opts[0] != "" {
			name = opts[0]
		}
		opts = opts[1:]
	}
	if slices.Contains(opts, "omitempty") && isEmpty(r) {
		return "", nil, false, nil
	}
	if slices.Contains(opts, "omitzero") && r.IsZero() {
		return "", nil, false, nil
	}
	value, err := parseReflect(r)
	if err != nil {
		return "", nil, false, err
	}
	return name, value, true, nil
}

func parseMap(r reflect.Value) (domain.Document, error) {
	if r.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("%w: map keys must be strings, got %s", domain.ErrBadQuery, r.Type().Key().String())
	}
	res := make(M, r.Len())
	for _, k := range r.MapKeys() {
		value, err := parseReflect(r.MapIndex(k))
		if err != nil {
			return nil, err
		}
		res[k.String()] = value
	}
	return res, nil
}

func parseList(r reflect.Value) ([]any, error) {
	res := make([]any, r.Len())
	for i := range r.Len() {
		value, err := parseReflect(r.Index(i))
		if err != nil {
			return nil, err
		}
		res[i] = value
	}
	return res, nil
}

func isEmpty(r reflect.Value) bool {
	switch r.Kind() {
	case reflect.Ptr, reflect.Interface:
		return r.IsNil()
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return r.Len() == 0
	default:
		return false
	}
}

// Clone returns a deep copy of documents and arrays. Other values are
// returned as they are.
func Clone(v any) any {
	switch t := v.(type) {
	case domain.Document:
		res := make(M, t.Len())
		for k, value := range t.Iter() {
			res[k] = Clone(value)
		}
		return res
	case []any:
		res := make([]any, len(t))
		for n, value := range t {
			res[n] = Clone(value)
		}
		return res
	default:
		return v
	}
}

// CheckKeys returns [domain.ErrFieldName] if any key, at any depth, starts
// with '$' or contains a dot.
func CheckKeys(doc domain.Document) error {
	for k, v := range doc.Iter() {
		if strings.HasPrefix(k, "$") {
			return domain.ErrFieldName{Field: k, Reason: "cannot start with '$'"}
		}
		if strings.Contains(k, ".") {
			return domain.ErrFieldName{Field: k, Reason: "cannot contain '.'"}
		}
		if err := checkValue(v); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(v any) error {
	switch t := v.(type) {
	case domain.Document:
		return CheckKeys(t)
	case []any:
		for _, item := range t {
			if err := checkValue(item); err != nil {
				return err
			}
		}
	}
	return nil
}

// AsFloat converts any built-in number to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// ID implements domain.Document
func (d M) ID() any {
	return d[domain.IDField]
}

// Get implements domain.Document
func (d M) Get(key string) any {
	return d[key]
}

// Set implements domain.Document
func (d M) Set(key string, value any) {
	d[key] = value
}

// Unset implements domain.Document
func (d M) Unset(key string) {
	delete(d, key)
}

// D implements domain.Document
func (d M) D(key string) domain.Document {
	if doc, ok := d[key].(domain.Document); ok {
		return doc
	}
	return nil
}

// Iter implements domain.Document.
func (d M) Iter() iter.Seq2[string, any] {
	return maps.All(d)
}

// Keys implements domain.Document.
func (d M) Keys() iter.Seq[string] {
	return maps.Keys(d)
}

// Values implements domain.Document.
func (d M) Values() iter.Seq[any] {
	return maps.Values(d)
}

// Has implements domain.Document.
func (d M) Has(key string) bool {
	_, has := d[key]
	return has
}

// Len implements domain.Document.
func (d M) Len() int {
	return len(d)
}

// UnmarshalJSON implements json.Unmarshaler. Nested objects become [M] and
// numbers become float64.
func (d *M) UnmarshalJSON(input []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(input))
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	obj, ok := fromJSON(raw).(M)
	if !ok {
		return fmt.Errorf("expected object, received %T", raw)
	}
	*d = obj
	return nil
}

func fromJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		res := make(M, len(t))
		for k, value := range t {
			res[k] = fromJSON(value)
		}
		return res
	case []any:
		for n, value := range t {
			t[n] = fromJSON(value)
		}
		return t
	default:
		return v
	}
}
