// Package modifier contains a [domain.Modifier] implementation to apply changes
// to a doc based on a mongo-like API.
package modifier

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
	"github.com/vinicius-lino-figueiredo/shelfdb/pkg/structure"
)

// ErrModFieldType is returned when a modification function runs on a document
// field of a type that is not accepted.
type ErrModFieldType struct {
	Mod    string
	Want   string
	Actual any
}

// Error implements [error].
func (e ErrModFieldType) Error() string {
	return fmt.Sprintf("%s expects %s field, got %T", e.Mod, e.Want, e.Actual)
}

// Unwrap returns [domain.ErrTypeMismatch].
func (e ErrModFieldType) Unwrap() error { return domain.ErrTypeMismatch }

// ErrModArgType is returned when a modification function is called with an
// argument of a type that is not accepted.
type ErrModArgType struct {
	Mod    string
	Want   string
	Actual any
}

// Error implements [error].
func (e ErrModArgType) Error() string {
	return fmt.Sprintf("%s expects %s arg, got %T", e.Mod, e.Want, e.Actual)
}

// Unwrap returns [domain.ErrBadQuery].
func (e ErrModArgType) Unwrap() error { return domain.ErrBadQuery }

type modFunc func(domain.Document, []string, any) error

// Modifier implements [domain.Modifier].
type Modifier struct {
	comp           domain.Comparer
	fieldNavigator domain.FieldNavigator
	mods           map[string]modFunc
}

// NewModifier implements [domain.Modifier].
func NewModifier(comp domain.Comparer, fn domain.FieldNavigator) domain.Modifier {
	m := &Modifier{
		comp:           comp,
		fieldNavigator: fn,
	}

	m.mods = map[string]modFunc{
		"$set":      m.set,
		"$unset":    m.unset,
		"$inc":      m.inc,
		"$push":     m.push,
		"$addToSet": m.addToSet,
		"$pop":      m.pop,
		"$pull":     m.pull,
		"$max":      m.max,
		"$min":      m.min,
	}

	return m
}

// Modify implements [domain.Modifier]. A patch without operators is applied
// as $set. Operators run in name order, and fields within an operator in
// path order.
func (m *Modifier) Modify(obj domain.Document, mod domain.Document) (domain.Document, error) {
	qry, err := m.modQuery(obj, mod)
	if err != nil {
		return nil, err
	}

	docCopy := data.Clone(obj).(domain.Document)

	for _, modName := range slices.Sorted(maps.Keys(qry)) {
		fn := m.mods[modName]
		args := qry[modName]
		for _, key := range slices.Sorted(maps.Keys(args)) {
			if key == domain.IDField || strings.HasPrefix(key, domain.IDField+".") {
				return nil, domain.ErrCannotModifyID
			}
			addr, err := m.fieldNavigator.GetAddress(key)
			if err != nil {
				return nil, err
			}
			if err := fn(docCopy, addr, args[key]); err != nil {
				return nil, fmt.Errorf("modifying field %q: %w", key, err)
			}
		}
	}

	if err := data.CheckKeys(docCopy); err != nil {
		return nil, err
	}

	return docCopy, nil
}

func (m *Modifier) modQuery(obj, mod domain.Document) (map[string]map[string]any, error) {
	dollarFields, total := 0, 0
	for k := range mod.Keys() {
		total++
		if strings.HasPrefix(k, "$") {
			dollarFields++
		}
	}
	if dollarFields != 0 && dollarFields != total {
		return nil, fmt.Errorf("%w: cannot mix modifiers and normal fields", domain.ErrBadQuery)
	}

	query := make(map[string]map[string]any, mod.Len())
	if dollarFields == 0 {
		set := maps.Collect(mod.Iter())
		if id, ok := set[domain.IDField]; ok {
			// repeating the current id is allowed
			c, err := m.comp.Compare(id, obj.ID())
			if err != nil || c != 0 {
				return nil, domain.ErrCannotModifyID
			}
			delete(set, domain.IDField)
		}
		query["$set"] = set
		return query, nil
	}

	for modName, arg := range mod.Iter() {
		if _, ok := m.mods[modName]; !ok {
			return nil, domain.ErrUnknownOperator{Operator: modName}
		}
		d, ok := arg.(domain.Document)
		if !ok {
			return nil, ErrModArgType{Mod: modName, Want: "object", Actual: arg}
		}
		query[modName] = maps.Collect(d.Iter())
	}
	return query, nil
}

func (m *Modifier) set(obj domain.Document, addr []string, arg any) error {
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		if _, defined := field.Get(); defined {
			field.Set(data.Clone(arg))
		}
	}
	return nil
}

func (m *Modifier) unset(obj domain.Document, addr []string, _ any) error {
	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		if _, defined := field.Get(); defined {
			field.Unset()
		}
	}
	return nil
}

func (m *Modifier) inc(obj domain.Document, addr []string, v any) error {
	if domain.KindOf(v) != domain.KindNumber {
		return ErrModArgType{Mod: "$inc", Want: "number", Actual: v}
	}
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		value, defined := field.Get()
		if !defined {
			continue
		}
		if value == nil { // nil can be incremented too
			value = 0
		}
		if domain.KindOf(value) != domain.KindNumber {
			return ErrModFieldType{Mod: "$inc", Want: "number", Actual: value}
		}
		field.Set(add(value, v))
	}
	return nil
}

// add keeps integer sums as int and turns anything else into float64.
func add(a, b any) any {
	ia, aInt := structure.AsInteger(a)
	ib, bInt := structure.AsInteger(b)
	if aInt && bInt && isInteger(a) && isInteger(b) {
		return ia + ib
	}
	fa, _ := data.AsFloat(a)
	fb, _ := data.AsFloat(b)
	return fa + fb
}

func isInteger(v any) bool {
	switch v.(type) {
	case float32, float64:
		return false
	default:
		return true
	}
}

func (m *Modifier) arrayField(mod string, field domain.GetSetter) ([]any, bool, error) {
	value, defined := field.Get()
	if !defined {
		return nil, false, nil
	}
	if value == nil {
		return []any{}, true, nil
	}
	array, ok := value.([]any)
	if !ok {
		return nil, false, ErrModFieldType{Mod: mod, Want: "array", Actual: value}
	}
	return array, true, nil
}

// eachItems reads the values of $push and $addToSet, which can be a single
// value or {$each: [...], $slice: n}.
func (m *Modifier) eachItems(mod string, v any) (items []any, slice int, hasSlice bool, err error) {
	d, ok := v.(domain.Document)
	if !ok || !d.Has("$each") {
		return []any{v}, 0, false, nil
	}
	allowed := 1
	if mod == "$push" && d.Has("$slice") {
		allowed++
		s, ok := structure.AsInteger(d.Get("$slice"))
		if !ok {
			return nil, 0, false, ErrModArgType{Mod: "$slice", Want: "integer", Actual: d.Get("$slice")}
		}
		slice, hasSlice = s, true
	}
	if d.Len() > allowed {
		return nil, 0, false, fmt.Errorf("%w: unexpected fields next to $each in %s", domain.ErrBadQuery, mod)
	}
	each, ok := d.Get("$each").([]any)
	if !ok {
		return nil, 0, false, ErrModArgType{Mod: "$each", Want: "array", Actual: d.Get("$each")}
	}
	return each, slice, hasSlice, nil
}

func (m *Modifier) push(obj domain.Document, addr []string, v any) error {
	items, slice, hasSlice, err := m.eachItems("$push", v)
	if err != nil {
		return err
	}
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		array, ok, err := m.arrayField("$push", field)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		res := append(slices.Clone(array), data.Clone(items).([]any)...)
		if hasSlice {
			if slice >= 0 {
				res = res[:min(slice, len(res))]
			} else {
				res = res[len(res)-min(-slice, len(res)):]
			}
		}
		field.Set(res)
	}
	return nil
}

func (m *Modifier) addToSet(obj domain.Document, addr []string, v any) error {
	items, _, _, err := m.eachItems("$addToSet", v)
	if err != nil {
		return err
	}
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		array, ok, err := m.arrayField("$addToSet", field)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, item := range items {
			found, err := m.contains(array, item)
			if err != nil {
				return err
			}
			if !found {
				array = append(array, data.Clone(item))
			}
		}
		field.Set(array)
	}
	return nil
}

func (m *Modifier) contains(array []any, v any) (bool, error) {
	for _, item := range array {
		c, err := m.comp.Compare(v, item)
		if err != nil {
			return false, err
		}
		if c == 0 {
			return true, nil
		}
	}
	return false, nil
}

func (m *Modifier) pop(obj domain.Document, addr []string, v any) error {
	num, ok := structure.AsInteger(v)
	if !ok {
		return ErrModArgType{Mod: "$pop", Want: "integer", Actual: v}
	}
	if num == 0 {
		return nil
	}

	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		array, ok, err := m.arrayField("$pop", field)
		if err != nil {
			return err
		}
		if !ok || len(array) == 0 {
			continue
		}
		if num < 0 {
			field.Set(array[1:])
		} else {
			field.Set(array[:len(array)-1])
		}
	}
	return nil
}

// pull removes the elements equal to v, or to any element of {$in: [...]}.
func (m *Modifier) pull(obj domain.Document, addr []string, v any) error {
	targets := []any{v}
	if d, ok := v.(domain.Document); ok && d.Has("$in") {
		in, ok := d.Get("$in").([]any)
		if !ok || d.Len() > 1 {
			return ErrModArgType{Mod: "$pull", Want: "{$in: array}", Actual: v}
		}
		targets = in
	}

	fields, _, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		array, ok, err := m.arrayField("$pull", field)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		res := make([]any, 0, len(array))
		for _, item := range array {
			found, err := m.contains(targets, item)
			if err != nil {
				return err
			}
			if !found {
				res = append(res, item)
			}
		}
		field.Set(res)
	}
	return nil
}

func (m *Modifier) max(obj domain.Document, addr []string, v any) error {
	return m.replaceIf(obj, addr, v, func(c int) bool { return c < 0 })
}

func (m *Modifier) min(obj domain.Document, addr []string, v any) error {
	return m.replaceIf(obj, addr, v, func(c int) bool { return c > 0 })
}

func (m *Modifier) replaceIf(obj domain.Document, addr []string, v any, replace func(int) bool) error {
	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return err
	}
	for _, field := range fields {
		value, _ := field.Get()
		if value == nil {
			// new fields are created as nil by EnsureField
			field.Set(data.Clone(v))
			continue
		}
		comp, err := m.comp.Compare(value, v)
		if err != nil {
			return err
		}
		if replace(comp) {
			field.Set(data.Clone(v))
		}
	}
	return nil
}
