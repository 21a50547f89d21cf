// Package fieldnavigator resolves dotted field paths inside documents.
package fieldnavigator

import (
	"strconv"
	"strings"

	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// FieldNavigator implements [domain.FieldNavigator].
type FieldNavigator struct {
	docFac domain.DocumentFactory
}

// NewFieldNavigator returns a new instance of [domain.FieldNavigator].
func NewFieldNavigator(docFac domain.DocumentFactory) domain.FieldNavigator {
	return &FieldNavigator{
		docFac: docFac,
	}
}

// GetAddress implements [domain.FieldNavigator].
func (fn *FieldNavigator) GetAddress(field string) ([]string, error) {
	return strings.Split(field, "."), nil
}

// SplitFields implements [domain.FieldNavigator].
func (fn *FieldNavigator) SplitFields(in string) ([]string, error) {
	return strings.Split(in, ","), nil
}

// GetField implements [domain.FieldNavigator].
func (fn *FieldNavigator) GetField(obj any, fieldParts ...string) ([]domain.GetSetter, bool, error) {
	return fn.getField(obj, fieldParts, false)
}

// EnsureField implements [domain.FieldNavigator].
func (fn *FieldNavigator) EnsureField(obj any, fieldParts ...string) ([]domain.GetSetter, error) {
	res, _, err := fn.getField(obj, fieldParts, true)
	return res, err
}

type node struct {
	v       any
	defined bool
	// elements of an expanded array are not expanded again
	expandable bool
	gs         domain.GetSetter
}

func undefined() node {
	return node{gs: Missing()}
}

func (fn *FieldNavigator) getField(obj any, fieldParts []string, ensure bool) ([]domain.GetSetter, bool, error) {
	invalid := []domain.GetSetter{Missing()}
	if obj == nil {
		return invalid, false, nil
	}
	if len(fieldParts) == 0 {
		return []domain.GetSetter{Fixed(obj)}, false, nil
	}

	var (
		curr     = []node{{v: obj, defined: true, expandable: true}}
		expanded = false
	)

	for idx, part := range fieldParts {
		last := idx == len(fieldParts)-1
		next := make([]node, 0, len(curr))
		for _, item := range curr {
			if !item.defined {
				next = append(next, item)
				continue
			}
			if list, ok := item.v.([]any); ok {
				if _, err := strconv.Atoi(part); err != nil && item.expandable {
					// the remaining path is applied to every
					// element of the list
					expanded = true
					for _, elem := range list {
						n, err := fn.step(node{v: elem, defined: true}, part, last, ensure)
						if err != nil {
							return nil, false, err
						}
						next = append(next, n)
					}
					continue
				}
			}
			n, err := fn.step(item, part, last, ensure)
			if err != nil {
				return nil, false, err
			}
			next = append(next, n)
		}
		curr = next

		if !expanded && !curr[0].defined {
			return invalid, false, nil
		}
	}

	res := make([]domain.GetSetter, len(curr))
	for n, v := range curr {
		res[n] = v.gs
	}
	return res, expanded, nil
}

// step reads a single path part from a value, without expanding lists.
func (fn *FieldNavigator) step(item node, part string, last, ensure bool) (node, error) {
	switch t := item.v.(type) {
	case domain.Document:
		if !t.Has(part) {
			if !ensure {
				return undefined(), nil
			}
			var value any
			if !last {
				newDoc, err := fn.docFac(nil)
				if err != nil {
					return node{}, err
				}
				value = newDoc
			}
			t.Set(part, value)
		}
		return node{
			v:          t.Get(part),
			defined:    true,
			expandable: true,
			gs:         Field(t, part),
		}, nil
	case []any:
		i, err := strconv.Atoi(part)
		if err != nil || i < 0 {
			return undefined(), nil
		}
		if i >= len(t) {
			if !ensure || item.gs == nil {
				return undefined(), nil
			}
			grown := make([]any, i+1)
			copy(grown, t)
			item.gs.Set(grown)
			t = grown
		}
		return node{
			v:          t[i],
			defined:    true,
			expandable: true,
			gs:         Item(t, i),
		}, nil
	default:
		return undefined(), nil
	}
}
