// Package comparer contains the default [domain.Comparer] implementation.
//
// Values are ordered first by kind (undefined, null, numbers, strings,
// booleans, times, arrays, documents) and then by value within the kind.
// Numbers of any Go numeric type are compared by value.
package comparer

import (
	"cmp"
	"fmt"
	"math"
	"math/big"
	"slices"
	"time"

	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// Comparer implements domain.Comparer.
type Comparer struct{}

// NewComparer returns a new implementation of domain.Comparer.
func NewComparer() domain.Comparer {
	return &Comparer{}
}

// Comparable implements domain.Comparer.
func (c *Comparer) Comparable(a, b any) bool {
	ka, kb := domain.KindOf(a), domain.KindOf(b)
	if ka != kb {
		return false
	}
	switch ka {
	case domain.KindNumber, domain.KindString, domain.KindTime:
		return true
	default:
		return false
	}
}

// Compare implements domain.Comparer.
func (c *Comparer) Compare(a, b any) (int, error) {
	ka, kb := domain.KindOf(a), domain.KindOf(b)
	if ka == domain.KindOther || kb == domain.KindOther {
		return 0, fmt.Errorf("%w: cannot compare unexpected types %T and %T", domain.ErrTypeMismatch, a, b)
	}
	if ka != kb {
		return cmp.Compare(ka, kb), nil
	}

	a, b = c.getVal(a), c.getVal(b)

	switch ka {
	case domain.KindNumber:
		return c.compareNumbers(a, b), nil
	case domain.KindString:
		return cmp.Compare(a.(string), b.(string)), nil
	case domain.KindBool:
		return c.compareBool(a.(bool), b.(bool)), nil
	case domain.KindTime:
		return a.(time.Time).Compare(b.(time.Time)), nil
	case domain.KindArray:
		return c.compareArray(a.([]any), b.([]any))
	case domain.KindDocument:
		return c.compareDoc(a.(domain.Document), b.(domain.Document))
	default:
		// undefined and null are equal among themselves
		return 0, nil
	}
}

func (c *Comparer) compareNumbers(a, b any) int {
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			return c.compareFloats(fa, fb)
		}
	}
	na, nb := c.asNumber(a), c.asNumber(b)
	if na == nil || nb == nil {
		// NaN is smaller than any other number
		return cmp.Compare(boolInt(na != nil), boolInt(nb != nil))
	}
	// big.Float compares int64/uint64 and float64 without precision loss
	return na.Cmp(nb)
}

func (c *Comparer) compareFloats(a, b float64) int {
	if math.IsNaN(a) || math.IsNaN(b) {
		return cmp.Compare(boolInt(!math.IsNaN(a)), boolInt(!math.IsNaN(b)))
	}
	return cmp.Compare(a, b)
}

func (c *Comparer) compareArray(a, b []any) (int, error) {
	for i := range min(len(a), len(b)) {
		comp, err := c.Compare(a[i], b[i])
		if err != nil || comp != 0 {
			return comp, err
		}
	}
	// Common section was identical, longest one wins
	return cmp.Compare(len(a), len(b)), nil
}

func (c *Comparer) compareBool(a, b bool) int {
	return cmp.Compare(boolInt(a), boolInt(b))
}

func (c *Comparer) compareDoc(a, b domain.Document) (int, error) {
	aKeys := slices.Sorted(a.Keys())
	bKeys := slices.Sorted(b.Keys())

	for i := range min(len(aKeys), len(bKeys)) {
		if comp := cmp.Compare(aKeys[i], bKeys[i]); comp != 0 {
			return comp, nil
		}
		comp, err := c.Compare(a.Get(aKeys[i]), b.Get(bKeys[i]))
		if err != nil || comp != 0 {
			return comp, err
		}
	}
	return cmp.Compare(len(aKeys), len(bKeys)), nil
}

func (c *Comparer) asNumber(v any) *big.Float {
	r := big.NewFloat(0)
	switch n := v.(type) {
	case int:
		r.SetInt64(int64(n))
	case int8:
		r.SetInt64(int64(n))
	case int16:
		r.SetInt64(int64(n))
	case int32:
		r.SetInt64(int64(n))
	case int64:
		r.SetInt64(n)
	case uint:
		r.SetUint64(uint64(n))
	case uint8:
		r.SetUint64(uint64(n))
	case uint16:
		r.SetUint64(uint64(n))
	case uint32:
		r.SetUint64(uint64(n))
	case uint64:
		r.SetUint64(n)
	case float32:
		if math.IsNaN(float64(n)) {
			return nil
		}
		r.SetFloat64(float64(n))
	case float64:
		if math.IsNaN(n) {
			return nil
		}
		r.SetFloat64(n)
	}
	return r
}

func (c *Comparer) getVal(v any) any {
	if g, ok := v.(domain.Getter); ok {
		val, _ := g.Get()
		return val
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
