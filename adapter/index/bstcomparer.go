package index

import (
	"cmp"
	"fmt"

	"github.com/vinicius-lino-figueiredo/bst"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// sentinel sorts before (or after, when high is set) every value of a kind in
// tree order. With all set it sorts before or after every value.
type sentinel struct {
	kind domain.Kind
	all  bool
	high bool
}

var (
	minKey = sentinel{all: true}
	maxKey = sentinel{all: true, high: true}
)

func kindBound(k domain.Kind, high bool) sentinel {
	return sentinel{kind: k, high: high}
}

// compare compares the sentinel to a value in a field sorted in descending
// order when desc is set.
func (s sentinel) compare(v any, desc bool) int {
	if s.all {
		return boolCmp(s.high)
	}
	if c := cmp.Compare(s.kind, domain.KindOf(v)); c != 0 {
		if desc {
			return -c
		}
		return c
	}
	if s.high {
		return 1
	}
	return -1
}

func compareSentinels(a, b sentinel, desc bool) int {
	if a.all || b.all {
		if a == b {
			return 0
		}
		if a.all {
			return boolCmp(a.high)
		}
		return -boolCmp(b.high)
	}
	if c := cmp.Compare(a.kind, b.kind); c != 0 {
		if desc {
			return -c
		}
		return c
	}
	return cmp.Compare(boolInt(a.high), boolInt(b.high))
}

func boolCmp(high bool) int {
	if high {
		return 1
	}
	return -1
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// tupleComparer orders the keys of a tree index. Keys are tuples holding one
// value per indexed field, compared field by field with the field direction.
// Sentinels keep their place in tree order whatever the field direction, so
// bounds can be padded with them.
type tupleComparer struct {
	comparer domain.Comparer
	orders   []int
}

func newTupleComparer(c domain.Comparer, orders []int) bst.Comparer[any, string] {
	return &tupleComparer{comparer: c, orders: orders}
}

// CompareKeys implements bst.Comparer.
func (t *tupleComparer) CompareKeys(a any, b any) (int, error) {
	ta, ok := a.([]any)
	if !ok {
		return 0, fmt.Errorf("%w: index key %T is not a tuple", domain.ErrTypeMismatch, a)
	}
	tb, ok := b.([]any)
	if !ok {
		return 0, fmt.Errorf("%w: index key %T is not a tuple", domain.ErrTypeMismatch, b)
	}
	for n := range min(len(ta), len(tb)) {
		c, err := t.compareField(n, ta[n], tb[n])
		if err != nil || c != 0 {
			return c, err
		}
	}
	return cmp.Compare(len(ta), len(tb)), nil
}

func (t *tupleComparer) compareField(n int, a, b any) (int, error) {
	desc := n < len(t.orders) && t.orders[n] < 0
	sa, aSentinel := a.(sentinel)
	sb, bSentinel := b.(sentinel)
	switch {
	case aSentinel && bSentinel:
		return compareSentinels(sa, sb, desc), nil
	case aSentinel:
		return sa.compare(b, desc), nil
	case bSentinel:
		return -sb.compare(a, desc), nil
	}
	c, err := t.comparer.Compare(a, b)
	if err != nil {
		return 0, err
	}
	if desc {
		c = -c
	}
	return c, nil
}

// CompareValues implements bst.Comparer. Index values are document ids.
func (t *tupleComparer) CompareValues(a string, b string) (bool, error) {
	return a == b, nil
}

// termComparer orders the keys of a text index.
type termComparer struct{}

// CompareKeys implements bst.Comparer.
func (termComparer) CompareKeys(a any, b any) (int, error) {
	sa, ok := a.(string)
	if !ok {
		return 0, fmt.Errorf("%w: text index key %T is not a string", domain.ErrTypeMismatch, a)
	}
	sb, ok := b.(string)
	if !ok {
		return 0, fmt.Errorf("%w: text index key %T is not a string", domain.ErrTypeMismatch, b)
	}
	return cmp.Compare(sa, sb), nil
}

// CompareValues implements bst.Comparer.
func (termComparer) CompareValues(a string, b string) (bool, error) {
	return a == b, nil
}
