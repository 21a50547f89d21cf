// Package hasher contains a json based implementation of [domain.Hasher]. It is
// used to group and deduplicate values, so values the comparer considers
// equal, like int(3) and float64(3), have the same hash, and document hashes do
// not depend on key order. Undefined values hash as nil.
package hasher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"slices"
	"strconv"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// Hasher implements [domain.Hasher].
type Hasher struct{}

// NewHasher returns a new implementation of [domain.Hasher].
func NewHasher() domain.Hasher {
	return &Hasher{}
}

// Hash implements domain.Hasher.
func (h *Hasher) Hash(value any) (uint64, error) {
	canonical, err := h.canonicalize(value)
	if err != nil {
		return 0, err
	}

	b, err := json.Marshal(canonical)
	if err != nil {
		return 0, err
	}

	hasher := fnv.New64a()

	_, _ = hasher.Write(b) // fnv.sum64a.Write never returns error

	return hasher.Sum64(), nil
}

func (h *Hasher) canonicalize(a any) (any, error) {
	if g, ok := a.(domain.Getter); ok {
		a, _ = g.Get()
	}
	switch domain.KindOf(a) {
	case domain.KindNull, domain.KindString, domain.KindBool, domain.KindTime:
		return a, nil
	case domain.KindNumber:
		f, _ := data.AsFloat(a)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			// not supported by JSON
			return object{{key: "$number", val: strconv.FormatFloat(f, 'g', -1, 64)}}, nil
		}
		return f, nil
	case domain.KindArray:
		arr := a.([]any)
		res := make([]any, len(arr))
		for n, v := range arr {
			c, err := h.canonicalize(v)
			if err != nil {
				return nil, err
			}
			res[n] = c
		}
		return res, nil
	case domain.KindDocument:
		d := a.(domain.Document)
		pairs := make(object, 0, d.Len())
		for k, v := range d.Iter() {
			c, err := h.canonicalize(v)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, keyValuePair{key: k, val: c})
		}
		return pairs, nil
	default:
		return nil, fmt.Errorf("%w: cannot hash value of type %T", domain.ErrTypeMismatch, a)
	}
}

type keyValuePair struct {
	key string
	val any
}

type object []keyValuePair

func (o object) MarshalJSON() (r []byte, err error) {
	buf := bytes.NewBuffer(append(make([]byte, 0, 256), '{'))

	sorted := slices.SortedFunc(slices.Values(o), func(a, b keyValuePair) int {
		return bytes.Compare([]byte(a.key), []byte(b.key))
	})

	for n, item := range sorted {
		b, _ := json.Marshal(item.key)
		_, _ = buf.Write(b)
		_ = buf.WriteByte(':')
		v, err := json.Marshal(item.val)
		if err != nil {
			return nil, err
		}
		_, _ = buf.Write(v)

		if n < len(sorted)-1 {
			_ = buf.WriteByte(',')
		}
	}
	_ = buf.WriteByte('}')

	return buf.Bytes(), nil
}
