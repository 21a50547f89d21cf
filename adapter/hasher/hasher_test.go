package hasher

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

type M = data.M
type A = []any

// docMock iterates its keys in a fixed order.
type docMock struct {
	M
	reverse bool
}

func (d *docMock) Iter() iter.Seq2[string, any] {
	keys := slices.Sorted(d.M.Keys())
	if d.reverse {
		slices.Reverse(keys)
	}
	return func(yield func(string, any) bool) {
		for _, k := range keys {
			if !yield(k, d.M[k]) {
				return
			}
		}
	}
}

type HasherTestSuite struct {
	suite.Suite
	hasher *Hasher
}

func (s *HasherTestSuite) SetupTest() {
	s.hasher = NewHasher().(*Hasher)
}

func (s *HasherTestSuite) TestPrimitiveTypes() {
	for _, v := range []any{"primitive", 971317123, false, nil, 3.14, time.Now()} {
		h, err := s.hasher.Hash(v)
		s.NoError(err)
		s.NotZero(h)
	}
}

// Numbers with the same value hash the same regardless of their type.
func (s *HasherTestSuite) TestAlikeTypes() {
	values := []any{
		uint(3), uint8(3), uint16(3), uint32(3), uint64(3), int(3),
		int8(3), int16(3), int32(3), int64(3), float32(3), float64(3),
	}
	ref, err := s.hasher.Hash(values[0])
	s.NoError(err)

	for _, value := range values {
		s.Run(fmt.Sprintf("%T", value), func() {
			h, err := s.hasher.Hash(value)
			s.NoError(err)
			s.Equal(ref, h)
		})
	}

	str, err := s.hasher.Hash("3")
	s.NoError(err)
	s.NotEqual(ref, str)
}

func (s *HasherTestSuite) TestSliceItemOrder() {
	h1, err := s.hasher.Hash(A{"one", "two", "three"})
	s.NoError(err)
	h2, err := s.hasher.Hash(A{"three", "two", "one"})
	s.NoError(err)
	s.NotEqual(h1, h2)
}

func (s *HasherTestSuite) TestDocKeyOrder() {
	values := M{"genre": "Fiction", "year": 1925, "title": "The Great Gatsby"}

	h1, err := s.hasher.Hash(&docMock{M: values})
	s.NoError(err)
	h2, err := s.hasher.Hash(&docMock{M: values, reverse: true})
	s.NoError(err)
	s.Equal(h1, h2)

	h3, err := s.hasher.Hash(M{"genre": "Fiction", "year": 1925.0, "title": "The Great Gatsby"})
	s.NoError(err)
	s.Equal(h1, h3)
}

func (s *HasherTestSuite) TestNotEqual() {
	h1, err := s.hasher.Hash(M{"genre": "Fiction", "inStock": true})
	s.NoError(err)
	h2, err := s.hasher.Hash(M{"genre": "Dystopian", "inStock": true})
	s.NoError(err)
	s.NotEqual(h1, h2)

	h1, err = s.hasher.Hash("Jorge Ben")
	s.NoError(err)
	h2, err = s.hasher.Hash("Jorge Ben Jor")
	s.NoError(err)
	s.NotEqual(h1, h2)
}

func (s *HasherTestSuite) TestNonFiniteNumbers() {
	inf, err := s.hasher.Hash(math.Inf(1))
	s.NoError(err)
	negInf, err := s.hasher.Hash(math.Inf(-1))
	s.NoError(err)
	s.NotEqual(inf, negInf)

	nested, err := s.hasher.Hash(M{"value": A{math.NaN()}})
	s.NoError(err)
	s.NotZero(nested)
}

func (s *HasherTestSuite) TestUndefinedIsNil() {
	exp, err := s.hasher.Hash(nil)
	s.NoError(err)
	h, err := s.hasher.Hash(fieldnavigator.Missing())
	s.NoError(err)
	s.Equal(exp, h)
}

func (s *HasherTestSuite) TestUnsupported() {
	_, err := s.hasher.Hash(func() {})
	s.ErrorIs(err, domain.ErrTypeMismatch)

	_, err = s.hasher.Hash(M{"ch": A{make(chan int)}})
	s.ErrorIs(err, domain.ErrTypeMismatch)
}

func TestHasherTestSuite(t *testing.T) {
	suite.Run(t, new(HasherTestSuite))
}
