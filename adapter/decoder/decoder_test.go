package decoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

type M = data.M

type book struct {
	ID        string    `shelfdb:"_id"`
	Title     string    `shelfdb:"title"`
	Year      int       `shelfdb:"year"`
	Rating    float64   `shelfdb:"rating"`
	Tags      []string  `shelfdb:"tags"`
	InStock   bool      `shelfdb:"inStock"`
	CreatedAt time.Time `shelfdb:"createdAt"`
	Publisher struct {
		Name string `shelfdb:"name"`
	} `shelfdb:"publisher"`
}

type DecoderTestSuite struct {
	suite.Suite
	d *Decoder
}

func (s *DecoderTestSuite) SetupTest() {
	s.d = NewDecoder().(*Decoder)
}

func (s *DecoderTestSuite) TestStruct() {
	now := time.Now()
	var tgt book
	err := s.d.Decode(M{
		"_id":       "1",
		"title":     "1984",
		"year":      1949.0,
		"rating":    5,
		"tags":      []any{"dystopia", "classic"},
		"inStock":   true,
		"createdAt": now,
		"publisher": M{"name": "Secker & Warburg"},
		"extra":     "ignored",
	}, &tgt)
	s.NoError(err)
	s.Equal("1", tgt.ID)
	s.Equal("1984", tgt.Title)
	s.Equal(1949, tgt.Year)
	s.Equal(5.0, tgt.Rating)
	s.Equal([]string{"dystopia", "classic"}, tgt.Tags)
	s.True(tgt.InStock)
	s.True(now.Equal(tgt.CreatedAt))
	s.Equal("Secker & Warburg", tgt.Publisher.Name)
}

func (s *DecoderTestSuite) TestIncompleteData() {
	var tgt book
	s.NoError(s.d.Decode(M{"title": "Emma"}, &tgt))
	s.Equal("Emma", tgt.Title)
	s.Zero(tgt.Year)
	s.Nil(tgt.Tags)
}

func (s *DecoderTestSuite) TestTimeFromString() {
	var tgt book
	s.NoError(s.d.Decode(M{"createdAt": "2025-01-02T03:04:05Z"}, &tgt))
	s.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), tgt.CreatedAt.UTC())
}

func (s *DecoderTestSuite) TestMap() {
	var tgt map[string]any
	s.NoError(s.d.Decode(M{"a": M{"b": []any{M{"c": 1}}}}, &tgt))
	s.Equal(map[string]any{"a": map[string]any{"b": []any{map[string]any{"c": 1}}}}, tgt)
}

func (s *DecoderTestSuite) TestDocument() {
	src := M{"a": M{"b": 1}}
	var tgt domain.Document
	s.NoError(s.d.Decode(src, &tgt))
	s.Equal(src, tgt)

	tgt.D("a").Set("b", 2)
	s.Equal(1, src["a"].(M)["b"])
}

func (s *DecoderTestSuite) TestMismatch() {
	var tgt book
	s.ErrorAs(s.d.Decode(M{"year": "nineteen"}, &tgt), &domain.ErrDecode{})
	s.ErrorAs(s.d.Decode(M{"inStock": 1}, &tgt), &domain.ErrDecode{})
}

func (s *DecoderTestSuite) TestInvalidTarget() {
	var tgt book
	s.ErrorIs(s.d.Decode(M{}, tgt), domain.ErrNonPointer)
	s.ErrorIs(s.d.Decode(M{}, nil), domain.ErrTargetNil)
}

func TestDecoderTestSuite(t *testing.T) {
	suite.Run(t, new(DecoderTestSuite))
}
