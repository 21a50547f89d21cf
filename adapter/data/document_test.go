package data

import (
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

type MTestSuite struct {
	suite.Suite
}

func (s *MTestSuite) TestSimpleMap() {
	doc, err := NewDocument(map[string]any{"yeah": "sure", "of": "course"})
	s.NoError(err)
	s.Equal(M{"yeah": "sure", "of": "course"}, doc)
}

func (s *MTestSuite) TestSimpleStruct() {
	obj := struct{ No, Yes string }{No: "way", Yes: "indeed"}

	doc, err := NewDocument(obj)
	s.NoError(err)
	s.Equal(M{"No": "way", "Yes": "indeed"}, doc)
}

func (s *MTestSuite) TestUnexportedField() {
	obj := struct{ No, yes string }{No: "way", yes: "indeed"}

	doc, err := NewDocument(obj)
	s.NoError(err)
	s.Equal(M{"No": "way"}, doc)
}

func (s *MTestSuite) TestTags() {
	obj := struct {
		Title  string   `shelfdb:"title"`
		Ignore string   `shelfdb:"-"`
		Empty  string   `shelfdb:",omitempty"`
		Tags   []string `shelfdb:"tags,omitempty"`
		Stock  bool     `shelfdb:"inStock,omitzero"`
		Year   int      `shelfdb:""`
	}{Title: "1984", Ignore: "x", Year: 1949}

	doc, err := NewDocument(&obj)
	s.NoError(err)
	s.Equal(M{"title": "1984", "Year": 1949}, doc)
}

func (s *MTestSuite) TestPointerToNilPointer() {
	obj := (*struct{})(nil)

	doc, err := NewDocument(&obj)
	s.NoError(err)
	s.Equal(M{}, doc)
}

func (s *MTestSuite) TestNested() {
	type publisher struct {
		Name string `shelfdb:"name"`
	}
	now := time.Now()
	obj := map[string]any{
		"publisher": publisher{Name: "Scribner"},
		"meta":      map[string]int{"pages": 180},
		"tags":      []string{"classic", "american"},
		"shelves":   []publisher{{Name: "a"}},
		"createdAt": now,
		"nothing":   nil,
	}

	doc, err := NewDocument(obj)
	s.NoError(err)
	s.Equal(M{
		"publisher": M{"name": "Scribner"},
		"meta":      M{"pages": 180},
		"tags":      []any{"classic", "american"},
		"shelves":   []any{M{"name": "a"}},
		"createdAt": now,
		"nothing":   nil,
	}, doc)
}

func (s *MTestSuite) TestNullable() {
	obj := struct {
		Map      map[string]any
		Function func()
		Channel  chan struct{}
		Slice    []any
	}{}

	doc, err := NewDocument(obj)
	s.NoError(err)
	s.Equal(M{"Map": nil, "Function": nil, "Channel": nil, "Slice": nil}, doc)
}

func (s *MTestSuite) TestUnsupportedValues() {
	_, err := NewDocument(map[string]any{"fn": func() {}})
	s.ErrorIs(err, domain.ErrBadQuery)

	_, err = NewDocument(map[string]any{"value": map[int]any{1: 123}})
	s.ErrorIs(err, domain.ErrBadQuery)

	_, err = NewDocument(1)
	s.ErrorIs(err, domain.ErrBadQuery)

	_, err = NewDocument(time.Now())
	s.ErrorIs(err, domain.ErrBadQuery)
}

func (s *MTestSuite) TestNilArg() {
	doc, err := NewDocument(nil)
	s.NoError(err)
	s.Equal(M{}, doc)
}

func (s *MTestSuite) TestDocumentIsCloned() {
	orig := M{"a": M{"b": []any{1, M{"c": 2}}}}

	doc, err := NewDocument(orig)
	s.NoError(err)
	s.Equal(orig, doc)

	doc.D("a").Get("b").([]any)[1].(M).Set("c", 3)
	s.Equal(2, orig["a"].(M)["b"].([]any)[1].(M)["c"])
}

func (s *MTestSuite) TestCheckKeys() {
	s.NoError(CheckKeys(M{"a": M{"b": []any{M{"c": 1}}}}))

	s.ErrorIs(CheckKeys(M{"$a": 1}), domain.ErrBadQuery)
	s.ErrorAs(CheckKeys(M{"a": []any{M{"b.c": 1}}}), &domain.ErrFieldName{})
}

func (s *MTestSuite) TestAsFloat() {
	for _, v := range []any{1, int8(1), int16(1), int32(1), int64(1), uint(1),
		uint8(1), uint16(1), uint32(1), uint64(1), float32(1), 1.0} {
		f, ok := AsFloat(v)
		s.True(ok)
		s.Equal(1.0, f)
	}
	_, ok := AsFloat("1")
	s.False(ok)
}

func (s *MTestSuite) TestID() {
	id := uuid.NewString()
	doc, err := NewDocument(map[string]string{"_id": id})
	s.NoError(err)
	s.True(doc.Has("_id"))
	s.Equal(id, doc.ID())
}

func (s *MTestSuite) TestIterationFunctions() {
	doc := M{"a": 1, "b": 2}

	keys := slices.Sorted(doc.Keys())
	s.Equal([]string{"a", "b"}, keys)

	values := slices.Collect(doc.Values())
	s.ElementsMatch([]any{1, 2}, values)

	count := 0
	for k, v := range doc.Iter() {
		s.Equal(doc[k], v)
		count++
	}
	s.Equal(2, count)
	s.Equal(2, doc.Len())
}

func (s *MTestSuite) TestSetUnsetD() {
	doc := M{}
	doc.Set("a", M{"b": 1})
	s.Equal(M{"b": 1}, doc.D("a"))
	s.Nil(doc.D("missing"))

	doc.Set("c", 1)
	s.Nil(doc.D("c"))

	doc.Unset("a")
	s.False(doc.Has("a"))
}

func (s *MTestSuite) TestUnmarshalJSON() {
	var doc M
	err := json.Unmarshal([]byte(`{"a": {"b": [1, {"c": "d"}]}, "e": null}`), &doc)
	s.NoError(err)
	s.Equal(M{"a": M{"b": []any{1.0, M{"c": "d"}}}, "e": nil}, doc)

	s.Error(json.Unmarshal([]byte(`[1]`), &doc))
	s.Error(json.Unmarshal([]byte(`{`), &doc))
}

func TestMTestSuite(t *testing.T) {
	suite.Run(t, new(MTestSuite))
}
