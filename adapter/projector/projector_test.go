package projector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

type M = data.M

type A = []any

type ProjectorTestSuite struct {
	suite.Suite
	p   *Projector
	doc M
}

func (s *ProjectorTestSuite) SetupTest() {
	s.p = NewProjector().(*Projector)
	s.doc = M{
		"_id":       "b1",
		"title":     "The Hobbit",
		"author":    "J.R.R. Tolkien",
		"rating":    4.7,
		"publisher": M{"name": "Allen & Unwin", "country": "UK"},
		"reviews":   A{M{"user": "ana", "score": 5}, M{"score": 4}},
	}
}

func (s *ProjectorTestSuite) project(proj map[string]int) domain.Document {
	fn, err := s.p.Prepare(proj)
	s.Require().NoError(err)
	res, err := fn(s.doc)
	s.Require().NoError(err)
	return res
}

func (s *ProjectorTestSuite) TestEmpty() {
	s.Equal(s.doc, s.project(nil))
	s.Equal(s.doc, s.project(map[string]int{}))
}

func (s *ProjectorTestSuite) TestKeep() {
	s.Equal(M{"_id": "b1", "title": "The Hobbit", "rating": 4.7},
		s.project(map[string]int{"title": 1, "rating": 1}))

	s.Equal(M{"title": "The Hobbit"},
		s.project(map[string]int{"title": 1, "_id": 0}))

	s.Equal(M{"_id": "b1", "publisher": M{"country": "UK"}},
		s.project(map[string]int{"publisher.country": 1}))

	// missing fields are not created
	s.Equal(M{"_id": "b1"}, s.project(map[string]int{"isbn": 1}))
	s.Equal(M{"_id": "b1"}, s.project(map[string]int{"_id": 1}))
}

func (s *ProjectorTestSuite) TestKeepExpanded() {
	s.Equal(M{"_id": "b1", "reviews": M{"user": A{"ana"}}},
		s.project(map[string]int{"reviews.user": 1}))
}

func (s *ProjectorTestSuite) TestOmit() {
	s.Equal(M{
		"_id":       "b1",
		"title":     "The Hobbit",
		"author":    "J.R.R. Tolkien",
		"publisher": M{"name": "Allen & Unwin"},
	}, s.project(map[string]int{"rating": 0, "reviews": 0, "publisher.country": 0}))

	res := s.project(map[string]int{"_id": 0})
	s.False(res.Has("_id"))
	s.Equal(5, res.Len())
}

func (s *ProjectorTestSuite) TestSourceUnchanged() {
	res := s.project(map[string]int{"publisher": 1})
	res.D("publisher").Set("name", "HarperCollins")
	s.Equal("Allen & Unwin", s.doc.D("publisher").Get("name"))

	res = s.project(map[string]int{"rating": 0})
	res.D("publisher").Set("name", "HarperCollins")
	s.Equal("Allen & Unwin", s.doc.D("publisher").Get("name"))
}

func (s *ProjectorTestSuite) TestDocumentsWithoutID() {
	fn, err := s.p.Prepare(map[string]int{"title": 1})
	s.Require().NoError(err)
	res, err := fn(M{"title": "Dune", "year": 1965})
	s.NoError(err)
	s.Equal(M{"title": "Dune"}, res)
}

func (s *ProjectorTestSuite) TestInvalid() {
	_, err := s.p.Prepare(map[string]int{"title": 1, "rating": 0})
	s.ErrorIs(err, ErrMixOmitType)
	s.ErrorIs(err, domain.ErrBadQuery)

	// _id can be omitted while keeping fields
	_, err = s.p.Prepare(map[string]int{"title": 1, "_id": 0})
	s.NoError(err)

	_, err = s.p.Prepare(map[string]int{"title": 2})
	s.ErrorIs(err, domain.ErrBadQuery)
	s.False(errors.Is(err, ErrMixOmitType))

	_, err = s.p.Prepare(map[string]int{"_id": -1})
	s.ErrorIs(err, domain.ErrBadQuery)

	_, err = s.p.Prepare(map[string]int{"": 1})
	s.ErrorIs(err, domain.ErrBadQuery)
}

func TestProjectorTestSuite(t *testing.T) {
	suite.Run(t, new(ProjectorTestSuite))
}
