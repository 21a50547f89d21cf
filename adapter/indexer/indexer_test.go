package indexer

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

type IndexerTestSuite struct {
	suite.Suite
	ctx context.Context
	idx *Indexer
}

func (s *IndexerTestSuite) SetupTest() {
	s.ctx = context.Background()
	idx, err := NewIndexer()
	s.Require().NoError(err)
	s.idx = idx.(*Indexer)
}

func treeDesc(unique, sparse bool, fields ...domain.IndexField) domain.IndexDescriptor {
	return domain.IndexDescriptor{Fields: fields, Unique: unique, Sparse: sparse}
}

func asc(path string) domain.IndexField  { return domain.IndexField{Path: path, Order: 1} }
func desc(path string) domain.IndexField { return domain.IndexField{Path: path, Order: -1} }

func books() []domain.Document {
	return []domain.Document{
		data.M{"_id": "1", "title": "The Alchemist", "genre": "Fiction", "isbn": "978-0062315007", "rating": 4.7},
		data.M{"_id": "2", "title": "Dune", "genre": "Science Fiction", "isbn": "978-0441013593", "rating": 4.5},
		data.M{"_id": "3", "title": "Mistborn", "genre": "Fantasy", "rating": 4.8},
	}
}

func (s *IndexerTestSuite) ids(h domain.IndexHandle, r domain.KeyRange) []string {
	seq, err := s.idx.Lookup(s.ctx, h, r)
	s.Require().NoError(err)
	res := []string{}
	for id, err := range seq {
		s.Require().NoError(err)
		res = append(res, id)
	}
	return res
}

func (s *IndexerTestSuite) TestIDIndex() {
	s.Equal([]domain.IndexDescriptor{IDDescriptor}, s.idx.Indexes())
	s.ErrorIs(s.idx.Drop(s.ctx, domain.IDIndex), domain.ErrBadQuery)
	s.ErrorIs(s.idx.Drop(s.ctx, "genre_1"), domain.ErrNotFound)

	s.NoError(s.idx.Insert(s.ctx, books()...))
	s.Equal([]string{"2"}, s.ids(domain.IDIndex, domain.KeyRange{Prefix: []any{"2"}}))
	s.ErrorIs(s.idx.Insert(s.ctx, data.M{"_id": "2"}), domain.ErrDuplicateKey)

	_, err := s.idx.Lookup(s.ctx, "genre_1", domain.KeyRange{})
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *IndexerTestSuite) TestCreateIndex() {
	s.NoError(s.idx.Insert(s.ctx, books()...))

	h, err := s.idx.CreateIndex(s.ctx, treeDesc(false, false, asc("genre")), slices.Values(books()))
	s.NoError(err)
	s.Equal(domain.IndexHandle("genre_1"), h)
	s.Equal([]string{"3", "1", "2"}, s.ids(h, domain.KeyRange{}))

	_, err = s.idx.CreateIndex(s.ctx, treeDesc(false, false, asc("genre")), nil)
	s.ErrorIs(err, domain.ErrIndexExists)

	named := treeDesc(true, false, asc("genre"))
	named.Name = "by_genre"
	_, err = s.idx.CreateIndex(s.ctx, named, nil)
	s.ErrorIs(err, domain.ErrIndexExists)

	// same fields in the other direction is another index
	_, err = s.idx.CreateIndex(s.ctx, treeDesc(false, false, desc("genre")), slices.Values(books()))
	s.NoError(err)

	_, err = s.idx.CreateIndex(s.ctx, treeDesc(false, false), nil)
	s.ErrorIs(err, domain.ErrBadQuery)

	s.Equal([]domain.IndexHandle{domain.IDIndex, "genre_1", "genre_-1"}, s.handles())
}

func (s *IndexerTestSuite) handles() []domain.IndexHandle {
	var res []domain.IndexHandle
	for _, d := range s.idx.Indexes() {
		res = append(res, d.Handle())
	}
	return res
}

func (s *IndexerTestSuite) TestCreateUniqueWithDuplicates() {
	docs := append(books(), data.M{"_id": "4", "title": "Dune", "genre": "Science Fiction"})
	s.NoError(s.idx.Insert(s.ctx, docs...))

	_, err := s.idx.CreateIndex(s.ctx, treeDesc(true, false, asc("title")), slices.Values(docs))
	s.ErrorIs(err, domain.ErrDuplicateKey)
	s.Equal([]domain.IndexHandle{domain.IDIndex}, s.handles())
}

func (s *IndexerTestSuite) TestTextIndex() {
	_, ok := s.idx.TextScorer()
	s.False(ok)

	h, err := s.idx.CreateIndex(s.ctx, domain.IndexDescriptor{
		Kind:   domain.IndexText,
		Fields: []domain.IndexField{asc("title")},
	}, slices.Values(books()))
	s.NoError(err)
	s.Equal(domain.IndexHandle("title_text"), h)

	scorer, ok := s.idx.TextScorer()
	s.True(ok)
	s.Equal(1.0, scorer.Score(books()[0], "alchemist"))

	_, err = s.idx.CreateIndex(s.ctx, domain.IndexDescriptor{
		Kind:   domain.IndexText,
		Fields: []domain.IndexField{asc("genre")},
	}, nil)
	s.ErrorIs(err, domain.ErrIndexExists)

	s.NoError(s.idx.Drop(s.ctx, h))
	_, ok = s.idx.TextScorer()
	s.False(ok)
}

func (s *IndexerTestSuite) TestInsertRollback() {
	_, err := s.idx.CreateIndex(s.ctx, treeDesc(true, true, asc("isbn")), nil)
	s.Require().NoError(err)
	s.NoError(s.idx.Insert(s.ctx, books()...))

	err = s.idx.Insert(s.ctx,
		data.M{"_id": "4", "isbn": "978-1"},
		data.M{"_id": "5", "isbn": "978-0441013593"},
	)
	s.ErrorIs(err, domain.ErrDuplicateKey)
	s.Equal([]string{"1", "2", "3"}, s.ids(domain.IDIndex, domain.KeyRange{}))
	s.Equal([]string{"1", "2"}, s.ids("isbn_1", domain.KeyRange{}))
}

func (s *IndexerTestSuite) TestUpdateRollback() {
	_, err := s.idx.CreateIndex(s.ctx, treeDesc(false, false, asc("genre")), nil)
	s.Require().NoError(err)
	_, err = s.idx.CreateIndex(s.ctx, treeDesc(true, true, asc("isbn")), nil)
	s.Require().NoError(err)
	docs := books()
	s.NoError(s.idx.Insert(s.ctx, docs...))

	err = s.idx.Update(s.ctx, domain.Update{
		OldDoc: docs[2],
		NewDoc: data.M{"_id": "3", "genre": "Epic Fantasy", "isbn": "978-0441013593"},
	})
	s.ErrorIs(err, domain.ErrDuplicateKey)
	s.Equal([]string{"3"}, s.ids("genre_1", domain.KeyRange{Prefix: []any{"Fantasy"}}))
	s.Empty(s.ids("genre_1", domain.KeyRange{Prefix: []any{"Epic Fantasy"}}))

	s.NoError(s.idx.Update(s.ctx, domain.Update{
		OldDoc: docs[2],
		NewDoc: data.M{"_id": "3", "genre": "Epic Fantasy", "isbn": "978-0765311788"},
	}))
	s.Equal([]string{"3"}, s.ids("genre_1", domain.KeyRange{Prefix: []any{"Epic Fantasy"}}))
	s.Equal([]string{"1", "2", "3"}, s.ids("isbn_1", domain.KeyRange{}))

	s.NoError(s.idx.Remove(s.ctx, data.M{"_id": "3", "genre": "Epic Fantasy", "isbn": "978-0765311788"}))
	s.Equal([]string{"1", "2"}, s.ids(domain.IDIndex, domain.KeyRange{}))
}

func TestIndexerTestSuite(t *testing.T) {
	suite.Run(t, new(IndexerTestSuite))
}

type PlanTestSuite struct {
	suite.Suite
	idx *Indexer
}

func (s *PlanTestSuite) SetupTest() {
	ctx := context.Background()
	idx, err := NewIndexer()
	s.Require().NoError(err)
	s.idx = idx.(*Indexer)
	for _, d := range []domain.IndexDescriptor{
		treeDesc(false, false, asc("genre")),
		treeDesc(false, false, asc("genre"), desc("rating")),
		treeDesc(true, true, asc("isbn")),
		treeDesc(false, false, asc("rating")),
		treeDesc(false, false, asc("tags")),
		{Kind: domain.IndexText, Fields: []domain.IndexField{asc("title")}},
	} {
		_, err := s.idx.CreateIndex(ctx, d, nil)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.idx.Insert(ctx, data.M{"_id": "1", "tags": []any{"a", "b"}}))
}

func (s *PlanTestSuite) TestChoosePlan() {
	testCases := []struct {
		name   string
		filter domain.Filter
		index  domain.IndexHandle
		r      domain.KeyRange
	}{
		{name: "MatchAll", filter: domain.MatchAll{}},
		{name: "Nil"},
		{name: "NoIndexedField", filter: domain.Eq{Field: "author", Value: "Paulo Coelho"}},
		{
			name:   "Equality",
			filter: domain.Eq{Field: "genre", Value: "Fantasy"},
			index:  "genre_1",
			r:      domain.KeyRange{Prefix: []any{"Fantasy"}},
		},
		{
			name: "EqualityAndRange",
			filter: domain.And{Filters: []domain.Filter{
				domain.Eq{Field: "genre", Value: "Fantasy"},
				domain.Gte("rating", 4.5),
			}},
			index: "genre_1_rating_-1",
			r:     domain.KeyRange{Prefix: []any{"Fantasy"}, Lower: &domain.Bound{Value: 4.5, Inclusive: true}},
		},
		{
			name: "NestedAnd",
			filter: domain.And{Filters: []domain.Filter{
				domain.And{Filters: []domain.Filter{domain.Eq{Field: "genre", Value: "Fantasy"}}},
				domain.And{Filters: []domain.Filter{domain.Lt("rating", 4)}},
			}},
			index: "genre_1_rating_-1",
			r:     domain.KeyRange{Prefix: []any{"Fantasy"}, Upper: &domain.Bound{Value: 4}},
		},
		{
			name: "MergedRange",
			filter: domain.And{Filters: []domain.Filter{
				domain.Gt("rating", 3),
				domain.Gte("rating", 4),
				domain.Lt("rating", 4.8),
				domain.Lte("rating", 4.8),
			}},
			index: "rating_1",
			r: domain.KeyRange{
				Lower: &domain.Bound{Value: 4, Inclusive: true},
				Upper: &domain.Bound{Value: 4.8},
			},
		},
		{
			name: "RangeOfDifferentKinds",
			filter: domain.And{Filters: []domain.Filter{
				domain.Gt("rating", 3),
				domain.Lt("rating", "z"),
			}},
			index: "rating_1",
			r:     domain.KeyRange{Lower: &domain.Bound{Value: 3}},
		},
		{
			name: "MultikeyRange",
			filter: domain.And{Filters: []domain.Filter{
				domain.Gt("tags", "a"),
				domain.Lt("tags", "c"),
			}},
			index: "tags_1",
			r:     domain.KeyRange{Lower: &domain.Bound{Value: "a"}},
		},
		{
			name:   "Unique",
			filter: domain.Eq{Field: "isbn", Value: "978-0062315007"},
			index:  "isbn_1",
			r:      domain.KeyRange{Prefix: []any{"978-0062315007"}},
		},
		{
			name:   "SparseNull",
			filter: domain.Eq{Field: "isbn", Value: nil},
		},
		{
			name: "UniqueWins",
			filter: domain.And{Filters: []domain.Filter{
				domain.Eq{Field: "genre", Value: "Fantasy"},
				domain.Eq{Field: domain.IDField, Value: "1"},
			}},
			index: domain.IDIndex,
			r:     domain.KeyRange{Prefix: []any{"1"}},
		},
		{
			name:   "ArrayLiteral",
			filter: domain.Eq{Field: "tags", Value: []any{"a", "b"}},
		},
		{
			name:   "In",
			filter: domain.In{Field: "genre", Values: []any{"Fantasy", "Fiction"}},
			index:  "genre_1",
			r:      domain.KeyRange{In: []any{"Fantasy", "Fiction"}},
		},
		{
			name: "OrOfEqualities",
			filter: domain.Or{Filters: []domain.Filter{
				domain.Eq{Field: "genre", Value: "Fantasy"},
				domain.Eq{Field: "genre", Value: "Fiction"},
			}},
			index: "genre_1",
			r:     domain.KeyRange{In: []any{"Fantasy", "Fiction"}},
		},
		{
			name: "OrOfFields",
			filter: domain.Or{Filters: []domain.Filter{
				domain.Eq{Field: "genre", Value: "Fantasy"},
				domain.Gt("rating", 4),
			}},
		},
		{
			name:   "Text",
			filter: domain.And{Filters: []domain.Filter{domain.Text{Search: "alchemist"}, domain.Eq{Field: "genre", Value: "Fiction"}}},
			index:  "title_text",
			r:      domain.KeyRange{Search: "alchemist"},
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			plan, err := s.idx.ChoosePlan(tc.filter, "")
			s.NoError(err)
			s.Equal(tc.index, plan.Index)
			s.Equal(tc.r, plan.Range)
			s.NotEmpty(plan.Reason)
			if tc.index == "" {
				s.Equal("COLLSCAN", plan.Stage())
			} else {
				s.Equal("IXSCAN", plan.Stage())
			}
		})
	}
}

func (s *PlanTestSuite) TestHint() {
	plan, err := s.idx.ChoosePlan(domain.Eq{Field: "genre", Value: "Fantasy"}, "rating_1")
	s.NoError(err)
	s.Equal(domain.IndexHandle("rating_1"), plan.Index)
	s.Equal(domain.KeyRange{}, plan.Range)

	plan, err = s.idx.ChoosePlan(domain.Eq{Field: "genre", Value: "Fantasy"}, "genre_1_rating_-1")
	s.NoError(err)
	s.Equal(domain.KeyRange{Prefix: []any{"Fantasy"}}, plan.Range)

	_, err = s.idx.ChoosePlan(domain.MatchAll{}, "author_1")
	s.ErrorIs(err, domain.ErrNotFound)

	_, err = s.idx.ChoosePlan(domain.MatchAll{}, "title_text")
	s.ErrorIs(err, domain.ErrBadQuery)
}

func (s *PlanTestSuite) TestTextWithoutIndex() {
	s.NoError(s.idx.Drop(context.Background(), "title_text"))
	_, err := s.idx.ChoosePlan(domain.Not{Filter: domain.Text{Search: "alchemist"}}, "")
	s.ErrorIs(err, domain.ErrBadQuery)
}

func TestPlanTestSuite(t *testing.T) {
	suite.Run(t, new(PlanTestSuite))
}
