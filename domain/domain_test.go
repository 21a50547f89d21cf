package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

type DomainTestSuite struct {
	suite.Suite
}

func (s *DomainTestSuite) TestFindOptions() {
	var fos domain.FindOptions
	fo := []domain.FindOption{
		domain.WithProjection(map[string]int{"a": 1}),
		domain.WithSkip(2),
		domain.WithLimit(3),
		domain.WithSort(domain.SortKey{Key: "a", Order: -1}),
		domain.WithHint("a_1"),
		domain.WithTextScore("score"),
	}
	for _, opt := range fo {
		opt(&fos)
	}
	s.Equal(domain.FindOptions{
		Projection: map[string]int{"a": 1},
		Skip:       2,
		Limit:      3,
		Sort:       domain.Sort{{Key: "a", Order: -1}},
		Hint:       "a_1",
		TextScore:  "score",
	}, fos)
}

func (s *DomainTestSuite) TestKindOf() {
	s.Equal(domain.KindUndefined, domain.KindOf(fieldnavigator.Missing()))
	s.Equal(domain.KindNull, domain.KindOf(nil))
	s.Equal(domain.KindNumber, domain.KindOf(uint8(3)))
	s.Equal(domain.KindNumber, domain.KindOf(4.5))
	s.Equal(domain.KindString, domain.KindOf("x"))
	s.Equal(domain.KindBool, domain.KindOf(true))
	s.Equal(domain.KindTime, domain.KindOf(time.Now()))
	s.Equal(domain.KindArray, domain.KindOf([]any{1}))
	s.Equal(domain.KindDocument, domain.KindOf(data.M{}))
	s.Equal(domain.KindOther, domain.KindOf(struct{}{}))
	s.Equal("number", domain.KindNumber.String())
	s.Equal("Kind(42)", domain.Kind(42).String())
}

func (s *DomainTestSuite) TestIndexDescriptorNames() {
	tree := domain.IndexDescriptor{Fields: []domain.IndexField{
		{Path: "genre", Order: 1}, {Path: "rating", Order: -1},
	}}
	s.Equal("genre_1_rating_-1", tree.DefaultName())
	s.Equal(domain.IndexHandle("genre_1_rating_-1"), tree.Handle())
	s.Equal([]string{"genre", "rating"}, tree.Paths())

	text := domain.IndexDescriptor{Kind: domain.IndexText, Fields: []domain.IndexField{
		{Path: "title"}, {Path: "author"},
	}}
	s.Equal("title_text_author_text", text.DefaultName())

	text.Name = "search"
	s.Equal(domain.IndexHandle("search"), text.Handle())
}

func (s *DomainTestSuite) TestPlanStage() {
	s.Equal("COLLSCAN", domain.Plan{}.Stage())
	s.Equal("IXSCAN", domain.Plan{Index: "a_1"}.Stage())
}

func (s *DomainTestSuite) TestFilterOps() {
	s.Equal("$gt", domain.Gt("a", 1).FilterOp())
	s.Equal("$gte", domain.Gte("a", 1).FilterOp())
	s.Equal("$lt", domain.Lt("a", 1).FilterOp())
	s.Equal("$lte", domain.Lte("a", 1).FilterOp())
	s.Equal("$eq", domain.Eq{}.FilterOp())
	s.Equal("$text", domain.Text{}.FilterOp())
	s.Equal("$field", domain.Ref("a").ExprOp())
	s.Equal(domain.Literal{Value: 1}, domain.Lit(1))
}

func (s *DomainTestSuite) TestErrors() {
	var e error = domain.ErrUnknownOperator{Operator: "$foo"}
	s.ErrorIs(e, domain.ErrBadQuery)
	s.Equal(`unknown operator "$foo"`, e.Error())

	e = domain.ErrCompArgType{Op: "$gt", Actual: domain.KindBool}
	s.ErrorIs(e, domain.ErrBadQuery)
	s.Equal("$gt needs a number, string or time, got bool", e.Error())

	e = domain.ErrInvalidStage{Stage: "$limit", Index: 2, Reason: "negative"}
	s.ErrorIs(e, domain.ErrBadQuery)
	s.Equal("stage 2 ($limit): negative", e.Error())

	e = domain.ErrUnwindNotArray{Field: "tags", Actual: domain.KindString}
	s.ErrorIs(e, domain.ErrTypeMismatch)

	e = domain.ErrArithmetic{Op: "$mod", Actual: domain.KindString}
	s.ErrorIs(e, domain.ErrTypeMismatch)

	e = domain.ErrFieldName{Field: "$a", Reason: "reserved"}
	s.ErrorIs(e, domain.ErrBadQuery)

	s.ErrorIs(domain.ErrCannotModifyID, domain.ErrBadQuery)

	fsync := errors.New("fsync")
	e = domain.ErrFlushToStorage{ErrorOnFsync: fsync}
	s.ErrorIs(e, fsync)
	s.Equal("storage flush error: fsync", e.Error())

	e = domain.ErrCorruptFiles{CorruptionRate: 0.5, CorruptAlertThreshold: 0.1}
	s.Equal("50% of the data file is corrupt, more than the accepted 10%", e.Error())
}

func TestDomainTestSuite(t *testing.T) {
	suite.Run(t, new(DomainTestSuite))
}
