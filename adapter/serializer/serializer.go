// Package serializer contains the default [domain.Serializer] implementation.
//
// Documents are written as single line JSON objects. Times become
// {"$$date": <unix milliseconds>} so they survive the round trip.
package serializer

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// Reserved keys written by the persistence layer. Every other key starting
// with '$' is rejected.
const (
	DateKey         = "$$date"
	DeletedKey      = "$$deleted"
	IndexCreatedKey = "$$indexCreated"
	IndexRemovedKey = "$$indexRemoved"
)

// Serializer implements [domain.Serializer].
type Serializer struct {
	comparer        domain.Comparer
	documentFactory domain.DocumentFactory
}

// NewSerializer returns a new implementation of [domain.Serializer].
func NewSerializer(comparer domain.Comparer, documentFactory domain.DocumentFactory) domain.Serializer {
	return &Serializer{
		comparer:        comparer,
		documentFactory: documentFactory,
	}
}

// Serialize implements [domain.Serializer].
func (s *Serializer) Serialize(ctx context.Context, v any) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	c, err := s.copyAny(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

func (s *Serializer) copyAny(v any) (any, error) {
	switch t := v.(type) {
	case domain.Document:
		return s.copyDoc(t)
	case []any:
		res := make([]any, len(t))
		for n, item := range t {
			c, err := s.copyAny(item)
			if err != nil {
				return nil, err
			}
			res[n] = c
		}
		return res, nil
	case time.Time:
		doc, err := s.documentFactory(nil)
		if err != nil {
			return nil, err
		}
		doc.Set(DateKey, t.UnixMilli())
		return doc, nil
	default:
		return v, nil
	}
}

func (s *Serializer) copyDoc(doc domain.Document) (domain.Document, error) {
	res, err := s.documentFactory(nil)
	if err != nil {
		return nil, err
	}
	for k, v := range doc.Iter() {
		if err := s.checkKey(k, v); err != nil {
			return nil, err
		}
		c, err := s.copyAny(v)
		if err != nil {
			return nil, err
		}
		res.Set(k, c)
	}
	return res, nil
}

func (s *Serializer) checkKey(k string, v any) error {
	if strings.Contains(k, ".") {
		return domain.ErrFieldName{Field: k, Reason: "cannot contain '.'"}
	}
	if !strings.HasPrefix(k, "$") {
		return nil
	}
	switch k {
	case DateKey:
		if domain.KindOf(v) == domain.KindNumber {
			return nil
		}
	case DeletedKey:
		if comp, err := s.comparer.Compare(v, true); err == nil && comp == 0 {
			return nil
		}
	case IndexCreatedKey, IndexRemovedKey:
		return nil
	}
	return domain.ErrFieldName{Field: k, Reason: "cannot start with '$'"}
}
