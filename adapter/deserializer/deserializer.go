// Package deserializer contains the default [domain.Deserializer]
// implementation.
package deserializer

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/data"
	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/serializer"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// NewDeserializer returns a new instance of domain.Deserializer.
func NewDeserializer(decoder domain.Decoder) domain.Deserializer {
	return &Deserializer{
		decoder: decoder,
	}
}

// Deserializer implements [domain.Deserializer].
type Deserializer struct {
	decoder domain.Decoder
}

// Deserialize implements [domain.Deserializer]. Objects holding only a
// numeric "$$date" key are read back as times.
func (d *Deserializer) Deserialize(ctx context.Context, b []byte, target any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if target == nil {
		return domain.ErrTargetNil
	}
	doc := make(data.M)

	if err := json.NewDecoder(bytes.NewReader(b)).Decode(&doc); err != nil {
		return err
	}
	restoreDates(doc)

	switch p := target.(type) {
	case *map[string]any:
		*p = doc
		return nil
	case *data.M:
		*p = doc
		return nil
	}

	return d.decoder.Decode(doc, target)
}

func restoreDates(doc data.M) {
	for k, v := range doc {
		doc[k] = restoreValue(v)
	}
}

func restoreValue(v any) any {
	switch t := v.(type) {
	case data.M:
		if ms, ok := t[serializer.DateKey].(float64); ok && len(t) == 1 {
			return time.UnixMilli(int64(ms))
		}
		restoreDates(t)
		return t
	case []any:
		for n, item := range t {
			t[n] = restoreValue(item)
		}
		return t
	default:
		return v
	}
}
