// Package idgenerator contains the default [domain.IDGenerator]
// implementation, which creates UUIDv7 identifiers. Their time prefix keeps
// identifiers roughly sorted by creation.
package idgenerator

import (
	"crypto/rand"
	"io"

	"github.com/google/uuid"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// IDGenerator implements [domain.IDGenerator].
type IDGenerator struct {
	entropy io.Reader
}

// Option changes an [IDGenerator] built by [NewIDGenerator].
type Option func(*IDGenerator)

// WithReader replaces crypto/rand as the source of the random bits of each
// identifier. A reader that runs dry makes GenerateID fail.
func WithReader(r io.Reader) Option {
	return func(i *IDGenerator) { i.entropy = r }
}

// NewIDGenerator returns a new implementation of [domain.IDGenerator].
func NewIDGenerator(opts ...Option) domain.IDGenerator {
	i := &IDGenerator{entropy: rand.Reader}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// GenerateID implements [domain.IDGenerator].
func (i *IDGenerator) GenerateID() (string, error) {
	id, err := uuid.NewV7FromReader(i.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
