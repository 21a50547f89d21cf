package pipeline

import "github.com/vinicius-lino-figueiredo/shelfdb/domain"

// WithMatcher sets the matcher used to compile $match stages.
func WithMatcher(m domain.Matcher) Option {
	return func(p *Pipeline) {
		p.mtchr = m
	}
}

// WithComparer sets the comparer used by $sort, $min, $max and group keys.
func WithComparer(c domain.Comparer) Option {
	return func(p *Pipeline) {
		p.cmpr = c
	}
}

// WithFieldNavigator sets the navigator used to read and write document
// fields.
func WithFieldNavigator(f domain.FieldNavigator) Option {
	return func(p *Pipeline) {
		p.fn = f
	}
}

// WithHasher sets the hasher used to bucket group keys.
func WithHasher(h domain.Hasher) Option {
	return func(p *Pipeline) {
		p.hasher = h
	}
}

// WithDocumentFactory sets the factory for the documents stages emit.
func WithDocumentFactory(df domain.DocumentFactory) Option {
	return func(p *Pipeline) {
		p.docFac = df
	}
}

// Option configures pipeline behavior through the functional options pattern.
type Option func(*Pipeline)
