package store

import "github.com/vinicius-lino-figueiredo/shelfdb/domain"

// WithIDGenerator sets the generator of identifiers for new documents.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(s *Store) {
		s.idGenerator = g
	}
}

// WithModifier sets the implementation used to apply update patches.
func WithModifier(m domain.Modifier) Option {
	return func(s *Store) {
		s.modifier = m
	}
}

// WithDocumentFactory sets the factory converting inserted values and patches
// into documents.
func WithDocumentFactory(df domain.DocumentFactory) Option {
	return func(s *Store) {
		s.docFac = df
	}
}

// WithTimestamps sets createdAt and updatedAt on inserted and updated
// documents, reading the time from tg.
func WithTimestamps(tg domain.TimeGetter) Option {
	return func(s *Store) {
		s.timeGetter = tg
	}
}

// WithCommitHook sets a function that must accept every insert, update and
// delete before the store publishes it.
func WithCommitHook(h CommitHook) Option {
	return func(s *Store) {
		s.onCommit = h
	}
}

// Option configures store behavior through the functional options pattern.
type Option func(*Store)
