package indexer

import "github.com/vinicius-lino-figueiredo/shelfdb/domain"

// WithComparer sets the comparer used by tree indexes and plan bounds.
func WithComparer(c domain.Comparer) Option {
	return func(i *Indexer) {
		i.comparer = c
	}
}

// WithFieldNavigator sets the field navigator used to read indexed fields.
func WithFieldNavigator(fn domain.FieldNavigator) Option {
	return func(i *Indexer) {
		i.fieldNavigator = fn
	}
}

// Option configures indexer behavior through the functional options pattern.
type Option func(*Indexer)
