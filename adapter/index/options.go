package index

import "github.com/vinicius-lino-figueiredo/shelfdb/domain"

type options struct {
	comparer       domain.Comparer
	fieldNavigator domain.FieldNavigator
}

// Option configures index behavior through the functional options pattern.
type Option func(*options)

// WithComparer sets the comparer used to order tree index keys.
func WithComparer(c domain.Comparer) Option {
	return func(o *options) {
		o.comparer = c
	}
}

// WithFieldNavigator sets the field navigator used to read indexed fields.
func WithFieldNavigator(fn domain.FieldNavigator) Option {
	return func(o *options) {
		o.fieldNavigator = fn
	}
}
