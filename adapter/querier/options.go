package querier

import (
	"log/slog"

	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// WithDocumentFactory sets the factory function for creating documents.
func WithDocumentFactory(df domain.DocumentFactory) Option {
	return func(q *Querier) {
		q.docFac = df
	}
}

// WithMatcher sets the matcher implementation for querier evaluations.
func WithMatcher(m domain.Matcher) Option {
	return func(q *Querier) {
		q.mtchr = m
	}
}

// WithComparer sets the comparer implementation for sorting operations.
func WithComparer(c domain.Comparer) Option {
	return func(q *Querier) {
		q.cmpr = c
	}
}

// WithFieldNavigator sets the field getter for accessing document
// fields.
func WithFieldNavigator(f domain.FieldNavigator) Option {
	return func(q *Querier) {
		q.fn = f
	}
}

// WithProjector sets the implementation what will be used to project
// the resultant documents.
func WithProjector(p domain.Projector) Option {
	return func(q *Querier) {
		q.proj = p
	}
}

// WithMetrics sets the recorder notified of every finished query.
func WithMetrics(m domain.Metrics) Option {
	return func(q *Querier) {
		q.metrics = m
	}
}

// WithLogger sets the logger that receives query plans at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(q *Querier) {
		q.log = l
	}
}

// Option configures querier behavior through the functional options
// pattern.
type Option func(*Querier)
