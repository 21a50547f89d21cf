// Package timegetter contains the default [domain.TimeGetter] implementation.
package timegetter

import (
	"time"

	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// TimeGetter implements [domain.TimeGetter]. Times are truncated to
// milliseconds, the precision kept by the data file.
type TimeGetter struct {
	clock func() time.Time
}

// NewTimeGetter returns a new implementation of domain.TimeGetter.
func NewTimeGetter(opts ...Option) domain.TimeGetter {
	t := TimeGetter{clock: time.Now}
	for _, opt := range opts {
		opt(&t)
	}
	return &t
}

// GetTime implements [domain.TimeGetter].
func (t *TimeGetter) GetTime() time.Time {
	return t.clock().Truncate(time.Millisecond)
}

// Option configures behavior through the functional options pattern.
type Option func(*TimeGetter)

// WithClock replaces the function used to read the current time.
func WithClock(clock func() time.Time) Option {
	return func(t *TimeGetter) {
		t.clock = clock
	}
}
