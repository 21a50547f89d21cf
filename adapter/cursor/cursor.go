// Package cursor contains the default [domain.Cursor] implementation.
//
// A cursor pulls documents from a sequence one at a time, so documents are
// only read, sorted or aggregated as far as the caller advances.
package cursor

import (
	"context"
	"iter"

	"github.com/vinicius-lino-figueiredo/shelfdb/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/shelfdb/domain"
)

// Cursor implements domain.Cursor.
type Cursor struct {
	ctx     context.Context
	cancel  context.CancelCauseFunc
	next    func() (domain.Document, error, bool)
	stop    func()
	dec     domain.Decoder
	current domain.Document
	err     error
}

// NewCursor returns a new implementation of Cursor reading from seq. The
// cursor stops, and releases seq, when ctx is done, when seq yields an error
// or when it is closed.
func NewCursor(ctx context.Context, seq iter.Seq2[domain.Document, error], options ...domain.CursorOption) (domain.Cursor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	opts := domain.CursorOptions{
		Decoder: decoder.NewDecoder(),
	}
	for _, option := range options {
		option(&opts)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	next, stop := iter.Pull2(seq)
	return &Cursor{
		ctx:    ctx,
		cancel: cancel,
		next:   next,
		stop:   stop,
		dec:    opts.Decoder,
	}, nil
}

// Documents returns a sequence over docs, for cursors over results that are
// already in memory.
func Documents(docs []domain.Document) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		for _, doc := range docs {
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// Err implements domain.Cursor.
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return context.Cause(c.ctx)
}

// Scan implements domain.Cursor.
func (c *Cursor) Scan(ctx context.Context, target any) error {
	select {
	case <-c.ctx.Done():
		return context.Cause(c.ctx)
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if c.current == nil {
		return domain.ErrScanBeforeNext
	}
	return c.dec.Decode(c.current, target)
}

// Close implements domain.Cursor.
func (c *Cursor) Close() error {
	select {
	case <-c.ctx.Done():
		c.stop()
		return context.Cause(c.ctx)
	default:
	}
	c.cancel(domain.ErrCursorClosed)
	c.stop()
	c.current = nil
	return nil
}

// Next implements domain.Cursor.
func (c *Cursor) Next() bool {
	select {
	case <-c.ctx.Done():
		c.stop()
		return false
	default:
	}
	if c.err != nil {
		return false
	}
	doc, err, ok := c.next()
	if !ok {
		c.stop()
		c.current = nil
		return false
	}
	if err != nil {
		c.err = err
		c.current = nil
		c.stop()
		return false
	}
	c.current = doc
	return true
}
