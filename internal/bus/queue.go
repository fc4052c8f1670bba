// Package bus carries datums from live producers into the collator.
package bus

import (
	"context"
	"sync"
	"time"

	"collator/internal/source"
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

// Queue is a bounded in-memory feed. Producers publish without blocking, a
// single collator cursor pulls from it.
type Queue struct {
	name string
	ch   chan source.Datum

	mu     sync.Mutex
	closed bool
	last   time.Time
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(name string, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{name: name, ch: make(chan source.Datum, capacity)}
}

func (q *Queue) Name() string { return q.name }

// Len returns the number of datums waiting.
func (q *Queue) Len() int { return len(q.ch) }

// TryPublish enqueues d without blocking. Datums must arrive in timestamp
// order; an older datum is rejected so the feed stays sorted.
func (q *Queue) TryPublish(d source.Datum) error {
	if d == nil {
		return errors.Wrap(exception.ErrNilInstance, "datum")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return exception.ErrQueueClosed
	}
	ts := d.Timestamp()
	if ts.Before(q.last) {
		return errors.Wrapf(exception.ErrInvalidArgument, "out of order datum at %s, last %s", ts, q.last)
	}
	select {
	case q.ch <- d:
		q.last = ts
		return nil
	default:
		return exception.ErrQueueFull
	}
}

// Close stops the queue from accepting datums. Pending datums are still
// delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Source exposes the queue to the collator. Its cursor blocks until a datum
// arrives, the queue is closed and drained, or ctx is done.
func (q *Queue) Source(ctx context.Context) source.Source {
	return &feed{ctx: ctx, q: q}
}

type feed struct {
	ctx context.Context
	q   *Queue
}

func (f *feed) Name() string { return f.q.name }

// Cursor shares the underlying channel: datums consumed by one cursor are
// not seen by another.
func (f *feed) Cursor() (source.Cursor, error) {
	return &feedCursor{ctx: f.ctx, ch: f.q.ch}, nil
}

type feedCursor struct {
	ctx     context.Context
	ch      <-chan source.Datum
	current source.Datum
}

func (c *feedCursor) Next() (bool, error) {
	select {
	case <-c.ctx.Done():
		return false, c.ctx.Err()
	case d, ok := <-c.ch:
		if !ok {
			return false, nil
		}
		c.current = d
		return true, nil
	}
}

func (c *feedCursor) Current() source.Datum {
	return c.current
}
