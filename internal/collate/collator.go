/*
Collate merges independent timestamped sources into one time-ordered stream.

# Module
  - ready queue: one pending entry per live source, keyed by (timestamp, index)
  - epoch heartbeat: synthetic source appended last, anchored to midnight UTC
  - termination: counts exhausted sources, disabled in live mode

# Source
  - WAL replay, file and database replays, synthetic ticks, in-process feeds

# Produce
  - a single pull stream of source.Datum, ties broken by registration order
*/
package collate

import (
	"context"
	"fmt"
	"io"
	"time"

	"collator/internal/obs"
	"collator/internal/source"
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const epochName = "epoch"

type tracking uint8

const (
	// trackingActive stops the merge once every source but one is exhausted.
	trackingActive tracking = iota
	// trackingDisabled never stops; used when only the epoch heartbeat exists.
	trackingDisabled
)

type lane struct {
	name      string
	cursor    source.Cursor
	first     time.Time
	primed    bool
	exhausted bool
}

// Collator is a pull-based k-way merge over sources. It is not safe for
// concurrent use.
type Collator struct {
	lanes      []lane
	queue      readyQueue
	exhausted  int
	tracking   tracking
	epoch      time.Duration
	epochStart time.Time
	err        error
	closed     bool

	now     func() time.Time
	metrics *obs.Metrics
}

// New registers sources in order and appends the epoch heartbeat.
//
// A supplied source.Spaced heartbeat whose spacing equals epochSeconds is
// dropped, the epoch heartbeat takes its place. When no other source remains the
// collator runs in live mode and never reports io.EOF.
func New(sources []source.Source, epochSeconds int, opts ...Option) (*Collator, error) {
	if epochSeconds <= 0 {
		return nil, errors.Wrapf(exception.ErrInvalidEpoch, "epoch: %d", epochSeconds)
	}

	c := &Collator{
		epoch: time.Duration(epochSeconds) * time.Second,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	for i, src := range sources {
		if src == nil {
			_ = c.closeCursors()
			return nil, errors.Wrapf(exception.ErrNilSource, "index: %d", i)
		}
		name := source.NameOf(src, i)
		if hb, ok := src.(source.Spaced); ok && hb.Spacing() == c.epoch {
			logs.Debugf("collate: drop %s, epoch heartbeat replaces it", name)
			continue
		}
		if err := c.register(src, name); err != nil {
			_ = c.closeCursors()
			return nil, err
		}
	}

	c.epochStart = c.now().UTC()
	if earliest, ok := c.earliest(); ok {
		c.epochStart = startOfDay(earliest)
	}
	hb, err := source.NewHeartbeat(c.epochStart, source.Unbounded, epochSeconds)
	if err != nil {
		_ = c.closeCursors()
		return nil, err
	}
	if err := c.register(hb.WithName(epochName), epochName); err != nil {
		_ = c.closeCursors()
		return nil, err
	}

	if len(c.lanes) == 1 {
		c.tracking = trackingDisabled
		logs.Infof("collate: no data sources, live mode from %s", c.epochStart.Format(time.RFC3339))
	} else {
		logs.Infof("collate: %d sources, epoch %s from %s", len(c.lanes), c.epoch, c.epochStart.Format(time.RFC3339))
	}
	return c, nil
}

// Next returns the earliest pending datum across all sources.
//
// It returns io.EOF once the merge is over. A cursor advancement error is
// returned wrapped with exception.ErrSourceFailed and sticks: every later
// call returns it again.
func (c *Collator) Next() (source.Datum, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.closed {
		return nil, exception.ErrClosed
	}

	p, ok := c.queue.pop()
	if !ok {
		return nil, io.EOF
	}
	ln := &c.lanes[p.index]
	datum := ln.cursor.Current()

	// Once a single source remains active nothing is re-queued, so the merge
	// drains after the item already pending for it.
	if c.tracking == trackingDisabled || c.exhausted < len(c.lanes)-1 {
		if err := c.advance(p.index); err != nil {
			c.err = err
			return nil, err
		}
	}

	_, beat := datum.(source.Beat)
	c.metrics.ObserveEmit(ln.name, beat, datum.Timestamp())
	return datum, nil
}

// Run calls handler for every datum until io.EOF, a handler error, a source
// failure or ctx is done. io.EOF is not returned.
func (c *Collator) Run(ctx context.Context, handler func(source.Datum) error) error {
	if handler == nil {
		return errors.Wrap(exception.ErrNilInstance, "collate handler")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		datum, err := c.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := handler(datum); err != nil {
			return err
		}
	}
}

// Peek reports the timestamp of the datum the next call to Next returns.
func (c *Collator) Peek() (time.Time, bool) {
	if c.err != nil || c.closed {
		return time.Time{}, false
	}
	p, ok := c.queue.peek()
	if !ok {
		return time.Time{}, false
	}
	return p.at, true
}

// Close releases every cursor that holds resources.
func (c *Collator) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.closeCursors()
}

// Live reports whether termination tracking is disabled.
func (c *Collator) Live() bool { return c.tracking == trackingDisabled }

// Sources returns the number of registered sources, epoch heartbeat included.
func (c *Collator) Sources() int { return len(c.lanes) }

// Exhausted returns how many sources reached their end.
func (c *Collator) Exhausted() int { return c.exhausted }

// Epoch returns the spacing of the epoch heartbeat.
func (c *Collator) Epoch() time.Duration { return c.epoch }

// EpochStart returns the first epoch heartbeat timestamp.
func (c *Collator) EpochStart() time.Time { return c.epochStart }

func (c *Collator) register(src source.Source, name string) error {
	cursor, err := src.Cursor()
	if err != nil {
		return errors.Wrapf(err, "open cursor of %s", name)
	}
	index := len(c.lanes)
	c.lanes = append(c.lanes, lane{name: name, cursor: cursor})

	ok, err := cursor.Next()
	if err != nil {
		return fmt.Errorf("%w: prime %s: %w", exception.ErrSourceFailed, name, err)
	}
	if !ok {
		c.markExhausted(index)
		return nil
	}

	current := cursor.Current()
	if current == nil {
		return fmt.Errorf("%w: prime %s: %w", exception.ErrSourceFailed, name, exception.ErrNilItem)
	}
	ln := &c.lanes[index]
	ln.first = current.Timestamp()
	ln.primed = true
	c.queue.push(ln.first, index)
	logs.Debugf("collate: registered %s at index %d, first item %s", name, index, ln.first.Format(time.RFC3339Nano))
	return nil
}

func (c *Collator) advance(index int) error {
	ln := &c.lanes[index]

	start := time.Now()
	ok, err := ln.cursor.Next()
	c.metrics.ObserveAdvance(time.Since(start))
	if err != nil {
		c.metrics.ObserveFailure(ln.name)
		logs.Errorf("collate: advance %s, err: %+v", ln.name, err)
		return fmt.Errorf("%w: %s: %w", exception.ErrSourceFailed, ln.name, err)
	}
	if !ok {
		c.markExhausted(index)
		return nil
	}
	current := ln.cursor.Current()
	if current == nil {
		c.metrics.ObserveFailure(ln.name)
		return fmt.Errorf("%w: %s: %w", exception.ErrSourceFailed, ln.name, exception.ErrNilItem)
	}
	c.queue.push(current.Timestamp(), index)
	return nil
}

func (c *Collator) markExhausted(index int) {
	ln := &c.lanes[index]
	ln.exhausted = true
	c.exhausted++
	c.metrics.ObserveExhausted(ln.name)
	logs.Debugf("collate: %s exhausted (%d/%d)", ln.name, c.exhausted, len(c.lanes))
}

func (c *Collator) earliest() (time.Time, bool) {
	var (
		earliest time.Time
		found    bool
	)
	for _, ln := range c.lanes {
		if !ln.primed {
			continue
		}
		if !found || ln.first.Before(earliest) {
			earliest = ln.first
			found = true
		}
	}
	return earliest, found
}

func (c *Collator) closeCursors() error {
	var first error
	for _, ln := range c.lanes {
		closer, ok := ln.cursor.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close %s", ln.name)
		}
	}
	return first
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
