package source

import (
	"fmt"
	"math"
	"time"

	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

// Unbounded marks a heartbeat without an end time.
var Unbounded = time.Unix(math.MaxInt64/int64(time.Second), 0).UTC()

// Beat is the synthetic datum emitted by a Heartbeat.
type Beat struct {
	At      time.Time
	Spacing time.Duration
}

// Timestamp implements Datum.
func (b Beat) Timestamp() time.Time {
	return b.At
}

func (b Beat) String() string {
	return fmt.Sprintf("beat(%s, every %s)", b.At.Format(time.RFC3339Nano), b.Spacing)
}

// Heartbeat emits a Beat every spacing from start up to and including end.
type Heartbeat struct {
	name    string
	start   time.Time
	end     time.Time
	spacing time.Duration
}

// NewHeartbeat validates the range and creates a heartbeat source.
// Pass Unbounded as end for an infinite heartbeat.
func NewHeartbeat(start, end time.Time, spacingSeconds int) (*Heartbeat, error) {
	if spacingSeconds <= 0 {
		return nil, errors.Wrapf(exception.ErrInvalidSpacing, "spacing: %d", spacingSeconds)
	}
	if end.Before(start) {
		return nil, errors.Wrapf(exception.ErrInvalidRange, "start: %s, end: %s", start, end)
	}
	spacing := time.Duration(spacingSeconds) * time.Second
	return &Heartbeat{
		name:    fmt.Sprintf("heartbeat-%ds", spacingSeconds),
		start:   start,
		end:     end,
		spacing: spacing,
	}, nil
}

// WithName overrides the default label.
func (h *Heartbeat) WithName(name string) *Heartbeat {
	if name != "" {
		h.name = name
	}
	return h
}

func (h *Heartbeat) Name() string { return h.name }
func (h *Heartbeat) Start() time.Time { return h.start }
func (h *Heartbeat) End() time.Time { return h.end }
func (h *Heartbeat) Spacing() time.Duration { return h.spacing }
func (h *Heartbeat) Bounded() bool { return !h.end.Equal(Unbounded) }

// Cursor starts a new iteration at start.
func (h *Heartbeat) Cursor() (Cursor, error) {
	return &heartbeatCursor{hb: h}, nil
}

type heartbeatCursor struct {
	hb      *Heartbeat
	current Beat
	started bool
	done    bool
}

func (c *heartbeatCursor) Next() (bool, error) {
	if c.done {
		return false, nil
	}
	next := c.hb.start
	if c.started {
		next = c.current.At.Add(c.hb.spacing)
	}
	if c.hb.Bounded() && next.After(c.hb.end) {
		c.done = true
		return false, nil
	}
	c.started = true
	c.current = Beat{At: next, Spacing: c.hb.spacing}
	return true, nil
}

func (c *heartbeatCursor) Current() Datum {
	return c.current
}
