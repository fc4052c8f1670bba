// Package pacer replays a merged stream at wall-clock speed.
package pacer

import (
	"context"
	"time"

	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

// Clock sleeps between datums. Tests swap in a recording clock.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer sleeps for the gap between consecutive timestamps divided by speed.
// A speed of zero disables pacing.
type Pacer struct {
	speed   float64
	maxGap  time.Duration
	clock   Clock
	prev    time.Time
	started bool
}

// New creates a pacer. maxGap caps a single sleep, zero means no cap.
func New(speed float64, maxGap time.Duration) (*Pacer, error) {
	if speed < 0 {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "pacer speed: %f", speed)
	}
	if maxGap < 0 {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "pacer max gap: %s", maxGap)
	}
	return &Pacer{speed: speed, maxGap: maxGap, clock: realClock{}}, nil
}

// WithClock swaps the clock implementation.
func (p *Pacer) WithClock(clock Clock) *Pacer {
	if clock != nil {
		p.clock = clock
	}
	return p
}

// Enabled reports whether Wait ever sleeps.
func (p *Pacer) Enabled() bool {
	return p != nil && p.speed > 0
}

// Wait blocks until ts is due relative to the previous timestamp.
func (p *Pacer) Wait(ctx context.Context, ts time.Time) error {
	if !p.Enabled() {
		return nil
	}
	if !p.started {
		p.prev, p.started = ts, true
		return nil
	}

	gap := ts.Sub(p.prev)
	p.prev = ts
	if gap <= 0 {
		return nil
	}
	sleep := time.Duration(float64(gap) / p.speed)
	if p.maxGap > 0 && sleep > p.maxGap {
		sleep = p.maxGap
	}
	return p.clock.Sleep(ctx, sleep)
}
