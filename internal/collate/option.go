package collate

import (
	"time"

	"collator/internal/obs"
)

// Option customizes a Collator at construction.
type Option func(*Collator)

// WithClock replaces the wall clock used to anchor the epoch heartbeat when
// no source has data.
func WithClock(now func() time.Time) Option {
	return func(c *Collator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMetrics records emits, exhaustion and advance latency.
func WithMetrics(m *obs.Metrics) Option {
	return func(c *Collator) {
		c.metrics = m
	}
}
