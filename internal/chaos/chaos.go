// Package chaos wraps sources with deterministic fault injection for
// rehearsing how a merge behaves with lossy or failing inputs.
package chaos

import (
	"math/rand"
	"time"

	"collator/internal/schema"
	"collator/internal/source"
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

// ErrInjected is returned by a cursor once FailAfter items were delivered.
var ErrInjected = exception.ErrInjected

// Config controls fault injection. Reordering is not offered since a source
// must stay sorted by timestamp.
type Config struct {
	Seed          int64         `json:"seed" yaml:"seed"`
	DropRate      float64       `json:"dropRate" yaml:"dropRate" validate:"gte=0,lte=1"`
	DuplicateRate float64       `json:"duplicateRate" yaml:"duplicateRate" validate:"gte=0,lte=1"`
	MaxRecvDelay  time.Duration `json:"maxRecvDelay" yaml:"maxRecvDelay" validate:"gte=0"`
	// FailAfter makes the cursor fail after that many items, zero never fails.
	FailAfter int `json:"failAfter" yaml:"failAfter" validate:"gte=0"`
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	switch {
	case c.DropRate < 0 || c.DropRate > 1:
		return errors.Wrapf(exception.ErrInvalidArgument, "chaos: drop rate %f", c.DropRate)
	case c.DuplicateRate < 0 || c.DuplicateRate > 1:
		return errors.Wrapf(exception.ErrInvalidArgument, "chaos: duplicate rate %f", c.DuplicateRate)
	case c.MaxRecvDelay < 0:
		return errors.Wrapf(exception.ErrInvalidArgument, "chaos: max recv delay %s", c.MaxRecvDelay)
	case c.FailAfter < 0:
		return errors.Wrapf(exception.ErrInvalidArgument, "chaos: fail after %d", c.FailAfter)
	}
	return nil
}

// Source applies chaos to every cursor of the wrapped source. Each cursor
// replays the same faults for the same seed.
type Source struct {
	inner source.Source
	name  string
	cfg   Config
}

// Wrap validates cfg and wraps src.
func Wrap(src source.Source, name string, cfg Config) (*Source, error) {
	if src == nil {
		return nil, errors.Wrap(exception.ErrNilSource, "chaos")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	return &Source{inner: src, name: name, cfg: cfg}, nil
}

func (s *Source) Name() string { return s.name }

// Spacing forwards the spacing of a wrapped heartbeat, zero otherwise.
func (s *Source) Spacing() time.Duration {
	if spaced, ok := s.inner.(source.Spaced); ok {
		return spaced.Spacing()
	}
	return 0
}

func (s *Source) Cursor() (source.Cursor, error) {
	inner, err := s.inner.Cursor()
	if err != nil {
		return nil, err
	}
	return &cursor{
		inner: inner,
		cfg:   s.cfg,
		rng:   rand.New(rand.NewSource(s.cfg.Seed)),
	}, nil
}

type cursor struct {
	inner     source.Cursor
	cfg       Config
	rng       *rand.Rand
	current   source.Datum
	repeat    bool
	delivered int
}

func (c *cursor) Next() (bool, error) {
	if c.cfg.FailAfter > 0 && c.delivered >= c.cfg.FailAfter {
		return false, errors.Wrapf(ErrInjected, "after %d items", c.delivered)
	}
	if c.repeat {
		c.repeat = false
		c.delivered++
		return true, nil
	}

	for {
		ok, err := c.inner.Next()
		if err != nil || !ok {
			return ok, err
		}
		if c.hit(c.cfg.DropRate) {
			continue
		}
		c.current = c.delay(c.inner.Current())
		c.repeat = c.hit(c.cfg.DuplicateRate)
		c.delivered++
		return true, nil
	}
}

func (c *cursor) Current() source.Datum {
	return c.current
}

// Close forwards to the wrapped cursor.
func (c *cursor) Close() error {
	if closer, ok := c.inner.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (c *cursor) hit(rate float64) bool {
	return rate > 0 && c.rng.Float64() < rate
}

// delay shifts the receive time of events ordered by event time. Events
// ordered by receive time are left alone so the stream stays sorted.
func (c *cursor) delay(d source.Datum) source.Datum {
	ev, ok := d.(schema.Event)
	if !ok || ev.UseRecvTime || ev.Header.TsEvent == 0 || c.cfg.MaxRecvDelay <= 0 {
		return d
	}
	delay := c.rng.Int63n(c.cfg.MaxRecvDelay.Nanoseconds() + 1)
	if ev.Header.TsRecv == 0 {
		ev.Header.TsRecv = ev.Header.TsEvent
	}
	ev.Header.TsRecv += delay
	return ev
}
