package mdg

import (
	"time"

	"collator/internal/schema"
	"collator/internal/source"
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

const (
	defaultBasePrice = 100_000
	defaultBaseSize  = 1
	defaultInterval  = time.Second
)

// GeneratorConfig describes a synthetic tick stream.
type GeneratorConfig struct {
	Name     string
	Symbols  []string // empty means every symbol of the registry
	Kind     schema.MarketDataKind
	SourceID uint16
	Start    time.Time
	Interval time.Duration
	// Count bounds the stream, zero means infinite.
	Count     int
	BasePrice int64
	BaseSize  int64
	Spread    int64
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.Name == "" {
		c.Name = "sim"
	}
	if c.Kind == schema.MarketDataUnknown {
		c.Kind = schema.MarketDataQuote
	}
	if c.Interval == 0 {
		c.Interval = defaultInterval
	}
	if c.BasePrice == 0 {
		c.BasePrice = defaultBasePrice
	}
	if c.BaseSize <= 0 {
		c.BaseSize = defaultBaseSize
	}
	if c.Spread < 0 {
		c.Spread = 0
	}
	return c
}

// Generator is a deterministic source of market data events. Ticks rotate
// across symbols, one per interval, with a small repeating price walk.
type Generator struct {
	cfg        GeneratorConfig
	symbols    []schema.Symbol
	normalizer *Normalizer
}

// NewGenerator resolves cfg.Symbols against reg.
func NewGenerator(reg *schema.Registry, cfg GeneratorConfig) (*Generator, error) {
	if reg == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "symbol registry")
	}
	cfg = cfg.withDefaults()
	if cfg.Interval < 0 {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "interval: %s", cfg.Interval)
	}
	if cfg.Count < 0 {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "count: %d", cfg.Count)
	}
	if cfg.Start.IsZero() {
		cfg.Start = time.Now().UTC().Truncate(time.Second)
	}

	var symbols []schema.Symbol
	if len(cfg.Symbols) == 0 {
		symbols = reg.Symbols()
	} else {
		for _, name := range cfg.Symbols {
			id, ok := reg.SymbolIDByName(name)
			if !ok {
				return nil, errors.Wrapf(exception.ErrInvalidArgument, "symbol not found: %s", name)
			}
			symbol, _ := reg.Symbol(id)
			symbols = append(symbols, symbol)
		}
	}
	if len(symbols) == 0 {
		return nil, errors.Wrap(exception.ErrInvalidArgument, "registry has no symbols")
	}

	return &Generator{cfg: cfg, symbols: symbols, normalizer: NewNormalizer(reg)}, nil
}

func (g *Generator) Name() string { return g.cfg.Name }

// Cursor starts a fresh stream at cfg.Start.
func (g *Generator) Cursor() (source.Cursor, error) {
	return &generatorCursor{g: g, index: -1}, nil
}

// Tick returns the i-th raw tick of the stream.
func (g *Generator) Tick(i int) RawTick {
	symbol := g.symbols[i%len(g.symbols)]
	ts := g.cfg.Start.Add(time.Duration(i) * g.cfg.Interval).UnixNano()
	price := g.cfg.BasePrice + walk[i%len(walk)]
	return RawTick{
		Symbol:   symbol.Name,
		Kind:     g.cfg.Kind,
		Price:    price,
		Size:     g.cfg.BaseSize,
		BidPrice: price - g.cfg.Spread,
		BidSize:  g.cfg.BaseSize,
		AskPrice: price + g.cfg.Spread,
		AskSize:  g.cfg.BaseSize,
		Source:   g.cfg.SourceID,
		TsEvent:  ts,
		TsRecv:   ts,
	}
}

var walk = [...]int64{0, 1, 3, 2, 4, 1, -1, -3, -2, 0}

type generatorCursor struct {
	g       *Generator
	index   int
	current schema.Event
}

func (c *generatorCursor) Next() (bool, error) {
	if c.g.cfg.Count > 0 && c.index+1 >= c.g.cfg.Count {
		c.index = c.g.cfg.Count
		return false, nil
	}
	c.index++
	ev, err := c.g.normalizer.Normalize(uint64(c.index+1), c.g.Tick(c.index))
	if err != nil {
		return false, err
	}
	c.current = ev
	return true, nil
}

func (c *generatorCursor) Current() source.Datum {
	return c.current
}
