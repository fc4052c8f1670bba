package mdg

import (
	"encoding/json"
	"time"

	"collator/internal/codec"
	"collator/internal/schema"
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

// RawTick is a market data tick as it arrives on a line feed.
type RawTick struct {
	Symbol   string                `json:"symbol"`
	Kind     schema.MarketDataKind `json:"kind"`
	Flags    uint16                `json:"flags,omitempty"`
	Price    int64                 `json:"price"`
	Size     int64                 `json:"size"`
	BidPrice int64                 `json:"bidPrice,omitempty"`
	BidSize  int64                 `json:"bidSize,omitempty"`
	AskPrice int64                 `json:"askPrice,omitempty"`
	AskSize  int64                 `json:"askSize,omitempty"`
	Source   uint16                `json:"source,omitempty"`
	TsEvent  int64                 `json:"tsEvent,omitempty"`
	TsRecv   int64                 `json:"tsRecv,omitempty"`
}

// ParseRawTick decodes one JSON line.
func ParseRawTick(line []byte) (RawTick, error) {
	var tick RawTick
	if err := json.Unmarshal(line, &tick); err != nil {
		return RawTick{}, errors.Wrapf(exception.ErrMalformedRow, "tick: %s, err: %v", line, err)
	}
	return tick, nil
}

// Normalizer resolves symbol names and turns ticks into events.
type Normalizer struct {
	reg *schema.Registry
	now func() time.Time
	buf []byte
}

// NewNormalizer creates a normalizer for a registry.
func NewNormalizer(reg *schema.Registry) *Normalizer {
	return &Normalizer{reg: reg, now: time.Now}
}

// Normalize converts a raw tick into an event. A missing receive time is
// stamped with now, a missing event time falls back to the receive time.
func (n *Normalizer) Normalize(seq uint64, tick RawTick) (schema.Event, error) {
	if n.reg == nil {
		return schema.Event{}, errors.Wrap(exception.ErrNilInstance, "symbol registry")
	}
	symbolID, ok := n.reg.SymbolIDByName(tick.Symbol)
	if !ok {
		return schema.Event{}, errors.Wrapf(exception.ErrInvalidArgument, "symbol not found: %s", tick.Symbol)
	}
	if tick.Kind > schema.MarketDataQuote {
		return schema.Event{}, errors.Wrapf(exception.ErrInvalidArgument, "market data kind %d", tick.Kind)
	}
	if tick.TsRecv == 0 {
		tick.TsRecv = n.now().UTC().UnixNano()
	}
	if tick.TsEvent == 0 {
		tick.TsEvent = tick.TsRecv
	}

	md := schema.MarketData{
		SymbolID: uint32(symbolID),
		Kind:     tick.Kind,
		Flags:    tick.Flags,
		Price:    schema.Price(tick.Price),
		Size:     schema.Quantity(tick.Size),
		BidPrice: schema.Price(tick.BidPrice),
		BidSize:  schema.Quantity(tick.BidSize),
		AskPrice: schema.Price(tick.AskPrice),
		AskSize:  schema.Quantity(tick.AskSize),
	}
	n.buf = codec.EncodeMarketData(n.buf, md)
	return schema.Event{
		Header:  schema.NewHeader(schema.EventMarketData, tick.Source, seq, tick.TsEvent, tick.TsRecv),
		Payload: append([]byte(nil), n.buf...),
	}, nil
}
