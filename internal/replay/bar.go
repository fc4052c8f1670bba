// Package replay reads OHLCV bars from files and tables as collator sources.
package replay

import (
	"encoding/json"
	"fmt"
	"time"

	"collator/internal/schema"
	"collator/pkg/exception"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
)

// Bar is one OHLCV sample.
type Bar struct {
	Source string          `json:"source,omitempty"`
	Symbol string          `json:"symbol"`
	At     time.Time       `json:"ts"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

func (b Bar) Timestamp() time.Time { return b.At }

func (b Bar) EventType() schema.EventType { return schema.EventBar }

// MarshalPayload encodes the bar as JSON for WAL recording.
func (b Bar) MarshalPayload() ([]byte, error) {
	return json.Marshal(b)
}

func (b Bar) String() string {
	return fmt.Sprintf("%s %s %s", b.At.Format(time.RFC3339), b.Source, b.Symbol)
}

// ParseDecimal parses a plain decimal string such as "101.25" or "-3".
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.New(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(exception.ErrMalformedRow, "decimal %q, err: %v", s, err)
	}
	return d, nil
}
