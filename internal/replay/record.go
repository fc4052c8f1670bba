package replay

import (
	"io"
	"strconv"
	"strings"
	"time"

	"collator/internal/source"
	"collator/pkg/exception"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	colSymbol = "symbol"
	colOpen   = "open"
	colHigh   = "high"
	colLow    = "low"
	colClose  = "close"
	colVolume = "volume"

	LayoutUnix      = "unix"
	LayoutUnixMilli = "unixms"
	LayoutUnixNano  = "unixnano"
)

var timeColumns = []string{"ts", "timestamp", "time", "date", "datetime"}

// Columns names the fields a bar is read from.
type Columns struct {
	// Time is the timestamp column. Empty tries ts, timestamp, time, date
	// and datetime in that order.
	Time string
	// Layout is a time.Parse layout or one of LayoutUnix, LayoutUnixMilli
	// and LayoutUnixNano. Empty means RFC 3339.
	Layout string
	// Symbol is used when a row has no symbol column.
	Symbol string
}

// record is one row keyed by lower-case column name.
type record map[string]string

func (r record) empty() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func recordFromRow(header, row []string) record {
	rec := make(record, len(header))
	for i, name := range header {
		if i < len(row) {
			rec[name] = strings.TrimSpace(row[i])
		} else {
			rec[name] = ""
		}
	}
	return rec
}

func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, name := range header {
		out[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
	}
	return out
}

// checkHeader fails when a required column is absent.
func (c Columns) checkHeader(header []string) error {
	present := make(map[string]bool, len(header))
	for _, name := range header {
		present[name] = true
	}
	if _, ok := c.timeColumn(present); !ok {
		return errors.Wrapf(exception.ErrMissingColumn, "time column, header: %v", header)
	}
	for _, name := range []string{colOpen, colHigh, colLow, colClose} {
		if !present[name] {
			return errors.Wrapf(exception.ErrMissingColumn, "column %s, header: %v", name, header)
		}
	}
	return nil
}

func (c Columns) timeColumn(present map[string]bool) (string, bool) {
	if c.Time != "" {
		name := strings.ToLower(c.Time)
		return name, present[name]
	}
	for _, name := range timeColumns {
		if present[name] {
			return name, true
		}
	}
	return "", false
}

func (c Columns) bar(rec record, sourceName string) (Bar, error) {
	present := make(map[string]bool, len(rec))
	for name := range rec {
		present[name] = true
	}
	col, ok := c.timeColumn(present)
	if !ok {
		return Bar{}, errors.Wrap(exception.ErrMissingColumn, "time column")
	}
	at, err := parseTime(rec[col], c.Layout)
	if err != nil {
		return Bar{}, err
	}

	bar := Bar{Source: sourceName, Symbol: rec[colSymbol], At: at}
	if bar.Symbol == "" {
		bar.Symbol = c.Symbol
	}
	fields := []struct {
		name     string
		dst      *decimal.Decimal
		optional bool
	}{
		{colOpen, &bar.Open, false},
		{colHigh, &bar.High, false},
		{colLow, &bar.Low, false},
		{colClose, &bar.Close, false},
		{colVolume, &bar.Volume, true},
	}
	for _, f := range fields {
		raw, ok := rec[f.name]
		if !ok || raw == "" {
			if f.optional {
				*f.dst = decimal.Zero
				continue
			}
			return Bar{}, errors.Wrapf(exception.ErrMissingColumn, "column %s", f.name)
		}
		d, err := ParseDecimal(raw)
		if err != nil {
			return Bar{}, errors.Wrapf(err, "column %s", f.name)
		}
		*f.dst = d
	}
	return bar, nil
}

func parseTime(value, layout string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.Wrap(exception.ErrMalformedRow, "empty timestamp")
	}
	switch layout {
	case LayoutUnix, LayoutUnixMilli, LayoutUnixNano:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, errors.Wrapf(exception.ErrMalformedRow, "timestamp %q, layout %s", value, layout)
		}
		switch layout {
		case LayoutUnix:
			return time.Unix(n, 0).UTC(), nil
		case LayoutUnixMilli:
			return time.UnixMilli(n).UTC(), nil
		default:
			return time.Unix(0, n).UTC(), nil
		}
	case "":
		layout = time.RFC3339Nano
	}
	at, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, errors.Wrapf(exception.ErrMalformedRow, "timestamp %q, layout %s", value, layout)
	}
	return at.UTC(), nil
}

// recordReader yields records until io.EOF.
type recordReader interface {
	read() (record, error)
	close() error
}

// barCursor turns records into bars and enforces timestamp order.
type barCursor struct {
	name    string
	columns Columns
	rd      recordReader
	row     int
	current Bar
	started bool
	done    bool
}

func (c *barCursor) Next() (bool, error) {
	if c.done {
		return false, nil
	}
	for {
		rec, err := c.rd.read()
		if err == io.EOF {
			c.done = true
			logs.Debugf("replay: %s read %d rows", c.name, c.row)
			return false, c.rd.close()
		}
		if err != nil {
			return false, errors.Wrapf(err, "%s row %d", c.name, c.row+1)
		}
		c.row++
		if rec.empty() {
			continue
		}

		bar, err := c.columns.bar(rec, c.name)
		if err != nil {
			return false, errors.Wrapf(err, "%s row %d", c.name, c.row)
		}
		if c.started && bar.At.Before(c.current.At) {
			return false, errors.Wrapf(exception.ErrMalformedRow, "%s row %d: %s is before %s", c.name, c.row, bar.At, c.current.At)
		}
		c.current, c.started = bar, true
		return true, nil
	}
}

func (c *barCursor) Current() source.Datum {
	return c.current
}

func (c *barCursor) Close() error {
	if c.done {
		return nil
	}
	c.done = true
	return c.rd.close()
}
