// Package source defines the pull contract shared by every timestamped data
// producer fed into the collator.
package source

import (
	"fmt"
	"time"
)

// Datum is a single timestamped item. The payload is opaque to the collator.
type Datum interface {
	Timestamp() time.Time
}

// Cursor pulls items from a source one at a time.
//
// Next advances to the following item and reports whether one exists. Current
// is only valid after Next returned true and must then be non-nil. Cursors
// holding files, rows or channels also implement io.Closer.
type Cursor interface {
	Next() (bool, error)
	Current() Datum
}

// Source produces a lazy sequence of Datum, non-decreasing in Timestamp.
// Every call to Cursor starts a fresh iteration where the source supports it.
type Source interface {
	Cursor() (Cursor, error)
}

// Named is implemented by sources that carry a label for logs and metrics.
type Named interface {
	Name() string
}

// Spaced is implemented by heartbeat sources and by wrappers around them.
type Spaced interface {
	Spacing() time.Duration
}

// NameOf returns the label of src, falling back to its position.
func NameOf(src Source, index int) string {
	if n, ok := src.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("source-%d", index)
}
