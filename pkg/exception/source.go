package exception

import "errors"

// Source errors
var (
	ErrInvalidSpacing    = errors.New("source: spacing must be >= 1 second")
	ErrInvalidRange      = errors.New("source: end is before start")
	ErrUnknownSourceKind = errors.New("source: unknown kind")
	ErrDuplicateKind     = errors.New("source: kind already registered")
	ErrMissingColumn     = errors.New("source: missing column")
	ErrMalformedRow      = errors.New("source: malformed row")
	ErrQueueFull         = errors.New("source: queue full")
	ErrQueueClosed       = errors.New("source: queue closed")
	ErrInjected          = errors.New("source: injected failure")
)
