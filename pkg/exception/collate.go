package exception

import "errors"

// Collator errors
var (
	ErrInvalidEpoch = errors.New("collate: epoch seconds must be >= 1")
	ErrNilSource    = errors.New("collate: nil source")
	ErrSourceFailed = errors.New("collate: source advancement failed")
	ErrClosed       = errors.New("collate: collator closed")
	ErrNilItem      = errors.New("collate: cursor reported an item but Current is nil")
)
