package exception

import "errors"

// WAL errors
var (
	ErrWALChecksumMismatch = errors.New("wal: checksum mismatch")
	ErrWALInvalidMagic     = errors.New("wal: invalid magic")
	ErrWALRecordVersion    = errors.New("wal: unsupported record version")
	ErrWALHeaderSize       = errors.New("wal: invalid header size")
	ErrWALPayloadTooLarge  = errors.New("wal: payload too large")
	ErrWALTruncated        = errors.New("wal: truncated record")
	ErrWALQueueFull        = errors.New("wal: queue full")
	ErrWALClosed           = errors.New("wal: writer closed")
	ErrWALNotStarted       = errors.New("wal: writer not started")
	ErrWALAlreadyStarted   = errors.New("wal: writer already started")
	ErrWALNoSegments       = errors.New("wal: no segment files")
)
