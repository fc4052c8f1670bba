package recorder

import (
	"time"

	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

const (
	defaultSegmentBytes int64 = 256 << 20
	defaultQueueSize          = 4096
	defaultBufferSize         = 256 * 1024
	defaultFilePrefix         = "collate"
	segmentSuffix             = ".wal"
)

// WriterConfig controls how merged output is written to WAL segments.
type WriterConfig struct {
	Dir           string        `json:"dir" yaml:"dir"`
	FilePrefix    string        `json:"filePrefix" yaml:"filePrefix"`
	SegmentBytes  int64         `json:"segmentBytes" yaml:"segmentBytes"`
	SegmentAge    time.Duration `json:"segmentAge" yaml:"segmentAge"`
	QueueSize     int           `json:"queueSize" yaml:"queueSize"`
	BufferSize    int           `json:"bufferSize" yaml:"bufferSize"`
	FlushInterval time.Duration `json:"flushInterval" yaml:"flushInterval"`
	SyncOnRotate  bool          `json:"syncOnRotate" yaml:"syncOnRotate"`
}

// Enabled reports whether recording was requested.
func (c WriterConfig) Enabled() bool {
	return c.Dir != ""
}

func (c WriterConfig) withDefaults() WriterConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	if c.SegmentBytes == 0 {
		c.SegmentBytes = defaultSegmentBytes
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	return c
}

// Validate checks if the configuration is usable.
func (c WriterConfig) Validate() error {
	switch {
	case c.Dir == "":
		return errors.Wrap(exception.ErrInvalidArgument, "recorder: dir is empty")
	case c.FilePrefix == "":
		return errors.Wrap(exception.ErrInvalidArgument, "recorder: file prefix is empty")
	case c.SegmentBytes <= 0:
		return errors.Wrapf(exception.ErrInvalidArgument, "recorder: segment bytes %d", c.SegmentBytes)
	case c.SegmentAge < 0:
		return errors.Wrapf(exception.ErrInvalidArgument, "recorder: segment age %s", c.SegmentAge)
	case c.QueueSize <= 0:
		return errors.Wrapf(exception.ErrInvalidArgument, "recorder: queue size %d", c.QueueSize)
	case c.BufferSize <= 0:
		return errors.Wrapf(exception.ErrInvalidArgument, "recorder: buffer size %d", c.BufferSize)
	case c.FlushInterval < 0:
		return errors.Wrapf(exception.ErrInvalidArgument, "recorder: flush interval %s", c.FlushInterval)
	}
	return nil
}

// ReplayConfig selects the WAL segments replayed as a source.
type ReplayConfig struct {
	Name           string
	Dir            string
	FilePrefix     string
	UseRecvTime    bool
	SkipChecksum   bool
	MaxPayloadSize int
}

func (c ReplayConfig) withDefaults() ReplayConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	if c.Name == "" {
		c.Name = "wal:" + c.FilePrefix
	}
	return c
}

// Validate checks if the configuration is usable.
func (c ReplayConfig) Validate() error {
	if c.Dir == "" {
		return errors.Wrap(exception.ErrInvalidArgument, "replay: dir is empty")
	}
	if c.MaxPayloadSize < 0 {
		return errors.Wrapf(exception.ErrInvalidArgument, "replay: max payload size %d", c.MaxPayloadSize)
	}
	return nil
}
