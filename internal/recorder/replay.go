package recorder

import (
	"io"
	"os"

	"collator/internal/schema"
	"collator/internal/source"
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Replay is a finite source over recorded WAL segments. Segments are read
// in write order and each frame becomes a schema.Event.
type Replay struct {
	cfg ReplayConfig
}

// NewReplay validates cfg and checks that at least one segment exists.
func NewReplay(cfg ReplayConfig) (*Replay, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	files, err := listSegments(cfg.Dir, cfg.FilePrefix)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Wrapf(exception.ErrWALNoSegments, "dir: %s, prefix: %s", cfg.Dir, cfg.FilePrefix)
	}
	return &Replay{cfg: cfg}, nil
}

func (r *Replay) Name() string { return r.cfg.Name }

// Cursor lists the segments again, so frames appended since the last
// cursor are included.
func (r *Replay) Cursor() (source.Cursor, error) {
	files, err := listSegments(r.cfg.Dir, r.cfg.FilePrefix)
	if err != nil {
		return nil, err
	}
	return &replayCursor{cfg: r.cfg, files: files}, nil
}

type replayCursor struct {
	cfg     ReplayConfig
	files   []string
	next    int
	file    *os.File
	reader  *Reader
	current schema.Event
	frames  int
	done    bool
}

func (c *replayCursor) Next() (bool, error) {
	for !c.done {
		if c.reader == nil {
			if c.next >= len(c.files) {
				c.done = true
				logs.Debugf("recorder: %s replayed %d frames from %d segments", c.cfg.Name, c.frames, len(c.files))
				return false, nil
			}
			if err := c.open(c.files[c.next]); err != nil {
				return false, err
			}
			c.next++
		}

		header, payload, err := c.reader.Next()
		if err == io.EOF {
			if err := c.closeFile(); err != nil {
				return false, err
			}
			continue
		}
		if err != nil {
			return false, errors.Wrapf(err, "read %s", c.file.Name())
		}

		c.current = schema.Event{
			Header:      header,
			Payload:     append([]byte(nil), payload...),
			UseRecvTime: c.cfg.UseRecvTime,
		}
		c.frames++
		return true, nil
	}
	return false, nil
}

func (c *replayCursor) Current() source.Datum {
	return c.current
}

func (c *replayCursor) Close() error {
	c.done = true
	return c.closeFile()
}

func (c *replayCursor) open(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open segment %s", path)
	}
	c.file = file
	c.reader = NewReader(file, ReaderOptions{
		SkipChecksum:   c.cfg.SkipChecksum,
		MaxPayloadSize: c.cfg.MaxPayloadSize,
	})
	return nil
}

func (c *replayCursor) closeFile() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file, c.reader = nil, nil
	return err
}
