package recorder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yanun0323/errors"
)

type segment struct {
	path     string
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

func openSegment(cfg WriterConfig, id *uint64, now time.Time) (*segment, error) {
	stamp := now.UTC().Format("20060102-150405")
	for {
		*id++
		name := fmt.Sprintf("%s-%s-%06d%s", cfg.FilePrefix, stamp, *id, segmentSuffix)
		path := filepath.Join(cfg.Dir, name)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "open segment %s", path)
		}
		return &segment{
			path:     path,
			file:     file,
			buf:      bufio.NewWriterSize(file, cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

func (s *segment) write(frame []byte) error {
	if _, err := s.buf.Write(frame); err != nil {
		return errors.Wrapf(err, "write segment %s", s.path)
	}
	s.size += int64(len(frame))
	return nil
}

func (s *segment) flush() error {
	if s == nil {
		return nil
	}
	return s.buf.Flush()
}

func (s *segment) close(sync bool) error {
	if s == nil {
		return nil
	}
	if err := s.buf.Flush(); err != nil {
		_ = s.file.Close()
		return errors.Wrapf(err, "flush segment %s", s.path)
	}
	if sync {
		if err := s.file.Sync(); err != nil {
			_ = s.file.Close()
			return errors.Wrapf(err, "sync segment %s", s.path)
		}
	}
	return s.file.Close()
}

// listSegments returns the segment files of prefix in dir, oldest first.
// Segment names embed their open time and a counter, so lexical order is
// write order.
func listSegments(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read dir %s", dir)
	}
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}
