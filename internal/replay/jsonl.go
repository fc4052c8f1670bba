package replay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"collator/internal/source"
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

const maxLineSize = 1 << 20

// JSONL replays bars from a file holding one JSON object per line. Numbers
// may be written as JSON numbers or strings.
type JSONL struct {
	cfg FileConfig
}

// NewJSONL validates cfg.
func NewJSONL(cfg FileConfig) (*JSONL, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &JSONL{cfg: cfg}, nil
}

func (s *JSONL) Name() string { return s.cfg.Name }

func (s *JSONL) Cursor() (source.Cursor, error) {
	file, err := os.Open(s.cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", s.cfg.Path)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &barCursor{
		name:    s.cfg.Name,
		columns: s.cfg.Columns,
		rd:      &jsonlReader{file: file, scanner: scanner},
	}, nil
}

type jsonlReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

func (r *jsonlReader) read() (record, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	line := bytes.TrimSpace(r.scanner.Bytes())
	if len(line) == 0 {
		return record{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, errors.Wrapf(exception.ErrMalformedRow, "json: %v", err)
	}
	rec := make(record, len(fields))
	for key, raw := range fields {
		rec[strings.ToLower(key)] = rawString(raw)
	}
	return rec, nil
}

func (r *jsonlReader) close() error {
	return r.file.Close()
}

// rawString unquotes JSON strings and keeps numbers verbatim.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	if bytes.Equal(raw, []byte("null")) {
		return ""
	}
	return string(raw)
}
