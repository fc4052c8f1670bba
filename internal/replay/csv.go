package replay

import (
	"encoding/csv"
	"os"

	"collator/internal/source"

	"github.com/yanun0323/errors"
)

// CSV replays bars from a comma separated file with a header row.
type CSV struct {
	cfg FileConfig
}

// NewCSV validates cfg.
func NewCSV(cfg FileConfig) (*CSV, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CSV{cfg: cfg}, nil
}

func (s *CSV) Name() string { return s.cfg.Name }

// Cursor opens the file and checks the header.
func (s *CSV) Cursor() (source.Cursor, error) {
	file, err := os.Open(s.cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", s.cfg.Path)
	}
	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrapf(err, "read header of %s", s.cfg.Path)
	}
	header = normalizeHeader(header)
	if err := s.cfg.Columns.checkHeader(header); err != nil {
		_ = file.Close()
		return nil, errors.Wrapf(err, "%s", s.cfg.Path)
	}

	return &barCursor{
		name:    s.cfg.Name,
		columns: s.cfg.Columns,
		rd:      &csvReader{file: file, r: r, header: header},
	}, nil
}

type csvReader struct {
	file   *os.File
	r      *csv.Reader
	header []string
}

func (r *csvReader) read() (record, error) {
	row, err := r.r.Read()
	if err != nil {
		return nil, err
	}
	return recordFromRow(r.header, row), nil
}

func (r *csvReader) close() error {
	return r.file.Close()
}
