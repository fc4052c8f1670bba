package replay

import (
	"io"

	"collator/internal/source"

	"github.com/xuri/excelize/v2"
	"github.com/yanun0323/errors"
)

// XLSX replays bars from an Excel worksheet whose first row is the header.
// Rows are streamed, the sheet is never loaded whole.
type XLSX struct {
	cfg FileConfig
}

// NewXLSX validates cfg. An empty Sheet selects the first worksheet.
func NewXLSX(cfg FileConfig) (*XLSX, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &XLSX{cfg: cfg}, nil
}

func (s *XLSX) Name() string { return s.cfg.Name }

func (s *XLSX) Cursor() (source.Cursor, error) {
	f, err := excelize.OpenFile(s.cfg.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", s.cfg.Path)
	}
	sheet := s.cfg.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "open sheet %s of %s", sheet, s.cfg.Path)
	}

	rd := &xlsxReader{file: f, rows: rows}
	header, err := rd.row()
	if err != nil {
		_ = rd.close()
		return nil, errors.Wrapf(err, "read header of %s", s.cfg.Path)
	}
	rd.header = normalizeHeader(header)
	if err := s.cfg.Columns.checkHeader(rd.header); err != nil {
		_ = rd.close()
		return nil, errors.Wrapf(err, "%s sheet %s", s.cfg.Path, sheet)
	}

	return &barCursor{name: s.cfg.Name, columns: s.cfg.Columns, rd: rd}, nil
}

type xlsxReader struct {
	file   *excelize.File
	rows   *excelize.Rows
	header []string
}

func (r *xlsxReader) row() ([]string, error) {
	if !r.rows.Next() {
		if err := r.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return r.rows.Columns()
}

func (r *xlsxReader) read() (record, error) {
	row, err := r.row()
	if err != nil {
		return nil, err
	}
	return recordFromRow(r.header, row), nil
}

func (r *xlsxReader) close() error {
	rowsErr := r.rows.Close()
	if err := r.file.Close(); err != nil {
		return err
	}
	return rowsErr
}
