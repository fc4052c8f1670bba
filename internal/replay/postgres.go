package replay

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"regexp"
	"time"

	"collator/internal/source"
	"collator/pkg/exception"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// TableConfig describes a bar table. The table needs open, high, low,
// close and volume columns, a timestamp column and optionally symbol.
type TableConfig struct {
	Name       string
	Table      string
	TimeColumn string
	Symbol     string
	// SymbolColumn filters rows by Symbol when both are set.
	SymbolColumn string
	From, To     time.Time
}

func (c TableConfig) withDefaults() TableConfig {
	if c.Name == "" {
		c.Name = "pg:" + c.Table
	}
	if c.TimeColumn == "" {
		c.TimeColumn = "ts"
	}
	if c.SymbolColumn == "" {
		c.SymbolColumn = colSymbol
	}
	return c
}

// Validate rejects identifiers that cannot be used unquoted.
func (c TableConfig) Validate() error {
	for _, ident := range []string{c.Table, c.TimeColumn, c.SymbolColumn} {
		if !identPattern.MatchString(ident) {
			return errors.Wrapf(exception.ErrInvalidArgument, "replay: identifier %q", ident)
		}
	}
	if !c.To.IsZero() && c.To.Before(c.From) {
		return errors.Wrapf(exception.ErrInvalidRange, "replay: %s before %s", c.To, c.From)
	}
	return nil
}

// Postgres replays bars from a table ordered by its timestamp column.
type Postgres struct {
	ctx context.Context
	db  *gorm.DB
	cfg TableConfig
}

// NewPostgres validates cfg. Queries run under ctx.
func NewPostgres(ctx context.Context, db *gorm.DB, cfg TableConfig) (*Postgres, error) {
	if db == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "gorm db")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Postgres{ctx: ctx, db: db, cfg: cfg}, nil
}

func (s *Postgres) Name() string { return s.cfg.Name }

// Cursor runs the query and streams its rows.
func (s *Postgres) Cursor() (source.Cursor, error) {
	rows, err := s.query(s.db.WithContext(s.ctx)).Rows()
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", s.cfg.Table)
	}
	return &barCursor{
		name:    s.cfg.Name,
		columns: Columns{Time: "ts", Layout: time.RFC3339Nano, Symbol: s.cfg.Symbol},
		rd:      &tableReader{db: s.db, rows: rows},
	}, nil
}

func (s *Postgres) query(db *gorm.DB) *gorm.DB {
	ts := s.cfg.TimeColumn
	q := db.Table(s.cfg.Table).
		Select(fmt.Sprintf("%s AS ts, CAST(open AS text) AS open, CAST(high AS text) AS high, "+
			"CAST(low AS text) AS low, CAST(close AS text) AS close, CAST(volume AS text) AS volume", ts))
	if s.cfg.Symbol != "" {
		q = q.Where(fmt.Sprintf("%s = ?", s.cfg.SymbolColumn), s.cfg.Symbol)
	}
	if !s.cfg.From.IsZero() {
		q = q.Where(fmt.Sprintf("%s >= ?", ts), s.cfg.From)
	}
	if !s.cfg.To.IsZero() {
		q = q.Where(fmt.Sprintf("%s <= ?", ts), s.cfg.To)
	}
	return q.Order(fmt.Sprintf("%s ASC", ts))
}

type barRow struct {
	Ts     time.Time      `gorm:"column:ts"`
	Open   sql.NullString `gorm:"column:open"`
	High   sql.NullString `gorm:"column:high"`
	Low    sql.NullString `gorm:"column:low"`
	Close  sql.NullString `gorm:"column:close"`
	Volume sql.NullString `gorm:"column:volume"`
}

type tableReader struct {
	db   *gorm.DB
	rows *sql.Rows
}

func (r *tableReader) read() (record, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	var row barRow
	if err := r.db.ScanRows(r.rows, &row); err != nil {
		return nil, errors.Wrap(err, "scan bar row")
	}
	return record{
		"ts":      row.Ts.UTC().Format(time.RFC3339Nano),
		colOpen:   row.Open.String,
		colHigh:   row.High.String,
		colLow:    row.Low.String,
		colClose:  row.Close.String,
		colVolume: row.Volume.String,
	}, nil
}

func (r *tableReader) close() error {
	return r.rows.Close()
}
