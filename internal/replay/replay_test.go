package replay

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"collator/internal/source"
	"collator/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"github.com/yanun0323/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := ParseDecimal(s)
	require.NoError(t, err)
	return d
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func drain(t *testing.T, src source.Source) ([]Bar, error) {
	t.Helper()
	cursor, err := src.Cursor()
	if err != nil {
		return nil, err
	}
	defer cursor.(io.Closer).Close()

	var bars []Bar
	for {
		ok, err := cursor.Next()
		if err != nil {
			return bars, err
		}
		if !ok {
			return bars, nil
		}
		bars = append(bars, cursor.Current().(Bar))
	}
}

func TestCSV(t *testing.T) {
	path := writeFile(t, "spy.csv", "TS,Open,High,Low,Close,Volume\n"+
		"2024-01-02T14:30:00Z,472.1,473.0,471.5,472.8,1200\n"+
		"\n"+
		"2024-01-02T14:31:00Z,472.8,473.2,472.0,473.1,\n")

	src, err := NewCSV(FileConfig{Path: path, Columns: Columns{Symbol: "SPY"}})
	require.NoError(t, err)
	assert.Equal(t, "spy", src.Name())

	bars, err := drain(t, src)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC), bars[0].Timestamp())
	assert.Equal(t, "SPY", bars[0].Symbol)
	assert.Equal(t, "spy", bars[0].Source)
	assert.Equal(t, mustDecimal(t, "472.1"), bars[0].Open)
	assert.Equal(t, mustDecimal(t, "472.8"), bars[0].Close)
	assert.Equal(t, mustDecimal(t, "1200"), bars[0].Volume)
	assert.Equal(t, decimal.Zero, bars[1].Volume)

	again, err := drain(t, src)
	require.NoError(t, err)
	assert.Equal(t, bars, again)
}

func TestCSVErrors(t *testing.T) {
	_, err := NewCSV(FileConfig{})
	require.ErrorIs(t, err, exception.ErrInvalidArgument)

	_, err = NewCSV(FileConfig{Path: filepath.Join(t.TempDir(), "missing.csv")})
	require.Error(t, err)

	missing := writeFile(t, "a.csv", "ts,open,high,low\n2024-01-02T00:00:00Z,1,1,1\n")
	src, err := NewCSV(FileConfig{Path: missing})
	require.NoError(t, err)
	_, err = src.Cursor()
	require.ErrorIs(t, err, exception.ErrMissingColumn)

	unordered := writeFile(t, "b.csv", "date,open,high,low,close\n"+
		"2024-01-03,1,1,1,1\n"+
		"2024-01-02,1,1,1,1\n")
	src, err = NewCSV(FileConfig{Path: unordered, Columns: Columns{Layout: "2006-01-02"}})
	require.NoError(t, err)
	bars, err := drain(t, src)
	require.ErrorIs(t, err, exception.ErrMalformedRow)
	assert.Len(t, bars, 1)

	badNumber := writeFile(t, "c.csv", "ts,open,high,low,close\n2024-01-02T00:00:00Z,x,1,1,1\n")
	src, err = NewCSV(FileConfig{Path: badNumber})
	require.NoError(t, err)
	_, err = drain(t, src)
	require.ErrorIs(t, err, exception.ErrMalformedRow)
}

func TestJSONL(t *testing.T) {
	path := writeFile(t, "btc.jsonl",
		`{"ts":1704067200000,"symbol":"BTC","open":"42000.5","high":42100,"low":41950,"close":"42050","volume":3.25}`+"\n"+
			"\n"+
			`{"ts":1704067260000,"symbol":"BTC","open":42050,"high":42080,"low":42000,"close":42010,"volume":null}`+"\n")

	src, err := NewJSONL(FileConfig{Name: "btc-1m", Path: path, Columns: Columns{Layout: LayoutUnixMilli}})
	require.NoError(t, err)

	bars, err := drain(t, src)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), bars[0].At)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC), bars[1].At)
	assert.Equal(t, "BTC", bars[1].Symbol)
	assert.Equal(t, mustDecimal(t, "42000.5"), bars[0].Open)
	assert.Equal(t, mustDecimal(t, "42100"), bars[0].High)
	assert.Equal(t, mustDecimal(t, "3.25"), bars[0].Volume)

	broken := writeFile(t, "broken.jsonl", `{"ts":`+"\n")
	src, err = NewJSONL(FileConfig{Path: broken})
	require.NoError(t, err)
	_, err = drain(t, src)
	require.ErrorIs(t, err, exception.ErrMalformedRow)
}

func TestXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eurusd.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"timestamp", "symbol", "open", "high", "low", "close", "volume"},
		{"2024-03-01T08:00:00Z", "EURUSD", "1.0801", "1.0810", "1.0795", "1.0805", "150"},
		{"2024-03-01T08:05:00Z", "EURUSD", "1.0805", "1.0812", "1.0800", "1.0811", "90"},
		{"2024-03-01T08:10:00Z", "EURUSD", "1.0811", "1.0815", "1.0804", "1.0806", "110"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	src, err := NewXLSX(FileConfig{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "eurusd", src.Name())

	bars, err := drain(t, src)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, "EURUSD", bars[2].Symbol)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 10, 0, 0, time.UTC), bars[2].At)
	assert.Equal(t, mustDecimal(t, "1.0806"), bars[2].Close)

	_, err = (&XLSX{cfg: FileConfig{Path: path, Sheet: "missing"}}).Cursor()
	require.Error(t, err)
}

func TestParseTime(t *testing.T) {
	at, err := parseTime("1704067200", LayoutUnix)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), at)

	at, err = parseTime("1704067200000000001", LayoutUnixNano)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 1, time.UTC), at)

	at, err = parseTime("2024-01-01T09:00:00+09:00", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), at)

	_, err = parseTime("", "")
	require.ErrorIs(t, err, exception.ErrMalformedRow)
	_, err = parseTime("yesterday", LayoutUnix)
	require.ErrorIs(t, err, exception.ErrMalformedRow)
}

func TestBarPayload(t *testing.T) {
	bar := Bar{Source: "spy", Symbol: "SPY", At: time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)}
	payload, err := bar.MarshalPayload()
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"ts":"2024-01-02T14:30:00Z"`)
	assert.Contains(t, string(payload), `"symbol":"SPY"`)
}

func TestPostgresQuery(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "postgres://reader@localhost:5432/bars?sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	src, err := NewPostgres(context.Background(), db, TableConfig{
		Table:      "market.bars_1m",
		TimeColumn: "bucket",
		Symbol:     "AAPL",
	})
	require.NoError(t, err)
	assert.Equal(t, "pg:market.bars_1m", src.Name())

	query := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []barRow
		return src.query(tx).Find(&rows)
	})
	assert.Contains(t, query, "bucket AS ts")
	assert.Contains(t, query, "CAST(close AS text) AS close")
	assert.Contains(t, query, `"market"."bars_1m"`)
	assert.Contains(t, query, "symbol = 'AAPL'")
	assert.Contains(t, query, "ORDER BY bucket ASC")

	_, err = NewPostgres(context.Background(), db, TableConfig{Table: "bars; drop table x"})
	require.ErrorIs(t, err, exception.ErrInvalidArgument)

	_, err = NewPostgres(context.Background(), db, TableConfig{
		Table: "bars",
		From:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		To:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, exception.ErrInvalidRange)

	_, err = NewPostgres(context.Background(), nil, TableConfig{Table: "bars"})
	require.ErrorIs(t, err, exception.ErrNilInstance)
}
