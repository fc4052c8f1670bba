package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"collator/internal/codec"
	"collator/internal/pacer"
	"collator/internal/recorder"
	"collator/internal/replay"
	"collator/internal/schema"
	"collator/internal/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	assert.Equal(t, "beat spacing=10s", describe(source.Beat{Spacing: 10 * time.Second}))

	md := schema.MarketData{SymbolID: 3, Kind: schema.MarketDataTrade, Price: 101, Size: 2}
	ev := schema.Event{
		Header:  schema.NewHeader(schema.EventMarketData, 1, 9, 1, 1),
		Payload: codec.EncodeMarketData(nil, md),
	}
	assert.True(t, strings.HasPrefix(describe(ev), "md seq=9 symbol=3 kind=1 price=101 size=2"))

	bar := replay.Bar{Symbol: "SPY", At: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	assert.True(t, strings.HasPrefix(describe(bar), "bar {"))
}

func TestSinkRecordsAndStopsAtLimit(t *testing.T) {
	dir := t.TempDir()
	writer, err := recorder.NewWriter(recorder.WriterConfig{Dir: dir})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, writer.Start(ctx))

	pace, err := pacer.New(0, 0)
	require.NoError(t, err)

	var out bytes.Buffer
	s := &sink{out: &out, pace: pace, writer: writer, limit: 2}

	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.handle(ctx, source.Beat{At: base, Spacing: time.Minute}))
	require.ErrorIs(t, s.handle(ctx, source.Beat{At: base.Add(time.Minute), Spacing: time.Minute}), errLimitReached)
	require.NoError(t, writer.Close())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "000001 2024-01-02T00:00:00.000000000Z beat spacing=1m0s", lines[0])

	replayed, err := recorder.NewReplay(recorder.ReplayConfig{Dir: dir})
	require.NoError(t, err)
	cursor, err := replayed.Cursor()
	require.NoError(t, err)

	var seqs []uint64
	for {
		ok, err := cursor.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		ev := cursor.Current().(schema.Event)
		assert.Equal(t, schema.EventHeartbeat, ev.Header.Type)
		seqs = append(seqs, ev.Header.Seq)
	}
	assert.Equal(t, []uint64{1, 2}, seqs)
}
