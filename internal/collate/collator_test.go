package collate

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sort"
	"testing"
	"time"

	"collator/internal/obs"
	"collator/internal/source"
	"collator/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tick struct {
	src string
	seq int
	at  time.Time
}

func (t tick) Timestamp() time.Time { return t.at }

func ticks(name string, at ...time.Time) *source.Slice {
	items := make([]source.Datum, 0, len(at))
	for i, ts := range at {
		items = append(items, tick{src: name, seq: i, at: ts})
	}
	return source.NewSlice(name, items...)
}

func collect(t *testing.T, c *Collator, limit int) []source.Datum {
	t.Helper()
	var out []source.Datum
	for i := 0; i < limit; i++ {
		d, err := c.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, d)
	}
	t.Fatalf("collator did not terminate within %d items", limit)
	return nil
}

func realOnly(items []source.Datum) []tick {
	var out []tick
	for _, d := range items {
		if tk, ok := d.(tick); ok {
			out = append(out, tk)
		}
	}
	return out
}

func beatsOnly(items []source.Datum) []time.Time {
	var out []time.Time
	for _, d := range items {
		if b, ok := d.(source.Beat); ok {
			out = append(out, b.At)
		}
	}
	return out
}

var day = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func at(h, m, s int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second)
}

func TestNewRejectsInvalidEpoch(t *testing.T) {
	for _, epoch := range []int{0, -1} {
		c, err := New(nil, epoch)
		require.ErrorIs(t, err, exception.ErrInvalidEpoch)
		assert.Nil(t, c)
	}
}

func TestNewRejectsNilSource(t *testing.T) {
	_, err := New([]source.Source{ticks("a", at(1, 0, 0)), nil}, 10)
	require.ErrorIs(t, err, exception.ErrNilSource)
}

func TestGlobalOrderingAndExactlyOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var sources []source.Source
	want := map[string][]time.Time{}
	total := 0
	for s := 0; s < 5; s++ {
		name := string(rune('a' + s))
		n := 20 + rng.Intn(30)
		stamps := make([]time.Time, n)
		for i := range stamps {
			stamps[i] = at(9, 0, 0).Add(time.Duration(rng.Intn(600)) * time.Second)
		}
		sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })
		sources = append(sources, ticks(name, stamps...))
		want[name] = stamps
		total += n
	}

	c, err := New(sources, 60)
	require.NoError(t, err)
	out := collect(t, c, 100000)

	for i := 1; i < len(out); i++ {
		require.False(t, out[i].Timestamp().Before(out[i-1].Timestamp()), "order broken at %d", i)
	}

	got := map[string][]tick{}
	for _, tk := range realOnly(out) {
		got[tk.src] = append(got[tk.src], tk)
	}
	count := 0
	for name, stamps := range want {
		require.Len(t, got[name], len(stamps), "source %s", name)
		for i, tk := range got[name] {
			assert.Equal(t, i, tk.seq, "source %s out of its own order", name)
			assert.Equal(t, stamps[i], tk.at)
		}
		count += len(got[name])
	}
	assert.Equal(t, total, count)
}

func TestTieBreakFollowsRegistrationOrder(t *testing.T) {
	t0 := at(9, 0, 3)
	a := ticks("a", t0, t0.Add(5*time.Second))
	b := ticks("b", t0.Add(5*time.Second), t0.Add(5*time.Second))

	c, err := New([]source.Source{a, b}, 3600)
	require.NoError(t, err)
	got := realOnly(collect(t, c, 1000))

	require.Len(t, got, 4)
	assert.Equal(t, []string{"a", "a", "b", "b"}, []string{got[0].src, got[1].src, got[2].src, got[3].src})

	// b registered first wins even when a is re-queued into the same instant later.
	c, err = New([]source.Source{ticks("b", t0.Add(5*time.Second)), ticks("a", t0, t0.Add(5*time.Second))}, 3600)
	require.NoError(t, err)
	got = realOnly(collect(t, c, 1000))
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "a"}, []string{got[0].src, got[1].src, got[2].src})
}

func TestEpochHeartbeatLosesTiesToDataSources(t *testing.T) {
	c, err := New([]source.Source{ticks("a", at(0, 0, 0))}, 10)
	require.NoError(t, err)

	first, err := c.Next()
	require.NoError(t, err)
	require.IsType(t, tick{}, first)

	second, err := c.Next()
	require.NoError(t, err)
	require.IsType(t, source.Beat{}, second)
	assert.Equal(t, at(0, 0, 0), second.Timestamp())
}

func TestHeartbeatDedup(t *testing.T) {
	build := func(extra ...source.Source) []source.Datum {
		srcs := append([]source.Source{
			ticks("a", at(9, 0, 0), at(9, 0, 30)),
			ticks("b", at(9, 0, 10)),
		}, extra...)
		c, err := New(srcs, 60)
		require.NoError(t, err)
		return collect(t, c, 10000)
	}

	plain := build()
	explicit, err := source.NewHeartbeat(at(8, 59, 59), source.Unbounded, 60)
	require.NoError(t, err)
	withHB := build(explicit)

	assert.Equal(t, realOnly(plain), realOnly(withHB))
	assert.Equal(t, beatsOnly(plain), beatsOnly(withHB))
	assert.Equal(t, plain, withHB)

	other, err := source.NewHeartbeat(at(9, 0, 0), at(9, 0, 40), 20)
	require.NoError(t, err)
	c, err := New([]source.Source{ticks("a", at(9, 0, 0)), other}, 60)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Sources())
}

func TestEpochAnchoredToMidnightOfEarliestItem(t *testing.T) {
	c, err := New([]source.Source{
		ticks("late", at(13, 45, 7)),
		ticks("early", at(9, 12, 33)),
	}, 60)
	require.NoError(t, err)
	assert.Equal(t, day, c.EpochStart())

	beats := beatsOnly(collect(t, c, 10000))
	require.NotEmpty(t, beats)
	assert.Equal(t, day, beats[0])
	assert.NotEqual(t, at(9, 12, 33), beats[0])
}

func TestEpochAnchorIgnoresTimezone(t *testing.T) {
	tz := time.FixedZone("UTC+8", 8*3600)
	local := time.Date(2024, 3, 2, 3, 0, 0, 0, tz) // 2024-03-01T19:00:00Z
	c, err := New([]source.Source{ticks("a", local)}, 60)
	require.NoError(t, err)
	assert.Equal(t, day, c.EpochStart())
}

func TestLiveModeNeverTerminates(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 30, 15, 0, time.UTC)
	c, err := New(nil, 5, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	assert.True(t, c.Live())
	assert.Equal(t, now, c.EpochStart())

	var last time.Time
	for i := 0; i < 20000; i++ {
		d, err := c.Next()
		require.NoError(t, err)
		last = d.Timestamp()
	}
	assert.Equal(t, now.Add(19999*5*time.Second), last)
}

func TestLiveModeWhenOnlyRedundantHeartbeatSupplied(t *testing.T) {
	hb, err := source.NewHeartbeat(at(0, 0, 0), source.Unbounded, 30)
	require.NoError(t, err)
	c, err := New([]source.Source{hb}, 30)
	require.NoError(t, err)
	assert.True(t, c.Live())
	assert.Equal(t, 1, c.Sources())
}

func TestTerminationCountTwoSources(t *testing.T) {
	t0 := at(9, 0, 0)
	a := ticks("a", t0, t0.Add(10*time.Second))
	b := ticks("b", t0.Add(5*time.Second))

	c, err := New([]source.Source{a, b}, 10)
	require.NoError(t, err)
	assert.False(t, c.Live())
	out := collect(t, c, 100000)

	got := realOnly(out)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].src)
	assert.Equal(t, t0, got[0].at)
	assert.Equal(t, "b", got[1].src)
	assert.Equal(t, "a", got[2].src)
	assert.Equal(t, t0.Add(10*time.Second), got[2].at)

	// beats at or before the last real item, ties included
	beats := 9*360 + 2
	assert.Len(t, out, 3+beats)
	assert.Equal(t, t0.Add(10*time.Second), out[len(out)-1].Timestamp())
	assert.IsType(t, source.Beat{}, out[len(out)-1])
	assert.Equal(t, 2, c.Exhausted())

	_, err = c.Next()
	assert.Equal(t, io.EOF, err)
}

func TestMinuteEpochScenario(t *testing.T) {
	a := ticks("a", at(9, 0, 0), at(9, 0, 30), at(9, 1, 15))
	c, err := New([]source.Source{a}, 60)
	require.NoError(t, err)
	out := collect(t, c, 100000)

	for i := 1; i < len(out); i++ {
		require.False(t, out[i].Timestamp().Before(out[i-1].Timestamp()))
	}
	beats := beatsOnly(out)
	require.Len(t, beats, 543)
	assert.Equal(t, at(0, 0, 0), beats[0])
	assert.Equal(t, at(0, 1, 0), beats[1])
	assert.Equal(t, at(9, 2, 0), beats[len(beats)-1])

	tail := out[len(out)-6:]
	assert.Equal(t, at(9, 0, 0), tail[0].Timestamp())
	assert.IsType(t, tick{}, tail[0])
	assert.IsType(t, source.Beat{}, tail[1])
	assert.IsType(t, tick{}, tail[2])
	assert.Equal(t, at(9, 1, 0), tail[3].Timestamp())
	assert.Equal(t, at(9, 1, 15), tail[4].Timestamp())
	assert.Equal(t, at(9, 2, 0), tail[5].Timestamp())
}

func TestEmptySourceCountsAsExhausted(t *testing.T) {
	c, err := New([]source.Source{ticks("empty"), ticks("b", at(9, 0, 0))}, 3600)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Exhausted())

	out := collect(t, c, 1000)
	assert.Len(t, realOnly(out), 1)
}

func TestAllSourcesEmptyAnchorsAtNow(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	c, err := New([]source.Source{ticks("empty")}, 60, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	assert.False(t, c.Live())
	assert.Equal(t, now, c.EpochStart())

	out := collect(t, c, 10)
	require.Len(t, out, 1)
	assert.Equal(t, now, out[0].Timestamp())
}

type flakySource struct {
	failAt  int
	err     error
	openErr error
	closed  *int
}

func (f *flakySource) Name() string { return "flaky" }

func (f *flakySource) Cursor() (source.Cursor, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &flakyCursor{src: f}, nil
}

type flakyCursor struct {
	src *flakySource
	n   int
}

func (c *flakyCursor) Next() (bool, error) {
	c.n++
	if c.n == c.src.failAt {
		return false, c.src.err
	}
	return true, nil
}

func (c *flakyCursor) Current() source.Datum {
	return tick{src: "flaky", seq: c.n, at: at(0, 0, c.n)}
}

func (c *flakyCursor) Close() error {
	if c.src.closed != nil {
		*c.src.closed++
	}
	return nil
}

func TestAdvancementFailureIsStickyAndFailFast(t *testing.T) {
	cause := errors.New("disk gone")
	c, err := New([]source.Source{&flakySource{failAt: 3, err: cause}}, 3600)
	require.NoError(t, err)

	var got []source.Datum
	var failure error
	for i := 0; i < 10; i++ {
		d, err := c.Next()
		if err != nil {
			failure = err
			break
		}
		got = append(got, d)
	}
	require.Error(t, failure)
	assert.ErrorIs(t, failure, exception.ErrSourceFailed)
	assert.ErrorIs(t, failure, cause)
	assert.Contains(t, failure.Error(), "flaky")

	_, again := c.Next()
	assert.Equal(t, failure, again)
	_, ok := c.Peek()
	assert.False(t, ok)
}

func TestConstructionFailureClosesOpenedCursors(t *testing.T) {
	closed := 0
	healthy := &flakySource{closed: &closed}
	broken := &flakySource{failAt: 1, err: errors.New("bad header"), closed: &closed}

	c, err := New([]source.Source{healthy, broken}, 60)
	require.ErrorIs(t, err, exception.ErrSourceFailed)
	assert.Nil(t, c)
	assert.Equal(t, 2, closed)

	closed = 0
	_, err = New([]source.Source{healthy, &flakySource{openErr: errors.New("no file")}}, 60)
	require.Error(t, err)
	assert.Equal(t, 1, closed)
}

func TestCloseReleasesCursors(t *testing.T) {
	closed := 0
	c, err := New([]source.Source{&flakySource{closed: &closed}}, 60)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, closed)

	_, err = c.Next()
	assert.ErrorIs(t, err, exception.ErrClosed)
}

func TestRunStopsAtEOF(t *testing.T) {
	c, err := New([]source.Source{ticks("a", at(0, 0, 1), at(0, 0, 2))}, 3600)
	require.NoError(t, err)

	var got []source.Datum
	err = c.Run(context.Background(), func(d source.Datum) error {
		got = append(got, d)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, realOnly(got), 2)
	assert.Len(t, beatsOnly(got), 2)
}

func TestRunHonoursContextAndHandlerErrors(t *testing.T) {
	c, err := New(nil, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err = c.Run(ctx, func(source.Datum) error {
		n++
		if n == 100 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 100, n)

	stop := errors.New("stop")
	err = c.Run(context.Background(), func(source.Datum) error { return stop })
	require.ErrorIs(t, err, stop)

	require.ErrorIs(t, c.Run(context.Background(), nil), exception.ErrNilInstance)
}

func TestPeekMatchesNext(t *testing.T) {
	c, err := New([]source.Source{ticks("a", at(0, 0, 30))}, 60)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ts, ok := c.Peek()
		require.True(t, ok)
		d, err := c.Next()
		require.NoError(t, err)
		assert.Equal(t, ts, d.Timestamp())
	}
	_, ok := c.Peek()
	assert.False(t, ok)
}

func TestMetricsObserveMerge(t *testing.T) {
	m := obs.NewMetrics()
	c, err := New([]source.Source{ticks("a", at(0, 0, 30))}, 60, WithMetrics(m))
	require.NoError(t, err)
	out := collect(t, c, 100)

	snap := m.Snapshot()
	assert.Equal(t, uint64(len(out)), snap.Emitted)
	assert.Equal(t, uint64(2), snap.Heartbeats)
	assert.Equal(t, uint64(1), snap.Exhausted)
	assert.Equal(t, at(0, 1, 0), snap.LastTimestamp)
}

type wrappedHeartbeat struct {
	inner *source.Heartbeat
}

func (w wrappedHeartbeat) Cursor() (source.Cursor, error) { return w.inner.Cursor() }
func (w wrappedHeartbeat) Spacing() time.Duration { return w.inner.Spacing() }

func TestHeartbeatDedupSeesThroughWrappers(t *testing.T) {
	hb, err := source.NewHeartbeat(at(0, 0, 0), source.Unbounded, 60)
	require.NoError(t, err)

	c, err := New([]source.Source{wrappedHeartbeat{inner: hb}}, 60)
	require.NoError(t, err)
	assert.True(t, c.Live())
	assert.Equal(t, 1, c.Sources())
}

type hollowSource struct {
	emptyAt int
}

func (s hollowSource) Cursor() (source.Cursor, error) {
	return &hollowCursor{emptyAt: s.emptyAt}, nil
}

type hollowCursor struct {
	n       int
	emptyAt int
}

func (c *hollowCursor) Next() (bool, error) {
	c.n++
	return true, nil
}

func (c *hollowCursor) Current() source.Datum {
	if c.n >= c.emptyAt {
		return nil
	}
	return tick{src: "hollow", seq: c.n, at: at(9, 0, c.n)}
}

func TestNilCurrentFailsSource(t *testing.T) {
	_, err := New([]source.Source{hollowSource{emptyAt: 1}}, 60)
	require.ErrorIs(t, err, exception.ErrSourceFailed)
	require.ErrorIs(t, err, exception.ErrNilItem)

	c, err := New([]source.Source{hollowSource{emptyAt: 2}}, 60)
	require.NoError(t, err)

	var failure error
	for i := 0; i < 2000; i++ {
		if _, err := c.Next(); err != nil {
			failure = err
			break
		}
	}
	require.ErrorIs(t, failure, exception.ErrSourceFailed)
	require.ErrorIs(t, failure, exception.ErrNilItem)
	_, again := c.Next()
	assert.Equal(t, failure, again)
}
