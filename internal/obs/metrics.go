package obs

import (
	"sync/atomic"
	"time"
)

// Metrics collects collator counters and cursor advance latency.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	emitted    uint64
	heartbeats uint64
	exhausted  uint64
	failures   uint64
	lastTsNano int64

	advanceLatency LatencyStats

	exporter *Exporter
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	Emitted        uint64
	Heartbeats     uint64
	Exhausted      uint64
	Failures       uint64
	LastTimestamp  time.Time
	AdvanceLatency LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// WithExporter mirrors every observation into a Prometheus exporter.
func (m *Metrics) WithExporter(e *Exporter) *Metrics {
	if m != nil {
		m.exporter = e
	}
	return m
}

// ObserveEmit records one datum handed to the caller.
func (m *Metrics) ObserveEmit(source string, heartbeat bool, ts time.Time) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.emitted, 1)
	if heartbeat {
		atomic.AddUint64(&m.heartbeats, 1)
	}
	atomic.StoreInt64(&m.lastTsNano, ts.UnixNano())
	m.exporter.emit(source, ts)
}

// ObserveExhausted records a source reaching the end of its sequence.
func (m *Metrics) ObserveExhausted(source string) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.exhausted, 1)
	m.exporter.exhaust(source)
}

// ObserveFailure records a cursor advancement error.
func (m *Metrics) ObserveFailure(source string) {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.failures, 1)
	m.exporter.fail(source)
}

// ObserveAdvance measures how long a cursor advancement took.
func (m *Metrics) ObserveAdvance(d time.Duration) {
	if m == nil {
		return
	}
	m.advanceLatency.Observe(d)
	m.exporter.advance(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	var last time.Time
	if ns := atomic.LoadInt64(&m.lastTsNano); ns != 0 {
		last = time.Unix(0, ns).UTC()
	}
	return Snapshot{
		Emitted:        atomic.LoadUint64(&m.emitted),
		Heartbeats:     atomic.LoadUint64(&m.heartbeats),
		Exhausted:      atomic.LoadUint64(&m.exhausted),
		Failures:       atomic.LoadUint64(&m.failures),
		LastTimestamp:  last,
		AdvanceLatency: m.advanceLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(atomic.LoadUint64(&l.min)),
		Max:   time.Duration(atomic.LoadUint64(&l.max)),
		Avg:   time.Duration(atomic.LoadUint64(&l.sum) / count),
	}
}
