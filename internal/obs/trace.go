package obs

import (
	"hash/fnv"
	"sync/atomic"
)

// TraceGenerator stamps recorded frames with IDs unique to one run: the high
// 32 bits identify the run, the low 32 bits count frames.
type TraceGenerator struct {
	run   uint64
	count atomic.Uint32
}

// NewTraceGenerator derives the run prefix from runID.
func NewTraceGenerator(runID string) *TraceGenerator {
	h := fnv.New32a()
	_, _ = h.Write([]byte(runID))
	return &TraceGenerator{run: uint64(h.Sum32()) << 32}
}

// Next returns the next trace ID. The counter wraps after 2^32 frames.
func (g *TraceGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return g.run | uint64(g.count.Add(1))
}

// Run returns the run prefix shared by every ID of g.
func (g *TraceGenerator) Run() uint32 {
	if g == nil {
		return 0
	}
	return uint32(g.run >> 32)
}
