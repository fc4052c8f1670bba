package collate

import (
	"container/heap"
	"time"
)

// pending is the source whose current item is due at `at`.
type pending struct {
	at    time.Time
	index int
}

// readyQueue orders pending sources by timestamp, then by registration index.
// Each non-exhausted source has exactly one entry.
type readyQueue struct {
	h pendingHeap
}

func (q *readyQueue) push(at time.Time, index int) {
	heap.Push(&q.h, pending{at: at, index: index})
}

func (q *readyQueue) pop() (pending, bool) {
	if len(q.h) == 0 {
		return pending{}, false
	}
	return heap.Pop(&q.h).(pending), true
}

func (q *readyQueue) peek() (pending, bool) {
	if len(q.h) == 0 {
		return pending{}, false
	}
	return q.h[0], true
}

func (q *readyQueue) len() int {
	return len(q.h)
}

type pendingHeap []pending

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if !h[i].at.Equal(h[j].at) {
		return h[i].at.Before(h[j].at)
	}
	return h[i].index < h[j].index
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) {
	*h = append(*h, x.(pending))
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
