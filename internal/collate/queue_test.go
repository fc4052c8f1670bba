package collate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyQueueOrdersByTimestampThenIndex(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var q readyQueue
	q.push(base.Add(2*time.Second), 0)
	q.push(base.Add(time.Second), 3)
	q.push(base.Add(time.Second), 1)
	q.push(base, 2)
	require.Equal(t, 4, q.len())

	head, ok := q.peek()
	require.True(t, ok)
	assert.Equal(t, 2, head.index)

	var order []int
	for {
		p, ok := q.pop()
		if !ok {
			break
		}
		order = append(order, p.index)
	}
	assert.Equal(t, []int{2, 1, 3, 0}, order)
	assert.Equal(t, 0, q.len())
}

func TestReadyQueueComparesInstantsAcrossZones(t *testing.T) {
	utc := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tokyo := utc.In(time.FixedZone("JST", 9*3600))

	var q readyQueue
	q.push(tokyo, 1)
	q.push(utc, 0)

	first, _ := q.pop()
	second, _ := q.pop()
	assert.Equal(t, 0, first.index)
	assert.Equal(t, 1, second.index)
}
