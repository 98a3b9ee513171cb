package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestQueueOverflowEvictsLowestPriority is the literal S6 scenario:
// capacity 2, enqueue low, low, high; drain order is high, low, and
// exactly one low counts as overflow.
func TestQueueOverflowEvictsLowestPriority(t *testing.T) {
	q := NewPriorityQueue(2)

	low1 := &Frame{MessageID: 1, Priority: PriorityLow, Payload: []byte("low1")}
	low2 := &Frame{MessageID: 1, Priority: PriorityLow, Payload: []byte("low2")}
	high := &Frame{MessageID: 1, Priority: PriorityHigh, Payload: []byte("high")}

	require.True(t, q.Enqueue(low1))
	require.True(t, q.Enqueue(low2))
	require.True(t, q.Enqueue(high))

	require.Equal(t, 1, q.Overflowed)
	require.Equal(t, 2, q.Len())

	f1, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, PriorityHigh, f1.Priority)

	f2, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, PriorityLow, f2.Priority)
	require.Equal(t, "low2", string(f2.Payload))

	_, ok = q.Dequeue()
	require.False(t, ok)
}

func TestQueueFIFOWithinSamePriority(t *testing.T) {
	q := NewPriorityQueue(3)
	for i := 0; i < 3; i++ {
		q.Enqueue(&Frame{MessageID: uint32(i)})
	}
	for i := 0; i < 3; i++ {
		f, ok := q.Dequeue()
		require.True(t, ok)
		require.Equal(t, uint32(i), f.MessageID)
	}
}

func TestQueueDropsLowerPriorityArrivalWhenFull(t *testing.T) {
	q := NewPriorityQueue(1)
	require.True(t, q.Enqueue(&Frame{Priority: PriorityHigh}))
	require.False(t, q.Enqueue(&Frame{Priority: PriorityLow}))
	require.Equal(t, 1, q.Overflowed)
	require.Equal(t, 1, q.Len())
}
