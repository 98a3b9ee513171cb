package dispatcher

import "sync"

// queueItem pairs a frame with the FIFO sequence it arrived in, so
// items of equal priority drain in arrival order.
type queueItem struct {
	frame *Frame
	seq   uint64
}

// PriorityQueue is a bounded per-subscriber outbound queue. Higher
// Frame.Priority values drain first; within the same priority, items
// drain FIFO. When full, an arriving frame evicts the single
// lowest-priority, oldest item already queued if the arriving frame
// outranks it; otherwise the arriving frame itself is dropped. Both
// cases count as an overflow (SPEC_FULL.md §4.D, §8 S6).
type PriorityQueue struct {
	mu       sync.Mutex
	capacity int
	items    []queueItem
	seq      uint64

	Overflowed int
}

// NewPriorityQueue creates a queue that holds at most capacity frames.
func NewPriorityQueue(capacity int) *PriorityQueue {
	return &PriorityQueue{capacity: capacity}
}

// Enqueue adds f to the queue, returning false if f itself was
// dropped due to overflow.
func (q *PriorityQueue) Enqueue(f *Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := queueItem{frame: f, seq: q.seq}
	q.seq++

	if len(q.items) < q.capacity {
		q.insertLocked(item)
		return true
	}

	worst := q.worstIndexLocked()
	if f.Priority > q.items[worst].frame.Priority {
		q.items = append(q.items[:worst], q.items[worst+1:]...)
		q.insertLocked(item)
		q.Overflowed++
		return true
	}
	q.Overflowed++
	return false
}

// insertLocked inserts item keeping items sorted by priority
// descending, then seq ascending. Capacities are small (<=
// MaxServiceMsgCount) so a linear insert is simple and fast enough.
func (q *PriorityQueue) insertLocked(item queueItem) {
	idx := len(q.items)
	for i, existing := range q.items {
		if item.frame.Priority > existing.frame.Priority {
			idx = i
			break
		}
	}
	q.items = append(q.items, queueItem{})
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = item
}

func (q *PriorityQueue) worstIndexLocked() int {
	worst := 0
	for i := 1; i < len(q.items); i++ {
		if q.items[i].frame.Priority < q.items[worst].frame.Priority {
			worst = i
		}
	}
	return worst
}

// Dequeue removes and returns the highest-priority, oldest item.
func (q *PriorityQueue) Dequeue() (*Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	f := q.items[0].frame
	q.items = q.items[1:]
	return f, true
}

// Len reports the number of frames currently queued.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
