package buffer

import (
	"context"
	"sync"
	"time"
)

// DefaultCapacity is the queue size used when none is configured.
const DefaultCapacity = 1000

// Queue is a bounded FIFO ring. Push never blocks: when the ring is full the
// oldest item is overwritten.
type Queue[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int
	size    int
	dropped uint64
	pushed  uint64
	ready   chan struct{}
}

// New returns a queue holding at most capacity items.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{
		items: make([]T, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Push appends item, evicting the oldest entry if the queue is full. It
// reports whether an entry was evicted.
func (q *Queue[T]) Push(item T) (evicted bool) {
	q.mu.Lock()
	capacity := len(q.items)
	if q.size == capacity {
		var zero T
		q.items[q.head] = zero
		q.head = (q.head + 1) % capacity
		q.size--
		q.dropped++
		evicted = true
	}
	q.items[(q.head+q.size)%capacity] = item
	q.size++
	q.pushed++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return evicted
}

// PopBatch removes and returns up to max items, oldest first.
func (q *Queue[T]) PopBatch(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.size
	if max > 0 && n > max {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]T, n)
	var zero T
	capacity := len(q.items)
	for i := 0; i < n; i++ {
		out[i] = q.items[q.head]
		q.items[q.head] = zero
		q.head = (q.head + 1) % capacity
	}
	q.size -= n
	return out
}

// Ready is signalled after a Push. A receive does not guarantee the queue is
// still non-empty.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Wait blocks until an item is pushed, d elapses or ctx is done.
func (q *Queue[T]) Wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-q.ready:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.items)
}

// Dropped returns how many items were evicted by overflow.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Pushed returns how many items were ever enqueued.
func (q *Queue[T]) Pushed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushed
}
