package media

import (
	"sync"
	"sync/atomic"
)

// Queue is a bounded FIFO channel that makes room for new values by
// dropping the oldest. Producers never block.
type Queue[T any] struct {
	mu      sync.Mutex
	ch      chan T
	closed  bool
	dropped atomic.Uint64
}

// NewQueue creates a queue holding at most size values. Size is at least 1.
func NewQueue[T any](size int) *Queue[T] {
	if size < 1 {
		size = 1
	}
	return &Queue[T]{ch: make(chan T, size)}
}

// Push appends v. It reports whether an older value was dropped to make room.
func (q *Queue[T]) Push(v T) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	for {
		select {
		case q.ch <- v:
			return dropped
		default:
		}
		select {
		case <-q.ch:
			dropped = true
			q.dropped.Add(1)
		default:
		}
	}
}

// C returns the channel the consumer receives from.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Dropped returns how many values were discarded for lack of room.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

// Close stops accepting values and closes the channel.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
