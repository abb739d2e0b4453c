// Package media holds the pipeline primitives shared by the video and audio
// streams: single-slot and bounded hand-off channels between the tick loop
// and background workers, decoder health tracking, and the per-stream
// network sender.
package media

import "sync"

// Latest is a single-slot channel whose Offer replaces any value the
// consumer has not taken yet. Producers never block, and a slow consumer
// always sees the newest value.
type Latest[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool
}

// NewLatest creates an empty slot.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{ch: make(chan T, 1)}
}

// Offer stores v, discarding a queued value if there is one. It reports
// whether a value was replaced. Offers after Close are ignored.
func (l *Latest[T]) Offer(v T) (replaced bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	select {
	case <-l.ch:
		replaced = true
	default:
	}
	// Producers are serialized by mu and the consumer only removes, so
	// the slot is free here.
	l.ch <- v
	return replaced
}

// C returns the channel the consumer receives from. It is closed by Close.
func (l *Latest[T]) C() <-chan T {
	return l.ch
}

// Close stops accepting values and closes the channel. A value still in the
// slot remains receivable.
func (l *Latest[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		l.closed = true
		close(l.ch)
	}
}
