// Package jitter provides a small ordered holding buffer that smooths the
// arrival cadence of decoded media units before presentation.
package jitter

import (
	"sort"
	"time"

	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/sirupsen/logrus"
)

// Defaults for the video stream.
const (
	DefaultTargetDepth = 2
	DefaultMinHold     = 30 * time.Millisecond
)

// Config sizes a Buffer. Zero fields take the defaults, and MaxDepth
// defaults to twice TargetDepth.
type Config struct {
	TargetDepth int
	MinHold     time.Duration
	MaxDepth    int
}

// Stats counts units accepted, released and dropped.
type Stats struct {
	Pushed    uint64
	Released  uint64
	Late      uint64
	Duplicate uint64
	Overflow  uint64
}

type unit[T any] struct {
	id      uint32
	value   T
	arrived time.Time
}

// Buffer holds units ordered by id and releases them one at a time in
// ascending order. Ids at or behind the last released id are refused, so
// released ids strictly increase. A Buffer is owned by one goroutine.
type Buffer[T any] struct {
	targetDepth  int
	maxDepth     int
	minHold      time.Duration
	timeProvider clock.TimeProvider

	units        []unit[T]
	lastReleased uint32
	hasReleased  bool

	stats Stats
}

// New creates an empty buffer.
func New[T any](cfg Config) *Buffer[T] {
	if cfg.TargetDepth <= 0 {
		cfg.TargetDepth = DefaultTargetDepth
	}
	if cfg.MinHold <= 0 {
		cfg.MinHold = DefaultMinHold
	}
	if cfg.MaxDepth < cfg.TargetDepth {
		cfg.MaxDepth = 2 * cfg.TargetDepth
	}

	return &Buffer[T]{
		targetDepth:  cfg.TargetDepth,
		maxDepth:     cfg.MaxDepth,
		minHold:      cfg.MinHold,
		timeProvider: clock.DefaultTimeProvider{},
	}
}

// SetTimeProvider sets the clock used for the hold delay.
func (b *Buffer[T]) SetTimeProvider(tp clock.TimeProvider) {
	b.timeProvider = clock.OrDefault(tp)
}

// Push inserts a unit in id order. It returns false when the unit was
// dropped because it is at or behind the release watermark or already
// buffered. When the buffer exceeds its maximum depth the oldest unit is
// discarded.
func (b *Buffer[T]) Push(id uint32, value T) bool {
	if b.hasReleased && !protocol.IsNewer(id, b.lastReleased) {
		b.stats.Late++
		return false
	}

	pos := sort.Search(len(b.units), func(i int) bool {
		return !protocol.IsNewer(id, b.units[i].id)
	})
	if pos < len(b.units) && b.units[pos].id == id {
		b.stats.Duplicate++
		return false
	}

	b.units = append(b.units, unit[T]{})
	copy(b.units[pos+1:], b.units[pos:])
	b.units[pos] = unit[T]{id: id, value: value, arrived: b.timeProvider.Now()}
	b.stats.Pushed++

	if len(b.units) > b.maxDepth {
		dropped := b.units[0]
		b.units[0] = unit[T]{}
		b.units = b.units[1:]
		b.stats.Overflow++

		logrus.WithFields(logrus.Fields{
			"function": "Buffer.Push",
			"dropped":  dropped.id,
			"depth":    len(b.units),
		}).Debug("Jitter buffer full, dropping oldest unit")
	}
	return true
}

// Pop releases the oldest unit once the buffer has reached its target depth
// or the oldest unit has been held for the minimum delay. At most one unit
// is released per call.
func (b *Buffer[T]) Pop() (uint32, T, bool) {
	var zero T
	if len(b.units) == 0 {
		return 0, zero, false
	}

	head := b.units[0]
	if len(b.units) < b.targetDepth && b.timeProvider.Since(head.arrived) < b.minHold {
		return 0, zero, false
	}

	b.units[0] = unit[T]{}
	b.units = b.units[1:]
	b.lastReleased = head.id
	b.hasReleased = true
	b.stats.Released++
	return head.id, head.value, true
}

// Len returns the number of buffered units.
func (b *Buffer[T]) Len() int {
	return len(b.units)
}

// LastReleased returns the watermark and whether anything was released yet.
func (b *Buffer[T]) LastReleased() (uint32, bool) {
	return b.lastReleased, b.hasReleased
}

// Stats returns a snapshot of the counters.
func (b *Buffer[T]) Stats() Stats {
	return b.stats
}
