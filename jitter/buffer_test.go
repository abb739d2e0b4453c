package jitter

import (
	"math/rand"
	"testing"
	"time"

	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuffer(cfg Config) (*Buffer[string], *clock.MockTimeProvider) {
	mock := clock.NewMockTimeProvider(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	b := New[string](cfg)
	b.SetTimeProvider(mock)
	return b, mock
}

func TestPopWaitsForDepthOrHold(t *testing.T) {
	b, mock := newTestBuffer(Config{})

	require.True(t, b.Push(1, "a"))
	_, _, ok := b.Pop()
	assert.False(t, ok, "one unit below target depth must wait for the hold delay")

	mock.Advance(DefaultMinHold)
	id, v, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, uint32(1), id)
	assert.Equal(t, "a", v)

	b.Push(3, "c")
	b.Push(2, "b")
	id, _, ok = b.Pop()
	require.True(t, ok, "target depth reached")
	assert.Equal(t, uint32(2), id)

	_, _, ok = b.Pop()
	assert.False(t, ok, "exactly one release per poll once below target")
}

func TestLateAndDuplicateUnitsAreDropped(t *testing.T) {
	b, mock := newTestBuffer(Config{})

	b.Push(5, "e")
	mock.Advance(time.Second)
	id, _, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, uint32(5), id)

	assert.False(t, b.Push(5, "again"))
	assert.False(t, b.Push(4, "older"))
	assert.True(t, b.Push(7, "g"))
	assert.False(t, b.Push(7, "dup"))

	stats := b.Stats()
	assert.Equal(t, uint64(2), stats.Late)
	assert.Equal(t, uint64(1), stats.Duplicate)
}

func TestOverflowDropsOldest(t *testing.T) {
	b, _ := newTestBuffer(Config{TargetDepth: 2})

	for id := uint32(1); id <= 5; id++ {
		b.Push(id, "x")
	}
	assert.Equal(t, 4, b.Len())
	assert.Equal(t, uint64(1), b.Stats().Overflow)

	id, _, ok := b.Pop()
	require.True(t, ok)
	assert.Equal(t, uint32(2), id)
}

func TestOrderingAcrossWraparound(t *testing.T) {
	b, mock := newTestBuffer(Config{TargetDepth: 1})

	b.Push(1, "after")
	b.Push(0xFFFFFFFF, "before")
	mock.Advance(time.Second)

	id, _, _ := b.Pop()
	assert.Equal(t, uint32(0xFFFFFFFF), id)
	id, _, _ = b.Pop()
	assert.Equal(t, uint32(1), id)
}

func TestReleasedIDsStrictlyIncrease(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		b, mock := newTestBuffer(Config{TargetDepth: 1 + rng.Intn(4), MinHold: 20 * time.Millisecond})
		base := uint32(0xFFFFFF00) + uint32(trial)

		var released []uint32
		for step := 0; step < 500; step++ {
			// Ids wander forward with frequent rewinds and repeats.
			id := base + uint32(step/3) - uint32(rng.Intn(8))
			b.Push(id, "u")

			mock.Advance(time.Duration(rng.Intn(15)) * time.Millisecond)
			if id, _, ok := b.Pop(); ok {
				released = append(released, id)
			}
		}

		for i := 1; i < len(released); i++ {
			assert.True(t, protocol.IsNewer(released[i], released[i-1]),
				"release %d (%d) not after %d", i, released[i], released[i-1])
		}
		last, ok := b.LastReleased()
		if len(released) > 0 {
			assert.True(t, ok)
			assert.Equal(t, released[len(released)-1], last)
		}
	}
}
