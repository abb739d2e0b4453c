package statesync

import (
	"math"
	"testing"
	"time"

	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerFiresEachPeriod(t *testing.T) {
	timer := NewTimer(50 * time.Millisecond)

	assert.False(t, timer.Tick(30*time.Millisecond))
	assert.True(t, timer.Tick(30*time.Millisecond))
	assert.Equal(t, 1, timer.TimesFinished())

	// 10 ms carried over.
	assert.False(t, timer.Tick(30*time.Millisecond))
	assert.True(t, timer.Tick(10*time.Millisecond))

	assert.True(t, timer.Tick(120*time.Millisecond))
	assert.Equal(t, 2, timer.TimesFinished())
}

func TestTimerFiringRate(t *testing.T) {
	timer := NewTimer(0)
	fired := 0
	for i := 0; i < 1000; i++ {
		if timer.Tick(16 * time.Millisecond) {
			fired += timer.TimesFinished()
		}
	}
	assert.Equal(t, 320, fired)
}

func newTestInterpolator() (*Interpolator, *clock.MockTimeProvider) {
	mock := clock.NewMockTimeProvider(time.Unix(0, 0))
	in := NewInterpolator(InterpolatorConfig{})
	in.SetTimeProvider(mock)
	return in, mock
}

func TestFirstTargetSnapsAndLaterTargetsBlend(t *testing.T) {
	in, _ := newTestInterpolator()

	in.SetTarget(protocol.PlayerState{ID: 1, Position: [3]float32{0, 0, 0}})
	p, ok := in.Player(1)
	require.True(t, ok)
	assert.Equal(t, p.Target, p.Displayed)

	in.SetTarget(protocol.PlayerState{ID: 1, Position: [3]float32{10, 0, 0}})
	in.Step(100 * time.Millisecond)

	p, _ = in.Player(1)
	assert.InDelta(t, 8.5, p.Displayed.Position[0], 0.01)
}

func TestBlendIsFrameRateIndependent(t *testing.T) {
	a, _ := newTestInterpolator()
	b, _ := newTestInterpolator()
	for _, in := range []*Interpolator{a, b} {
		in.SetTarget(protocol.PlayerState{ID: 1})
		in.SetTarget(protocol.PlayerState{ID: 1, Position: [3]float32{1, 0, 0}, Pitch: 1})
	}

	a.Step(60 * time.Millisecond)
	for i := 0; i < 6; i++ {
		b.Step(10 * time.Millisecond)
	}

	pa, _ := a.Player(1)
	pb, _ := b.Player(1)
	assert.InDelta(t, pa.Displayed.Position[0], pb.Displayed.Position[0], 1e-4)
	assert.InDelta(t, pa.Displayed.Pitch, pb.Displayed.Pitch, 1e-4)
}

func TestYawTakesShortestArc(t *testing.T) {
	in, _ := newTestInterpolator()

	in.SetTarget(protocol.PlayerState{ID: 2, Yaw: 3.0})
	in.SetTarget(protocol.PlayerState{ID: 2, Yaw: -3.0})
	in.Step(10 * time.Millisecond)

	p, _ := in.Player(2)
	assert.Greater(t, p.Displayed.Yaw, float32(3.0), "should cross pi rather than sweep through zero")

	for i := 0; i < 200; i++ {
		in.Step(10 * time.Millisecond)
	}
	p, _ = in.Player(2)
	diff := math.Remainder(float64(p.Displayed.Yaw-p.Target.Yaw), 2*math.Pi)
	assert.InDelta(t, 0, diff, 1e-4)
}

func TestSyncSuppressesEchoAndRemovesAbsent(t *testing.T) {
	in, _ := newTestInterpolator()
	const self = protocol.PlayerID(2)

	removed := in.Sync([]protocol.PlayerState{
		protocol.DefaultSpawn(protocol.HostPlayerID),
		{ID: 1},
		{ID: self, Position: [3]float32{5, 5, 5}},
	}, self)
	assert.Empty(t, removed)

	players := in.Players()
	require.Len(t, players, 2)
	for _, p := range players {
		assert.NotEqual(t, self, p.Target.ID)
	}

	removed = in.Sync([]protocol.PlayerState{{ID: self}, {ID: 1}}, self)
	assert.Equal(t, []protocol.PlayerID{protocol.HostPlayerID}, removed)
	_, ok := in.Player(self)
	assert.False(t, ok)
	assert.Equal(t, 1, in.Len())
}

func TestMovementFlagDecays(t *testing.T) {
	in, mock := newTestInterpolator()

	in.SetTarget(protocol.PlayerState{ID: 1})
	in.SetTarget(protocol.PlayerState{ID: 1, Position: [3]float32{0.005, 0, 0}})
	p, _ := in.Player(1)
	assert.False(t, p.Moving, "displacement under the threshold")

	in.SetTarget(protocol.PlayerState{ID: 1, Position: [3]float32{1, 0, 0}})
	p, _ = in.Player(1)
	assert.True(t, p.Moving)

	mock.Advance(100 * time.Millisecond)
	in.Step(100 * time.Millisecond)
	p, _ = in.Player(1)
	assert.True(t, p.Moving)

	mock.Advance(60 * time.Millisecond)
	in.Step(60 * time.Millisecond)
	p, _ = in.Player(1)
	assert.False(t, p.Moving)
}
