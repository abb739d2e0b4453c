// Package statesync paces player-state broadcasts and smooths the remote
// transforms a client displays between them.
package statesync

import "time"

// DefaultSyncPeriod is the 20 Hz state broadcast period.
const DefaultSyncPeriod = 50 * time.Millisecond

// Timer is a repeating timer driven by tick deltas. Leftover time carries
// over, so the long-run firing rate matches the period even when ticks do
// not line up with it.
type Timer struct {
	period   time.Duration
	elapsed  time.Duration
	finished int
}

// NewTimer creates a timer with the given period. A non-positive period
// selects DefaultSyncPeriod.
func NewTimer(period time.Duration) *Timer {
	if period <= 0 {
		period = DefaultSyncPeriod
	}
	return &Timer{period: period}
}

// Tick advances the timer by dt and reports whether at least one period
// elapsed. Several periods elapsing in one tick still fire once;
// TimesFinished reports how many were folded together.
func (t *Timer) Tick(dt time.Duration) bool {
	if dt < 0 {
		dt = 0
	}
	t.elapsed += dt
	t.finished = int(t.elapsed / t.period)
	t.elapsed -= time.Duration(t.finished) * t.period
	return t.finished > 0
}

// TimesFinished returns how many periods elapsed during the last Tick.
func (t *Timer) TimesFinished() int {
	return t.finished
}

// Period returns the timer period.
func (t *Timer) Period() time.Duration {
	return t.period
}

// Reset clears the accumulated time.
func (t *Timer) Reset() {
	t.elapsed = 0
	t.finished = 0
}
