package media

import (
	"time"

	"github.com/opd-ai/lanshare/internal/clock"
)

// Defaults for decoder self-monitoring.
const (
	DefaultFailureThreshold = 8
	DefaultStallTimeout     = 3 * time.Second
)

// Health tracks decode outcomes and decides when a decoder should be
// discarded and recreated. It is owned by the decode worker.
type Health struct {
	threshold    int
	stall        time.Duration
	timeProvider clock.TimeProvider

	consecutive int
	lastSuccess time.Time
	lastInput   time.Time
}

// NewHealth creates a monitor that trips after threshold consecutive
// failures or after stall without a success. Non-positive values select
// the defaults.
func NewHealth(threshold int, stall time.Duration, tp clock.TimeProvider) *Health {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if stall <= 0 {
		stall = DefaultStallTimeout
	}
	h := &Health{threshold: threshold, stall: stall, timeProvider: clock.OrDefault(tp)}
	h.Reset()
	return h
}

// RecordInput marks that a unit arrived for decoding. After an idle gap of
// at least the stall limit the stall window restarts, so a stream that was
// quiet is not treated as stuck.
func (h *Health) RecordInput() {
	now := h.timeProvider.Now()
	if now.Sub(h.lastInput) >= h.stall {
		h.lastSuccess = now
	}
	h.lastInput = now
}

// RecordSuccess clears the failure streak.
func (h *Health) RecordSuccess() {
	h.consecutive = 0
	h.lastSuccess = h.timeProvider.Now()
}

// RecordFailure extends the failure streak.
func (h *Health) RecordFailure() {
	h.consecutive++
}

// Unhealthy reports whether the failure streak or the time since the last
// success has crossed its limit.
func (h *Health) Unhealthy() bool {
	return h.consecutive >= h.threshold || h.timeProvider.Since(h.lastSuccess) >= h.stall
}

// ConsecutiveFailures returns the current failure streak.
func (h *Health) ConsecutiveFailures() int {
	return h.consecutive
}

// Reset starts a fresh observation window, as after recreating a decoder.
func (h *Health) Reset() {
	now := h.timeProvider.Now()
	h.consecutive = 0
	h.lastSuccess = now
	h.lastInput = now
}
