package fragment

import (
	"time"

	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/sirupsen/logrus"
)

// DefaultAssemblyTimeout bounds how long an incomplete frame is waited for.
const DefaultAssemblyTimeout = 200 * time.Millisecond

// Frame is a fully reassembled payload.
type Frame struct {
	ID         uint32
	IsKeyframe bool
	Payload    []byte
}

// Stats counts what the assembler did with the chunks it was given.
type Stats struct {
	Completed uint64
	Abandoned uint64
	Stale     uint64
	Duplicate uint64
	Malformed uint64
}

// Assembler rebuilds frames for one stream. It is not safe for concurrent
// use; the receive path owns it.
type Assembler struct {
	timeout      time.Duration
	timeProvider clock.TimeProvider

	// currentID is the id being assembled, or the last completed id while
	// active is false and hasCurrent is true.
	currentID  uint32
	hasCurrent bool
	active     bool

	total    uint16
	received int
	keyframe bool
	filled   []bool
	slots    [][]byte
	started  time.Time

	stats Stats
}

// NewAssembler creates an assembler that abandons incomplete frames after
// timeout. A non-positive timeout selects DefaultAssemblyTimeout.
func NewAssembler(timeout time.Duration) *Assembler {
	if timeout <= 0 {
		timeout = DefaultAssemblyTimeout
	}
	return &Assembler{
		timeout:      timeout,
		timeProvider: clock.DefaultTimeProvider{},
	}
}

// SetTimeProvider sets the clock used for the assembly timeout. Nil restores
// the system clock.
func (a *Assembler) SetTimeProvider(tp clock.TimeProvider) {
	a.timeProvider = clock.OrDefault(tp)
}

// Push adds one chunk. It returns the complete frame and true once every
// chunk index of the current id has been received.
func (a *Assembler) Push(chunk protocol.VideoChunk) (Frame, bool) {
	if chunk.TotalChunks == 0 || chunk.ChunkIdx >= chunk.TotalChunks {
		a.stats.Malformed++
		return Frame{}, false
	}

	a.CheckTimeout()

	if !a.hasCurrent || protocol.IsNewer(chunk.FrameID, a.currentID) {
		a.begin(chunk)
	}

	if chunk.FrameID != a.currentID {
		a.stats.Stale++
		return Frame{}, false
	}
	if !a.active {
		// Already delivered.
		a.stats.Duplicate++
		return Frame{}, false
	}
	if chunk.TotalChunks != a.total {
		a.stats.Malformed++
		return Frame{}, false
	}
	if a.filled[chunk.ChunkIdx] {
		a.stats.Duplicate++
		return Frame{}, false
	}

	a.filled[chunk.ChunkIdx] = true
	a.slots[chunk.ChunkIdx] = chunk.Payload
	a.keyframe = a.keyframe || chunk.IsKeyframe
	a.received++

	if a.received < int(a.total) {
		return Frame{}, false
	}
	return a.complete(), true
}

// CheckTimeout abandons the in-progress assembly if it has exceeded the
// timeout. The next chunk of any id then starts a fresh assembly.
func (a *Assembler) CheckTimeout() {
	if !a.active || a.timeProvider.Since(a.started) < a.timeout {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Assembler.CheckTimeout",
		"frame_id": a.currentID,
		"received": a.received,
		"total":    a.total,
	}).Warn("Abandoning incomplete frame")

	a.stats.Abandoned++
	a.reset()
	a.hasCurrent = false
}

// Stats returns a snapshot of the assembler counters.
func (a *Assembler) Stats() Stats {
	return a.stats
}

// InProgress reports whether a frame is currently being assembled.
func (a *Assembler) InProgress() bool {
	return a.active
}

func (a *Assembler) begin(chunk protocol.VideoChunk) {
	if a.active {
		logrus.WithFields(logrus.Fields{
			"function": "Assembler.begin",
			"frame_id": a.currentID,
			"next_id":  chunk.FrameID,
			"received": a.received,
			"total":    a.total,
		}).Debug("Newer frame supersedes partial assembly")
		a.stats.Abandoned++
	}

	a.reset()
	a.currentID = chunk.FrameID
	a.hasCurrent = true
	a.active = true
	a.total = chunk.TotalChunks
	a.filled = make([]bool, chunk.TotalChunks)
	a.slots = make([][]byte, chunk.TotalChunks)
	a.started = a.timeProvider.Now()
}

func (a *Assembler) complete() Frame {
	size := 0
	for _, s := range a.slots {
		size += len(s)
	}
	payload := make([]byte, 0, size)
	for _, s := range a.slots {
		payload = append(payload, s...)
	}

	frame := Frame{ID: a.currentID, IsKeyframe: a.keyframe, Payload: payload}
	a.stats.Completed++
	a.reset()
	return frame
}

// reset clears the partial state but keeps currentID as the watermark.
func (a *Assembler) reset() {
	a.active = false
	a.total = 0
	a.received = 0
	a.keyframe = false
	a.filled = nil
	a.slots = nil
}
