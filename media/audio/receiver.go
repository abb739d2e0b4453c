package audio

import (
	"time"

	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/jitter"
	"github.com/opd-ai/lanshare/protocol"
)

// Audio jitter defaults. Audio packets are small and frequent, so the
// buffer is deeper and the hold shorter than for video.
const (
	DefaultJitterDepth = 4
	DefaultJitterHold  = 20 * time.Millisecond
)

// ReceiverConfig tunes a Receiver. Zero fields take the defaults.
type ReceiverConfig struct {
	Output       Format
	Jitter       jitter.Config
	Factory      DecoderFactory
	TimeProvider clock.TimeProvider
}

// ReceiverStats aggregates the receive path counters.
type ReceiverStats struct {
	Jitter   jitter.Stats
	Decode   DecodeStats
	Playback PlaybackStats
}

// Receiver is the client's audio path. HandleChunk and Poll run on the
// tick loop; decoding runs on the DecodeWorker goroutine and playback on
// the device callback.
type Receiver struct {
	buffer   *jitter.Buffer[protocol.AudioChunk]
	decoder  *DecodeWorker
	playback *Playback
}

// NewReceiver creates an audio receive path.
func NewReceiver(cfg ReceiverConfig) (*Receiver, error) {
	if cfg.Output == (Format{}) {
		cfg.Output = DefaultOutputFormat
	}
	if err := cfg.Output.Validate(); err != nil {
		return nil, err
	}
	if cfg.Jitter.TargetDepth <= 0 {
		cfg.Jitter.TargetDepth = DefaultJitterDepth
	}
	if cfg.Jitter.MinHold <= 0 {
		cfg.Jitter.MinHold = DefaultJitterHold
	}

	buffer := jitter.New[protocol.AudioChunk](cfg.Jitter)
	buffer.SetTimeProvider(clock.OrDefault(cfg.TimeProvider))

	ring := NewRingFor(cfg.Output)
	decoder := NewDecodeWorker(cfg.Factory, cfg.Output, ring)
	decoder.SetTimeProvider(cfg.TimeProvider)
	return &Receiver{
		buffer:   buffer,
		decoder:  decoder,
		playback: NewPlayback(ring, cfg.Output),
	}, nil
}

// Start launches the decode worker.
func (r *Receiver) Start() {
	r.decoder.Start()
}

// HandleChunk buffers one received packet.
func (r *Receiver) HandleChunk(chunk protocol.AudioChunk) {
	r.buffer.Push(chunk.Sequence, chunk)
}

// Poll hands every packet the jitter buffer releases to the decoder and
// returns how many were released.
func (r *Receiver) Poll() int {
	n := 0
	for {
		_, chunk, ok := r.buffer.Pop()
		if !ok {
			return n
		}
		r.decoder.Submit(chunk)
		n++
	}
}

// Playback returns the device-facing end.
func (r *Receiver) Playback() *Playback {
	return r.playback
}

// Stats returns a snapshot of the receive path counters.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Jitter:   r.buffer.Stats(),
		Decode:   r.decoder.Stats(),
		Playback: r.playback.Stats(),
	}
}

// Stop stops the decode worker.
func (r *Receiver) Stop() {
	r.decoder.Stop()
}
