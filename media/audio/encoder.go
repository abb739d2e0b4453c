package audio

import (
	"sync"
	"sync/atomic"

	"github.com/opd-ai/lanshare/media"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/sirupsen/logrus"
)

// Encode worker defaults.
const (
	DefaultInputQueue  = 32
	DefaultOutputQueue = 64
)

// Samples is one buffer of captured interleaved audio.
type Samples struct {
	Data       []float32
	SampleRate uint32
	Channels   int
}

// EncodeConfig tunes an EncodeWorker. Zero fields take the defaults.
type EncodeConfig struct {
	InputQueue   int
	OutputQueue  int
	MaxChunkSize int
}

// EncodedPacket is one AudioFrame datagram.
type EncodedPacket struct {
	Sequence uint32
	Datagram []byte
}

// EncodeStats counts encode worker outcomes.
type EncodeStats struct {
	Submitted     uint64
	DroppedInput  uint64
	Packets       uint64
	DroppedOutput uint64
	Invalid       uint64
}

// EncodeWorker packs captured audio into PCM16 AudioFrame datagrams on its
// own goroutine. Unlike video every buffer is encoded in order; when the
// worker falls behind the oldest buffers are dropped.
type EncodeWorker struct {
	maxChunk int

	input  *media.Queue[Samples]
	output *media.Queue[EncodedPacket]

	// Worker goroutine only.
	sequence uint32
	pcm      []byte

	submitted atomic.Uint64
	packets   atomic.Uint64
	invalid   atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewEncodeWorker creates an audio encode worker.
func NewEncodeWorker(cfg EncodeConfig) *EncodeWorker {
	if cfg.InputQueue <= 0 {
		cfg.InputQueue = DefaultInputQueue
	}
	if cfg.OutputQueue <= 0 {
		cfg.OutputQueue = DefaultOutputQueue
	}
	if cfg.MaxChunkSize <= 0 || cfg.MaxChunkSize > protocol.MaxAudioChunkPayload {
		cfg.MaxChunkSize = protocol.MaxAudioChunkPayload
	}
	return &EncodeWorker{
		maxChunk: cfg.MaxChunkSize,
		input:    media.NewQueue[Samples](cfg.InputQueue),
		output:   media.NewQueue[EncodedPacket](cfg.OutputQueue),
	}
}

// Start launches the worker goroutine.
func (w *EncodeWorker) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.run()
	})
}

// Submit queues captured samples without blocking.
func (w *EncodeWorker) Submit(s Samples) {
	w.submitted.Add(1)
	if w.input.Push(s) {
		logrus.WithFields(logrus.Fields{
			"function": "EncodeWorker.Submit",
			"queued":   w.input.Len(),
		}).Debug("Audio encoder behind, dropped oldest buffer")
	}
}

// Output delivers packets in sequence order.
func (w *EncodeWorker) Output() <-chan EncodedPacket {
	return w.output.C()
}

// Stats returns a snapshot of the counters.
func (w *EncodeWorker) Stats() EncodeStats {
	return EncodeStats{
		Submitted:     w.submitted.Load(),
		DroppedInput:  w.input.Dropped(),
		Packets:       w.packets.Load(),
		DroppedOutput: w.output.Dropped(),
		Invalid:       w.invalid.Load(),
	}
}

// Stop drains queued buffers, waits for the worker and closes Output.
func (w *EncodeWorker) Stop() {
	w.stopOnce.Do(func() {
		w.input.Close()
		w.wg.Wait()
		w.output.Close()
	})
}

func (w *EncodeWorker) run() {
	defer w.wg.Done()

	for s := range w.input.C() {
		w.encode(s)
	}
}

func (w *EncodeWorker) encode(s Samples) {
	format := Format{SampleRate: s.SampleRate, Channels: s.Channels}
	if err := format.Validate(); err != nil || len(s.Data)%s.Channels != 0 {
		w.invalid.Add(1)
		logrus.WithFields(logrus.Fields{
			"function":    "EncodeWorker.encode",
			"samples":     len(s.Data),
			"sample_rate": s.SampleRate,
			"channels":    s.Channels,
		}).Debug("Skipping invalid audio buffer")
		return
	}

	w.pcm = QuantizePCM16(w.pcm[:0], s.Data)

	// Keep whole frames in every packet.
	frameBytes := 2 * s.Channels
	chunk := w.maxChunk / frameBytes * frameBytes
	if chunk == 0 {
		w.invalid.Add(1)
		return
	}

	for off := 0; off < len(w.pcm); off += chunk {
		end := min(off+chunk, len(w.pcm))
		msg := &protocol.AudioFrame{Chunk: protocol.AudioChunk{
			Sequence:   w.sequence,
			SampleRate: s.SampleRate,
			Channels:   uint8(s.Channels),
			Codec:      protocol.AudioCodecPCM16,
			Payload:    w.pcm[off:end],
		}}
		data, err := protocol.EncodeServerMessage(msg)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "EncodeWorker.encode",
				"sequence": w.sequence,
				"error":    err.Error(),
			}).Error("Failed to encode audio packet")
			return
		}
		w.output.Push(EncodedPacket{Sequence: w.sequence, Datagram: data})
		w.packets.Add(1)
		w.sequence++
	}
}
