package video

import (
	"time"

	"github.com/opd-ai/lanshare/fragment"
	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/jitter"
	"github.com/opd-ai/lanshare/protocol"
)

// Sink presents decoded frames. It is called from the tick loop.
type Sink interface {
	PresentFrame(rgba []byte, width, height int)
}

// ReceiverConfig tunes a Receiver. Zero fields take the defaults.
type ReceiverConfig struct {
	AssemblyTimeout time.Duration
	Jitter          jitter.Config
	Decode          DecodeConfig
	TimeProvider    clock.TimeProvider
}

// ReceiverStats aggregates the receive path counters.
type ReceiverStats struct {
	Assembly  fragment.Stats
	Decode    DecodeStats
	Jitter    jitter.Stats
	Presented uint64
}

// Receiver is the client's video path. Chunk handling and Poll run on the
// tick loop; decoding runs on the DecodeWorker goroutine.
type Receiver struct {
	assembler *fragment.Assembler
	decoder   *DecodeWorker
	buffer    *jitter.Buffer[DecodedFrame]
	sink      Sink
	presented uint64
}

// NewReceiver creates a receive path that decodes with factory and
// presents to sink. Call Start before feeding chunks.
func NewReceiver(factory DecoderFactory, sink Sink, cfg ReceiverConfig) *Receiver {
	tp := clock.OrDefault(cfg.TimeProvider)

	assembler := fragment.NewAssembler(cfg.AssemblyTimeout)
	assembler.SetTimeProvider(tp)

	buffer := jitter.New[DecodedFrame](cfg.Jitter)
	buffer.SetTimeProvider(tp)

	if cfg.Decode.TimeProvider == nil {
		cfg.Decode.TimeProvider = tp
	}

	return &Receiver{
		assembler: assembler,
		decoder:   NewDecodeWorker(factory, cfg.Decode),
		buffer:    buffer,
		sink:      sink,
	}
}

// Start launches the decode worker.
func (r *Receiver) Start() {
	r.decoder.Start()
}

// HandleCodecInfo forwards a stream announcement to the decoder.
func (r *Receiver) HandleCodecInfo(info protocol.VideoCodecInfo) {
	r.decoder.Configure(info)
}

// HandleChunk feeds one received chunk to the assembler and submits the
// frame it completes, if any.
func (r *Receiver) HandleChunk(chunk protocol.VideoChunk) {
	if frame, ok := r.assembler.Push(chunk); ok {
		r.decoder.Submit(frame)
	}
}

// Poll collects decoded frames without blocking, expires a stuck assembly
// and presents at most one frame. It reports whether a frame was presented.
func (r *Receiver) Poll() bool {
	r.assembler.CheckTimeout()

drain:
	for {
		select {
		case frame, ok := <-r.decoder.Output():
			if !ok {
				break drain
			}
			r.buffer.Push(frame.FrameID, frame)
		default:
			break drain
		}
	}
	return r.present()
}

func (r *Receiver) present() bool {
	_, frame, ok := r.buffer.Pop()
	if !ok {
		return false
	}
	r.presented++
	if r.sink != nil {
		r.sink.PresentFrame(frame.RGBA, frame.Width, frame.Height)
	}
	return true
}

// Stats returns a snapshot of the receive path counters.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Assembly:  r.assembler.Stats(),
		Decode:    r.decoder.Stats(),
		Jitter:    r.buffer.Stats(),
		Presented: r.presented,
	}
}

// Stop stops the decode worker.
func (r *Receiver) Stop() {
	r.decoder.Stop()
}
