package audio

import (
	"sync"
	"sync/atomic"

	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/media"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/sirupsen/logrus"
)

const (
	decodeQueueSize = 64

	// Gaps larger than this are treated as a stream restart rather than
	// loss.
	maxReportedGap = 100
)

// DecodeStats counts decode worker outcomes.
type DecodeStats struct {
	Submitted uint64
	Dropped   uint64
	Decoded   uint64
	Failed    uint64
	Lost      uint64
	Gaps      uint64
	Overflow  uint64
	Recreated uint64
}

// codecDecoder is a built decoder and the monitor that decides when to
// rebuild it.
type codecDecoder struct {
	decoder Decoder
	health  *media.Health
}

// DecodeWorker decodes packets in arrival order on its own goroutine and
// writes playback-format samples to a Ring. Packets are never skipped.
type DecodeWorker struct {
	factory DecoderFactory
	output  Format
	ring    *Ring

	input        *media.Queue[protocol.AudioChunk]
	timeProvider clock.TimeProvider

	// Worker goroutine only.
	decoders    map[uint8]*codecDecoder
	unavailable map[uint8]bool
	converter   *Converter
	converted   []float32
	lastSeq     uint32
	hasLast     bool

	submitted atomic.Uint64
	decoded   atomic.Uint64
	failed    atomic.Uint64
	lost      atomic.Uint64
	gaps      atomic.Uint64
	recreated atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewDecodeWorker creates a worker that decodes through factory and writes
// audio in the output format to ring.
func NewDecodeWorker(factory DecoderFactory, output Format, ring *Ring) *DecodeWorker {
	if factory == nil {
		factory = DefaultDecoderFactory
	}
	return &DecodeWorker{
		factory:      factory,
		output:       output,
		ring:         ring,
		input:        media.NewQueue[protocol.AudioChunk](decodeQueueSize),
		timeProvider: clock.DefaultTimeProvider{},
		decoders:     make(map[uint8]*codecDecoder),
		unavailable:  make(map[uint8]bool),
	}
}

// SetTimeProvider sets the clock used for decoder health. Call it before
// Start.
func (w *DecodeWorker) SetTimeProvider(tp clock.TimeProvider) {
	w.timeProvider = clock.OrDefault(tp)
}

// Start launches the worker goroutine.
func (w *DecodeWorker) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.run()
	})
}

// Submit queues one packet without blocking.
func (w *DecodeWorker) Submit(chunk protocol.AudioChunk) {
	w.submitted.Add(1)
	w.input.Push(chunk)
}

// Stats returns a snapshot of the counters.
func (w *DecodeWorker) Stats() DecodeStats {
	return DecodeStats{
		Submitted: w.submitted.Load(),
		Dropped:   w.input.Dropped(),
		Decoded:   w.decoded.Load(),
		Failed:    w.failed.Load(),
		Lost:      w.lost.Load(),
		Gaps:      w.gaps.Load(),
		Overflow:  w.ring.Overflow(),
		Recreated: w.recreated.Load(),
	}
}

// Stop decodes what is queued and waits for the worker to exit.
func (w *DecodeWorker) Stop() {
	w.stopOnce.Do(func() {
		w.input.Close()
		w.wg.Wait()
	})
}

func (w *DecodeWorker) run() {
	defer w.wg.Done()

	for chunk := range w.input.C() {
		w.trackSequence(chunk.Sequence)
		w.decode(chunk)
	}
}

func (w *DecodeWorker) trackSequence(seq uint32) {
	if w.hasLast {
		if missing := seq - w.lastSeq - 1; protocol.IsNewer(seq, w.lastSeq) && missing > 0 && missing < maxReportedGap {
			w.gaps.Add(1)
			w.lost.Add(uint64(missing))
			logrus.WithFields(logrus.Fields{
				"function": "DecodeWorker.trackSequence",
				"expected": w.lastSeq + 1,
				"sequence": seq,
				"lost":     missing,
			}).Debug("Audio packet loss")
		}
	}
	w.lastSeq = seq
	w.hasLast = true
}

func (w *DecodeWorker) decode(chunk protocol.AudioChunk) {
	dec := w.decoderFor(chunk.Codec)
	if dec == nil {
		return
	}

	dec.health.RecordInput()
	advertised := Format{SampleRate: chunk.SampleRate, Channels: int(chunk.Channels)}
	samples, format, err := dec.decoder.Decode(chunk.Payload, advertised)
	if err != nil {
		w.failed.Add(1)
		dec.health.RecordFailure()
		logrus.WithFields(logrus.Fields{
			"function": "DecodeWorker.decode",
			"sequence": chunk.Sequence,
			"codec":    chunk.Codec,
			"failures": dec.health.ConsecutiveFailures(),
			"error":    err.Error(),
		}).Debug("Audio decode failed")
		if dec.health.Unhealthy() {
			w.recreate(chunk.Codec)
		}
		return
	}
	dec.health.RecordSuccess()

	if w.converter == nil || w.converter.Input() != format {
		conv, err := NewConverter(format, w.output)
		if err != nil {
			w.failed.Add(1)
			logrus.WithFields(logrus.Fields{
				"function":    "DecodeWorker.decode",
				"sample_rate": format.SampleRate,
				"channels":    format.Channels,
				"error":       err.Error(),
			}).Warn("Unsupported audio format")
			return
		}
		w.converter = conv
		logrus.WithFields(logrus.Fields{
			"function":        "DecodeWorker.decode",
			"input_rate":      format.SampleRate,
			"input_channels":  format.Channels,
			"output_rate":     w.output.SampleRate,
			"output_channels": w.output.Channels,
		}).Info("Audio stream format")
	}

	w.converted, err = w.converter.Convert(w.converted[:0], samples)
	if err != nil {
		w.failed.Add(1)
		return
	}
	w.ring.Write(w.converted)
	w.decoded.Add(1)
}

func (w *DecodeWorker) decoderFor(codec uint8) *codecDecoder {
	if dec, ok := w.decoders[codec]; ok {
		return dec
	}
	if w.unavailable[codec] {
		return nil
	}
	dec, err := w.factory(codec)
	if err != nil {
		w.unavailable[codec] = true
		logrus.WithFields(logrus.Fields{
			"function": "DecodeWorker.decoderFor",
			"codec":    codec,
			"error":    err.Error(),
		}).Error("Audio decoder unavailable, ignoring codec")
		return nil
	}
	cd := &codecDecoder{
		decoder: dec,
		health:  media.NewHealth(0, 0, w.timeProvider),
	}
	w.decoders[codec] = cd
	return cd
}

// recreate discards the decoder for codec. The next packet of that codec
// builds a fresh one.
func (w *DecodeWorker) recreate(codec uint8) {
	delete(w.decoders, codec)
	w.recreated.Add(1)
	logrus.WithFields(logrus.Fields{
		"function": "DecodeWorker.recreate",
		"codec":    codec,
	}).Warn("Recreating unhealthy audio decoder")
}
