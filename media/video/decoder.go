package video

import (
	"bytes"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/lanshare/fragment"
	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/media"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/sirupsen/logrus"
)

const decodedQueueSize = 4

// DecodedFrame is one presentable RGBA image.
type DecodedFrame struct {
	FrameID uint32
	RGBA    []byte
	Width   int
	Height  int
}

// DecodeConfig tunes a DecodeWorker. Zero fields take the defaults.
type DecodeConfig struct {
	FailureThreshold int
	StallTimeout     time.Duration
	TimeProvider     clock.TimeProvider
}

// DecodeStats counts decode worker outcomes.
type DecodeStats struct {
	Submitted uint64
	Skipped   uint64
	Decoded   uint64
	Failed    uint64
	Recreated uint64
}

// DecodeWorker owns the video decoder on its own goroutine. It always
// decodes the newest complete payload and recreates the decoder when the
// stream stops decoding cleanly.
type DecodeWorker struct {
	factory DecoderFactory

	input     *media.Latest[fragment.Frame]
	configure *media.Latest[protocol.VideoCodecInfo]
	output    *media.Queue[DecodedFrame]

	// Worker goroutine only.
	decoder    Decoder
	info       protocol.VideoCodecInfo
	configured bool
	health     *media.Health

	disabled  atomic.Bool
	submitted atomic.Uint64
	skipped   atomic.Uint64
	decoded   atomic.Uint64
	failed    atomic.Uint64
	recreated atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewDecodeWorker creates a worker that builds decoders through factory
// once the stream has been described with Configure.
func NewDecodeWorker(factory DecoderFactory, cfg DecodeConfig) *DecodeWorker {
	return &DecodeWorker{
		factory:   factory,
		input:     media.NewLatest[fragment.Frame](),
		configure: media.NewLatest[protocol.VideoCodecInfo](),
		output:    media.NewQueue[DecodedFrame](decodedQueueSize),
		health:    media.NewHealth(cfg.FailureThreshold, cfg.StallTimeout, cfg.TimeProvider),
	}
}

// Start launches the worker goroutine.
func (w *DecodeWorker) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.run()
	})
}

// Configure announces the stream parameters. A change recreates the decoder.
func (w *DecodeWorker) Configure(info protocol.VideoCodecInfo) {
	w.configure.Offer(info)
}

// Submit offers a complete payload without blocking, replacing one the
// worker has not started on yet.
func (w *DecodeWorker) Submit(frame fragment.Frame) {
	if w.disabled.Load() {
		return
	}
	w.submitted.Add(1)
	if w.input.Offer(frame) {
		w.skipped.Add(1)
	}
}

// Output delivers decoded frames in decode order.
func (w *DecodeWorker) Output() <-chan DecodedFrame {
	return w.output.C()
}

// Disabled reports whether no decoder could be created for the stream.
func (w *DecodeWorker) Disabled() bool {
	return w.disabled.Load()
}

// Stats returns a snapshot of the counters.
func (w *DecodeWorker) Stats() DecodeStats {
	return DecodeStats{
		Submitted: w.submitted.Load(),
		Skipped:   w.skipped.Load(),
		Decoded:   w.decoded.Load(),
		Failed:    w.failed.Load(),
		Recreated: w.recreated.Load(),
	}
}

// Stop finishes the payload in progress, closes the decoder and waits for
// the worker to exit.
func (w *DecodeWorker) Stop() {
	w.stopOnce.Do(func() {
		w.input.Close()
		w.configure.Close()
		w.wg.Wait()
		w.output.Close()
	})
}

func (w *DecodeWorker) run() {
	defer w.wg.Done()
	defer w.closeDecoder()

	input, configure := w.input.C(), w.configure.C()
	for input != nil {
		// Apply a pending announcement before the frame it precedes.
		select {
		case info, ok := <-configure:
			if !ok {
				configure = nil
			} else {
				w.applyInfo(info)
			}
			continue
		default:
		}

		select {
		case info, ok := <-configure:
			if !ok {
				configure = nil
				continue
			}
			w.applyInfo(info)
		case frame, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			w.decode(frame)
		}
	}
}

func (w *DecodeWorker) applyInfo(info protocol.VideoCodecInfo) {
	if w.configured && sameStream(w.info, info) {
		return
	}
	w.info = info
	w.configured = true
	w.disabled.Store(false)
	w.createDecoder(false)
}

func (w *DecodeWorker) decode(frame fragment.Frame) {
	if !w.configured {
		logrus.WithFields(logrus.Fields{
			"function": "DecodeWorker.decode",
			"frame_id": frame.ID,
		}).Debug("No codec info yet, dropping frame")
		return
	}
	if w.decoder == nil {
		return
	}

	w.health.RecordInput()
	img, err := w.decoder.Decode(frame.Payload)
	switch {
	case err != nil:
		w.failed.Add(1)
		w.health.RecordFailure()
		logrus.WithFields(logrus.Fields{
			"function": "DecodeWorker.decode",
			"frame_id": frame.ID,
			"failures": w.health.ConsecutiveFailures(),
			"error":    err.Error(),
		}).Debug("Video decode failed")
	case img != nil:
		rgba, convErr := I420ToRGBA(img)
		if convErr != nil {
			w.failed.Add(1)
			w.health.RecordFailure()
			break
		}
		w.health.RecordSuccess()
		w.decoded.Add(1)
		w.output.Push(DecodedFrame{FrameID: frame.ID, RGBA: rgba, Width: img.Width, Height: img.Height})
	}

	if w.health.Unhealthy() {
		w.createDecoder(true)
	}
}

func (w *DecodeWorker) createDecoder(recreate bool) {
	w.closeDecoder()

	dec, err := w.factory(w.info)
	if err != nil {
		w.disabled.Store(true)
		logrus.WithFields(logrus.Fields{
			"function": "DecodeWorker.createDecoder",
			"codec":    w.info.Codec,
			"error":    err.Error(),
		}).Error("Video decoder unavailable, disabling video")
		return
	}
	w.decoder = dec
	w.health.Reset()

	if recreate {
		w.recreated.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "DecodeWorker.createDecoder",
			"codec":    w.info.Codec,
		}).Warn("Recreated unhealthy video decoder")
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "DecodeWorker.createDecoder",
		"codec":    w.info.Codec,
		"width":    w.info.Width,
		"height":   w.info.Height,
	}).Info("Video decoder ready")
}

func (w *DecodeWorker) closeDecoder() {
	if w.decoder == nil {
		return
	}
	_ = w.decoder.Close()
	w.decoder = nil
}

// sameStream reports whether two announcements describe the same stream.
func sameStream(a, b protocol.VideoCodecInfo) bool {
	if a.Codec != b.Codec || a.Width != b.Width || a.Height != b.Height || a.FPS != b.FPS {
		return false
	}
	return bytes.Equal(a.Extradata, b.Extradata)
}
