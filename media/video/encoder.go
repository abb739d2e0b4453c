package video

import (
	"sync"
	"sync/atomic"

	"github.com/opd-ai/lanshare/fragment"
	"github.com/opd-ai/lanshare/media"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/sirupsen/logrus"
)

// Encode worker defaults.
const (
	DefaultKeyframeInterval = 60
	DefaultFPS              = 30

	// maxEncodeFailures consecutive errors recreate the encoder.
	maxEncodeFailures = 3
)

// EncodeConfig tunes an EncodeWorker. Zero fields take the defaults.
type EncodeConfig struct {
	FPS              int
	KeyframeInterval int
	MaxChunkSize     int
}

// EncodedPacket is one encoded frame split into VideoFrame datagrams. A
// keyframe packet starts with a VideoCodecInfo datagram so late joiners can
// configure their decoder.
type EncodedPacket struct {
	FrameID   uint32
	Keyframe  bool
	Datagrams [][]byte
}

// EncodeStats counts encode worker outcomes.
type EncodeStats struct {
	Submitted uint64
	Skipped   uint64
	Encoded   uint64
	Failed    uint64
	Recreated uint64
	Keyframes uint64
	Invalid   uint64
}

// EncodeWorker owns the video encoder on its own goroutine.
type EncodeWorker struct {
	factory          EncoderFactory
	fps              int
	keyframeInterval int
	maxChunk         int

	input  *media.Latest[RawFrame]
	output *media.Latest[EncodedPacket]

	keyframeRequested atomic.Bool
	disabled          atomic.Bool

	// Worker goroutine only.
	encoder    Encoder
	infoPacket []byte
	scratch    *I420
	width      int
	height     int
	nextID     uint32
	sinceKey   int
	failures   int

	submitted atomic.Uint64
	skipped   atomic.Uint64
	encoded   atomic.Uint64
	failed    atomic.Uint64
	recreated atomic.Uint64
	keyframes atomic.Uint64
	invalid   atomic.Uint64

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewEncodeWorker creates a worker that builds encoders through factory.
func NewEncodeWorker(factory EncoderFactory, cfg EncodeConfig) *EncodeWorker {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.KeyframeInterval <= 0 {
		cfg.KeyframeInterval = DefaultKeyframeInterval
	}
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = fragment.DefaultMaxChunkSize
	}
	return &EncodeWorker{
		factory:          factory,
		fps:              cfg.FPS,
		keyframeInterval: cfg.KeyframeInterval,
		maxChunk:         cfg.MaxChunkSize,
		input:            media.NewLatest[RawFrame](),
		output:           media.NewLatest[EncodedPacket](),
	}
}

// Start launches the worker goroutine.
func (w *EncodeWorker) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.run()
	})
}

// Submit offers the newest captured frame without blocking. A frame the
// worker has not started on yet is replaced. It returns false when video
// is disabled.
func (w *EncodeWorker) Submit(frame RawFrame) bool {
	if w.disabled.Load() {
		return false
	}
	w.submitted.Add(1)
	if w.input.Offer(frame) {
		w.skipped.Add(1)
	}
	return true
}

// RequestKeyframe makes the next encoded frame a keyframe, for example
// when a peer joins mid-stream.
func (w *EncodeWorker) RequestKeyframe() {
	w.keyframeRequested.Store(true)
}

// Output delivers the newest encoded packet. Older unread packets are
// replaced.
func (w *EncodeWorker) Output() <-chan EncodedPacket {
	return w.output.C()
}

// Disabled reports whether the encoder could not be created and video is
// off for this session.
func (w *EncodeWorker) Disabled() bool {
	return w.disabled.Load()
}

// Stats returns a snapshot of the counters.
func (w *EncodeWorker) Stats() EncodeStats {
	return EncodeStats{
		Submitted: w.submitted.Load(),
		Skipped:   w.skipped.Load(),
		Encoded:   w.encoded.Load(),
		Failed:    w.failed.Load(),
		Recreated: w.recreated.Load(),
		Keyframes: w.keyframes.Load(),
		Invalid:   w.invalid.Load(),
	}
}

// Stop finishes the frame in progress, closes the encoder and waits for
// the worker to exit. Output is closed afterwards.
func (w *EncodeWorker) Stop() {
	w.stopOnce.Do(func() {
		w.input.Close()
		w.wg.Wait()
		w.output.Close()
	})
}

func (w *EncodeWorker) run() {
	defer w.wg.Done()
	defer w.closeEncoder()

	for frame := range w.input.C() {
		if w.disabled.Load() {
			continue
		}
		w.process(frame)
	}
}

func (w *EncodeWorker) process(frame RawFrame) {
	if err := frame.Validate(); err != nil {
		w.invalid.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "EncodeWorker.process",
			"error":    err.Error(),
		}).Debug("Skipping invalid frame")
		return
	}

	if w.encoder == nil || frame.Width != w.width || frame.Height != w.height {
		if !w.createEncoder(frame.Width, frame.Height) {
			return
		}
	}

	img, err := RGBAToI420(frame, w.scratch)
	if err != nil {
		w.invalid.Add(1)
		return
	}
	w.scratch = img

	force := w.keyframeRequested.Swap(false) || w.sinceKey == 0 || w.sinceKey >= w.keyframeInterval
	encoded, err := w.encoder.Encode(img, force)
	if err != nil {
		w.handleFailure(err)
		return
	}
	w.failures = 0

	if len(encoded.Data) == 0 {
		return
	}
	if !encoded.Keyframe && w.encoder.Info().Codec == "h264" {
		encoded.Keyframe = IsH264Keyframe(encoded.Data)
	}
	if encoded.Keyframe {
		w.sinceKey = 1
		w.keyframes.Add(1)
	} else {
		w.sinceKey++
	}

	w.publish(encoded)
}

func (w *EncodeWorker) publish(encoded EncodedFrame) {
	id := w.nextID
	chunks, err := fragment.Split(id, encoded.Data, w.maxChunk, encoded.Keyframe)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "EncodeWorker.publish",
			"frame_id": id,
			"size":     len(encoded.Data),
			"error":    err.Error(),
		}).Error("Failed to fragment encoded frame")
		return
	}
	w.nextID++

	datagrams := make([][]byte, 0, len(chunks)+1)
	if encoded.Keyframe && w.infoPacket != nil {
		datagrams = append(datagrams, w.infoPacket)
	}
	for _, c := range chunks {
		data, err := protocol.EncodeServerMessage(&protocol.VideoFrame{Chunk: c})
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "EncodeWorker.publish",
				"frame_id": id,
				"error":    err.Error(),
			}).Error("Failed to encode video chunk")
			return
		}
		datagrams = append(datagrams, data)
	}

	w.encoded.Add(1)
	w.output.Offer(EncodedPacket{FrameID: id, Keyframe: encoded.Keyframe, Datagrams: datagrams})
}

func (w *EncodeWorker) handleFailure(err error) {
	w.failed.Add(1)
	w.failures++

	logrus.WithFields(logrus.Fields{
		"function": "EncodeWorker.process",
		"failures": w.failures,
		"error":    err.Error(),
	}).Error("Video encode failed, skipping frame")

	if w.failures >= maxEncodeFailures {
		// Rebuilt on the next frame.
		w.closeEncoder()
	}
}

func (w *EncodeWorker) createEncoder(width, height int) bool {
	recreating := w.encoder != nil || w.failures > 0
	w.closeEncoder()

	enc, err := w.factory(width, height, w.fps)
	if err != nil {
		w.disabled.Store(true)
		logrus.WithFields(logrus.Fields{
			"function": "EncodeWorker.createEncoder",
			"width":    width,
			"height":   height,
			"error":    err.Error(),
		}).Error("Video encoder unavailable, disabling video")
		return false
	}

	info := enc.Info()
	packet, err := protocol.EncodeServerMessage(&info)
	if err != nil {
		enc.Close()
		w.disabled.Store(true)
		return false
	}

	w.encoder = enc
	w.infoPacket = packet
	w.width, w.height = width, height
	w.sinceKey = 0
	w.failures = 0
	if recreating {
		w.recreated.Add(1)
	}

	logrus.WithFields(logrus.Fields{
		"function": "EncodeWorker.createEncoder",
		"codec":    info.Codec,
		"width":    width,
		"height":   height,
	}).Info("Video encoder ready")
	return true
}

func (w *EncodeWorker) closeEncoder() {
	if w.encoder == nil {
		return
	}
	if err := w.encoder.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "EncodeWorker.closeEncoder",
			"error":    err.Error(),
		}).Debug("Encoder close failed")
	}
	w.encoder = nil
}
