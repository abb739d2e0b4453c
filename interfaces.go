package lanshare

import (
	"github.com/opd-ai/lanshare/media/audio"
	"github.com/opd-ai/lanshare/media/video"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/opd-ai/lanshare/statesync"
)

// VideoSource provides captured RGBA frames. Capture is called from the
// tick loop at the capture interval and must not block; ok is false when
// no new frame is ready.
type VideoSource interface {
	Capture() (rgba []byte, width, height int, ok bool)
}

// AudioSource provides captured interleaved samples. ReadSamples is called
// every tick until ok is false.
type AudioSource interface {
	ReadSamples() (samples []float32, sampleRate uint32, channels int, ok bool)
}

// VideoSink presents decoded frames on the client.
type VideoSink = video.Sink

// PlayerState is the transform of one player.
type PlayerState = protocol.PlayerState

// RemotePlayer is a peer's transform as displayed on a client.
type RemotePlayer = statesync.RemotePlayer

// Playback is the audio device end of a client session.
type Playback = audio.Playback
