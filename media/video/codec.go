package video

import (
	"github.com/opd-ai/lanshare/protocol"
)

// EncodedFrame is the output of one Encode call. Data may be empty when the
// encoder buffered the input.
type EncodedFrame struct {
	Data     []byte
	Keyframe bool
}

// Encoder compresses I420 images. An Encoder is used from one goroutine.
type Encoder interface {
	// Encode compresses img. forceKeyframe requests an independently
	// decodable frame.
	Encode(img *I420, forceKeyframe bool) (EncodedFrame, error)

	// Info describes the stream so clients can configure a decoder.
	Info() protocol.VideoCodecInfo

	Close() error
}

// EncoderFactory creates an encoder for the given dimensions and frame rate.
type EncoderFactory func(width, height, fps int) (Encoder, error)

// Decoder decompresses payloads into I420 images. A nil image without an
// error means the decoder needs more input.
type Decoder interface {
	Decode(data []byte) (*I420, error)
	Close() error
}

// DecoderFactory creates a decoder for the announced stream.
type DecoderFactory func(info protocol.VideoCodecInfo) (Decoder, error)

// Annex-B NAL unit types that mark an H.264 access unit as decodable on its own.
const (
	nalTypeIDR = 5
	nalTypeSPS = 7
)

// IsH264Keyframe reports whether an Annex-B H.264 access unit contains an
// IDR slice or a sequence parameter set.
func IsH264Keyframe(data []byte) bool {
	for i := 0; i+3 < len(data); i++ {
		if data[i] != 0 || data[i+1] != 0 {
			continue
		}
		var nal int
		switch {
		case data[i+2] == 1:
			nal = i + 3
		case data[i+2] == 0 && i+4 < len(data) && data[i+3] == 1:
			nal = i + 4
		default:
			continue
		}
		if nal >= len(data) {
			return false
		}
		switch data[nal] & 0x1F {
		case nalTypeIDR, nalTypeSPS:
			return true
		}
		i = nal
	}
	return false
}
