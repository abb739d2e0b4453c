package audio

import (
	"errors"
	"fmt"

	"github.com/opd-ai/lanshare/protocol"
)

// ErrCodecUnavailable indicates an audio codec with no decoder.
var ErrCodecUnavailable = errors.New("audio codec unavailable")

// Decoder turns one packet payload into interleaved float32 samples. The
// chunk's advertised format is passed in; decoders that learn the format
// from the bitstream return their own.
type Decoder interface {
	Decode(payload []byte, advertised Format) ([]float32, Format, error)
}

// DecoderFactory creates a decoder for an AudioChunk codec id.
type DecoderFactory func(codec uint8) (Decoder, error)

// PCM16Decoder decodes raw little-endian PCM16 packets.
type PCM16Decoder struct {
	buf []float32
}

// Decode converts payload to float samples in the advertised format. The
// returned slice is reused by the next call.
func (d *PCM16Decoder) Decode(payload []byte, advertised Format) ([]float32, Format, error) {
	if err := advertised.Validate(); err != nil {
		return nil, Format{}, err
	}
	out, err := DequantizePCM16(d.buf[:0], payload)
	if err != nil {
		return nil, Format{}, err
	}
	if len(out)%advertised.Channels != 0 {
		return nil, Format{}, fmt.Errorf("%w: %d samples for %d channels",
			ErrInvalidPayload, len(out), advertised.Channels)
	}
	d.buf = out
	return out, advertised, nil
}

// DefaultDecoderFactory knows PCM16 and Opus.
func DefaultDecoderFactory(codec uint8) (Decoder, error) {
	switch codec {
	case protocol.AudioCodecPCM16:
		return &PCM16Decoder{}, nil
	case protocol.AudioCodecOpus:
		return NewOpusDecoder(), nil
	default:
		return nil, fmt.Errorf("%w: id %d", ErrCodecUnavailable, codec)
	}
}
