package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPayload indicates an audio payload that cannot be decoded.
var ErrInvalidPayload = errors.New("invalid audio payload")

// Format describes interleaved float32 audio.
type Format struct {
	SampleRate uint32
	Channels   int
}

// DefaultOutputFormat is used when the playback device format is not given.
var DefaultOutputFormat = Format{SampleRate: 48000, Channels: 2}

// Validate checks that the format can carry audio.
func (f Format) Validate() error {
	if f.SampleRate == 0 || f.Channels < 1 || f.Channels > math.MaxUint8 {
		return fmt.Errorf("%w: %d Hz, %d channels", ErrInvalidPayload, f.SampleRate, f.Channels)
	}
	return nil
}

// QuantizePCM16 appends samples to dst as little-endian signed 16-bit
// values. Samples outside [-1, 1] are clamped.
func QuantizePCM16(dst []byte, samples []float32) []byte {
	var b [2]byte
	for _, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(b[:], uint16(int16(s*math.MaxInt16)))
		dst = append(dst, b[0], b[1])
	}
	return dst
}

// DequantizePCM16 appends the samples of a little-endian PCM16 payload to
// dst, scaled to [-1, 1).
func DequantizePCM16(dst []float32, payload []byte) ([]float32, error) {
	if len(payload)%2 != 0 {
		return dst, fmt.Errorf("%w: odd PCM16 length %d", ErrInvalidPayload, len(payload))
	}
	for i := 0; i+1 < len(payload); i += 2 {
		v := int16(binary.LittleEndian.Uint16(payload[i:]))
		dst = append(dst, float32(v)/32768)
	}
	return dst, nil
}
