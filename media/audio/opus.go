package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// maxOpusFrameMillis is the longest frame a single Opus packet can carry.
const maxOpusFrameMillis = 120

// opusSilkFrameMillis maps the low two bits of a SILK configuration to the
// frame duration.
var opusSilkFrameMillis = [4]int{10, 20, 40, 60}

// OpusDecoder decodes Opus packets with pion/opus. Only SILK mode packets
// are supported.
type OpusDecoder struct {
	decoder opus.Decoder
	pcm     []byte
	out     []float32
}

// NewOpusDecoder creates a decoder.
func NewOpusDecoder() *OpusDecoder {
	logrus.WithFields(logrus.Fields{
		"function": "NewOpusDecoder",
	}).Info("Creating Opus audio decoder")

	return &OpusDecoder{
		decoder: opus.NewDecoder(),
		pcm:     make([]byte, 48*maxOpusFrameMillis*2*2),
	}
}

// Decode decodes one packet. The format comes from the bitstream; the
// advertised one is ignored.
func (d *OpusDecoder) Decode(payload []byte, _ Format) ([]float32, Format, error) {
	if len(payload) == 0 {
		return nil, Format{}, fmt.Errorf("%w: empty Opus packet", ErrInvalidPayload)
	}
	frameMillis, err := opusFrameMillis(payload[0])
	if err != nil {
		return nil, Format{}, err
	}

	bandwidth, stereo, err := d.decoder.Decode(payload, d.pcm)
	if err != nil {
		return nil, Format{}, fmt.Errorf("opus decode: %w", err)
	}

	format := Format{SampleRate: uint32(bandwidth.SampleRate()), Channels: 1}
	if stereo {
		format.Channels = 2
	}
	samples := int(format.SampleRate) * frameMillis / 1000 * format.Channels
	if samples*2 > len(d.pcm) {
		samples = len(d.pcm) / 2
	}

	d.out = d.out[:0]
	for i := 0; i < samples; i++ {
		v := int16(binary.LittleEndian.Uint16(d.pcm[i*2:]))
		d.out = append(d.out, float32(v)/32768)
	}
	return d.out, format, nil
}

// opusFrameMillis reads the frame duration from the TOC byte.
func opusFrameMillis(toc byte) (int, error) {
	config := toc >> 3
	if config > 11 {
		return 0, fmt.Errorf("%w: Opus configuration %d is not SILK", ErrCodecUnavailable, config)
	}
	return opusSilkFrameMillis[config&0x3], nil
}
