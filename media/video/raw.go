package video

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/sirupsen/logrus"
)

// RawCodecName identifies the built-in codec in VideoCodecInfo.
const RawCodecName = "raw-zstd"

const rawHeaderSize = 8

// RawEncoder packs I420 planes as [width u32][height u32][zstd(Y U V)].
// Every frame is a keyframe.
type RawEncoder struct {
	width  int
	height int
	fps    int
	zenc   *zstd.Encoder
	buf    []byte
}

// NewRawEncoder creates a raw encoder for fixed dimensions.
func NewRawEncoder(width, height, fps int) (*RawEncoder, error) {
	if err := validateDimensions(width, height); err != nil {
		return nil, err
	}
	zenc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedFastest),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewRawEncoder",
		"width":    width,
		"height":   height,
		"fps":      fps,
	}).Info("Raw video encoder created")

	return &RawEncoder{width: width, height: height, fps: fps, zenc: zenc}, nil
}

// RawEncoderFactory is an EncoderFactory for RawEncoder.
func RawEncoderFactory(width, height, fps int) (Encoder, error) {
	return NewRawEncoder(width, height, fps)
}

// Encode compresses img. The keyframe request is ignored since every frame
// is independent.
func (e *RawEncoder) Encode(img *I420, _ bool) (EncodedFrame, error) {
	if img.Width != e.width || img.Height != e.height {
		return EncodedFrame{}, fmt.Errorf("%w: frame %dx%d, encoder %dx%d",
			ErrInvalidFrame, img.Width, img.Height, e.width, e.height)
	}

	e.buf = e.buf[:0]
	e.buf = append(e.buf, img.Y...)
	e.buf = append(e.buf, img.U...)
	e.buf = append(e.buf, img.V...)

	out := make([]byte, rawHeaderSize, rawHeaderSize+len(e.buf)/4)
	binary.BigEndian.PutUint32(out[0:4], uint32(e.width))
	binary.BigEndian.PutUint32(out[4:8], uint32(e.height))
	out = e.zenc.EncodeAll(e.buf, out)

	return EncodedFrame{Data: out, Keyframe: true}, nil
}

// Info describes the raw stream.
func (e *RawEncoder) Info() protocol.VideoCodecInfo {
	return protocol.VideoCodecInfo{
		Codec:  RawCodecName,
		Width:  uint32(e.width),
		Height: uint32(e.height),
		FPS:    uint32(e.fps),
	}
}

// Close releases the compressor.
func (e *RawEncoder) Close() error {
	return e.zenc.Close()
}

// RawDecoder reverses RawEncoder.
type RawDecoder struct {
	zdec *zstd.Decoder
}

// NewRawDecoder creates a raw decoder.
func NewRawDecoder() (*RawDecoder, error) {
	maxFrame := uint64(MaxDimension) * MaxDimension * 3 / 2
	zdec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxFrame),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &RawDecoder{zdec: zdec}, nil
}

// RawDecoderFactory is a DecoderFactory for RawDecoder. It rejects streams
// of any other codec.
func RawDecoderFactory(info protocol.VideoCodecInfo) (Decoder, error) {
	if info.Codec != RawCodecName {
		return nil, fmt.Errorf("%w: %q", ErrCodecUnavailable, info.Codec)
	}
	return NewRawDecoder()
}

// Decode decompresses one frame.
func (d *RawDecoder) Decode(data []byte) (*I420, error) {
	if len(data) < rawHeaderSize {
		return nil, fmt.Errorf("%w: %d byte raw frame", ErrInvalidFrame, len(data))
	}
	width := int(binary.BigEndian.Uint32(data[0:4]))
	height := int(binary.BigEndian.Uint32(data[4:8]))
	if err := validateDimensions(width, height); err != nil {
		return nil, err
	}

	img := NewI420(width, height)
	planes, err := d.zdec.DecodeAll(data[rawHeaderSize:], make([]byte, 0, img.Size()))
	if err != nil {
		return nil, fmt.Errorf("decompress frame: %w", err)
	}
	if len(planes) != img.Size() {
		return nil, fmt.Errorf("%w: %d plane bytes for %dx%d", ErrInvalidFrame, len(planes), width, height)
	}
	copy(img.Y, planes)
	copy(img.U, planes[len(img.Y):])
	copy(img.V, planes[len(img.Y)+len(img.U):])
	return img, nil
}

// Close releases the decompressor.
func (d *RawDecoder) Close() error {
	d.zdec.Close()
	return nil
}
