package video

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFrame is returned for frames whose buffer does not match
	// their dimensions.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrCodecUnavailable is returned by factories that cannot provide a codec.
	ErrCodecUnavailable = errors.New("codec unavailable")
)

// MaxDimension bounds the width and height of a frame.
const MaxDimension = 8192

// RawFrame is one captured RGBA image.
type RawFrame struct {
	RGBA   []byte
	Width  int
	Height int
}

// Validate checks the dimensions and buffer length.
func (f RawFrame) Validate() error {
	if err := validateDimensions(f.Width, f.Height); err != nil {
		return err
	}
	if want := f.Width * f.Height * 4; len(f.RGBA) != want {
		return fmt.Errorf("%w: %dx%d needs %d RGBA bytes, got %d", ErrInvalidFrame, f.Width, f.Height, want, len(f.RGBA))
	}
	return nil
}

// I420 is a planar YUV 4:2:0 image. Chroma planes are half size, rounded up.
type I420 struct {
	Width  int
	Height int
	Y      []byte
	U      []byte
	V      []byte
}

// NewI420 allocates an image with tightly packed planes.
func NewI420(width, height int) *I420 {
	cw, ch := chromaSize(width, height)
	buf := make([]byte, width*height+2*cw*ch)
	return &I420{
		Width:  width,
		Height: height,
		Y:      buf[:width*height],
		U:      buf[width*height : width*height+cw*ch],
		V:      buf[width*height+cw*ch:],
	}
}

// Size returns the total byte length of the three planes.
func (img *I420) Size() int {
	return len(img.Y) + len(img.U) + len(img.V)
}

func chromaSize(width, height int) (int, int) {
	return (width + 1) / 2, (height + 1) / 2
}

func validateDimensions(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidFrame, width, height)
	}
	return nil
}

// RGBAToI420 converts an RGBA image to I420 with BT.601 limited range
// coefficients, averaging each 2x2 block for chroma. dst is reused when it
// has the right dimensions.
func RGBAToI420(f RawFrame, dst *I420) (*I420, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if dst == nil || dst.Width != f.Width || dst.Height != f.Height {
		dst = NewI420(f.Width, f.Height)
	}

	w, h := f.Width, f.Height
	cw, ch := chromaSize(w, h)

	for y := 0; y < h; y++ {
		row := f.RGBA[y*w*4:]
		for x := 0; x < w; x++ {
			r, g, b := int(row[x*4]), int(row[x*4+1]), int(row[x*4+2])
			dst.Y[y*w+x] = clampByte(((66*r + 129*g + 25*b + 128) >> 8) + 16)
		}
	}

	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			var sr, sg, sb, n int
			for dy := 0; dy < 2; dy++ {
				y := cy*2 + dy
				if y >= h {
					continue
				}
				for dx := 0; dx < 2; dx++ {
					x := cx*2 + dx
					if x >= w {
						continue
					}
					p := (y*w + x) * 4
					sr += int(f.RGBA[p])
					sg += int(f.RGBA[p+1])
					sb += int(f.RGBA[p+2])
					n++
				}
			}
			r, g, b := sr/n, sg/n, sb/n
			dst.U[cy*cw+cx] = clampByte(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
			dst.V[cy*cw+cx] = clampByte(((112*r - 94*g - 18*b + 128) >> 8) + 128)
		}
	}
	return dst, nil
}

// I420ToRGBA converts an I420 image back to opaque RGBA.
func I420ToRGBA(img *I420) ([]byte, error) {
	if err := validateDimensions(img.Width, img.Height); err != nil {
		return nil, err
	}
	w, h := img.Width, img.Height
	cw, ch := chromaSize(w, h)
	if len(img.Y) < w*h || len(img.U) < cw*ch || len(img.V) < cw*ch {
		return nil, fmt.Errorf("%w: short I420 planes for %dx%d", ErrInvalidFrame, w, h)
	}

	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := int(img.Y[y*w+x]) - 16
			ci := (y/2)*cw + x/2
			d := int(img.U[ci]) - 128
			e := int(img.V[ci]) - 128

			p := (y*w + x) * 4
			out[p] = clampByte((298*c + 409*e + 128) >> 8)
			out[p+1] = clampByte((298*c - 100*d - 208*e + 128) >> 8)
			out[p+2] = clampByte((298*c + 516*d + 128) >> 8)
			out[p+3] = 0xFF
		}
	}
	return out, nil
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
