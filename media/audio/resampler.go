package audio

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Resampler converts interleaved float32 audio between sample rates with
// linear interpolation. The last frame of each call is kept so consecutive
// calls interpolate across the boundary.
type Resampler struct {
	inputRate  uint32
	outputRate uint32
	channels   int
	step       float64 // input frames per output frame

	position float64 // next output position, relative to the current input
	last     []float32
	primed   bool
}

// NewResampler creates a resampler for interleaved audio with the given
// channel count.
//
// Parameters:
//   - inputRate: Source sample rate in Hz
//   - outputRate: Target sample rate in Hz
//   - channels: Interleaved channel count
//
// Returns:
//   - *Resampler: New resampler instance
//   - error: Invalid rates or channel count
func NewResampler(inputRate, outputRate uint32, channels int) (*Resampler, error) {
	if inputRate == 0 || outputRate == 0 {
		return nil, fmt.Errorf("invalid sample rates: input=%d, output=%d", inputRate, outputRate)
	}
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewResampler",
		"input_rate":  inputRate,
		"output_rate": outputRate,
		"channels":    channels,
	}).Debug("Creating audio resampler")

	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		step:       float64(inputRate) / float64(outputRate),
		last:       make([]float32, channels),
	}, nil
}

// Resample appends the converted form of input to dst. Input must hold
// whole frames.
func (r *Resampler) Resample(dst, input []float32) ([]float32, error) {
	if len(input)%r.channels != 0 {
		return dst, fmt.Errorf("input samples (%d) not aligned to channel count (%d)", len(input), r.channels)
	}
	if r.inputRate == r.outputRate {
		return append(dst, input...), nil
	}

	frames := len(input) / r.channels
	if frames == 0 {
		return dst, nil
	}
	if !r.primed {
		// Nothing to interpolate from before the first frame.
		r.position = 0
		r.primed = true
	}

	for r.position < float64(frames-1) {
		index := int(math.Floor(r.position))
		frac := float32(r.position - float64(index))
		for ch := 0; ch < r.channels; ch++ {
			var a float32
			if index < 0 {
				a = r.last[ch]
			} else {
				a = input[index*r.channels+ch]
			}
			b := input[(index+1)*r.channels+ch]
			dst = append(dst, a+(b-a)*frac)
		}
		r.position += r.step
	}

	r.position -= float64(frames)
	copy(r.last, input[len(input)-r.channels:])
	return dst, nil
}

// OutputSize estimates how many samples Resample produces for inputSize
// samples.
func (r *Resampler) OutputSize(inputSize int) int {
	if r.inputRate == r.outputRate {
		return inputSize
	}
	frames := inputSize / r.channels
	return int(math.Ceil(float64(frames)/r.step)) * r.channels
}

// Reset forgets the stream history, for example after a discontinuity.
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	for i := range r.last {
		r.last[i] = 0
	}
}

// Converter maps audio from a source format to the playback format. When
// the channel counts differ the signal is mixed down to mono, resampled and
// copied to every output channel.
type Converter struct {
	in        Format
	out       Format
	resampler *Resampler
	mono      []float32
	resampled []float32
}

// NewConverter creates a converter from in to out.
func NewConverter(in, out Format) (*Converter, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	channels := in.Channels
	if in.Channels != out.Channels {
		channels = 1
	}
	r, err := NewResampler(in.SampleRate, out.SampleRate, channels)
	if err != nil {
		return nil, err
	}
	return &Converter{in: in, out: out, resampler: r}, nil
}

// Input returns the source format.
func (c *Converter) Input() Format { return c.in }

// Convert appends the playback form of samples to dst.
func (c *Converter) Convert(dst, samples []float32) ([]float32, error) {
	if c.in.Channels == c.out.Channels {
		return c.resampler.Resample(dst, samples)
	}

	c.mono = Downmix(c.mono[:0], samples, c.in.Channels)
	var err error
	c.resampled, err = c.resampler.Resample(c.resampled[:0], c.mono)
	if err != nil {
		return dst, err
	}
	for _, s := range c.resampled {
		for ch := 0; ch < c.out.Channels; ch++ {
			dst = append(dst, s)
		}
	}
	return dst, nil
}

// Downmix appends the per-frame average of interleaved samples to dst. A
// trailing partial frame is ignored.
func Downmix(dst, samples []float32, channels int) []float32 {
	if channels <= 1 {
		return append(dst, samples...)
	}
	for i := 0; i+channels <= len(samples); i += channels {
		var sum float32
		for _, s := range samples[i : i+channels] {
			sum += s
		}
		dst = append(dst, sum/float32(channels))
	}
	return dst
}
