package audio

import "sync/atomic"

// Playback is the device-facing end of the receive path. Fill is meant to be
// called from the audio device callback.
type Playback struct {
	ring   *Ring
	format Format

	filled    atomic.Uint64
	underruns atomic.Uint64
	silence   atomic.Uint64
}

// NewPlayback reads from ring, which carries audio in format.
func NewPlayback(ring *Ring, format Format) *Playback {
	return &Playback{ring: ring, format: format}
}

// Format returns the playback format Fill produces.
func (p *Playback) Format() Format { return p.format }

// Fill copies available samples into dst and zero-fills the rest. It
// returns the number of real samples written.
func (p *Playback) Fill(dst []float32) int {
	n := p.ring.Read(dst)
	if n < len(dst) {
		clear(dst[n:])
		p.underruns.Add(1)
		p.silence.Add(uint64(len(dst) - n))
	}
	p.filled.Add(uint64(n))
	return n
}

// PlaybackStats counts device-side outcomes.
type PlaybackStats struct {
	Samples   uint64
	Underruns uint64
	Silence   uint64
	Buffered  int
}

// Stats returns a snapshot of the counters.
func (p *Playback) Stats() PlaybackStats {
	return PlaybackStats{
		Samples:   p.filled.Load(),
		Underruns: p.underruns.Load(),
		Silence:   p.silence.Load(),
		Buffered:  p.ring.Len(),
	}
}
