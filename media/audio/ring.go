package audio

import "sync/atomic"

// Ring is a fixed-capacity single-producer single-consumer sample FIFO. The
// decoder goroutine writes and the audio device callback reads; neither
// side blocks or takes a lock.
type Ring struct {
	buf   []float32
	read  atomic.Uint64 // total samples consumed
	write atomic.Uint64 // total samples produced

	overflow atomic.Uint64
}

// NewRing creates a ring holding capacity samples. Capacity is at least 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity)}
}

// NewRingFor sizes a ring to hold half a second of audio in format f.
func NewRingFor(f Format) *Ring {
	return NewRing(int(f.SampleRate) * f.Channels / 2)
}

// Cap returns the capacity in samples.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of samples ready to read.
func (r *Ring) Len() int {
	return int(r.write.Load() - r.read.Load())
}

// Write copies as many samples as fit and returns that count. Samples that
// do not fit are dropped. Producer side only.
func (r *Ring) Write(samples []float32) int {
	w := r.write.Load()
	free := len(r.buf) - int(w-r.read.Load())
	n := len(samples)
	if n > free {
		r.overflow.Add(uint64(n - free))
		n = free
	}
	size := uint64(len(r.buf))
	for i := 0; i < n; i++ {
		r.buf[(w+uint64(i))%size] = samples[i]
	}
	r.write.Store(w + uint64(n))
	return n
}

// Read copies up to len(dst) available samples into dst and returns the
// count. Consumer side only.
func (r *Ring) Read(dst []float32) int {
	rd := r.read.Load()
	n := int(r.write.Load() - rd)
	if n > len(dst) {
		n = len(dst)
	}
	size := uint64(len(r.buf))
	for i := 0; i < n; i++ {
		dst[i] = r.buf[(rd+uint64(i))%size]
	}
	r.read.Store(rd + uint64(n))
	return n
}

// Overflow returns how many samples were dropped because the ring was full.
func (r *Ring) Overflow() uint64 {
	return r.overflow.Load()
}
