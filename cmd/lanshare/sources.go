package main

import (
	"math"
	"sync"
	"time"

	"github.com/opd-ai/lanshare"
	"github.com/sirupsen/logrus"
)

// gradientSource draws a moving colour gradient in place of a screen
// capture.
type gradientSource struct {
	width, height int
	frame         int
}

func newGradientSource(width, height int) *gradientSource {
	return &gradientSource{width: width, height: height}
}

func (g *gradientSource) Capture() ([]byte, int, int, bool) {
	rgba := make([]byte, g.width*g.height*4)
	shift := g.frame * 2
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			i := (y*g.width + x) * 4
			rgba[i] = byte(x + shift)
			rgba[i+1] = byte(y + shift/2)
			rgba[i+2] = byte(128 + 127*math.Sin(float64(x+y+shift)/40))
			rgba[i+3] = 0xFF
		}
	}
	g.frame++
	return rgba, g.width, g.height, true
}

// toneSource produces a sine tone paced by the wall clock, in 10 ms
// buffers.
type toneSource struct {
	rate      uint32
	channels  int
	frequency float64

	phase   float64
	started time.Time
	emitted int // frames
}

func newToneSource(rate uint32, channels int, frequency float64) *toneSource {
	return &toneSource{rate: rate, channels: channels, frequency: frequency}
}

func (s *toneSource) ReadSamples() ([]float32, uint32, int, bool) {
	now := time.Now()
	if s.started.IsZero() {
		s.started = now
	}
	block := int(s.rate) / 100
	due := int(now.Sub(s.started).Seconds() * float64(s.rate))
	if due-s.emitted < block {
		return nil, 0, 0, false
	}

	samples := make([]float32, block*s.channels)
	step := 2 * math.Pi * s.frequency / float64(s.rate)
	for i := 0; i < block; i++ {
		v := float32(0.2 * math.Sin(s.phase))
		for ch := 0; ch < s.channels; ch++ {
			samples[i*s.channels+ch] = v
		}
		s.phase = math.Mod(s.phase+step, 2*math.Pi)
	}
	s.emitted += block
	return samples, s.rate, s.channels, true
}

// orbit walks the local player around a circle.
type orbit struct {
	angle float64
}

func newOrbit() *orbit { return &orbit{} }

func (o *orbit) step(dt time.Duration) lanshare.PlayerState {
	o.angle += dt.Seconds() * 0.5
	return lanshare.PlayerState{
		Position: [3]float32{float32(3 * math.Cos(o.angle)), 1.8, float32(3 * math.Sin(o.angle))},
		Yaw:      float32(math.Remainder(o.angle+math.Pi/2, 2*math.Pi)),
	}
}

// logSink reports received frames instead of drawing them.
type logSink struct {
	frames int
}

func (s *logSink) PresentFrame(rgba []byte, width, height int) {
	s.frames++
	if s.frames == 1 || s.frames%150 == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "logSink.PresentFrame",
			"frames":   s.frames,
			"width":    width,
			"height":   height,
		}).Info("Presenting video")
	}
}

// nullDevice pulls audio at the playback rate like a sound card callback
// would, and discards it.
type nullDevice struct {
	playback *lanshare.Playback
	stop     chan struct{}
	wg       sync.WaitGroup
}

func newNullDevice(p *lanshare.Playback) *nullDevice {
	return &nullDevice{playback: p, stop: make(chan struct{})}
}

func (d *nullDevice) Start() {
	format := d.playback.Format()
	buf := make([]float32, int(format.SampleRate)/100*format.Channels)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				d.playback.Fill(buf)
			}
		}
	}()
}

func (d *nullDevice) Stop() {
	close(d.stop)
	d.wg.Wait()
}
