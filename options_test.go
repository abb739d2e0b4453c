package lanshare

import (
	"testing"
	"time"

	"github.com/opd-ai/lanshare/media/audio"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/stretchr/testify/assert"
)

func TestNewOptionsDefaults(t *testing.T) {
	o := NewOptions()
	assert.Equal(t, 5000, o.ServicePort)
	assert.Equal(t, 7777, o.DiscoveryPort)
	assert.Equal(t, 50*time.Millisecond, o.TickInterval)
	assert.Equal(t, 5*time.Second, o.ClientTimeout)
	assert.Equal(t, 4000, o.MaxChunkSize)
	assert.Equal(t, 200*time.Millisecond, o.AssemblyTimeout)
	assert.Equal(t, 2, o.JitterDepth)
	assert.Equal(t, 30*time.Millisecond, o.JitterHold)
	assert.Equal(t, 60, o.KeyframeInterval)
	assert.Equal(t, 33*time.Millisecond, o.CaptureInterval)
	assert.NoError(t, o.Validate())
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"service port", func(o *Options) { o.ServicePort = 0 }},
		{"discovery port", func(o *Options) { o.DiscoveryPort = 70000 }},
		{"shared ports", func(o *Options) { o.DiscoveryPort = o.ServicePort }},
		{"tick interval", func(o *Options) { o.TickInterval = 0 }},
		{"client timeout", func(o *Options) { o.ClientTimeout = time.Millisecond }},
		{"timeout below tick", func(o *Options) { o.TickInterval = time.Second; o.ClientTimeout = time.Second }},
		{"chunk size", func(o *Options) { o.MaxChunkSize = 10 }},
		{"chunk over datagram", func(o *Options) { o.MaxChunkSize = protocol.MaxVideoChunkSize + 1 }},
		{"zero jitter hold", func(o *Options) { o.JitterHold = 0 }},
		{"keyframe interval", func(o *Options) { o.KeyframeInterval = 0 }},
		{"jitter depth", func(o *Options) { o.JitterDepth = 0 }},
		{"missing codec", func(o *Options) { o.VideoDecoder = nil }},
		{"audio output", func(o *Options) { o.AudioOutput = audio.Format{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			tt.modify(o)
			assert.ErrorIs(t, o.Validate(), ErrInvalidOptions)
		})
	}

	o := NewOptions()
	o.MaxChunkSize = protocol.MaxVideoChunkSize
	assert.NoError(t, o.Validate())

	o = NewOptions()
	o.VideoEnabled = false
	o.VideoDecoder = nil
	o.Discovery = false
	o.DiscoveryPort = 0
	assert.NoError(t, o.Validate())
}

func TestApplyEnvironment(t *testing.T) {
	t.Setenv("LANSHARE_NAME", "Attic")
	t.Setenv("LANSHARE_PORT", "6000")
	t.Setenv("LANSHARE_TICK_MS", "abc")
	t.Setenv("LANSHARE_JITTER_DEPTH", "999")
	t.Setenv("LANSHARE_CLIENT_TIMEOUT_MS", "2500")
	t.Setenv("LANSHARE_VIDEO", "false")
	t.Setenv("LANSHARE_AUDIO", "maybe")

	o := NewOptions()
	o.ApplyEnvironment()

	assert.Equal(t, "Attic", o.Name)
	assert.Equal(t, 6000, o.ServicePort)
	assert.Equal(t, 50*time.Millisecond, o.TickInterval)
	assert.Equal(t, 2, o.JitterDepth)
	assert.Equal(t, 2500*time.Millisecond, o.ClientTimeout)
	assert.False(t, o.VideoEnabled)
	assert.True(t, o.AudioEnabled)
}
