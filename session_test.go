package lanshare

import (
	"math"
	"net"
	"testing"
	"time"

	"github.com/opd-ai/lanshare/protocol"
	"github.com/opd-ai/lanshare/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPort = 45123

type gradientSource struct {
	frames int
}

func (s *gradientSource) Capture() ([]byte, int, int, bool) {
	const w, h = 16, 8
	rgba := make([]byte, w*h*4)
	for i := 0; i < len(rgba); i += 4 {
		rgba[i] = byte(i + s.frames)
		rgba[i+1] = byte(i / 2)
		rgba[i+2] = 0x40
		rgba[i+3] = 0xFF
	}
	s.frames++
	return rgba, w, h, true
}

type toneSource struct {
	phase float64
	ready bool
}

func (s *toneSource) ReadSamples() ([]float32, uint32, int, bool) {
	s.ready = !s.ready
	if !s.ready {
		return nil, 0, 0, false
	}
	samples := make([]float32, 480)
	for i := range samples {
		samples[i] = float32(0.3 * math.Sin(s.phase))
		s.phase += 2 * math.Pi * 440 / 48000
	}
	return samples, 48000, 1, true
}

type frameSink struct {
	frames int
	width  int
}

func (s *frameSink) PresentFrame(rgba []byte, width, height int) {
	s.frames++
	s.width = width
}

func testOptions() *Options {
	o := NewOptions()
	o.ServicePort = testPort
	o.Discovery = false
	o.TickInterval = 10 * time.Millisecond
	o.CaptureInterval = 10 * time.Millisecond
	return o
}

func iterateUntil(t *testing.T, host *HostSession, client *ClientSession, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		host.Iterate()
		client.Iterate()
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestHostAndClientShareStateAndMedia(t *testing.T) {
	host, err := NewHost(testOptions(), &gradientSource{}, &toneSource{})
	require.NoError(t, err)
	defer host.Close()

	sink := &frameSink{}
	client, err := Join(testOptions(), "127.0.0.1:45123", sink)
	require.NoError(t, err)
	defer client.Close()

	var joined []protocol.PlayerID
	host.OnPeerJoined(func(id protocol.PlayerID, _ net.Addr) { joined = append(joined, id) })

	iterateUntil(t, host, client, func() bool { return client.State() == session.ClientConnected })
	id, ok := client.ID()
	require.True(t, ok)
	assert.Equal(t, protocol.PlayerID(1), id)
	assert.Equal(t, []protocol.PlayerID{1}, joined)

	host.SetLocalPlayer(PlayerState{Position: [3]float32{1, 2, 3}})
	client.SetLocalPlayer(PlayerState{Position: [3]float32{-4, 1.8, 0}, Yaw: 1})

	iterateUntil(t, host, client, func() bool {
		remote := host.RemotePlayers()
		return len(remote) == 1 && remote[0].Position[0] == -4
	})
	iterateUntil(t, host, client, func() bool {
		remote := client.RemotePlayers()
		return len(remote) == 1 && remote[0].Target.Position == [3]float32{1, 2, 3}
	})
	assert.Equal(t, protocol.HostPlayerID, client.RemotePlayers()[0].Target.ID)

	iterateUntil(t, host, client, func() bool { return sink.frames > 0 })
	assert.Equal(t, 16, sink.width)

	iterateUntil(t, host, client, func() bool { return client.Playback().Stats().Buffered > 0 })
	assert.Greater(t, host.Stats().Audio.Packets, uint64(0))

	require.NoError(t, client.Close())
	assert.False(t, client.IsRunning())
	assert.ErrorIs(t, client.Err(), ErrSessionClosed)

	deadline := time.Now().Add(3 * time.Second)
	for host.Stats().Session.Left == 0 && time.Now().Before(deadline) {
		host.Iterate()
		time.Sleep(5 * time.Millisecond)
	}
	assert.Empty(t, host.RemotePlayers())
}

func TestJoinWithoutHostTimesOut(t *testing.T) {
	o := testOptions()
	o.ServicePort = testPort + 1
	o.ClientTimeout = 200 * time.Millisecond
	o.VideoEnabled = false
	o.AudioEnabled = false

	client, err := Join(o, "127.0.0.1:45124", nil)
	require.NoError(t, err)
	defer client.Close()

	deadline := time.Now().Add(3 * time.Second)
	for client.IsRunning() && time.Now().Before(deadline) {
		client.Iterate()
		time.Sleep(5 * time.Millisecond)
	}
	assert.False(t, client.IsRunning())
	assert.Error(t, client.Err())

	dst := make([]float32, 4)
	client.Playback().Fill(dst)
	assert.Equal(t, []float32{0, 0, 0, 0}, dst)
}

func TestNewHostRejectsInvalidOptions(t *testing.T) {
	o := testOptions()
	o.TickInterval = 0
	_, err := NewHost(o, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)

	_, err = Join(o, "127.0.0.1:1", nil)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}
