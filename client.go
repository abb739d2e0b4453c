package lanshare

import (
	"fmt"
	"net"
	"time"

	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/jitter"
	"github.com/opd-ai/lanshare/media/audio"
	"github.com/opd-ai/lanshare/media/video"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/opd-ai/lanshare/session"
	"github.com/opd-ai/lanshare/transport"
	"github.com/sirupsen/logrus"
)

// ClientStats aggregates client-side counters.
type ClientStats struct {
	State        session.ClientState
	Video        video.ReceiverStats
	Audio        audio.ReceiverStats
	InboxDropped uint64
}

// ClientSession is a joined session: the session client, the video and
// audio receive paths and their decode workers.
type ClientSession struct {
	options      *Options
	endpoint     *transport.Endpoint
	client       *session.Client
	timeProvider clock.TimeProvider

	video    *video.Receiver
	audio    *audio.Receiver
	playback *audio.Playback

	lastIterate time.Time
	closed      bool
}

// mediaRouter hands media messages from the session client to the
// receivers.
type mediaRouter struct {
	video *video.Receiver
	audio *audio.Receiver
}

func (m mediaRouter) HandleVideoFrame(frame *protocol.VideoFrame) {
	if m.video != nil {
		m.video.HandleChunk(frame.Chunk)
	}
}

func (m mediaRouter) HandleVideoCodecInfo(info *protocol.VideoCodecInfo) {
	if m.video != nil {
		m.video.HandleCodecInfo(*info)
	}
}

func (m mediaRouter) HandleAudioFrame(frame *protocol.AudioFrame) {
	if m.audio != nil {
		m.audio.HandleChunk(frame.Chunk)
	}
}

// Join dials the host at address and sends the first Join. The session is
// connected once Iterate has processed the host's Welcome. A nil sink
// discards video. Nil options select NewOptions.
//
// Parameters:
//   - options: Session settings
//   - address: Host service address, e.g. "192.168.1.20:5000"
//   - sink: Receives decoded frames on the tick loop
//
// Returns:
//   - *ClientSession: The joining session
//   - error: Invalid options, or the address could not be dialed
func Join(options *Options, address string, sink VideoSink) (*ClientSession, error) {
	if options == nil {
		options = NewOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	endpoint, err := transport.DialHost(address)
	if err != nil {
		return nil, fmt.Errorf("join %s: %w", address, err)
	}

	c := &ClientSession{
		options:      options,
		endpoint:     endpoint,
		timeProvider: clock.DefaultTimeProvider{},
	}
	c.client = session.NewClient(endpoint, session.ClientConfig{
		ClientTimeout: options.ClientTimeout,
		SyncPeriod:    options.TickInterval,
	})

	if options.VideoEnabled {
		c.video = video.NewReceiver(options.VideoDecoder, sink, video.ReceiverConfig{
			AssemblyTimeout: options.AssemblyTimeout,
			Jitter: jitter.Config{
				TargetDepth: options.JitterDepth,
				MinHold:     options.JitterHold,
			},
		})
		c.video.Start()
	}

	if options.AudioEnabled {
		c.audio, err = audio.NewReceiver(audio.ReceiverConfig{
			Output:  options.AudioOutput,
			Factory: options.AudioDecoder,
		})
		if err != nil {
			c.stopWorkers()
			endpoint.Close()
			return nil, fmt.Errorf("join %s: %w", address, err)
		}
		c.audio.Start()
		c.playback = c.audio.Playback()
	} else {
		// Always silent.
		c.playback = audio.NewPlayback(audio.NewRing(1), options.AudioOutput)
	}

	c.client.SetMediaHandler(mediaRouter{video: c.video, audio: c.audio})

	if err := c.client.Start(); err != nil {
		c.stopWorkers()
		endpoint.Close()
		return nil, fmt.Errorf("join %s: %w", address, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Join",
		"host":     address,
		"local":    endpoint.LocalAddr().String(),
	}).Info("Joining session")

	return c, nil
}

// Iterate runs one tick: session traffic, join retries, liveness, local
// state upload, interpolation and media presentation.
func (c *ClientSession) Iterate() {
	if c.closed {
		return
	}

	now := c.timeProvider.Now()
	dt := c.options.TickInterval
	if !c.lastIterate.IsZero() {
		dt = now.Sub(c.lastIterate)
	}
	c.lastIterate = now

	c.client.Tick(dt)
	if c.video != nil {
		c.video.Poll()
	}
	if c.audio != nil {
		c.audio.Poll()
	}
}

// SetLocalPlayer sets the transform reported to the host.
func (c *ClientSession) SetLocalPlayer(state PlayerState) {
	c.client.SetLocalState(state)
}

// RemotePlayers returns every other player with its smoothed transform.
func (c *ClientSession) RemotePlayers() []RemotePlayer {
	return c.client.RemotePlayers()
}

// OnConnected registers the callback fired when the host accepts the join.
func (c *ClientSession) OnConnected(cb func(id protocol.PlayerID)) {
	c.client.OnConnected(cb)
}

// OnDisconnected registers the callback fired when the session ends, with
// the reason or nil after Close.
func (c *ClientSession) OnDisconnected(cb func(err error)) {
	c.client.OnDisconnected(cb)
}

// OnPlayerLeft registers the callback fired when the host reports a
// departed peer.
func (c *ClientSession) OnPlayerLeft(cb func(id protocol.PlayerID)) {
	c.client.OnPlayerLeft(cb)
}

// Playback returns the audio device end. Its Fill may be called from the
// device callback goroutine.
func (c *ClientSession) Playback() *Playback {
	return c.playback
}

// ID returns the assigned id once connected.
func (c *ClientSession) ID() (protocol.PlayerID, bool) {
	return c.client.ID()
}

// State returns the connection state.
func (c *ClientSession) State() session.ClientState {
	return c.client.State()
}

// Err returns why the session ended, or nil while it runs. A session
// closed locally reports ErrSessionClosed.
func (c *ClientSession) Err() error {
	if err := c.client.Err(); err != nil {
		return err
	}
	if c.closed {
		return ErrSessionClosed
	}
	return nil
}

// LocalAddr returns the client's ephemeral address.
func (c *ClientSession) LocalAddr() net.Addr {
	return c.endpoint.LocalAddr()
}

// IsRunning reports whether the session is joining or connected.
func (c *ClientSession) IsRunning() bool {
	return !c.closed && c.client.State() != session.ClientDisconnected
}

// Stats returns a snapshot of the client counters.
func (c *ClientSession) Stats() ClientStats {
	stats := ClientStats{
		State:        c.client.State(),
		InboxDropped: c.endpoint.Dropped(),
	}
	if c.video != nil {
		stats.Video = c.video.Stats()
	}
	if c.audio != nil {
		stats.Audio = c.audio.Stats()
	}
	return stats
}

// Close sends Leave, stops the decode workers and closes the socket.
func (c *ClientSession) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	leaveErr := c.client.Close()
	c.stopWorkers()
	if err := c.endpoint.Close(); err != nil {
		return err
	}
	return leaveErr
}

func (c *ClientSession) stopWorkers() {
	if c.video != nil {
		c.video.Stop()
	}
	if c.audio != nil {
		c.audio.Stop()
	}
}
