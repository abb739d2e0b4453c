package session

import (
	"errors"
	"time"

	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/opd-ai/lanshare/statesync"
	"github.com/opd-ai/lanshare/transport"
	"github.com/sirupsen/logrus"
)

// DefaultJoinRetry is how often Join is repeated until Welcome arrives.
const DefaultJoinRetry = time.Second

// ClientState is the connection state of a Client.
type ClientState int

const (
	ClientJoining ClientState = iota
	ClientConnected
	ClientDisconnected
)

// String returns the state name for logging.
func (s ClientState) String() string {
	switch s {
	case ClientJoining:
		return "joining"
	case ClientConnected:
		return "connected"
	case ClientDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MediaHandler receives the media messages a connected client gets from the host.
type MediaHandler interface {
	HandleVideoFrame(frame *protocol.VideoFrame)
	HandleVideoCodecInfo(info *protocol.VideoCodecInfo)
	HandleAudioFrame(frame *protocol.AudioFrame)
}

// ClientConfig tunes a Client. Zero fields take the defaults.
type ClientConfig struct {
	JoinRetry     time.Duration
	ClientTimeout time.Duration
	SyncPeriod    time.Duration
	Interpolation statesync.InterpolatorConfig
}

// Client is the joining side of a session.
type Client struct {
	conn          PacketConn
	joinRetry     time.Duration
	clientTimeout time.Duration
	timeProvider  clock.TimeProvider

	state ClientState
	id    protocol.PlayerID
	err   error

	local  protocol.PlayerState
	interp *statesync.Interpolator
	timer  *statesync.Timer
	media  MediaHandler

	joinStarted  time.Time
	lastJoinSent time.Time
	lastHeard    time.Time

	onConnected    func(id protocol.PlayerID)
	onDisconnected func(err error)
	onPlayerLeft   func(id protocol.PlayerID)
}

// NewClient creates a client on a socket connected to the host. Call Start
// to send the first Join.
func NewClient(conn PacketConn, cfg ClientConfig) *Client {
	if cfg.JoinRetry <= 0 {
		cfg.JoinRetry = DefaultJoinRetry
	}
	if cfg.ClientTimeout <= 0 {
		cfg.ClientTimeout = DefaultClientTimeout
	}

	return &Client{
		conn:          conn,
		joinRetry:     cfg.JoinRetry,
		clientTimeout: cfg.ClientTimeout,
		timeProvider:  clock.DefaultTimeProvider{},
		state:         ClientJoining,
		local:         protocol.DefaultSpawn(protocol.HostPlayerID),
		interp:        statesync.NewInterpolator(cfg.Interpolation),
		timer:         statesync.NewTimer(cfg.SyncPeriod),
	}
}

// SetTimeProvider sets the clock used for join retries, liveness and the
// interpolator.
func (c *Client) SetTimeProvider(tp clock.TimeProvider) {
	c.timeProvider = clock.OrDefault(tp)
	c.interp.SetTimeProvider(c.timeProvider)
}

// SetMediaHandler routes video and audio messages to h.
func (c *Client) SetMediaHandler(h MediaHandler) {
	c.media = h
}

// OnConnected registers the callback fired when Welcome arrives.
func (c *Client) OnConnected(cb func(id protocol.PlayerID)) {
	c.onConnected = cb
}

// OnDisconnected registers the callback fired once when the client stops,
// with the reason or nil after Close.
func (c *Client) OnDisconnected(cb func(err error)) {
	c.onDisconnected = cb
}

// OnPlayerLeft registers the callback fired when the host reports a departure.
func (c *Client) OnPlayerLeft(cb func(id protocol.PlayerID)) {
	c.onPlayerLeft = cb
}

// Start sends the first Join.
func (c *Client) Start() error {
	now := c.timeProvider.Now()
	c.joinStarted = now
	return c.sendJoin(now)
}

// Tick runs one iteration: drain the socket, retry or time out the join,
// check host liveness, send the local transform each sync period, and
// advance the interpolation by dt.
func (c *Client) Tick(dt time.Duration) {
	if c.state == ClientDisconnected {
		return
	}
	c.Poll()

	now := c.timeProvider.Now()
	switch c.state {
	case ClientJoining:
		if now.Sub(c.joinStarted) >= c.clientTimeout {
			c.disconnect(ErrJoinTimeout)
			return
		}
		if now.Sub(c.lastJoinSent) >= c.joinRetry {
			_ = c.sendJoin(now)
		}
	case ClientConnected:
		if now.Sub(c.lastHeard) >= c.clientTimeout {
			c.disconnect(ErrHostTimeout)
			return
		}
		if c.timer.Tick(dt) {
			c.sendUpdate()
		}
	}

	c.interp.Step(dt)
}

// Poll handles every datagram waiting on the socket.
func (c *Client) Poll() int {
	return c.conn.Drain(c.HandleDatagram)
}

// HandleDatagram applies one datagram from the host.
func (c *Client) HandleDatagram(d transport.Datagram) {
	if c.state == ClientDisconnected {
		return
	}
	if d.Err != nil {
		if transport.IsPeerDisconnect(d.Err) {
			c.handleUnreachable()
		}
		return
	}

	msg, err := protocol.DecodeServerMessage(d.Data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Client.HandleDatagram",
			"error":    err.Error(),
		}).Debug("Dropping malformed datagram")
		return
	}
	c.lastHeard = c.timeProvider.Now()

	if w, ok := msg.(*protocol.Welcome); ok {
		c.handleWelcome(w)
		return
	}
	if c.state != ClientConnected {
		return
	}

	switch m := msg.(type) {
	case *protocol.GameState:
		c.interp.Sync(m.Players, c.id)
	case *protocol.PlayerLeft:
		if c.interp.Remove(m.ID) && c.onPlayerLeft != nil {
			c.onPlayerLeft(m.ID)
		}
	case *protocol.VideoFrame:
		if c.media != nil {
			c.media.HandleVideoFrame(m)
		}
	case *protocol.VideoCodecInfo:
		if c.media != nil {
			c.media.HandleVideoCodecInfo(m)
		}
	case *protocol.AudioFrame:
		if c.media != nil {
			c.media.HandleAudioFrame(m)
		}
	}
}

func (c *Client) handleWelcome(w *protocol.Welcome) {
	if c.state != ClientJoining {
		return
	}
	c.state = ClientConnected
	c.id = w.AssignedID
	c.local.ID = w.AssignedID

	logrus.WithFields(logrus.Fields{
		"function":  "Client.handleWelcome",
		"player_id": c.id,
	}).Info("Joined session")

	if c.onConnected != nil {
		c.onConnected(c.id)
	}
}

// handleUnreachable treats a refused port as a disconnect once connected.
// While joining the host may simply not be up yet, so Join keeps retrying.
func (c *Client) handleUnreachable() {
	if c.state == ClientConnected {
		c.disconnect(ErrHostUnreachable)
		return
	}
	logrus.WithFields(logrus.Fields{
		"function": "Client.handleUnreachable",
	}).Debug("Host port unreachable, retrying join")
}

func (c *Client) sendJoin(now time.Time) error {
	c.lastJoinSent = now
	return c.send(&protocol.Join{})
}

func (c *Client) sendUpdate() {
	err := c.send(&protocol.PlayerUpdate{
		Position: c.local.Position,
		Yaw:      c.local.Yaw,
		Pitch:    c.local.Pitch,
	})
	if transport.IsPeerDisconnect(err) {
		c.disconnect(ErrHostUnreachable)
	}
}

func (c *Client) send(msg protocol.ClientMessage) error {
	data, err := protocol.EncodeClientMessage(msg)
	if err != nil {
		return err
	}
	return c.conn.Send(data, nil)
}

func (c *Client) disconnect(err error) {
	if c.state == ClientDisconnected {
		return
	}
	c.state = ClientDisconnected
	c.err = err
	c.interp.Clear()

	fields := logrus.Fields{
		"function":  "Client.disconnect",
		"player_id": c.id,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	logrus.WithFields(fields).Info("Left session")

	if c.onDisconnected != nil {
		c.onDisconnected(err)
	}
}

// Close sends Leave once, without retrying, and stops the client.
func (c *Client) Close() error {
	if c.state == ClientDisconnected {
		return nil
	}
	err := c.send(&protocol.Leave{})
	c.disconnect(nil)
	if err != nil && !errors.Is(err, transport.ErrClosed) {
		return err
	}
	return nil
}

// SetLocalState sets the transform reported to the host. The id is ignored.
func (c *Client) SetLocalState(state protocol.PlayerState) {
	state.ID = c.id
	c.local = state
}

// LocalState returns the transform reported to the host.
func (c *Client) LocalState() protocol.PlayerState {
	return c.local
}

// RemotePlayers returns every other player with its smoothed transform.
func (c *Client) RemotePlayers() []statesync.RemotePlayer {
	return c.interp.Players()
}

// ID returns the assigned id once connected.
func (c *Client) ID() (protocol.PlayerID, bool) {
	return c.id, c.state == ClientConnected
}

// State returns the connection state.
func (c *Client) State() ClientState {
	return c.state
}

// Err returns why the client disconnected, or nil.
func (c *Client) Err() error {
	return c.err
}
