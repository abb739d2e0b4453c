package session

import (
	"net"
	"sort"
	"time"

	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/opd-ai/lanshare/statesync"
	"github.com/opd-ai/lanshare/transport"
	"github.com/sirupsen/logrus"
)

// DefaultClientTimeout is how long a peer may stay silent before eviction.
const DefaultClientTimeout = 5 * time.Second

// PacketConn is the socket a session runs on. transport.Endpoint
// implements it.
type PacketConn interface {
	Drain(fn func(transport.Datagram)) int
	Send(data []byte, addr net.Addr) error
}

// LeaveReason says why a peer left the session.
type LeaveReason int

const (
	// LeaveGraceful means the peer sent Leave.
	LeaveGraceful LeaveReason = iota
	// LeaveTimeout means the peer was silent for the client timeout.
	LeaveTimeout
	// LeaveDisconnected means the peer's port refused or reset datagrams.
	LeaveDisconnected
)

// String returns the reason name for logging.
func (r LeaveReason) String() string {
	switch r {
	case LeaveGraceful:
		return "graceful"
	case LeaveTimeout:
		return "timeout"
	case LeaveDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// PeerJoinedCallback is called once for every newly registered client.
type PeerJoinedCallback func(id protocol.PlayerID, addr net.Addr)

// PeerLeftCallback is called exactly once when a registered client is removed.
type PeerLeftCallback func(id protocol.PlayerID, reason LeaveReason)

// ServerConfig tunes a Server. Zero fields take the defaults.
type ServerConfig struct {
	ClientTimeout time.Duration
	SyncPeriod    time.Duration
}

// ServerStats counts host-side session events.
type ServerStats struct {
	Joined       uint64
	Left         uint64
	Malformed    uint64
	Unregistered uint64
	Broadcasts   uint64
}

// Server is the host's session manager.
type Server struct {
	conn          PacketConn
	registry      *Registry
	states        map[protocol.PlayerID]protocol.PlayerState
	timer         *statesync.Timer
	clientTimeout time.Duration
	timeProvider  clock.TimeProvider

	onPeerJoined PeerJoinedCallback
	onPeerLeft   PeerLeftCallback

	stats ServerStats
}

// NewServer creates a session manager on conn. The host's own player is
// registered at the default spawn.
func NewServer(conn PacketConn, cfg ServerConfig) *Server {
	if cfg.ClientTimeout <= 0 {
		cfg.ClientTimeout = DefaultClientTimeout
	}

	s := &Server{
		conn:          conn,
		registry:      NewRegistry(),
		states:        make(map[protocol.PlayerID]protocol.PlayerState),
		timer:         statesync.NewTimer(cfg.SyncPeriod),
		clientTimeout: cfg.ClientTimeout,
		timeProvider:  clock.DefaultTimeProvider{},
	}
	s.states[protocol.HostPlayerID] = protocol.DefaultSpawn(protocol.HostPlayerID)
	return s
}

// SetTimeProvider sets the clock used for liveness.
func (s *Server) SetTimeProvider(tp clock.TimeProvider) {
	s.timeProvider = clock.OrDefault(tp)
}

// OnPeerJoined registers the join callback.
func (s *Server) OnPeerJoined(cb PeerJoinedCallback) {
	s.onPeerJoined = cb
}

// OnPeerLeft registers the leave callback.
func (s *Server) OnPeerLeft(cb PeerLeftCallback) {
	s.onPeerLeft = cb
}

// Tick runs one iteration: drain the socket, evict idle peers, and
// broadcast GameState when the sync period elapsed.
func (s *Server) Tick(dt time.Duration) {
	s.Poll()
	s.Sweep()
	if s.timer.Tick(dt) {
		s.BroadcastState()
	}
}

// Poll handles every datagram waiting on the socket.
func (s *Server) Poll() int {
	return s.conn.Drain(s.HandleDatagram)
}

// HandleDatagram applies one received datagram.
func (s *Server) HandleDatagram(d transport.Datagram) {
	if d.Err != nil {
		if transport.IsPeerDisconnect(d.Err) {
			s.DisconnectAddr(d.Addr)
		}
		return
	}

	msg, err := protocol.DecodeClientMessage(d.Data)
	if err != nil {
		s.stats.Malformed++
		logrus.WithFields(logrus.Fields{
			"function": "Server.HandleDatagram",
			"addr":     d.Addr,
			"error":    err.Error(),
		}).Debug("Dropping malformed datagram")
		return
	}

	entry := s.registry.Lookup(d.Addr)
	if entry != nil {
		entry.LastActivity = s.timeProvider.Now()
	}

	switch m := msg.(type) {
	case *protocol.Join:
		s.handleJoin(d.Addr, entry)
	case *protocol.PlayerUpdate:
		if entry == nil {
			s.stats.Unregistered++
			return
		}
		s.states[entry.ID] = protocol.PlayerState{
			ID:       entry.ID,
			Position: m.Position,
			Yaw:      m.Yaw,
			Pitch:    m.Pitch,
		}
	case *protocol.Leave:
		if entry == nil {
			s.stats.Unregistered++
			return
		}
		s.removePeer(entry.ID, LeaveGraceful)
	}
}

func (s *Server) handleJoin(addr net.Addr, entry *ClientEntry) {
	if entry != nil {
		// The Welcome was probably lost; repeat it with the same id.
		logrus.WithFields(logrus.Fields{
			"function":  "Server.handleJoin",
			"player_id": entry.ID,
			"addr":      addr,
		}).Debug("Repeating Welcome for registered client")
		s.sendTo(entry.ID, addr, &protocol.Welcome{AssignedID: entry.ID})
		return
	}

	entry, _ = s.registry.Register(addr, s.timeProvider.Now())
	s.states[entry.ID] = protocol.DefaultSpawn(entry.ID)
	s.stats.Joined++

	logrus.WithFields(logrus.Fields{
		"function":  "Server.handleJoin",
		"player_id": entry.ID,
		"addr":      addr,
		"clients":   s.registry.Len(),
	}).Info("Client joined")

	if !s.sendTo(entry.ID, addr, &protocol.Welcome{AssignedID: entry.ID}) {
		return
	}
	if s.onPeerJoined != nil {
		s.onPeerJoined(entry.ID, addr)
	}
}

// Sweep evicts every client idle for longer than the client timeout.
func (s *Server) Sweep() {
	for _, id := range s.registry.Expired(s.timeProvider.Now(), s.clientTimeout) {
		s.removePeer(id, LeaveTimeout)
	}
}

// DisconnectAddr evicts the client at addr after a refused or reset
// datagram. Unknown addresses are ignored.
func (s *Server) DisconnectAddr(addr net.Addr) {
	if entry := s.registry.Lookup(addr); entry != nil {
		s.removePeer(entry.ID, LeaveDisconnected)
	}
}

// BroadcastState sends one GameState snapshot to every client.
func (s *Server) BroadcastState() {
	if s.registry.Len() == 0 {
		return
	}
	s.stats.Broadcasts++
	s.Broadcast(&protocol.GameState{Players: s.Players()})
}

// Broadcast sends msg to every registered client. Clients whose port is
// unreachable are evicted afterwards.
func (s *Server) Broadcast(msg protocol.ServerMessage) {
	data, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Server.Broadcast",
			"type":     msg.Type().String(),
			"error":    err.Error(),
		}).Error("Failed to encode message")
		return
	}

	var unreachable []protocol.PlayerID
	for _, e := range s.registry.Entries() {
		if err := s.conn.Send(data, e.Addr); err != nil {
			if transport.IsPeerDisconnect(err) {
				unreachable = append(unreachable, e.ID)
				continue
			}
			logrus.WithFields(logrus.Fields{
				"function":  "Server.Broadcast",
				"player_id": e.ID,
				"error":     err.Error(),
			}).Debug("Send failed")
		}
	}
	for _, id := range unreachable {
		s.removePeer(id, LeaveDisconnected)
	}
}

// sendTo sends msg to one client and evicts it if its port is unreachable.
// It reports whether the client is still registered.
func (s *Server) sendTo(id protocol.PlayerID, addr net.Addr, msg protocol.ServerMessage) bool {
	data, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		return true
	}
	if err := s.conn.Send(data, addr); err != nil && transport.IsPeerDisconnect(err) {
		s.removePeer(id, LeaveDisconnected)
		return false
	}
	return true
}

func (s *Server) removePeer(id protocol.PlayerID, reason LeaveReason) {
	if !s.registry.Remove(id) {
		return
	}
	delete(s.states, id)
	s.stats.Left++

	logrus.WithFields(logrus.Fields{
		"function":  "Server.removePeer",
		"player_id": id,
		"reason":    reason.String(),
		"clients":   s.registry.Len(),
	}).Info("Client left")

	s.Broadcast(&protocol.PlayerLeft{ID: id})
	if s.onPeerLeft != nil {
		s.onPeerLeft(id, reason)
	}
}

// SetHostState replaces the host's own PlayerState.
func (s *Server) SetHostState(state protocol.PlayerState) {
	state.ID = protocol.HostPlayerID
	s.states[protocol.HostPlayerID] = state
}

// Players returns every PlayerState, host included, in id order.
func (s *Server) Players() []protocol.PlayerState {
	out := make([]protocol.PlayerState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RemotePlayers returns every client's PlayerState in id order.
func (s *Server) RemotePlayers() []protocol.PlayerState {
	all := s.Players()
	out := all[:0]
	for _, st := range all {
		if st.ID != protocol.HostPlayerID {
			out = append(out, st)
		}
	}
	return out
}

// Player returns the state of one player.
func (s *Server) Player(id protocol.PlayerID) (protocol.PlayerState, bool) {
	st, ok := s.states[id]
	return st, ok
}

// ClientAddrs returns a snapshot of every client address for media workers.
func (s *Server) ClientAddrs() []net.Addr {
	return s.registry.Addrs()
}

// ClientCount returns the number of joined clients.
func (s *Server) ClientCount() int {
	return s.registry.Len()
}

// Stats returns a snapshot of the counters.
func (s *Server) Stats() ServerStats {
	return s.stats
}
