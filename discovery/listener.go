package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/sirupsen/logrus"
)

const readPollInterval = time.Second

// SessionCallback is called for every newly discovered host.
type SessionCallback func(Session)

// Listener collects beacons. Sessions are keyed by source IP, so a host that
// restarts on the same machine replaces its earlier entry.
type Listener struct {
	port         int
	timeProvider clock.TimeProvider

	mu        sync.RWMutex
	conn      net.PacketConn
	sessions  map[string]*Session
	onSession SessionCallback
	running   bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewListener creates a listener for the given discovery port. Zero means
// DefaultPort.
func NewListener(port int) *Listener {
	if port <= 0 {
		port = DefaultPort
	}
	return &Listener{
		port:         port,
		timeProvider: clock.DefaultTimeProvider{},
		sessions:     make(map[string]*Session),
	}
}

// SetTimeProvider sets the clock used for LastSeen.
func (l *Listener) SetTimeProvider(tp clock.TimeProvider) {
	l.mu.Lock()
	l.timeProvider = clock.OrDefault(tp)
	l.mu.Unlock()
}

// OnSession registers the callback for newly discovered hosts.
func (l *Listener) OnSession(cb SessionCallback) {
	l.mu.Lock()
	l.onSession = cb
	l.mu.Unlock()
}

// Start binds the discovery port with address reuse and begins receiving.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}

	lc := net.ListenConfig{Control: reuseControl}
	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", l.port))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Listener.Start",
			"port":     l.port,
			"error":    err.Error(),
		}).Error("Failed to bind discovery port")
		return fmt.Errorf("bind discovery port %d: %w", l.port, err)
	}
	l.conn = conn
	l.running = true
	l.stopChan = make(chan struct{})

	l.wg.Add(1)
	go l.receiveLoop(conn, l.stopChan)

	logrus.WithFields(logrus.Fields{
		"function": "Listener.Start",
		"port":     l.port,
	}).Info("Listening for LAN sessions")
	return nil
}

// Stop closes the socket and waits for the receive loop.
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopChan)
	l.conn.Close()
	l.conn = nil
	l.mu.Unlock()

	l.wg.Wait()
}

// Sessions returns the known hosts ordered by name then address.
func (l *Listener) Sessions() []Session {
	l.mu.RLock()
	out := make([]Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, *s)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Addr.String() < out[j].Addr.String()
	})
	return out
}

func (l *Listener) receiveLoop(conn net.PacketConn, stop <-chan struct{}) {
	defer l.wg.Done()

	buf := make([]byte, maxBeaconSize)
	for {
		select {
		case <-stop:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		l.HandlePacket(buf[:n], addr)
	}
}

// HandlePacket processes one datagram received from addr. It reports
// whether the datagram was a valid beacon.
func (l *Listener) HandlePacket(data []byte, addr net.Addr) bool {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return false
	}
	beacon, err := ParseBeacon(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Listener.HandlePacket",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Debug("Ignoring discovery datagram")
		return false
	}

	l.mu.Lock()
	key := udpAddr.IP.String()
	entry, known := l.sessions[key]
	if !known {
		entry = &Session{}
		l.sessions[key] = entry
	} else if entry.SessionID != beacon.SessionID {
		logrus.WithFields(logrus.Fields{
			"function":       "Listener.HandlePacket",
			"host":           key,
			"old_session_id": entry.SessionID,
			"session_id":     beacon.SessionID,
		}).Info("Host restarted its session")
	}
	entry.Name = beacon.Name
	entry.Addr = &net.UDPAddr{IP: udpAddr.IP, Port: int(beacon.ServicePort)}
	entry.PlayerCount = beacon.PlayerCount
	entry.SessionID = beacon.SessionID
	entry.LastSeen = l.timeProvider.Now()
	snapshot := *entry
	cb := l.onSession
	l.mu.Unlock()

	if !known {
		logrus.WithFields(logrus.Fields{
			"function": "Listener.HandlePacket",
			"name":     snapshot.Name,
			"addr":     snapshot.Addr.String(),
		}).Info("Discovered session")
		if cb != nil {
			cb(snapshot)
		}
	}
	return true
}
