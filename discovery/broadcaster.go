package discovery

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// privateBroadcasts are directed broadcast addresses of the common private
// ranges, sent alongside 255.255.255.255.
var privateBroadcasts = []string{
	"192.168.255.255",
	"10.255.255.255",
	"172.31.255.255",
}

// BroadcasterConfig describes the announced session. Zero Port and Interval
// take the defaults.
type BroadcasterConfig struct {
	Name        string
	ServicePort uint16
	Port        int
	Interval    time.Duration
	// Targets overrides the broadcast destinations, mainly for tests.
	Targets []*net.UDPAddr
}

// Broadcaster announces one host session on the LAN.
type Broadcaster struct {
	name        string
	servicePort uint16
	sessionID   string
	interval    time.Duration
	targets     []*net.UDPAddr

	mu          sync.RWMutex
	conn        net.PacketConn
	playerCount uint32
	running     bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewBroadcaster creates a broadcaster with a fresh session id.
func NewBroadcaster(cfg BroadcasterConfig) *Broadcaster {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	targets := cfg.Targets
	if len(targets) == 0 {
		targets = append(targets, &net.UDPAddr{IP: net.IPv4bcast, Port: cfg.Port})
		for _, ip := range privateBroadcasts {
			targets = append(targets, &net.UDPAddr{IP: net.ParseIP(ip), Port: cfg.Port})
		}
	}

	return &Broadcaster{
		name:        cfg.Name,
		servicePort: cfg.ServicePort,
		sessionID:   uuid.NewString(),
		interval:    cfg.Interval,
		targets:     targets,
		playerCount: 1,
	}
}

// SessionID returns the id announced for this session.
func (b *Broadcaster) SessionID() string {
	return b.sessionID
}

// SetPlayerCount updates the announced player count.
func (b *Broadcaster) SetPlayerCount(n int) {
	b.mu.Lock()
	b.playerCount = uint32(n)
	b.mu.Unlock()
}

// Beacon returns the current announcement.
func (b *Broadcaster) Beacon() Beacon {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Beacon{
		Name:        b.name,
		ServicePort: b.servicePort,
		PlayerCount: b.playerCount,
		SessionID:   b.sessionID,
	}
}

// Start opens the broadcast socket and begins announcing.
func (b *Broadcaster) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return nil
	}

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Broadcaster.Start",
			"error":    err.Error(),
		}).Error("Failed to create discovery broadcast socket")
		return fmt.Errorf("create broadcast socket: %w", err)
	}
	b.conn = conn
	b.running = true
	b.stopChan = make(chan struct{})

	b.wg.Add(1)
	go b.loop(b.stopChan)

	logrus.WithFields(logrus.Fields{
		"function":     "Broadcaster.Start",
		"name":         b.name,
		"service_port": b.servicePort,
		"session_id":   b.sessionID,
	}).Info("Broadcasting session on LAN")
	return nil
}

// Stop halts announcing and closes the socket.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopChan)
	b.mu.Unlock()

	b.wg.Wait()

	b.mu.Lock()
	b.conn.Close()
	b.conn = nil
	b.mu.Unlock()
}

func (b *Broadcaster) loop(stop <-chan struct{}) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.broadcast()
	for {
		select {
		case <-ticker.C:
			b.broadcast()
		case <-stop:
			return
		}
	}
}

func (b *Broadcaster) broadcast() {
	data, err := b.Beacon().Marshal()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Broadcaster.broadcast",
			"error":    err.Error(),
		}).Error("Failed to encode beacon")
		return
	}

	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()

	for _, addr := range b.targets {
		if _, err := conn.WriteTo(data, addr); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Broadcaster.broadcast",
				"addr":     addr.String(),
				"error":    err.Error(),
			}).Debug("Failed to send discovery beacon")
		}
	}
}
