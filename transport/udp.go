package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/lanshare/protocol"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultInboxSize bounds the datagrams waiting for the next drain.
	DefaultInboxSize = 1024

	readPollInterval = 100 * time.Millisecond
)

// Datagram is one received packet. When Err is set the datagram carries no
// data and reports a receive failure for Addr (nil if unknown).
type Datagram struct {
	Data []byte
	Addr net.Addr
	Err  error
}

// Role names the stream a Sender writes for. It only affects logging.
type Role string

const (
	RoleControl Role = "control"
	RoleVideo   Role = "video"
	RoleAudio   Role = "audio"
)

// Endpoint is a UDP socket with a background reader and a non-blocking inbox.
type Endpoint struct {
	conn      *net.UDPConn
	connected bool
	remote    net.Addr

	inbox   chan Datagram
	dropped atomic.Uint64
	closed  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ListenHost binds the host socket on every interface at port. Port 0 picks
// an ephemeral port.
func ListenHost(port int) (*Endpoint, error) {
	return Listen(fmt.Sprintf("0.0.0.0:%d", port))
}

// Listen binds an unconnected endpoint on address.
func Listen(address string) (*Endpoint, error) {
	laddr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", address, err)
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", address, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Listen",
		"local_addr": conn.LocalAddr().String(),
	}).Info("UDP endpoint listening")

	return newEndpoint(conn, false, nil), nil
}

// DialHost binds an ephemeral port and connects it to the host at address.
func DialHost(address string) (*Endpoint, error) {
	raddr, err := net.ResolveUDPAddr("udp4", address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", address, err)
	}

	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "DialHost",
		"local_addr":  conn.LocalAddr().String(),
		"remote_addr": raddr.String(),
	}).Info("UDP endpoint connected")

	return newEndpoint(conn, true, raddr), nil
}

func newEndpoint(conn *net.UDPConn, connected bool, remote net.Addr) *Endpoint {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Endpoint{
		conn:      conn,
		connected: connected,
		remote:    remote,
		inbox:     make(chan Datagram, DefaultInboxSize),
		ctx:       ctx,
		cancel:    cancel,
	}

	e.wg.Add(1)
	go e.readLoop()

	return e
}

// readLoop copies every datagram out of the scratch buffer into the inbox.
func (e *Endpoint) readLoop() {
	defer e.wg.Done()

	buffer := make([]byte, protocol.MaxDatagramSize)
	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		_ = e.conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, addr, err := e.conn.ReadFrom(buffer)
		if err != nil {
			if !e.handleReadError(err) {
				return
			}
			continue
		}

		data := make([]byte, n)
		copy(data, buffer[:n])
		e.enqueue(Datagram{Data: data, Addr: addr})
	}
}

// handleReadError classifies a read failure. It returns false when the
// reader must stop.
func (e *Endpoint) handleReadError(err error) bool {
	switch {
	case IsTimeout(err):
		return true
	case isClosed(err):
		return false
	case IsPeerDisconnect(err):
		e.enqueue(Datagram{Addr: e.remote, Err: err})
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Endpoint.readLoop",
			"error":    err.Error(),
		}).Debug("Ignoring socket read error")
		return true
	}
}

func (e *Endpoint) enqueue(d Datagram) {
	select {
	case e.inbox <- d:
	default:
		total := e.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Endpoint.enqueue",
			"dropped":  total,
		}).Debug("Inbox full, dropping datagram")
	}
}

// Drain hands every queued datagram to fn and returns once the inbox is
// empty. It never blocks and returns the number of datagrams processed.
func (e *Endpoint) Drain(fn func(Datagram)) int {
	n := 0
	for {
		select {
		case d := <-e.inbox:
			fn(d)
			n++
		default:
			return n
		}
	}
}

// Send writes one datagram. A connected endpoint ignores addr.
func (e *Endpoint) Send(data []byte, addr net.Addr) error {
	return e.Sender(RoleControl).Send(data, addr)
}

// Sender returns a writer for the shared socket that may be used from any
// goroutine.
func (e *Endpoint) Sender(role Role) *Sender {
	return &Sender{endpoint: e, role: role}
}

// LocalAddr returns the bound address.
func (e *Endpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

// RemoteAddr returns the host address of a connected endpoint, or nil.
func (e *Endpoint) RemoteAddr() net.Addr {
	return e.remote
}

// Dropped returns the number of datagrams discarded because the inbox was full.
func (e *Endpoint) Dropped() uint64 {
	return e.dropped.Load()
}

// Close stops the reader and closes the socket. It is safe to call more
// than once.
func (e *Endpoint) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.cancel()
	err := e.conn.Close()
	e.wg.Wait()

	logrus.WithFields(logrus.Fields{
		"function":   "Endpoint.Close",
		"local_addr": e.conn.LocalAddr().String(),
		"dropped":    e.dropped.Load(),
	}).Info("UDP endpoint closed")

	return err
}

// Sender writes datagrams for one stream.
type Sender struct {
	endpoint *Endpoint
	role     Role
}

// Send writes data to addr, or to the connected host when the endpoint is
// connected. Errors wrap the socket error so IsPeerDisconnect applies.
func (s *Sender) Send(data []byte, addr net.Addr) error {
	e := s.endpoint
	if e.closed.Load() {
		return ErrClosed
	}

	var err error
	if e.connected {
		_, err = e.conn.Write(data)
		addr = e.remote
	} else {
		if addr == nil {
			return ErrNoAddress
		}
		_, err = e.conn.WriteTo(data, addr)
	}

	if err != nil {
		return fmt.Errorf("%s send to %v: %w", s.role, addr, err)
	}
	return nil
}

// Role returns the stream this sender writes for.
func (s *Sender) Role() Role {
	return s.role
}
