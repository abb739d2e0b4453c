package transport

import (
	"errors"
	"net"
	"os"
	"syscall"
)

var (
	// ErrClosed is returned when sending on a closed endpoint.
	ErrClosed = errors.New("endpoint closed")

	// ErrNoAddress is returned when an unconnected endpoint sends without a destination.
	ErrNoAddress = errors.New("no destination address")
)

// IsTimeout reports whether err is a read or write deadline expiry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsPeerDisconnect reports whether err means the remote side is gone, as
// signalled by a refused or reset connection.
func IsPeerDisconnect(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// isClosed reports whether err came from using a closed socket.
func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
