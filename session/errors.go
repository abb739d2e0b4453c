package session

import "errors"

var (
	// ErrJoinTimeout is reported when no Welcome arrives within the client timeout.
	ErrJoinTimeout = errors.New("join timed out")

	// ErrHostTimeout is reported when the host goes silent for the client timeout.
	ErrHostTimeout = errors.New("host timed out")

	// ErrHostUnreachable is reported when the host's port refuses datagrams.
	ErrHostUnreachable = errors.New("host unreachable")

	// ErrClosed is returned by operations on a closed client.
	ErrClosed = errors.New("session closed")
)
