//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package discovery

import "syscall"

// reuseControl is a no-op where SO_REUSEPORT is unavailable; only one
// viewer per machine can browse.
func reuseControl(network, address string, c syscall.RawConn) error {
	return nil
}
