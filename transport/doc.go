// Package transport provides the UDP endpoint used by lanshare hosts and
// clients.
//
// A host binds a fixed port on every interface and talks to many peers from
// the one socket. A client binds an ephemeral port and connects it to the
// host, which lets the kernel report ICMP port-unreachable as a refused read.
//
//	host, err := transport.ListenHost(5000)
//	client, err := transport.DialHost("192.168.1.20:5000")
//
// # Receiving
//
// Each endpoint runs one reader goroutine that copies datagrams into a
// bounded inbox. The owner polls it from its tick loop with [Endpoint.Drain],
// which never blocks:
//
//	endpoint.Drain(func(d transport.Datagram) {
//	    if d.Err != nil {
//	        // peer disconnect, see IsPeerDisconnect
//	        return
//	    }
//	    handle(d.Data, d.Addr)
//	})
//
// When the inbox is full new datagrams are dropped and counted in
// [Endpoint.Dropped]. Nothing is retransmitted.
//
// # Sending
//
// [*net.UDPConn] is safe for concurrent use, so [Endpoint.Sender] hands each
// media worker its own [Sender] for the shared socket without any locking.
//
// # Errors
//
// Read timeouts mean no data and are never surfaced. Refused or reset errors
// are a peer disconnect and are delivered to the drain callback or returned
// from Send; [IsPeerDisconnect] classifies them. Other socket errors are
// logged at debug level and ignored.
package transport
