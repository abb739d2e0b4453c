// Package session manages the players of one lanshare session.
//
// The host side is [Server]. It owns the client registry and the
// authoritative PlayerState of every player, answers Join with Welcome,
// applies PlayerUpdate, evicts peers that leave, time out or become
// unreachable, and broadcasts a GameState snapshot every sync period.
//
// The client side is [Client]. It joins, tracks its assigned id, feeds
// GameState snapshots into a [statesync.Interpolator] with its own id
// filtered out, and reports its local transform back to the host.
//
// Both types are driven from a single tick loop and are not safe for
// concurrent use:
//
//	server := session.NewServer(endpoint, session.ServerConfig{})
//	server.OnPeerJoined(func(id protocol.PlayerID, addr net.Addr) { ... })
//	for range ticker.C {
//	    server.Tick(dt)
//	}
package session
