package session

import (
	"net"
	"sort"
	"time"

	"github.com/opd-ai/lanshare/protocol"
)

// ClientEntry is the host's record of one joined client.
type ClientEntry struct {
	Addr         net.Addr
	ID           protocol.PlayerID
	LastActivity time.Time
}

// Registry maps client addresses to player ids. Ids start at 1 and are
// never reused within a session.
type Registry struct {
	byAddr map[string]*ClientEntry
	byID   map[protocol.PlayerID]*ClientEntry
	nextID protocol.PlayerID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byAddr: make(map[string]*ClientEntry),
		byID:   make(map[protocol.PlayerID]*ClientEntry),
		nextID: protocol.HostPlayerID + 1,
	}
}

// Register adds addr with the next id. An already registered address keeps
// its entry and isNew is false.
func (r *Registry) Register(addr net.Addr, now time.Time) (entry *ClientEntry, isNew bool) {
	if e, ok := r.byAddr[addr.String()]; ok {
		return e, false
	}
	e := &ClientEntry{Addr: addr, ID: r.nextID, LastActivity: now}
	r.nextID++
	r.byAddr[addr.String()] = e
	r.byID[e.ID] = e
	return e, true
}

// Lookup returns the entry for addr, or nil.
func (r *Registry) Lookup(addr net.Addr) *ClientEntry {
	if addr == nil {
		return nil
	}
	return r.byAddr[addr.String()]
}

// Get returns the entry for id, or nil.
func (r *Registry) Get(id protocol.PlayerID) *ClientEntry {
	return r.byID[id]
}

// Remove deletes id and reports whether it was registered.
func (r *Registry) Remove(id protocol.PlayerID) bool {
	e, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	delete(r.byAddr, e.Addr.String())
	return true
}

// Expired returns the ids idle for longer than timeout, in id order.
func (r *Registry) Expired(now time.Time, timeout time.Duration) []protocol.PlayerID {
	var ids []protocol.PlayerID
	for id, e := range r.byID {
		if now.Sub(e.LastActivity) > timeout {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Entries returns a copy of every entry in id order.
func (r *Registry) Entries() []ClientEntry {
	out := make([]ClientEntry, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Addrs returns every client address in id order.
func (r *Registry) Addrs() []net.Addr {
	entries := r.Entries()
	addrs := make([]net.Addr, len(entries))
	for i, e := range entries {
		addrs[i] = e.Addr
	}
	return addrs
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	return len(r.byID)
}
