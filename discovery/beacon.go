// Package discovery announces hosted sessions on the local network with a
// periodic UDP broadcast beacon and collects the announcements on viewers.
package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// DefaultPort is the UDP port beacons are broadcast to.
const DefaultPort = 7777

// DefaultInterval is the beacon period.
const DefaultInterval = time.Second

// maxBeaconSize bounds a beacon datagram.
const maxBeaconSize = 1024

// ErrInvalidBeacon indicates a datagram that is not a session beacon.
var ErrInvalidBeacon = errors.New("invalid discovery beacon")

// Beacon is the JSON payload a host broadcasts.
type Beacon struct {
	Name        string `json:"name"`
	ServicePort uint16 `json:"service_port"`
	PlayerCount uint32 `json:"player_count"`
	SessionID   string `json:"session_id"`
}

// Marshal encodes the beacon.
func (b Beacon) Marshal() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal beacon: %w", err)
	}
	if len(data) > maxBeaconSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidBeacon, len(data))
	}
	return data, nil
}

// ParseBeacon decodes a beacon datagram.
func ParseBeacon(data []byte) (Beacon, error) {
	var b Beacon
	if err := json.Unmarshal(data, &b); err != nil {
		return Beacon{}, fmt.Errorf("%w: %v", ErrInvalidBeacon, err)
	}
	if b.ServicePort == 0 {
		return Beacon{}, fmt.Errorf("%w: missing service port", ErrInvalidBeacon)
	}
	return b, nil
}

// Session is a host seen on the network.
type Session struct {
	Name        string
	Addr        *net.UDPAddr // source ip, advertised service port
	PlayerCount uint32
	SessionID   string
	LastSeen    time.Time
}
