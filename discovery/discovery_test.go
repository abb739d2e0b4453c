package discovery

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beaconBytes(t *testing.T, b Beacon) []byte {
	t.Helper()
	data, err := b.Marshal()
	require.NoError(t, err)
	return data
}

func TestBeaconWireFormat(t *testing.T) {
	data := beaconBytes(t, Beacon{Name: "Den", ServicePort: 5000, PlayerCount: 3, SessionID: "abc"})
	assert.JSONEq(t, `{"name":"Den","service_port":5000,"player_count":3,"session_id":"abc"}`, string(data))

	b, err := ParseBeacon(data)
	require.NoError(t, err)
	assert.Equal(t, uint16(5000), b.ServicePort)

	_, err = ParseBeacon([]byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidBeacon)
	_, err = ParseBeacon([]byte(`{"name":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidBeacon)
}

func TestListenerUpsertsByIP(t *testing.T) {
	mock := clock.NewMockTimeProvider(time.Unix(100, 0))
	l := NewListener(0)
	l.SetTimeProvider(mock)

	var discovered []Session
	l.OnSession(func(s Session) { discovered = append(discovered, s) })

	from := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 40000}
	require.True(t, l.HandlePacket(beaconBytes(t, Beacon{Name: "Den", ServicePort: 5000, PlayerCount: 1, SessionID: "s1"}), from))

	// Same host from another source port updates in place.
	mock.Advance(time.Second)
	from2 := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 40001}
	require.True(t, l.HandlePacket(beaconBytes(t, Beacon{Name: "Den", ServicePort: 5000, PlayerCount: 4, SessionID: "s1"}), from2))

	sessions := l.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, uint32(4), sessions[0].PlayerCount)
	assert.Equal(t, "192.168.1.20:5000", sessions[0].Addr.String())
	assert.Equal(t, time.Unix(101, 0), sessions[0].LastSeen)
	require.Len(t, discovered, 1)
	assert.Equal(t, uint32(1), discovered[0].PlayerCount)

	// A restarted host keeps its entry with the new id.
	require.True(t, l.HandlePacket(beaconBytes(t, Beacon{Name: "Den 2", ServicePort: 5001, SessionID: "s2"}), from))
	sessions = l.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "s2", sessions[0].SessionID)
	assert.Equal(t, 5001, sessions[0].Addr.Port)
	assert.Len(t, discovered, 1)

	other := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 30), Port: 40000}
	require.True(t, l.HandlePacket(beaconBytes(t, Beacon{Name: "Attic", ServicePort: 5000, SessionID: "s3"}), other))
	sessions = l.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "Attic", sessions[0].Name)
	assert.Len(t, discovered, 2)
}

func TestListenerIgnoresGarbage(t *testing.T) {
	l := NewListener(0)
	from := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 1}

	assert.False(t, l.HandlePacket([]byte{0x01, 0x02}, from))
	assert.False(t, l.HandlePacket(beaconBytes(t, Beacon{Name: "x", ServicePort: 1}), &net.TCPAddr{}))
	assert.Empty(t, l.Sessions())
}

func TestBroadcasterBeacon(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{Name: "Den", ServicePort: 5000})
	_, err := uuid.Parse(b.SessionID())
	assert.NoError(t, err)
	assert.Len(t, b.targets, 1+len(privateBroadcasts))
	assert.Equal(t, DefaultPort, b.targets[0].Port)

	b.SetPlayerCount(3)
	beacon := b.Beacon()
	assert.Equal(t, uint32(3), beacon.PlayerCount)
	assert.Equal(t, b.SessionID(), beacon.SessionID)

	assert.NotEqual(t, b.SessionID(), NewBroadcaster(BroadcasterConfig{}).SessionID())
}

func TestBroadcastReachesListener(t *testing.T) {
	const port = 47777
	l := NewListener(port)
	require.NoError(t, l.Start())
	defer l.Stop()

	b := NewBroadcaster(BroadcasterConfig{
		Name:        "Loopback",
		ServicePort: 5000,
		Interval:    20 * time.Millisecond,
		Targets:     []*net.UDPAddr{{IP: net.IPv4(127, 0, 0, 1), Port: port}},
	})
	require.NoError(t, b.Start())
	defer b.Stop()

	require.Eventually(t, func() bool { return len(l.Sessions()) == 1 }, 2*time.Second, 10*time.Millisecond)
	s := l.Sessions()[0]
	assert.Equal(t, "Loopback", s.Name)
	assert.Equal(t, "127.0.0.1:5000", s.Addr.String())
	assert.Equal(t, b.SessionID(), s.SessionID)
}
