package media

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestOverwritesUnconsumedValue(t *testing.T) {
	l := NewLatest[int]()

	assert.False(t, l.Offer(1))
	assert.True(t, l.Offer(2))
	assert.True(t, l.Offer(3))

	assert.Equal(t, 3, <-l.C())

	select {
	case v := <-l.C():
		t.Fatalf("unexpected value %d", v)
	default:
	}

	l.Offer(4)
	l.Close()
	assert.False(t, l.Offer(5))

	v, ok := <-l.C()
	assert.True(t, ok)
	assert.Equal(t, 4, v)
	_, ok = <-l.C()
	assert.False(t, ok)
}

func TestQueueDropsOldest(t *testing.T) {
	q := NewQueue[int](3)

	for i := 1; i <= 3; i++ {
		assert.False(t, q.Push(i))
	}
	assert.True(t, q.Push(4))
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(1), q.Dropped())

	assert.Equal(t, 2, <-q.C())
	assert.Equal(t, 3, <-q.C())
	assert.Equal(t, 4, <-q.C())
}

func TestHealthTripsOnConsecutiveFailures(t *testing.T) {
	mock := clock.NewMockTimeProvider(time.Unix(0, 0))
	h := NewHealth(3, time.Second, mock)

	h.RecordFailure()
	h.RecordFailure()
	assert.False(t, h.Unhealthy())
	h.RecordSuccess()
	h.RecordFailure()
	h.RecordFailure()
	assert.False(t, h.Unhealthy())
	h.RecordFailure()
	assert.True(t, h.Unhealthy())

	h.Reset()
	assert.False(t, h.Unhealthy())
	assert.Equal(t, 0, h.ConsecutiveFailures())
}

func TestHealthTripsOnStallWhileInputFlows(t *testing.T) {
	mock := clock.NewMockTimeProvider(time.Unix(0, 0))
	h := NewHealth(100, time.Second, mock)

	for i := 0; i < 12; i++ {
		mock.Advance(100 * time.Millisecond)
		h.RecordInput()
	}
	assert.True(t, h.Unhealthy())
}

func TestHealthIgnoresIdleGap(t *testing.T) {
	mock := clock.NewMockTimeProvider(time.Unix(0, 0))
	h := NewHealth(100, time.Second, mock)

	mock.Advance(10 * time.Second)
	h.RecordInput()
	assert.False(t, h.Unhealthy())
}

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][][]byte
	fail map[string]error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: map[string][][]byte{}, fail: map[string]error{}}
}

func (r *recordingSender) Send(data []byte, addr net.Addr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[addr.String()]; err != nil {
		return err
	}
	r.sent[addr.String()] = append(r.sent[addr.String()], data)
	return nil
}

func (r *recordingSender) count(addr net.Addr) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent[addr.String()])
}

func TestSendWorkerDeliversToEveryAddress(t *testing.T) {
	sender := newRecordingSender()
	a := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1000}
	b := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 1000}

	w := NewSendWorker("audio", sender, SendFIFO, 8)
	w.SetPacing(0, 0)
	w.Start()

	for i := 0; i < 3; i++ {
		w.Submit(Batch{Datagrams: [][]byte{{byte(i)}, {byte(i), 1}}, Addrs: []net.Addr{a, b}})
	}
	w.Stop()

	assert.Equal(t, 6, sender.count(a))
	assert.Equal(t, 6, sender.count(b))
}

func TestSendWorkerReportsFailures(t *testing.T) {
	sender := newRecordingSender()
	gone := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 3), Port: 1000}
	ok := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 4), Port: 1000}
	sender.fail[gone.String()] = errors.New("connection refused")

	w := NewSendWorker("video", sender, SendLatest, 0)
	w.Start()
	w.Submit(Batch{Datagrams: [][]byte{{1}, {2}}, Addrs: []net.Addr{gone, ok}})

	select {
	case se := <-w.Errors():
		assert.Equal(t, gone.String(), se.Addr.String())
		assert.Error(t, se.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("no send error reported")
	}
	w.Stop()

	assert.Equal(t, 2, sender.count(ok))
}

func TestSendWorkerIgnoresEmptyBatch(t *testing.T) {
	w := NewSendWorker("video", newRecordingSender(), SendLatest, 0)
	require.False(t, w.Submit(Batch{}))
	w.Stop()
}
