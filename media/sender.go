package media

import (
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Pacing defaults: a short pause after every few datagrams keeps a burst of
// video chunks from overrunning the receiver's socket buffer.
const (
	DefaultPaceEvery = 5
	DefaultPaceDelay = 100 * time.Microsecond

	sendErrorBuffer = 64
)

// PacketSender writes one datagram. transport.Sender implements it.
type PacketSender interface {
	Send(data []byte, addr net.Addr) error
}

// Batch is a group of encoded datagrams sent in order to every address.
type Batch struct {
	Datagrams [][]byte
	Addrs     []net.Addr
}

// SendError reports a failed send so the tick loop can react, for example
// by evicting a peer whose port is unreachable.
type SendError struct {
	Addr net.Addr
	Err  error
}

// SendMode selects how a SendWorker treats batches it has not sent yet.
type SendMode int

const (
	// SendLatest keeps only the newest pending batch.
	SendLatest SendMode = iota
	// SendFIFO keeps a bounded backlog and drops the oldest batch when full.
	SendFIFO
)

// SendWorker owns the network writes of one media stream.
type SendWorker struct {
	name   string
	sender PacketSender

	latest *Latest[Batch]
	queue  *Queue[Batch]
	input  <-chan Batch

	paceEvery int
	paceDelay time.Duration

	errors chan SendError

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewSendWorker creates a worker for the named stream. queueSize only
// applies to SendFIFO.
func NewSendWorker(name string, sender PacketSender, mode SendMode, queueSize int) *SendWorker {
	w := &SendWorker{
		name:      name,
		sender:    sender,
		paceEvery: DefaultPaceEvery,
		paceDelay: DefaultPaceDelay,
		errors:    make(chan SendError, sendErrorBuffer),
	}
	if mode == SendFIFO {
		w.queue = NewQueue[Batch](queueSize)
		w.input = w.queue.C()
	} else {
		w.latest = NewLatest[Batch]()
		w.input = w.latest.C()
	}
	return w
}

// SetPacing changes how often and how long the worker pauses. A
// non-positive every disables pacing. Call before Start.
func (w *SendWorker) SetPacing(every int, delay time.Duration) {
	w.paceEvery = every
	w.paceDelay = delay
}

// Start launches the worker goroutine.
func (w *SendWorker) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.run()

		logrus.WithFields(logrus.Fields{
			"function": "SendWorker.Start",
			"stream":   w.name,
		}).Debug("Send worker started")
	})
}

// Submit hands a batch to the worker without blocking. It reports whether
// an unsent batch was discarded to make room.
func (w *SendWorker) Submit(b Batch) bool {
	if len(b.Datagrams) == 0 || len(b.Addrs) == 0 {
		return false
	}
	if w.queue != nil {
		return w.queue.Push(b)
	}
	return w.latest.Offer(b)
}

// Errors returns failed sends. The channel is never closed; reports are
// dropped when nobody reads them.
func (w *SendWorker) Errors() <-chan SendError {
	return w.errors
}

// Stop closes the input, lets the worker finish its current batch and
// waits for it to exit.
func (w *SendWorker) Stop() {
	w.stopOnce.Do(func() {
		if w.queue != nil {
			w.queue.Close()
		} else {
			w.latest.Close()
		}
		w.wg.Wait()

		logrus.WithFields(logrus.Fields{
			"function": "SendWorker.Stop",
			"stream":   w.name,
		}).Debug("Send worker stopped")
	})
}

func (w *SendWorker) run() {
	defer w.wg.Done()

	for batch := range w.input {
		w.send(batch)
	}
}

func (w *SendWorker) send(b Batch) {
	sent := 0
	for _, addr := range b.Addrs {
		for _, data := range b.Datagrams {
			if err := w.sender.Send(data, addr); err != nil {
				w.report(addr, err)
				// Skip the rest for this address.
				break
			}
			sent++
			if w.paceEvery > 0 && sent%w.paceEvery == 0 {
				time.Sleep(w.paceDelay)
			}
		}
	}
}

func (w *SendWorker) report(addr net.Addr, err error) {
	logrus.WithFields(logrus.Fields{
		"function": "SendWorker.send",
		"stream":   w.name,
		"addr":     addr,
		"error":    err.Error(),
	}).Debug("Datagram send failed")

	select {
	case w.errors <- SendError{Addr: addr, Err: err}:
	default:
	}
}
