package lanshare

import (
	"fmt"
	"net"
	"time"

	"github.com/opd-ai/lanshare/discovery"
	"github.com/opd-ai/lanshare/internal/clock"
	"github.com/opd-ai/lanshare/media"
	"github.com/opd-ai/lanshare/media/audio"
	"github.com/opd-ai/lanshare/media/video"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/opd-ai/lanshare/session"
	"github.com/opd-ai/lanshare/transport"
	"github.com/sirupsen/logrus"
)

const (
	audioSendQueue = 64

	// maxAudioReadsPerTick bounds how many buffers one Iterate pulls from
	// the audio source.
	maxAudioReadsPerTick = 64
)

// HostStats aggregates host-side counters.
type HostStats struct {
	Session      session.ServerStats
	Video        video.EncodeStats
	Audio        audio.EncodeStats
	InboxDropped uint64
}

// HostSession runs a hosted session: the session server, the capture and
// encode pipeline, one sender per media stream and the discovery beacon.
type HostSession struct {
	options      *Options
	endpoint     *transport.Endpoint
	server       *session.Server
	timeProvider clock.TimeProvider

	videoSource  VideoSource
	videoEncoder *video.EncodeWorker
	videoSender  *media.SendWorker

	audioSource  AudioSource
	audioEncoder *audio.EncodeWorker
	audioSender  *media.SendWorker

	beacon *discovery.Broadcaster

	lastIterate  time.Time
	sinceCapture time.Duration
	running      bool
}

// NewHost binds the service port and starts the media workers. A nil
// source disables that stream. Nil options select NewOptions.
//
// Parameters:
//   - options: Session settings
//   - videoSource: Screen capture, or nil for no video
//   - audioSource: Audio capture, or nil for no audio
//
// Returns:
//   - *HostSession: The running session
//   - error: Invalid options or the port could not be bound
func NewHost(options *Options, videoSource VideoSource, audioSource AudioSource) (*HostSession, error) {
	if options == nil {
		options = NewOptions()
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}

	endpoint, err := transport.ListenHost(options.ServicePort)
	if err != nil {
		return nil, fmt.Errorf("host session: %w", err)
	}

	h := &HostSession{
		options:      options,
		endpoint:     endpoint,
		timeProvider: clock.DefaultTimeProvider{},
		running:      true,
	}
	h.server = session.NewServer(endpoint, session.ServerConfig{
		ClientTimeout: options.ClientTimeout,
		SyncPeriod:    options.TickInterval,
	})
	h.server.OnPeerJoined(h.peerJoined)
	h.server.OnPeerLeft(h.peerLeft)

	if options.VideoEnabled && videoSource != nil {
		h.videoSource = videoSource
		h.videoEncoder = video.NewEncodeWorker(options.VideoEncoder, video.EncodeConfig{
			FPS:              int(time.Second / options.CaptureInterval),
			KeyframeInterval: options.KeyframeInterval,
			MaxChunkSize:     options.MaxChunkSize,
		})
		h.videoSender = media.NewSendWorker("video", endpoint.Sender(transport.RoleVideo), media.SendLatest, 0)
		h.videoEncoder.Start()
		h.videoSender.Start()
	}

	if options.AudioEnabled && audioSource != nil {
		h.audioSource = audioSource
		h.audioEncoder = audio.NewEncodeWorker(audio.EncodeConfig{})
		h.audioSender = media.NewSendWorker("audio", endpoint.Sender(transport.RoleAudio), media.SendFIFO, audioSendQueue)
		h.audioEncoder.Start()
		h.audioSender.Start()
	}

	if options.Discovery {
		h.beacon = discovery.NewBroadcaster(discovery.BroadcasterConfig{
			Name:        options.Name,
			ServicePort: uint16(options.ServicePort),
			Port:        options.DiscoveryPort,
		})
		if err := h.beacon.Start(); err != nil {
			// Joining by address still works.
			logrus.WithFields(logrus.Fields{
				"function": "NewHost",
				"error":    err.Error(),
			}).Warn("Discovery beacon unavailable")
			h.beacon = nil
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewHost",
		"name":     options.Name,
		"addr":     endpoint.LocalAddr().String(),
		"video":    h.videoEncoder != nil,
		"audio":    h.audioEncoder != nil,
	}).Info("Hosting session")

	return h, nil
}

// Iterate runs one tick: session traffic, liveness, state broadcast,
// capture and media hand-off. Call it every TickInterval.
func (h *HostSession) Iterate() {
	if !h.running {
		return
	}

	now := h.timeProvider.Now()
	dt := h.options.TickInterval
	if !h.lastIterate.IsZero() {
		dt = now.Sub(h.lastIterate)
	}
	h.lastIterate = now

	h.server.Tick(dt)
	h.handleSendErrors()
	h.captureVideo(dt)
	h.captureAudio()
	h.forwardMedia()
}

func (h *HostSession) peerJoined(id protocol.PlayerID, addr net.Addr) {
	if h.videoEncoder != nil {
		h.videoEncoder.RequestKeyframe()
	}
	if h.beacon != nil {
		h.beacon.SetPlayerCount(h.server.ClientCount() + 1)
	}
}

func (h *HostSession) peerLeft(id protocol.PlayerID, reason session.LeaveReason) {
	if h.beacon != nil {
		h.beacon.SetPlayerCount(h.server.ClientCount() + 1)
	}
}

func (h *HostSession) handleSendErrors() {
	for _, sender := range []*media.SendWorker{h.videoSender, h.audioSender} {
		if sender == nil {
			continue
		}
	drain:
		for {
			select {
			case e := <-sender.Errors():
				if transport.IsPeerDisconnect(e.Err) {
					h.server.DisconnectAddr(e.Addr)
				}
			default:
				break drain
			}
		}
	}
}

func (h *HostSession) captureVideo(dt time.Duration) {
	if h.videoEncoder == nil || h.videoEncoder.Disabled() {
		return
	}
	h.sinceCapture += dt
	if h.sinceCapture < h.options.CaptureInterval {
		return
	}
	h.sinceCapture = 0

	rgba, width, height, ok := h.videoSource.Capture()
	if !ok {
		return
	}
	h.videoEncoder.Submit(video.RawFrame{RGBA: rgba, Width: width, Height: height})
}

func (h *HostSession) captureAudio() {
	if h.audioEncoder == nil {
		return
	}
	for i := 0; i < maxAudioReadsPerTick; i++ {
		samples, rate, channels, ok := h.audioSource.ReadSamples()
		if !ok {
			return
		}
		h.audioEncoder.Submit(audio.Samples{Data: samples, SampleRate: rate, Channels: channels})
	}
}

// forwardMedia moves encoded output to the senders. With nobody joined the
// output is drained and dropped.
func (h *HostSession) forwardMedia() {
	addrs := h.server.ClientAddrs()

	if h.videoEncoder != nil {
		select {
		case packet, ok := <-h.videoEncoder.Output():
			if ok && len(addrs) > 0 {
				h.videoSender.Submit(media.Batch{Datagrams: packet.Datagrams, Addrs: addrs})
			}
		default:
		}
	}

	if h.audioEncoder != nil {
		var datagrams [][]byte
	drain:
		for {
			select {
			case packet, ok := <-h.audioEncoder.Output():
				if !ok {
					break drain
				}
				datagrams = append(datagrams, packet.Datagram)
			default:
				break drain
			}
		}
		if len(datagrams) > 0 && len(addrs) > 0 {
			h.audioSender.Submit(media.Batch{Datagrams: datagrams, Addrs: addrs})
		}
	}
}

// SetLocalPlayer publishes the host's own transform.
func (h *HostSession) SetLocalPlayer(state PlayerState) {
	h.server.SetHostState(state)
}

// RemotePlayers returns every joined peer's transform in id order.
func (h *HostSession) RemotePlayers() []PlayerState {
	return h.server.RemotePlayers()
}

// Players returns every transform, the host's included.
func (h *HostSession) Players() []PlayerState {
	return h.server.Players()
}

// OnPeerJoined registers a callback for newly joined peers. It runs on the
// tick loop.
func (h *HostSession) OnPeerJoined(cb func(id protocol.PlayerID, addr net.Addr)) {
	h.server.OnPeerJoined(func(id protocol.PlayerID, addr net.Addr) {
		h.peerJoined(id, addr)
		if cb != nil {
			cb(id, addr)
		}
	})
}

// OnPeerLeft registers a callback for departed peers. It runs on the tick
// loop.
func (h *HostSession) OnPeerLeft(cb func(id protocol.PlayerID, reason session.LeaveReason)) {
	h.server.OnPeerLeft(func(id protocol.PlayerID, reason session.LeaveReason) {
		h.peerLeft(id, reason)
		if cb != nil {
			cb(id, reason)
		}
	})
}

// LocalAddr returns the bound service address.
func (h *HostSession) LocalAddr() net.Addr {
	return h.endpoint.LocalAddr()
}

// SessionID returns the announced session id, or "" without discovery.
func (h *HostSession) SessionID() string {
	if h.beacon == nil {
		return ""
	}
	return h.beacon.SessionID()
}

// IsRunning reports whether Close has not been called.
func (h *HostSession) IsRunning() bool {
	return h.running
}

// Stats returns a snapshot of the host counters.
func (h *HostSession) Stats() HostStats {
	stats := HostStats{
		Session:      h.server.Stats(),
		InboxDropped: h.endpoint.Dropped(),
	}
	if h.videoEncoder != nil {
		stats.Video = h.videoEncoder.Stats()
	}
	if h.audioEncoder != nil {
		stats.Audio = h.audioEncoder.Stats()
	}
	return stats
}

// Close stops the beacon and the media workers, then closes the socket.
func (h *HostSession) Close() error {
	if !h.running {
		return nil
	}
	h.running = false

	if h.beacon != nil {
		h.beacon.Stop()
	}
	if h.videoEncoder != nil {
		h.videoEncoder.Stop()
		h.videoSender.Stop()
	}
	if h.audioEncoder != nil {
		h.audioEncoder.Stop()
		h.audioSender.Stop()
	}

	logrus.WithFields(logrus.Fields{
		"function": "HostSession.Close",
		"clients":  h.server.ClientCount(),
	}).Info("Host session closed")

	return h.endpoint.Close()
}
