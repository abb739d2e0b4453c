package lanshare

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/opd-ai/lanshare/discovery"
	"github.com/opd-ai/lanshare/fragment"
	"github.com/opd-ai/lanshare/jitter"
	"github.com/opd-ai/lanshare/media/audio"
	"github.com/opd-ai/lanshare/media/video"
	"github.com/opd-ai/lanshare/protocol"
	"github.com/opd-ai/lanshare/session"
	"github.com/opd-ai/lanshare/statesync"
	"github.com/sirupsen/logrus"
)

// Default session settings.
const (
	DefaultName            = "Local Game"
	DefaultServicePort     = 5000
	DefaultCaptureInterval = 33 * time.Millisecond
)

// Bounds accepted by Validate and ApplyEnvironment.
const (
	MinTickInterval = time.Millisecond
	MaxTickInterval = time.Second

	MinClientTimeout = 100 * time.Millisecond
	MaxClientTimeout = time.Minute

	MinChunkSize = 64

	MaxKeyframeInterval = 600
	MaxJitterDepth      = 64
)

// Options configures a host or client session. Start from NewOptions.
type Options struct {
	// Name is announced in discovery beacons.
	Name string

	// ServicePort is the host's session port.
	ServicePort int

	// Discovery enables the beacon on hosts.
	Discovery     bool
	DiscoveryPort int

	// TickInterval is the expected Iterate cadence and the state sync period.
	TickInterval  time.Duration
	ClientTimeout time.Duration

	// Video
	VideoEnabled     bool
	CaptureInterval  time.Duration
	KeyframeInterval int
	MaxChunkSize     int
	AssemblyTimeout  time.Duration
	JitterDepth      int
	JitterHold       time.Duration
	VideoEncoder     video.EncoderFactory
	VideoDecoder     video.DecoderFactory

	// Audio
	AudioEnabled bool
	AudioOutput  audio.Format
	AudioDecoder audio.DecoderFactory
}

// NewOptions returns the default settings.
func NewOptions() *Options {
	return &Options{
		Name:             DefaultName,
		ServicePort:      DefaultServicePort,
		Discovery:        true,
		DiscoveryPort:    discovery.DefaultPort,
		TickInterval:     statesync.DefaultSyncPeriod,
		ClientTimeout:    session.DefaultClientTimeout,
		VideoEnabled:     true,
		CaptureInterval:  DefaultCaptureInterval,
		KeyframeInterval: video.DefaultKeyframeInterval,
		MaxChunkSize:     fragment.DefaultMaxChunkSize,
		AssemblyTimeout:  fragment.DefaultAssemblyTimeout,
		JitterDepth:      jitter.DefaultTargetDepth,
		JitterHold:       jitter.DefaultMinHold,
		VideoEncoder:     video.RawEncoderFactory,
		VideoDecoder:     video.RawDecoderFactory,
		AudioEnabled:     true,
		AudioOutput:      audio.DefaultOutputFormat,
		AudioDecoder:     audio.DefaultDecoderFactory,
	}
}

// Validate reports the first setting that cannot be used.
func (o *Options) Validate() error {
	switch {
	case o.ServicePort < 1 || o.ServicePort > 65535:
		return fmt.Errorf("%w: service port %d", ErrInvalidOptions, o.ServicePort)
	case o.Discovery && (o.DiscoveryPort < 1 || o.DiscoveryPort > 65535):
		return fmt.Errorf("%w: discovery port %d", ErrInvalidOptions, o.DiscoveryPort)
	case o.Discovery && o.DiscoveryPort == o.ServicePort:
		return fmt.Errorf("%w: discovery and service share port %d", ErrInvalidOptions, o.ServicePort)
	case o.TickInterval < MinTickInterval || o.TickInterval > MaxTickInterval:
		return fmt.Errorf("%w: tick interval %v outside [%v, %v]", ErrInvalidOptions,
			o.TickInterval, MinTickInterval, MaxTickInterval)
	case o.ClientTimeout < MinClientTimeout || o.ClientTimeout > MaxClientTimeout:
		return fmt.Errorf("%w: client timeout %v outside [%v, %v]", ErrInvalidOptions,
			o.ClientTimeout, MinClientTimeout, MaxClientTimeout)
	case o.ClientTimeout <= o.TickInterval:
		return fmt.Errorf("%w: client timeout %v must exceed tick interval %v", ErrInvalidOptions,
			o.ClientTimeout, o.TickInterval)
	}

	if o.VideoEnabled {
		switch {
		case o.CaptureInterval <= 0:
			return fmt.Errorf("%w: capture interval %v", ErrInvalidOptions, o.CaptureInterval)
		case o.KeyframeInterval < 1 || o.KeyframeInterval > MaxKeyframeInterval:
			return fmt.Errorf("%w: keyframe interval %d", ErrInvalidOptions, o.KeyframeInterval)
		case o.MaxChunkSize < MinChunkSize || o.MaxChunkSize > protocol.MaxVideoChunkSize:
			return fmt.Errorf("%w: chunk size %d outside [%d, %d]", ErrInvalidOptions,
				o.MaxChunkSize, MinChunkSize, protocol.MaxVideoChunkSize)
		case o.AssemblyTimeout <= 0:
			return fmt.Errorf("%w: assembly timeout %v", ErrInvalidOptions, o.AssemblyTimeout)
		case o.JitterDepth < 1 || o.JitterDepth > MaxJitterDepth:
			return fmt.Errorf("%w: jitter depth %d", ErrInvalidOptions, o.JitterDepth)
		case o.JitterHold <= 0:
			return fmt.Errorf("%w: jitter hold %v", ErrInvalidOptions, o.JitterHold)
		case o.VideoEncoder == nil || o.VideoDecoder == nil:
			return fmt.Errorf("%w: video enabled without codec factories", ErrInvalidOptions)
		}
	}

	if o.AudioEnabled {
		if err := o.AudioOutput.Validate(); err != nil {
			return fmt.Errorf("%w: audio output: %v", ErrInvalidOptions, err)
		}
	}
	return nil
}

// ApplyEnvironment overrides settings from LANSHARE_* environment
// variables. A value that does not parse or is out of bounds is logged and
// the current setting is kept.
func (o *Options) ApplyEnvironment() {
	if name := os.Getenv("LANSHARE_NAME"); name != "" {
		o.Name = name
	}
	o.ServicePort = envInt("LANSHARE_PORT", o.ServicePort, 1, 65535)
	o.DiscoveryPort = envInt("LANSHARE_DISCOVERY_PORT", o.DiscoveryPort, 1, 65535)
	o.Discovery = envBool("LANSHARE_DISCOVERY", o.Discovery)
	o.TickInterval = envMillis("LANSHARE_TICK_MS", o.TickInterval, MinTickInterval, MaxTickInterval)
	o.ClientTimeout = envMillis("LANSHARE_CLIENT_TIMEOUT_MS", o.ClientTimeout, MinClientTimeout, MaxClientTimeout)
	o.VideoEnabled = envBool("LANSHARE_VIDEO", o.VideoEnabled)
	o.KeyframeInterval = envInt("LANSHARE_KEYFRAME_INTERVAL", o.KeyframeInterval, 1, MaxKeyframeInterval)
	o.MaxChunkSize = envInt("LANSHARE_MAX_CHUNK", o.MaxChunkSize, MinChunkSize, protocol.MaxVideoChunkSize)
	o.JitterDepth = envInt("LANSHARE_JITTER_DEPTH", o.JitterDepth, 1, MaxJitterDepth)
	o.AudioEnabled = envBool("LANSHARE_AUDIO", o.AudioEnabled)

	logrus.WithFields(logrus.Fields{
		"function":      "Options.ApplyEnvironment",
		"name":          o.Name,
		"port":          o.ServicePort,
		"discovery":     o.Discovery,
		"tick_interval": o.TickInterval,
		"video":         o.VideoEnabled,
		"audio":         o.AudioEnabled,
	}).Debug("Session options resolved")
}

func envInt(name string, current, min, max int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return current
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "envInt",
			"env_var":     name,
			"value":       raw,
			"error":       err.Error(),
			"using_value": current,
		}).Warn("Failed to parse environment variable, using default")
		return current
	}
	if v < min || v > max {
		logrus.WithFields(logrus.Fields{
			"function":    "envInt",
			"env_var":     name,
			"value":       v,
			"min":         min,
			"max":         max,
			"using_value": current,
		}).Warn("Environment variable out of bounds, using default")
		return current
	}
	return v
}

func envMillis(name string, current, min, max time.Duration) time.Duration {
	ms := envInt(name, int(current/time.Millisecond), int(min/time.Millisecond), int(max/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

func envBool(name string, current bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return current
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "envBool",
			"env_var":     name,
			"value":       raw,
			"error":       err.Error(),
			"using_value": current,
		}).Warn("Failed to parse environment variable, using default")
		return current
	}
	return v
}
