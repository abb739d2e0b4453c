// Package main is the lanshare command: host a session with a synthetic
// screen and tone, join one, or list the sessions on the local network.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/opd-ai/lanshare"
	"github.com/opd-ai/lanshare/discovery"
	"github.com/sirupsen/logrus"
)

// CLIConfig holds the parsed command line.
type CLIConfig struct {
	mode          string
	address       string
	name          string
	port          int
	discoveryPort int
	tick          time.Duration
	duration      time.Duration
	browseFor     time.Duration
	noVideo       bool
	noAudio       bool
	logLevel      string
	logJSON       bool

	// set holds the flags given on the command line. Only those override
	// LANSHARE_* environment settings.
	set map[string]bool
}

func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	config := &CLIConfig{set: make(map[string]bool)}

	fs.StringVar(&config.name, "name", lanshare.DefaultName, "Session name announced to viewers")
	fs.IntVar(&config.port, "port", lanshare.DefaultServicePort, "Session UDP port")
	fs.IntVar(&config.discoveryPort, "discovery-port", discovery.DefaultPort, "Discovery beacon UDP port")
	fs.DurationVar(&config.tick, "tick", 0, "Tick interval (default from options)")
	fs.DurationVar(&config.duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	fs.DurationVar(&config.browseFor, "browse-for", 3*time.Second, "How long browse and join without an address listen")
	fs.BoolVar(&config.noVideo, "no-video", false, "Disable the video stream")
	fs.BoolVar(&config.noAudio, "no-audio", false, "Disable the audio stream")
	fs.StringVar(&config.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.BoolVar(&config.logJSON, "log-json", false, "Log as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { config.set[f.Name] = true })

	rest := fs.Args()
	if len(rest) == 0 {
		return nil, errors.New("missing mode: host, join or browse")
	}
	config.mode = rest[0]
	switch config.mode {
	case "host", "browse":
		if len(rest) > 1 {
			return nil, fmt.Errorf("%s takes no arguments", config.mode)
		}
	case "join":
		if len(rest) > 2 {
			return nil, errors.New("join takes at most one address")
		}
		if len(rest) == 2 {
			config.address = rest[1]
		}
	default:
		return nil, fmt.Errorf("unknown mode %q", config.mode)
	}
	return config, nil
}

func setupLogging(config *CLIConfig) error {
	level, err := logrus.ParseLevel(config.logLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if config.logJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func buildOptions(config *CLIConfig) (*lanshare.Options, error) {
	options := lanshare.NewOptions()
	options.ApplyEnvironment()

	if config.set["name"] {
		options.Name = config.name
	}
	if config.set["port"] {
		options.ServicePort = config.port
	}
	if config.set["discovery-port"] {
		options.DiscoveryPort = config.discoveryPort
	}
	if config.tick > 0 {
		options.TickInterval = config.tick
	}
	if config.noVideo {
		options.VideoEnabled = false
	}
	if config.noAudio {
		options.AudioEnabled = false
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintln(os.Stderr, "LAN screen and audio sharing")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintf(os.Stderr, "  %s [options] host\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s [options] join [address]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s [options] browse\n", os.Args[0])
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Options:")
	fs.PrintDefaults()
}

func main() {
	fs := flag.NewFlagSet("lanshare", flag.ContinueOnError)
	fs.Usage = func() { usage(fs) }

	config, err := parseCLIFlags(fs, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		usage(fs)
		os.Exit(2)
	}
	if err := setupLogging(config); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if config.duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, config.duration)
		defer stop()
	}

	if err := run(ctx, config); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"mode":     config.mode,
			"error":    err.Error(),
		}).Error("lanshare failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, config *CLIConfig) error {
	options, err := buildOptions(config)
	if err != nil {
		return err
	}

	switch config.mode {
	case "browse":
		sessions, err := browse(ctx, options.DiscoveryPort, config.browseFor)
		if err != nil {
			return err
		}
		printSessions(sessions)
		return nil
	case "host":
		return runHost(ctx, options)
	default:
		address := config.address
		if address == "" {
			sessions, err := browse(ctx, options.DiscoveryPort, config.browseFor)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				return errors.New("no sessions found on the local network")
			}
			address = sessions[0].Addr.String()
		}
		return runClient(ctx, options, address)
	}
}

func browse(ctx context.Context, port int, wait time.Duration) ([]discovery.Session, error) {
	listener := discovery.NewListener(port)
	if err := listener.Start(); err != nil {
		return nil, err
	}
	defer listener.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
	return listener.Sessions(), nil
}

func printSessions(sessions []discovery.Session) {
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	fmt.Printf("%-24s %-22s %s\n", "NAME", "ADDRESS", "PLAYERS")
	for _, s := range sessions {
		fmt.Printf("%-24s %-22s %d\n", truncate(s.Name, 24), s.Addr.String(), s.PlayerCount)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-1]) + "~"
}

func runHost(ctx context.Context, options *lanshare.Options) error {
	host, err := lanshare.NewHost(options, newGradientSource(320, 180), newToneSource(48000, 2, 440))
	if err != nil {
		return err
	}
	defer host.Close()

	ticker := time.NewTicker(options.TickInterval)
	defer ticker.Stop()

	report := time.NewTicker(5 * time.Second)
	defer report.Stop()

	orbit := newOrbit()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			host.SetLocalPlayer(orbit.step(options.TickInterval))
			host.Iterate()
		case <-report.C:
			stats := host.Stats()
			logrus.WithFields(logrus.Fields{
				"function":      "runHost",
				"clients":       len(host.RemotePlayers()),
				"video_frames":  stats.Video.Encoded,
				"audio_packets": stats.Audio.Packets,
			}).Info("Host status")
		}
	}
}

func runClient(ctx context.Context, options *lanshare.Options, address string) error {
	sink := &logSink{}
	client, err := lanshare.Join(options, address, sink)
	if err != nil {
		return err
	}
	defer client.Close()

	device := newNullDevice(client.Playback())
	device.Start()
	defer device.Stop()

	ticker := time.NewTicker(options.TickInterval)
	defer ticker.Stop()

	orbit := newOrbit()
	for client.IsRunning() {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			client.SetLocalPlayer(orbit.step(options.TickInterval))
			client.Iterate()
		}
	}
	return client.Err()
}
