package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e7canasta/tplay/internal/config"
	"github.com/e7canasta/tplay/internal/telemetry"
	"github.com/e7canasta/tplay/modules/audio"
	"github.com/e7canasta/tplay/modules/control"
	"github.com/e7canasta/tplay/modules/controlbus"
	"github.com/e7canasta/tplay/modules/framesource"
	"github.com/e7canasta/tplay/modules/framesource/media"
	"github.com/e7canasta/tplay/modules/session"
	"github.com/e7canasta/tplay/modules/termrender"
)

const usage = `Usage: tplay [flags] <input>

Plays an image, gif, video, URL, RTSP stream or camera as character art.

Input:
  photo.png | anim.gif | movie.mp4 | https://... | rtsp://... | camera | camera:/dev/video1

Keys:
  0-9    select character map
  space  pause / resume
  g      toggle grayscale
  m      toggle mute
  q      quit (also Q, Esc, Ctrl-C)

Flags:
`

func main() {
	os.Exit(run())
}

func run() int {
	flags := flag.NewFlagSet("tplay", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}

	configPath := flags.String("config", "", "Path to YAML configuration file")
	fps := flags.Float64("fps", 0, "Frame rate override (0 = native rate)")
	charMap := flags.String("char-map", "", "Custom character map, dark to light")
	charMapIndex := flags.Int("char-map-index", 0, "Initially selected character map")
	gray := flags.Bool("gray", false, "Start in grayscale")
	wMod := flags.Int("w-mod", 1, "Column divisor for wide glyphs (2 for emoji maps)")
	frameSkip := flags.Bool("allow-frame-skip", false, "Drop stale frames to stay in real time")
	loop := flags.Bool("loop", false, "Restart at end of stream")
	mono := flags.Bool("monochrome", false, "Draw glyphs without color")
	background := flags.Bool("background", false, "Paint a dimmed background color")
	maxWidth := flags.Int("max-width", 640, "Maximum decode width in pixels")
	device := flags.String("camera-device", "/dev/video0", "Camera device")
	resolution := flags.String("camera-resolution", "480p", "Camera resolution (480p, 512p, 720p, 1080p)")
	noAudio := flags.Bool("no-audio", false, "Disable audio")
	audioBackend := flags.String("audio-backend", "beep", "Audio backend (beep, gstreamer)")
	broker := flags.String("broker", "", "MQTT broker host:port for telemetry and remote control")
	logFile := flags.String("log-file", "", "Log file (default <tmp>/tplay.log)")
	debug := flags.Bool("debug", false, "Enable debug logging")
	statsInterval := flags.Duration("stats", 0, "Log session stats every interval and print a summary at exit (0 = off)")
	flags.Parse(os.Args[1:])

	set := make(map[string]bool)
	flags.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if flags.NArg() > 0 {
			c.Input = flags.Arg(0)
		}
		if set["fps"] {
			c.FPS = *fps
		}
		if set["char-map"] {
			c.CharMap = charMap
		}
		if set["char-map-index"] {
			c.CharMapIndex = *charMapIndex
		}
		if set["gray"] {
			c.Gray = *gray
		}
		if set["w-mod"] {
			c.WidthMod = *wMod
		}
		if set["allow-frame-skip"] {
			c.AllowFrameSkip = *frameSkip
		}
		if set["loop"] {
			c.Loop = *loop
		}
		if set["monochrome"] {
			c.Monochrome = *mono
		}
		if set["background"] {
			c.Background = *background
		}
		if set["max-width"] {
			c.Decode.MaxWidth = *maxWidth
		}
		if set["camera-device"] {
			c.Camera.Device = *device
		}
		if set["camera-resolution"] {
			c.Camera.Resolution = *resolution
		}
		if set["no-audio"] {
			enabled := !*noAudio
			c.Audio.Enabled = &enabled
		}
		if set["audio-backend"] {
			c.Audio.Backend = *audioBackend
		}
		if set["broker"] {
			c.Telemetry.Broker = *broker
		}
		if set["log-file"] {
			c.Log.File = *logFile
		}
		if *debug {
			c.Log.Level = "debug"
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "tplay: %v\n", err)
		if flags.NArg() == 0 && *configPath == "" {
			flags.Usage()
		}
		return 2
	}

	closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tplay: %v\n", err)
		return 1
	}
	defer closeLog()

	slog.Info("starting tplay",
		"input", cfg.Input,
		"config", *configPath,
		"fps", cfg.FPS,
		"loop", cfg.Loop,
		"audio", cfg.AudioEnabled(),
		"telemetry", cfg.TelemetryEnabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := play(ctx, cfg, *statsInterval); err != nil {
		slog.Error("playback failed", "error", err)
		fmt.Fprintf(os.Stderr, "tplay: %v\n", err)
		var cerr *session.ConfigurationError
		if errors.As(err, &cerr) {
			return 2
		}
		return 1
	}
	return 0
}

// play opens the input and runs one session. The terminal is restored by
// the time it returns.
func play(ctx context.Context, cfg *config.Config, statsInterval time.Duration) error {
	res, _ := framesource.ParseResolution(cfg.Camera.Resolution)

	m, err := media.Open(ctx, media.Spec{
		Input:                 cfg.Input,
		MaxWidth:              cfg.Decode.MaxWidth,
		CameraDevice:          cfg.Camera.Device,
		CameraElement:         cfg.Camera.Element,
		CameraResolution:      res,
		MaxReconnectAttempts:  cfg.Stream.MaxReconnectAttempts,
		ReconnectInitialDelay: cfg.Stream.ReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.Stream.ReconnectMaxDelay,
	})
	if err != nil {
		return err
	}
	defer m.Close()

	var channel *audio.Channel
	if cfg.AudioEnabled() && m.HasAudio() {
		var cleanup func()
		channel, cleanup = openAudio(ctx, cfg.Audio.Backend, m.Location)
		defer cleanup()
	}

	bus := controlbus.New()
	defer bus.Close()

	var (
		remoteKeys <-chan control.Key
		emitter    *telemetry.Emitter
		events     chan controlbus.Event
	)
	if cfg.TelemetryEnabled() {
		em := telemetry.NewEmitter(telemetry.Config{
			Broker:       cfg.Telemetry.Broker,
			InstanceID:   cfg.Telemetry.InstanceID,
			QoS:          cfg.Telemetry.QoS,
			StatsTopic:   cfg.Telemetry.Topics.Stats,
			EventsTopic:  cfg.Telemetry.Topics.Events,
			ControlTopic: cfg.Telemetry.Topics.Control,
		})
		if err := em.Connect(ctx); err != nil {
			slog.Warn("telemetry disabled", "error", err)
		} else {
			defer em.Disconnect()
			emitter = em
			remoteKeys = em.Commands()

			events = make(chan controlbus.Event, 32)
			bus.Subscribe("telemetry", events)
			defer bus.Unsubscribe("telemetry")
		}
	}

	sess, err := session.New(session.Config{
		Source:          m,
		Terminal:        termrender.NewXTerm(os.Stdin, os.Stdout),
		Audio:           channel,
		Input:           os.Stdin,
		Keys:            remoteKeys,
		Bus:             bus,
		CharMap:         cfg.CharMap,
		CharMapIndex:    cfg.CharMapIndex,
		FPS:             cfg.FPS,
		Grayscale:       cfg.Gray,
		Monochrome:      cfg.Monochrome,
		Background:      cfg.Background,
		WidthMod:        cfg.WidthMod,
		AllowFrameSkip:  cfg.AllowFrameSkip,
		Loop:            cfg.Loop,
		Title:           "tplay: " + cfg.Input,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	if err != nil {
		return err
	}

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	if statsInterval > 0 {
		go reportStats(statsCtx, statsInterval, sess)
	}
	if emitter != nil {
		go emitter.Run(statsCtx, cfg.Telemetry.Interval, sess.Stats, events)
	}

	err = sess.Run(ctx)
	stopStats()

	if statsInterval > 0 {
		printFinalStats(os.Stdout, sess.Stats())
	}
	return err
}

// openAudio builds the audio channel for the selected backend. The beep
// backend only decodes mp3 and wav, so the track is extracted first.
func openAudio(ctx context.Context, backend, location string) (*audio.Channel, func()) {
	switch backend {
	case "gstreamer":
		return audio.NewChannel(audio.NewGstBackend(), location), func() {}
	default:
		track, err := audio.ExtractTrack(ctx, location)
		if err != nil {
			slog.Warn("audio: unavailable, continuing without sound", "error", err)
			return nil, func() {}
		}
		return audio.NewChannel(audio.NewBeepBackend(), track), func() { os.Remove(track) }
	}
}

func setupLogging(cfg config.LogConfig) (func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(f, opts)
	} else {
		handler = slog.NewTextHandler(f, opts)
	}
	slog.SetDefault(slog.New(handler))

	return func() { f.Close() }, nil
}
