// Package config loads the player configuration from an optional YAML file
// and command-line overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete player configuration
type Config struct {
	Input           string        `yaml:"input"`            // path, URL, "camera" or "camera:<device>"
	FPS             float64       `yaml:"fps"`              // 0 = native rate
	CharMap         *string       `yaml:"char_map"`         // custom glyphs, dark to light
	CharMapIndex    int           `yaml:"char_map_index"`   // initially selected map
	Gray            bool          `yaml:"gray"`             // start in grayscale
	WidthMod        int           `yaml:"w_mod"`            // column divisor for wide glyphs
	AllowFrameSkip  bool          `yaml:"allow_frame_skip"` // drop stale frames to stay real time
	Loop            bool          `yaml:"loop"`             // restart at end of stream
	Monochrome      bool          `yaml:"monochrome"`       // glyphs only, no color
	Background      bool          `yaml:"background"`       // paint a dimmed background color
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // teardown grace period (default: 3s)

	Decode    DecodeConfig    `yaml:"decode"`
	Camera    CameraConfig    `yaml:"camera"`
	Stream    StreamConfig    `yaml:"stream"`
	Audio     AudioConfig     `yaml:"audio"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// DecodeConfig bounds the decoded picture size
type DecodeConfig struct {
	MaxWidth int `yaml:"max_width"` // aspect-preserving bound (default: 640)
}

// CameraConfig contains capture device settings
type CameraConfig struct {
	Device     string `yaml:"device"`     // default /dev/video0
	Resolution string `yaml:"resolution"` // 480p, 512p, 720p, 1080p
	Element    string `yaml:"element"`    // GStreamer source element (default: v4l2src)
}

// StreamConfig contains live source reconnect settings
type StreamConfig struct {
	MaxReconnectAttempts  int           `yaml:"max_reconnect_attempts"`
	ReconnectInitialDelay time.Duration `yaml:"reconnect_initial_delay"`
	ReconnectMaxDelay     time.Duration `yaml:"reconnect_max_delay"`
}

// AudioConfig selects the audio backend
type AudioConfig struct {
	Enabled *bool  `yaml:"enabled"` // default true
	Backend string `yaml:"backend"` // beep, gstreamer
}

// TelemetryConfig enables the MQTT stats publisher and remote control when
// Broker is set
type TelemetryConfig struct {
	Broker     string          `yaml:"broker"`      // host:port
	InstanceID string          `yaml:"instance_id"` // default "tplay"
	Interval   time.Duration   `yaml:"interval"`    // stats period (default: 5s)
	QoS        byte            `yaml:"qos"`
	Topics     TelemetryTopics `yaml:"topics"`
}

// TelemetryTopics contains topic names
type TelemetryTopics struct {
	Stats   string `yaml:"stats"`
	Events  string `yaml:"events"`
	Control string `yaml:"control"`
}

// LogConfig configures the log file
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	File   string `yaml:"file"`   // default <tmp>/tplay.log
}

// AudioEnabled reports whether audio playback is on.
func (c *Config) AudioEnabled() bool {
	return c.Audio.Enabled == nil || *c.Audio.Enabled
}

// TelemetryEnabled reports whether a broker is configured.
func (c *Config) TelemetryEnabled() bool {
	return c.Telemetry.Broker != ""
}

// Default returns a configuration with every default applied. Input is
// left empty.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Load reads path (optional: "" skips the file), applies overrides in
// order, fills in defaults and validates the result.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	for _, apply := range overrides {
		apply(cfg)
	}
	setDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.WidthMod == 0 {
		cfg.WidthMod = 1
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 3 * time.Second
	}

	if cfg.Decode.MaxWidth == 0 {
		cfg.Decode.MaxWidth = 640
	}

	if cfg.Camera.Device == "" {
		cfg.Camera.Device = "/dev/video0"
	}
	if cfg.Camera.Resolution == "" {
		cfg.Camera.Resolution = "480p"
	}
	if cfg.Camera.Element == "" {
		cfg.Camera.Element = "v4l2src"
	}

	if cfg.Stream.MaxReconnectAttempts == 0 {
		cfg.Stream.MaxReconnectAttempts = 5
	}
	if cfg.Stream.ReconnectInitialDelay == 0 {
		cfg.Stream.ReconnectInitialDelay = time.Second
	}
	if cfg.Stream.ReconnectMaxDelay == 0 {
		cfg.Stream.ReconnectMaxDelay = 30 * time.Second
	}

	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = "beep"
	}

	if cfg.Telemetry.InstanceID == "" {
		cfg.Telemetry.InstanceID = "tplay"
	}
	if cfg.Telemetry.Interval == 0 {
		cfg.Telemetry.Interval = 5 * time.Second
	}
	if cfg.Telemetry.Topics.Stats == "" {
		cfg.Telemetry.Topics.Stats = fmt.Sprintf("tplay/stats/%s", cfg.Telemetry.InstanceID)
	}
	if cfg.Telemetry.Topics.Events == "" {
		cfg.Telemetry.Topics.Events = fmt.Sprintf("tplay/events/%s", cfg.Telemetry.InstanceID)
	}
	if cfg.Telemetry.Topics.Control == "" {
		cfg.Telemetry.Topics.Control = fmt.Sprintf("tplay/control/%s", cfg.Telemetry.InstanceID)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(os.TempDir(), "tplay.log")
	}
}
