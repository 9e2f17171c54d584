package config

import (
	"fmt"
	"regexp"

	"github.com/e7canasta/tplay/modules/framesource"
	"github.com/e7canasta/tplay/modules/session"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

func invalid(field, format string, args ...any) error {
	return &session.ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks if the configuration is valid. Errors are
// *session.ConfigurationError.
func Validate(cfg *Config) error {
	if cfg.Input == "" {
		return invalid("input", "is required")
	}
	if cfg.FPS < 0 {
		return invalid("fps", "must be >= 0, got %g", cfg.FPS)
	}
	if cfg.CharMap != nil && *cfg.CharMap == "" {
		return invalid("char_map", "character map is empty")
	}
	if cfg.CharMapIndex < 0 {
		return invalid("char_map_index", "must be >= 0, got %d", cfg.CharMapIndex)
	}
	if cfg.WidthMod < 1 {
		return invalid("w_mod", "must be >= 1, got %d", cfg.WidthMod)
	}
	if cfg.ShutdownTimeout <= 0 {
		return invalid("shutdown_timeout", "must be > 0")
	}

	if cfg.Decode.MaxWidth < 1 {
		return invalid("decode.max_width", "must be > 0, got %d", cfg.Decode.MaxWidth)
	}
	if _, err := framesource.ParseResolution(cfg.Camera.Resolution); err != nil {
		return invalid("camera.resolution", "%v", err)
	}

	if cfg.Stream.MaxReconnectAttempts < 0 {
		return invalid("stream.max_reconnect_attempts", "must be >= 0")
	}
	if cfg.Stream.ReconnectInitialDelay < 0 || cfg.Stream.ReconnectMaxDelay < cfg.Stream.ReconnectInitialDelay {
		return invalid("stream.reconnect_max_delay", "must be >= reconnect_initial_delay (%v), got %v",
			cfg.Stream.ReconnectInitialDelay, cfg.Stream.ReconnectMaxDelay)
	}

	switch cfg.Audio.Backend {
	case "beep", "gstreamer":
	default:
		return invalid("audio.backend", "unknown backend %q (want beep or gstreamer)", cfg.Audio.Backend)
	}

	if cfg.TelemetryEnabled() {
		if !instanceIDPattern.MatchString(cfg.Telemetry.InstanceID) {
			return invalid("telemetry.instance_id", "must match pattern [a-z0-9-]+")
		}
		if cfg.Telemetry.Interval <= 0 {
			return invalid("telemetry.interval", "must be > 0")
		}
		if cfg.Telemetry.QoS > 2 {
			return invalid("telemetry.qos", "must be 0, 1 or 2")
		}
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "unknown level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format", "unknown format %q (want text or json)", cfg.Log.Format)
	}

	return nil
}
