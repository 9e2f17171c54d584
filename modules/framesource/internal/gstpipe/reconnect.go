package gstpipe

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ReconnectConfig contains configuration for exponential backoff restarts of
// live pipelines.
type ReconnectConfig struct {
	MaxRetries    int           // Maximum consecutive restart attempts (default: 5)
	RetryDelay    time.Duration // Initial retry delay (default: 1 second)
	MaxRetryDelay time.Duration // Maximum retry delay cap (default: 30 seconds)
}

// DefaultReconnectConfig returns default reconnection configuration
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    5,
		RetryDelay:    1 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// ReconnectState tracks consecutive failures and the lifetime restart count.
type ReconnectState struct {
	CurrentRetries int
	Reconnects     atomic.Uint32
}

// RunFunc runs one pipeline instance until it fails (non-nil error) or its
// context is cancelled (nil). attempt is 0 for the first run.
type RunFunc func(ctx context.Context, attempt int) error

// RunWithReconnect calls runFn until it returns nil, waiting with exponential
// backoff between failures.
//
// Backoff schedule with the default config:
//   - Attempt 1: 1s
//   - Attempt 2: 2s
//   - Attempt 3: 4s
//   - Attempt 4: 8s
//   - Attempt 5: 16s
//   - After 5 consecutive failures: give up
//
// A run that reaches PLAYING resets the consecutive failure count (see
// MonitorPipelineBus). Returns the last run error once retries are exhausted,
// or ctx.Err() if cancelled.
func RunWithReconnect(ctx context.Context, runFn RunFunc, cfg ReconnectConfig, state *ReconnectState) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := runFn(ctx, attempt)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		state.CurrentRetries++
		if state.CurrentRetries > cfg.MaxRetries {
			return fmt.Errorf("gst: max retries exceeded (%d attempts): %w", cfg.MaxRetries, err)
		}
		state.Reconnects.Add(1)

		delay := calculateBackoff(state.CurrentRetries, cfg)
		slog.Warn("gst: pipeline failed, restarting",
			"error", err,
			"attempt", state.CurrentRetries,
			"max_retries", cfg.MaxRetries,
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			slog.Info("gst: context cancelled during backoff")
			return ctx.Err()
		}
	}
}

// calculateBackoff returns retryDelay * 2^(attempt-1), capped at maxRetryDelay.
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.RetryDelay
	for i := 1; i < attempt && delay < cfg.MaxRetryDelay; i++ {
		delay *= 2
	}
	if delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
