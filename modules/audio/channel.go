// Package audio plays a media's sound track next to the video, best effort.
//
// Audio never takes a session down: a backend that fails to start is
// reported once and the Channel turns into a silent no-op.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/tplay/modules/controlbus"
)

// Backend plays one audio file.
type Backend interface {
	// Open prepares playback of path without starting it.
	Open(ctx context.Context, path string) error
	// Play starts (or resumes after Open) playback.
	Play() error
	// Pause freezes or resumes playback.
	Pause(paused bool) error
	// SetMuted silences output without stopping the timeline.
	SetMuted(muted bool) error
	// Elapsed returns the position on the audio timeline.
	Elapsed() time.Duration
	// Stop ends playback and releases the file. Open may be called again.
	Stop() error
	// Name identifies the backend in logs.
	Name() string
}

// AudioError reports a backend failure. It is never fatal.
type AudioError struct {
	Op      string
	Backend string
	Err     error
}

func (e *AudioError) Error() string {
	return fmt.Sprintf("audio: %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *AudioError) Unwrap() error { return e.Err }

// Channel wraps a Backend with the session's mute and pause state.
//
// Guarantees:
//   - The first failure is logged once at Warn; after it every call is a
//     no-op and Elapsed reports false.
//   - Mute and pause requested before Start are applied when playback starts.
//   - All methods are safe for concurrent use.
type Channel struct {
	backend Backend
	path    string

	mu      sync.Mutex
	playing bool
	failed  bool
	muted   bool
	paused  bool
	err     error
}

// NewChannel returns a Channel that plays path through backend. An empty
// path yields a permanently silent Channel.
func NewChannel(backend Backend, path string) *Channel {
	return &Channel{backend: backend, path: path}
}

// Start opens the track and starts playback. A non-nil error is an
// *AudioError; callers continue without sound.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx)
}

func (c *Channel) startLocked(ctx context.Context) error {
	if c.failed || c.playing || c.path == "" || c.backend == nil {
		return c.err
	}

	if err := c.backend.Open(ctx, c.path); err != nil {
		return c.failLocked("open", err)
	}
	if c.muted {
		if err := c.backend.SetMuted(true); err != nil {
			return c.failLocked("mute", err)
		}
	}
	if c.paused {
		if err := c.backend.Pause(true); err != nil {
			return c.failLocked("pause", err)
		}
	}
	if err := c.backend.Play(); err != nil {
		return c.failLocked("play", err)
	}
	c.playing = true

	slog.Info("audio: playback started", "backend", c.backend.Name(), "path", c.path, "muted", c.muted)
	return nil
}

// failLocked records the first failure, logs it and stops the backend.
func (c *Channel) failLocked(op string, err error) error {
	c.err = &AudioError{Op: op, Backend: c.backend.Name(), Err: err}
	c.failed = true
	if c.playing {
		c.backend.Stop()
		c.playing = false
	}
	slog.Warn("audio: unavailable, continuing without sound", "backend", c.backend.Name(), "op", op, "error", err)
	return c.err
}

// Stop ends playback. Safe to call at any time.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playing {
		return
	}
	if err := c.backend.Stop(); err != nil {
		slog.Debug("audio: stop failed", "error", err)
	}
	c.playing = false
	slog.Info("audio: playback stopped", "backend", c.backend.Name())
}

// Restart plays the track again from the beginning (loop restart).
func (c *Channel) Restart(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failed {
		return c.err
	}
	if c.playing {
		if err := c.backend.Stop(); err != nil {
			slog.Debug("audio: stop before restart failed", "error", err)
		}
		c.playing = false
	}
	return c.startLocked(ctx)
}

// SetMuted silences or unsilences output.
func (c *Channel) SetMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.muted = muted
	if c.playing {
		if err := c.backend.SetMuted(muted); err != nil {
			c.failLocked("mute", err)
		}
	}
}

// SetPaused freezes or resumes playback.
func (c *Channel) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = paused
	if c.playing {
		if err := c.backend.Pause(paused); err != nil {
			c.failLocked("pause", err)
		}
	}
}

// Elapsed returns the audio timeline position; ok is false when nothing is
// playing.
func (c *Channel) Elapsed() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.playing {
		return 0, false
	}
	return c.backend.Elapsed(), true
}

// Consume applies mute and pause events until ctx is done or events closes.
func (c *Channel) Consume(ctx context.Context, events <-chan controlbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case controlbus.KindMute:
				c.SetMuted(ev.Muted)
			case controlbus.KindPause:
				c.SetPaused(ev.Paused)
			case controlbus.KindLoopRestart:
				c.Restart(ctx)
			}
		}
	}
}

// Failed reports whether the channel gave up on audio.
func (c *Channel) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}
