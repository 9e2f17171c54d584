// Package session wires a frame source, the character-art converter, the
// scheduler, the terminal renderer, audio and keyboard input into one
// playback session.
//
// Goroutines and channels:
//
//	pump      Source.Next ──raw(1)──▶ convert ──rendered(1)──▶ scheduler ──▶ Renderer.Draw
//	input     KeyReader ──keys──▶ control.Handler ──▶ playback.State + controlbus
//	audio     controlbus ──▶ audio.Channel
//	resize    Renderer.WatchResize ──▶ playback.State
//
// The frame channels hold one frame each, so a slow renderer throttles the
// source, unless frame skip is enabled and the scheduler drops stale frames.
// Every goroutine reports a fatal error through the run context's cancel
// cause, and teardown runs in one place whatever the cause.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/tplay/modules/audio"
	"github.com/e7canasta/tplay/modules/charart"
	"github.com/e7canasta/tplay/modules/control"
	"github.com/e7canasta/tplay/modules/controlbus"
	"github.com/e7canasta/tplay/modules/framesource"
	"github.com/e7canasta/tplay/modules/playback"
	"github.com/e7canasta/tplay/modules/termrender"
)

const (
	defaultResizePoll      = 250 * time.Millisecond
	defaultShutdownTimeout = 3 * time.Second
	pausePoll              = 50 * time.Millisecond
)

// Config describes one session. Source and Terminal are required.
type Config struct {
	// Source produces the frames (required). The session closes it.
	Source framesource.Source
	// Terminal is drawn on (required)
	Terminal termrender.Terminal
	// Audio plays the sound track (optional). The session starts and stops it.
	Audio *audio.Channel
	// Input is read for key presses, usually os.Stdin (optional)
	Input io.Reader
	// Keys is an extra key source, e.g. remote control (optional)
	Keys <-chan control.Key
	// Bus receives every control event (optional, created when nil)
	Bus controlbus.Bus

	// CharMap is the user glyph set; nil selects the default. An empty map is
	// a ConfigurationError.
	CharMap *string
	// CharMapIndex is the initially selected map
	CharMapIndex int
	// FPS overrides the source rate; 0 uses the native rate
	FPS float64
	// Grayscale starts in grayscale mode
	Grayscale bool
	// Monochrome draws glyphs without color
	Monochrome bool
	// Background paints a dimmed color behind each glyph
	Background bool
	// WidthMod divides the column count for wide glyphs (default 1)
	WidthMod int
	// AllowFrameSkip lets the scheduler drop stale frames
	AllowFrameSkip bool
	// Loop restarts the source at end of stream
	Loop bool
	// Muted starts with audio muted
	Muted bool

	// Title is set as the terminal window title
	Title string
	// ResizePoll is how often the terminal size is checked (default 250ms)
	ResizePoll time.Duration
	// ShutdownTimeout bounds the wait for goroutines at teardown (default 3s)
	ShutdownTimeout time.Duration
	// Clock paces the scheduler (default real time)
	Clock playback.Clock
}

// Stats contains session counters.
type Stats struct {
	Pulled       uint64 // frames taken from the source
	Converted    uint64 // frames converted to character art
	LoopRestarts uint64 // successful source resets at end of stream
	Uptime       time.Duration

	Source    framesource.SourceStats
	Scheduler playback.SchedulerStats
	Renderer  termrender.Stats
	Input     control.HandlerStats
	Bus       controlbus.BusStats
}

// Session is one playback run.
//
// Lifecycle:
//   - New validates the configuration; nothing is started.
//   - Run acquires the terminal, starts audio and the goroutines, and blocks
//     until quit, end of stream (without loop), a fatal error or ctx is done.
//   - On every exit path Run cancels all goroutines, closes the source,
//     waits up to ShutdownTimeout, stops audio and restores the terminal, in
//     that order.
//
// A Session runs once.
type Session struct {
	cfg     Config
	maps    []*charart.CharMap
	ownsBus bool

	state     *playback.State
	bus       controlbus.Bus
	renderer  *termrender.Renderer
	scheduler *playback.Scheduler
	handler   *control.Handler

	ran     atomic.Bool
	started atomic.Int64

	pulled       atomic.Uint64
	converted    atomic.Uint64
	loopRestarts atomic.Uint64
}

// New validates cfg and builds the session components.
func New(cfg Config) (*Session, error) {
	if cfg.Source == nil {
		return nil, &ConfigurationError{Field: "source", Reason: "no frame source"}
	}
	if cfg.Terminal == nil {
		return nil, &ConfigurationError{Field: "terminal", Reason: "no terminal"}
	}
	if cfg.FPS < 0 {
		return nil, &ConfigurationError{Field: "fps", Reason: fmt.Sprintf("must be >= 0, got %g", cfg.FPS)}
	}
	if cfg.WidthMod < 0 {
		return nil, &ConfigurationError{Field: "w_mod", Reason: fmt.Sprintf("must be >= 1, got %d", cfg.WidthMod)}
	}
	if cfg.WidthMod == 0 {
		cfg.WidthMod = 1
	}
	if cfg.CharMapIndex < 0 {
		return nil, &ConfigurationError{Field: "char_map_index", Reason: fmt.Sprintf("must be >= 0, got %d", cfg.CharMapIndex)}
	}
	if cfg.ResizePoll <= 0 {
		cfg.ResizePoll = defaultResizePoll
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	user := ""
	if cfg.CharMap != nil {
		if *cfg.CharMap == "" {
			return nil, &ConfigurationError{Field: "char_map", Reason: "character map is empty"}
		}
		user = *cfg.CharMap
	}
	maps, err := charart.Presets(user)
	if err != nil {
		return nil, &ConfigurationError{Field: "char_map", Reason: err.Error()}
	}

	var interval time.Duration
	if cfg.FPS > 0 {
		interval = time.Duration(float64(time.Second) / cfg.FPS)
	}

	s := &Session{
		cfg:  cfg,
		maps: maps,
		bus:  cfg.Bus,
	}
	if s.bus == nil {
		s.bus = controlbus.New()
		s.ownsBus = true
	}

	s.state = playback.NewState(playback.Snapshot{
		CharMapIndex:   cfg.CharMapIndex % len(maps),
		Grayscale:      cfg.Grayscale,
		Muted:          cfg.Muted,
		Interval:       interval,
		Loop:           cfg.Loop,
		AllowFrameSkip: cfg.AllowFrameSkip,
		WidthMod:       cfg.WidthMod,
	})

	s.renderer = termrender.New(cfg.Terminal, s.state, termrender.Options{
		Title:    cfg.Title,
		OnResize: s.publishResize,
	})

	schedCfg := playback.SchedulerConfig{
		State:      s.state,
		Render:     s.renderer.Draw,
		NativeRate: cfg.Source.NativeRate,
		Clock:      cfg.Clock,
	}
	if cfg.Audio != nil {
		schedCfg.AudioElapsed = cfg.Audio.Elapsed
	}
	if s.scheduler, err = playback.NewScheduler(schedCfg); err != nil {
		return nil, err
	}

	if s.handler, err = control.NewHandler(s.state, s.bus, len(maps)); err != nil {
		return nil, err
	}
	return s, nil
}

// State returns the session's playback state.
func (s *Session) State() *playback.State { return s.state }

// Run plays until the session ends and returns nil for quit, end of stream
// or ctx cancellation, and the fatal cause otherwise. Fatal causes are
// *framesource.SourceError, *termrender.RenderError or a conversion error.
func (s *Session) Run(ctx context.Context) error {
	if !s.ran.CompareAndSwap(false, true) {
		return fmt.Errorf("session: already run")
	}
	s.started.Store(time.Now().UnixNano())

	if err := s.renderer.Acquire(); err != nil {
		s.renderer.Release()
		s.cfg.Source.Close()
		return err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var audioEvents chan controlbus.Event
	if s.cfg.Audio != nil {
		if s.cfg.Muted {
			s.cfg.Audio.SetMuted(true)
		}
		// failures are reported once by the channel; playback continues silently
		s.cfg.Audio.Start(runCtx)

		audioEvents = make(chan controlbus.Event, 8)
		if err := s.bus.Subscribe("audio", audioEvents); err != nil {
			slog.Warn("session: audio cannot follow controls", "error", err)
			audioEvents = nil
		}
	}

	slog.Info("session: starting",
		"source", s.cfg.Source.Kind().String(),
		"fps_override", s.cfg.FPS,
		"loop", s.cfg.Loop,
		"frame_skip", s.cfg.AllowFrameSkip,
		"char_maps", len(s.maps),
	)

	raw := make(chan framesource.RawFrame, 1)
	rendered := make(chan *charart.RenderedFrame, 1)
	keys := make(chan control.Key, 16)

	var wg sync.WaitGroup
	spawn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				cancel(err)
				return
			}
			slog.Debug("session: goroutine finished", "name", name)
		}()
	}

	spawn("pump", func() error {
		defer close(raw)
		return s.pump(runCtx, raw)
	})
	spawn("convert", func() error {
		defer close(rendered)
		return s.convert(runCtx, raw, rendered)
	})
	spawn("scheduler", func() error {
		err := s.scheduler.Run(runCtx, rendered)
		if err == nil {
			// the pipe drained: the source ended without loop
			return framesource.ErrEndOfStream
		}
		return err
	})
	spawn("resize", func() error {
		return s.renderer.WatchResize(runCtx, s.cfg.ResizePoll)
	})
	spawn("input", func() error {
		s.handler.Run(runCtx, keys)
		select {
		case <-s.handler.Quit():
			return ErrQuit
		default:
			return nil
		}
	})
	if s.cfg.Keys != nil {
		spawn("remote-keys", func() error {
			return forward(runCtx, s.cfg.Keys, keys)
		})
	}
	if audioEvents != nil {
		spawn("audio", func() error {
			s.cfg.Audio.Consume(runCtx, audioEvents)
			return nil
		})
	}
	if s.cfg.Input != nil {
		// not waited for: a terminal read cannot be interrupted
		go control.NewKeyReader(s.cfg.Input).Run(runCtx, keys)
	}

	<-runCtx.Done()
	cause := context.Cause(runCtx)

	return s.teardown(ctx, cause, &wg)
}

func (s *Session) teardown(parent context.Context, cause error, wg *sync.WaitGroup) error {
	slog.Info("session: stopping", "cause", cause)

	if err := s.cfg.Source.Close(); err != nil {
		slog.Warn("session: source close failed", "error", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout):
		slog.Warn("session: goroutines did not stop in time", "timeout", s.cfg.ShutdownTimeout)
	}

	if s.cfg.Audio != nil {
		s.cfg.Audio.Stop()
		s.bus.Unsubscribe("audio")
	}
	if s.ownsBus {
		s.bus.Close()
	}

	releaseErr := s.renderer.Release()

	st := s.Stats()
	slog.Info("session: stopped",
		"uptime", st.Uptime,
		"pulled", st.Pulled,
		"converted", st.Converted,
		"rendered", st.Scheduler.Rendered,
		"dropped", st.Scheduler.Dropped,
		"skipped_draws", st.Renderer.Skipped,
		"loop_restarts", st.LoopRestarts,
		"reconnects", st.Source.Reconnects,
	)

	switch {
	case errors.Is(cause, ErrQuit), errors.Is(cause, framesource.ErrEndOfStream):
		cause = nil
	case parent.Err() != nil && errors.Is(cause, parent.Err()):
		cause = nil
	}
	if cause == nil && releaseErr != nil {
		return releaseErr
	}
	return cause
}

// pump pulls frames in decode order, restarting the source at end of stream
// when looping. While paused it stops pulling.
func (s *Session) pump(ctx context.Context, out chan<- framesource.RawFrame) error {
	var passSeq uint64
	for {
		snap := s.state.Load()
		if snap.Paused {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pausePoll):
			}
			continue
		}

		f, err := s.cfg.Source.Next(ctx)
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case errors.Is(err, framesource.ErrEndOfStream):
			if !snap.Loop {
				slog.Info("session: end of stream", "frames", passSeq)
				return nil
			}
			if err := s.cfg.Source.Reset(ctx); err != nil {
				if errors.Is(err, framesource.ErrNotResettable) {
					slog.Info("session: end of live stream, cannot loop")
					return nil
				}
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			s.loopRestarts.Add(1)
			slog.Debug("session: loop restart", "frames", passSeq, "restarts", s.loopRestarts.Load())
			passSeq = 0
			s.bus.Publish(controlbus.Event{Kind: controlbus.KindLoopRestart, Origin: "session"})
			continue
		case errors.Is(err, framesource.ErrClosed):
			return nil
		case err != nil:
			return err
		}

		passSeq++
		if !f.HasPTS {
			if fps, ok := s.cfg.Source.NativeRate(); ok && fps > 0 {
				f.PTS = time.Duration(float64(passSeq-1) / fps * float64(time.Second))
				f.HasPTS = true
			}
		}
		s.pulled.Add(1)

		select {
		case out <- f:
		case <-ctx.Done():
			return nil
		}
	}
}

// convert turns raw frames into grids sized for the terminal as it is when
// the frame is converted.
func (s *Session) convert(ctx context.Context, in <-chan framesource.RawFrame, out chan<- *charart.RenderedFrame) error {
	for {
		var f framesource.RawFrame
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-in:
			if !ok {
				return nil
			}
			f = raw
		}

		snap := s.state.Load()
		cols, rows := charart.TargetGrid(snap.TermCols, snap.TermRows, snap.WidthMod)
		rf, err := charart.Convert(&f, cols, rows, charart.Options{
			Map:        s.maps[snap.CharMapIndex%len(s.maps)],
			Grayscale:  snap.Grayscale,
			Monochrome: s.cfg.Monochrome,
			Background: s.cfg.Background,
		})
		if err != nil {
			return fmt.Errorf("session: convert frame %d: %w", f.Seq, err)
		}
		rf.TermCols, rf.TermRows = snap.TermCols, snap.TermRows
		s.converted.Add(1)

		select {
		case out <- rf:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) publishResize(cols, rows int) {
	s.bus.Publish(controlbus.Event{
		Kind:   controlbus.KindResize,
		Origin: "terminal",
		Metadata: map[string]string{
			"cols": strconv.Itoa(cols),
			"rows": strconv.Itoa(rows),
		},
	})
}

func forward(ctx context.Context, in <-chan control.Key, out chan<- control.Key) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case k, ok := <-in:
			if !ok {
				return nil
			}
			select {
			case out <- k:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Stats returns the session counters. Safe to call while running.
func (s *Session) Stats() Stats {
	st := Stats{
		Pulled:       s.pulled.Load(),
		Converted:    s.converted.Load(),
		LoopRestarts: s.loopRestarts.Load(),
		Source:       s.cfg.Source.Stats(),
		Scheduler:    s.scheduler.Stats(),
		Renderer:     s.renderer.Stats(),
		Input:        s.handler.Stats(),
		Bus:          s.bus.Stats(),
	}
	if started := s.started.Load(); started != 0 {
		st.Uptime = time.Since(time.Unix(0, started))
	}
	return st
}
