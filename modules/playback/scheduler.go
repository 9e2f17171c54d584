package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/e7canasta/tplay/modules/charart"
)

// DefaultInterval is used when neither an override nor a native rate is known.
const DefaultInterval = time.Second / 30

// Clock abstracts time for the scheduler.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done (returning ctx.Err()).
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// ResolveInterval picks the target interval: override if positive, else the
// native rate hint, else DefaultInterval.
func ResolveInterval(override time.Duration, native func() (float64, bool)) time.Duration {
	if override > 0 {
		return override
	}
	if native != nil {
		if fps, ok := native(); ok && fps > 0 {
			return time.Duration(float64(time.Second) / fps)
		}
	}
	return DefaultInterval
}

// SchedulerConfig wires a Scheduler.
type SchedulerConfig struct {
	// State is read before every frame (required)
	State *State
	// Render draws one frame; an error ends Run (required)
	Render func(*charart.RenderedFrame) error
	// NativeRate is the source rate hint (optional)
	NativeRate func() (float64, bool)
	// AudioElapsed reports the audio timeline for soft sync (optional)
	AudioElapsed func() (time.Duration, bool)
	// Clock defaults to RealClock
	Clock Clock
}

// SchedulerStats contains scheduler counters.
type SchedulerStats struct {
	Received        uint64        // frames taken from the input channel
	Rendered        uint64        // frames drawn
	Dropped         uint64        // stale frames discarded by catch-up skip
	DiscardedPaused uint64        // frames discarded while paused
	LateRenders     uint64        // frames drawn after their deadline without skipping
	Interval        time.Duration // last resolved target interval
}

// Scheduler paces frames against a deadline that advances by the target
// interval per frame.
//
// Guarantees:
//   - Frames are rendered in arrival order, never reordered.
//   - Nothing is rendered while the state is paused; frames that arrive
//     during a pause are discarded and pacing restarts on resume.
//   - With frame skip allowed, a frame later than one interval causes every
//     frame already queued to be dropped except the newest, and the deadline
//     moves to the first interval boundary after now. Latency stays within
//     one interval however slow upstream stages are.
//   - With frame skip disallowed, every frame is rendered; late frames are
//     rendered immediately.
//   - Audio soft sync shifts a deadline by at most half an interval, and only
//     while the audio clock keeps moving.
type Scheduler struct {
	cfg   SchedulerConfig
	clock Clock

	deadline time.Time

	// last audio position seen by nudge
	lastAudio  time.Duration
	audioKnown bool

	received        atomic.Uint64
	rendered        atomic.Uint64
	dropped         atomic.Uint64
	discardedPaused atomic.Uint64
	lateRenders     atomic.Uint64
	interval        atomic.Int64
}

// NewScheduler returns a Scheduler for cfg.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.State == nil || cfg.Render == nil {
		return nil, fmt.Errorf("scheduler: State and Render are required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock
	}
	return &Scheduler{cfg: cfg, clock: clock}, nil
}

// Run consumes frames until in is closed (returns nil), ctx is done (returns
// ctx.Err()) or Render fails (returns its error).
func (s *Scheduler) Run(ctx context.Context, in <-chan *charart.RenderedFrame) error {
	for {
		var frame *charart.RenderedFrame
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-in:
			if !ok {
				return nil
			}
			frame = f
		}
		s.received.Add(1)

		snap := s.cfg.State.Load()
		if snap.Paused {
			s.discardedPaused.Add(1)
			s.deadline = time.Time{}
			continue
		}

		interval := ResolveInterval(snap.Interval, s.cfg.NativeRate)
		if prev := time.Duration(s.interval.Swap(int64(interval))); prev != interval {
			slog.Debug("scheduler: target interval", "interval", interval, "previous", prev)
		}

		now := s.clock.Now()
		if s.deadline.IsZero() {
			s.deadline = now
		}
		s.nudge(frame, interval)

		var next time.Time
		switch late := now.Sub(s.deadline); {
		case late < 0:
			if err := s.clock.Sleep(ctx, -late); err != nil {
				return err
			}
			// a pause may have landed while sleeping
			if s.cfg.State.Load().Paused {
				s.discardedPaused.Add(1)
				s.deadline = time.Time{}
				continue
			}
			next = s.deadline.Add(interval)

		case late > interval && snap.AllowFrameSkip:
			var closed bool
			frame, closed = s.newest(frame, in)
			steps := late/interval + 1
			next = s.deadline.Add(steps * interval)
			slog.Debug("scheduler: catch-up skip",
				"late", late,
				"seq", frame.Seq,
				"dropped_total", s.dropped.Load(),
			)
			if closed {
				if err := s.render(frame); err != nil {
					return err
				}
				s.deadline = next
				return nil
			}

		case late > interval:
			s.lateRenders.Add(1)
			next = now.Add(interval)

		default:
			next = s.deadline.Add(interval)
		}

		if err := s.render(frame); err != nil {
			return err
		}
		s.deadline = next
	}
}

// newest drains everything already queued behind frame and returns the last
// one. closed reports whether in was closed while draining.
func (s *Scheduler) newest(frame *charart.RenderedFrame, in <-chan *charart.RenderedFrame) (*charart.RenderedFrame, bool) {
	for {
		select {
		case f, ok := <-in:
			if !ok {
				return frame, true
			}
			s.received.Add(1)
			s.dropped.Add(1)
			frame = f
		default:
			return frame, false
		}
	}
}

// maxAudioDrift is the drift, in intervals, past which the audio timeline is
// considered unrelated to the video (track ended, restarted elsewhere).
const maxAudioDrift = 4

// nudge moves the deadline toward the audio timeline by at most half an
// interval when the frame carries a media time. Only an audio clock that
// advanced since the previous frame is trusted; a stalled or finished track
// leaves pacing alone.
func (s *Scheduler) nudge(frame *charart.RenderedFrame, interval time.Duration) {
	if s.cfg.AudioElapsed == nil || !frame.HasPTS {
		return
	}
	audio, ok := s.cfg.AudioElapsed()
	if !ok {
		s.audioKnown = false
		return
	}
	advancing := s.audioKnown && audio > s.lastAudio
	s.lastAudio, s.audioKnown = audio, true
	if !advancing {
		return
	}

	// positive drift: video is behind audio and should be shown sooner
	drift := audio - frame.PTS
	if drift > maxAudioDrift*interval || drift < -maxAudioDrift*interval {
		return
	}
	limit := interval / 2
	if drift > limit {
		drift = limit
	} else if drift < -limit {
		drift = -limit
	}
	s.deadline = s.deadline.Add(-drift)
}

func (s *Scheduler) render(frame *charart.RenderedFrame) error {
	if err := s.cfg.Render(frame); err != nil {
		return err
	}
	s.rendered.Add(1)
	return nil
}

// Stats returns a snapshot of the scheduler counters. Safe to call from any
// goroutine.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Received:        s.received.Load(),
		Rendered:        s.rendered.Load(),
		Dropped:         s.dropped.Load(),
		DiscardedPaused: s.discardedPaused.Load(),
		LateRenders:     s.lateRenders.Load(),
		Interval:        time.Duration(s.interval.Load()),
	}
}
