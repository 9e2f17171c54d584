// Package playback holds the shared playback state and the scheduler that
// paces rendered frames against the target interval.
package playback

import (
	"sync/atomic"
	"time"
)

// Snapshot is one immutable view of the playback state.
type Snapshot struct {
	// CharMapIndex selects the active character map
	CharMapIndex int
	// Grayscale renders luminance instead of color
	Grayscale bool
	// Muted silences audio
	Muted bool
	// Paused freezes the display
	Paused bool
	// Interval is the target frame interval; 0 means resolve from the source
	Interval time.Duration
	// Loop restarts the source at end of stream
	Loop bool
	// AllowFrameSkip lets the scheduler drop stale frames to stay on time
	AllowFrameSkip bool
	// TermCols and TermRows are the terminal size in cells
	TermCols int
	TermRows int
	// WidthMod divides the column count for wide glyphs (minimum 1)
	WidthMod int
}

// State is the process-wide playback state. Writers replace the whole
// snapshot atomically, so readers never observe a partial update.
type State struct {
	p       atomic.Pointer[Snapshot]
	version atomic.Uint64
}

// NewState returns a State holding initial.
func NewState(initial Snapshot) *State {
	s := &State{}
	if initial.WidthMod < 1 {
		initial.WidthMod = 1
	}
	s.p.Store(&initial)
	return s
}

// Load returns the current snapshot.
func (s *State) Load() Snapshot {
	return *s.p.Load()
}

// Update applies fn to a copy of the current snapshot and publishes the
// result. Concurrent updates retry, so fn must be free of side effects.
func (s *State) Update(fn func(*Snapshot)) Snapshot {
	for {
		old := s.p.Load()
		next := *old
		fn(&next)
		if s.p.CompareAndSwap(old, &next) {
			s.version.Add(1)
			return next
		}
	}
}

// Version increases on every Update.
func (s *State) Version() uint64 {
	return s.version.Load()
}
