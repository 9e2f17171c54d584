package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/tplay/modules/controlbus"
	"github.com/e7canasta/tplay/modules/playback"
)

// HandlerStats contains handler counters.
type HandlerStats struct {
	Applied uint64 // keys that changed the state
	Ignored uint64 // keys with nothing to do (unknown action, quit after quit)
}

// Handler applies keys to the playback state.
//
// Guarantees:
//   - Each key results in at most one State.Update and one bus publish.
//   - Apply never blocks on another component.
//   - Quit is signalled once, by closing the channel returned from Quit.
type Handler struct {
	state    *playback.State
	bus      controlbus.Bus
	mapCount int
	origin   string

	quit     chan struct{}
	quitOnce sync.Once

	applied atomic.Uint64
	ignored atomic.Uint64
}

// NewHandler returns a Handler over state with mapCount selectable
// character maps. bus may be nil.
func NewHandler(state *playback.State, bus controlbus.Bus, mapCount int) (*Handler, error) {
	if state == nil {
		return nil, fmt.Errorf("control: state is required")
	}
	if mapCount < 1 {
		return nil, fmt.Errorf("control: need at least one character map, got %d", mapCount)
	}
	return &Handler{
		state:    state,
		bus:      bus,
		mapCount: mapCount,
		origin:   "keyboard",
		quit:     make(chan struct{}),
	}, nil
}

// Quit is closed once a quit key has been applied.
func (h *Handler) Quit() <-chan struct{} {
	return h.quit
}

// Apply performs the state change for k and returns the resulting snapshot.
// applied is false when k had nothing to do.
func (h *Handler) Apply(k Key) (snap playback.Snapshot, applied bool) {
	var kind controlbus.Kind

	switch k.Action {
	case ActionCharMap:
		idx := k.Digit % h.mapCount
		if idx < 0 {
			idx += h.mapCount
		}
		snap = h.state.Update(func(s *playback.Snapshot) { s.CharMapIndex = idx })
		kind = controlbus.KindCharMap
	case ActionPause:
		snap = h.state.Update(func(s *playback.Snapshot) { s.Paused = !s.Paused })
		kind = controlbus.KindPause
	case ActionGrayscale:
		snap = h.state.Update(func(s *playback.Snapshot) { s.Grayscale = !s.Grayscale })
		kind = controlbus.KindGrayscale
	case ActionMute:
		snap = h.state.Update(func(s *playback.Snapshot) { s.Muted = !s.Muted })
		kind = controlbus.KindMute
	case ActionQuit:
		first := false
		h.quitOnce.Do(func() {
			close(h.quit)
			first = true
		})
		snap = h.state.Load()
		if !first {
			h.ignored.Add(1)
			return snap, false
		}
		kind = controlbus.KindQuit
	default:
		h.ignored.Add(1)
		return h.state.Load(), false
	}

	h.applied.Add(1)
	slog.Debug("control: key applied",
		"key", k.String(),
		"char_map", snap.CharMapIndex,
		"paused", snap.Paused,
		"gray", snap.Grayscale,
		"muted", snap.Muted,
	)

	if h.bus != nil {
		h.bus.Publish(controlbus.Event{
			Kind:         kind,
			CharMapIndex: snap.CharMapIndex,
			Paused:       snap.Paused,
			Grayscale:    snap.Grayscale,
			Muted:        snap.Muted,
			Origin:       h.origin,
		})
	}
	return snap, true
}

// Run applies keys until ctx is done, keys is closed, or a quit key is
// applied.
func (h *Handler) Run(ctx context.Context, keys <-chan Key) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.quit:
			return nil
		case k, ok := <-keys:
			if !ok {
				return nil
			}
			h.Apply(k)
		}
	}
}

// Stats returns handler counters.
func (h *Handler) Stats() HandlerStats {
	return HandlerStats{Applied: h.applied.Load(), Ignored: h.ignored.Load()}
}
