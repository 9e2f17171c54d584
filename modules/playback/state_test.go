package playback_test

import (
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/tplay/modules/playback"
)

func TestState_LoadUpdate(t *testing.T) {
	s := playback.NewState(playback.Snapshot{CharMapIndex: 1, Interval: 40 * time.Millisecond})

	if got := s.Load(); got.WidthMod != 1 {
		t.Errorf("WidthMod = %d, want default 1", got.WidthMod)
	}

	next := s.Update(func(sn *playback.Snapshot) {
		sn.Grayscale = !sn.Grayscale
		sn.CharMapIndex = 3
	})
	if !next.Grayscale || next.CharMapIndex != 3 {
		t.Errorf("Update returned %+v", next)
	}
	if got := s.Load(); got != next {
		t.Errorf("Load = %+v, want %+v", got, next)
	}
	if s.Version() != 1 {
		t.Errorf("Version = %d, want 1", s.Version())
	}
}

// TestState_NoTornReads checks that readers only ever see snapshots a
// writer published: TermCols and TermRows always change together.
func TestState_NoTornReads(t *testing.T) {
	s := playback.NewState(playback.Snapshot{TermCols: 0, TermRows: 0})

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 2000; i++ {
			s.Update(func(sn *playback.Snapshot) {
				sn.TermCols = i
				sn.TermRows = i
			})
		}
		close(stop)
	}()

	// second writer touching other fields must not lose the first one's updates
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			s.Update(func(sn *playback.Snapshot) { sn.Paused = !sn.Paused })
		}
	}()

	for {
		select {
		case <-stop:
			wg.Wait()
			if got := s.Load(); got.TermCols != 2000 || got.TermRows != 2000 {
				t.Fatalf("final size %dx%d, want 2000x2000", got.TermCols, got.TermRows)
			}
			if s.Version() != 4000 {
				t.Errorf("Version = %d, want 4000", s.Version())
			}
			return
		default:
		}
		if sn := s.Load(); sn.TermCols != sn.TermRows {
			t.Fatalf("torn read: %dx%d", sn.TermCols, sn.TermRows)
		}
	}
}
