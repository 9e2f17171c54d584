package controlbus

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// TestBasicPublishSubscribe verifies basic functionality.
func TestBasicPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan Event, 10)
	if err := bus.Subscribe("audio", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.Publish(Event{Kind: KindMute, Muted: true, Origin: "keyboard"})

	select {
	case ev := <-ch:
		if ev.Kind != KindMute || !ev.Muted || ev.Seq != 1 || ev.Timestamp.IsZero() {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
	}
}

// TestNonBlockingPublish verifies Publish never blocks on a full subscriber.
func TestNonBlockingPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	slow := make(chan Event, 1)
	fast := make(chan Event, 10)
	bus.Subscribe("slow", slow)
	bus.Subscribe("fast", fast)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			bus.Publish(Event{Kind: KindPause})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked (should be non-blocking)")
	}

	stats := bus.Stats()
	if stats.TotalPublished != 5 {
		t.Errorf("TotalPublished = %d, want 5", stats.TotalPublished)
	}
	if s := stats.Subscribers["slow"]; s.Sent != 1 || s.Dropped != 4 {
		t.Errorf("slow stats = %+v, want 1 sent / 4 dropped", s)
	}
	if s := stats.Subscribers["fast"]; s.Sent != 5 || s.Dropped != 0 {
		t.Errorf("fast stats = %+v", s)
	}
	if rate := DropRate(stats); rate != 0.4 {
		t.Errorf("DropRate = %.2f, want 0.40", rate)
	}
}

func TestSubscribeErrors(t *testing.T) {
	bus := New()

	ch := make(chan Event, 1)
	if err := bus.Subscribe("a", nil); !errors.Is(err, ErrNilChannel) {
		t.Errorf("nil channel: %v", err)
	}
	bus.Subscribe("a", ch)
	if err := bus.Subscribe("a", ch); !errors.Is(err, ErrSubscriberExists) {
		t.Errorf("duplicate: %v", err)
	}
	if err := bus.Unsubscribe("missing"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Errorf("unknown id: %v", err)
	}
	if err := bus.Unsubscribe("a"); err != nil {
		t.Errorf("Unsubscribe: %v", err)
	}

	bus.Close()
	bus.Close()
	if err := bus.Subscribe("b", ch); !errors.Is(err, ErrBusClosed) {
		t.Errorf("after close: %v", err)
	}
	// publishing after Close is discarded, not a panic
	bus.Publish(Event{Kind: KindQuit})
	if got := bus.Stats().TotalPublished; got != 0 {
		t.Errorf("TotalPublished after close = %d", got)
	}
}

func TestSequenceIsMonotonic(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan Event, 100)
	bus.Subscribe("telemetry", ch)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				bus.Publish(Event{Kind: KindGrayscale})
			}
		}()
	}
	wg.Wait()
	close(ch)

	seen := make(map[uint64]bool)
	for ev := range ch {
		if seen[ev.Seq] {
			t.Fatalf("duplicate seq %d", ev.Seq)
		}
		seen[ev.Seq] = true
	}
	if len(seen) != 100 {
		t.Errorf("received %d distinct events, want 100", len(seen))
	}
}

func TestKindString(t *testing.T) {
	if KindCharMap.String() != "char_map" || KindQuit.String() != "quit" || Kind(99).String() != "unknown" {
		t.Error("unexpected Kind names")
	}
}
