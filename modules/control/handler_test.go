package control_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/tplay/modules/control"
	"github.com/e7canasta/tplay/modules/controlbus"
	"github.com/e7canasta/tplay/modules/playback"
)

func newHandler(t *testing.T, maps int) (*control.Handler, *playback.State, chan controlbus.Event) {
	t.Helper()
	state := playback.NewState(playback.Snapshot{})
	bus := controlbus.New()
	t.Cleanup(func() { bus.Close() })

	events := make(chan controlbus.Event, 16)
	if err := bus.Subscribe("test", events); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	h, err := control.NewHandler(state, bus, maps)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h, state, events
}

func TestHandler_Apply(t *testing.T) {
	h, state, events := newHandler(t, 5)

	h.Apply(control.Key{Action: control.ActionCharMap, Digit: 7})
	if got := state.Load().CharMapIndex; got != 2 {
		t.Errorf("CharMapIndex = %d, want 7 %% 5 = 2", got)
	}

	h.Apply(control.Key{Action: control.ActionPause})
	h.Apply(control.Key{Action: control.ActionGrayscale})
	h.Apply(control.Key{Action: control.ActionMute})
	snap := state.Load()
	if !snap.Paused || !snap.Grayscale || !snap.Muted {
		t.Errorf("toggles not applied: %+v", snap)
	}

	h.Apply(control.Key{Action: control.ActionGrayscale})
	if state.Load().Grayscale {
		t.Error("second g did not toggle grayscale back")
	}

	wantKinds := []controlbus.Kind{
		controlbus.KindCharMap,
		controlbus.KindPause,
		controlbus.KindGrayscale,
		controlbus.KindMute,
		controlbus.KindGrayscale,
	}
	for i, want := range wantKinds {
		ev := <-events
		if ev.Kind != want || ev.Origin != "keyboard" {
			t.Errorf("event %d = %v from %q, want %v", i, ev.Kind, ev.Origin, want)
		}
	}
	if state.Version() != 5 {
		t.Errorf("Version = %d, want one update per key", state.Version())
	}
}

func TestHandler_QuitOnce(t *testing.T) {
	h, _, events := newHandler(t, 1)

	if _, ok := h.Apply(control.Key{Action: control.ActionQuit}); !ok {
		t.Fatal("first quit not applied")
	}
	if _, ok := h.Apply(control.Key{Action: control.ActionQuit}); ok {
		t.Error("second quit applied")
	}

	select {
	case <-h.Quit():
	default:
		t.Fatal("Quit channel not closed")
	}
	if ev := <-events; ev.Kind != controlbus.KindQuit {
		t.Errorf("event = %v", ev.Kind)
	}
	if st := h.Stats(); st.Applied != 1 || st.Ignored != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestHandler_RunStopsOnQuit(t *testing.T) {
	h, state, _ := newHandler(t, 3)

	keys := make(chan control.Key, 4)
	keys <- control.Key{Action: control.ActionPause}
	keys <- control.Key{Action: control.ActionQuit}

	done := make(chan error, 1)
	go func() { done <- h.Run(context.Background(), keys) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after quit")
	}
	if !state.Load().Paused {
		t.Error("pause before quit was not applied")
	}
}

func TestNewHandler_Validation(t *testing.T) {
	if _, err := control.NewHandler(nil, nil, 1); err == nil {
		t.Error("nil state accepted")
	}
	if _, err := control.NewHandler(playback.NewState(playback.Snapshot{}), nil, 0); err == nil {
		t.Error("zero map count accepted")
	}
}

func TestKeyReader(t *testing.T) {
	r := control.NewKeyReader(strings.NewReader("g1q"))
	out := make(chan control.Key, 8)

	if err := r.Run(context.Background(), out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(out)

	var got []control.Key
	for k := range out {
		got = append(got, k)
	}
	if len(got) != 3 || got[0].Action != control.ActionGrayscale || got[1].Digit != 1 || got[2].Action != control.ActionQuit {
		t.Errorf("keys = %v", got)
	}
}

func TestKeyReader_ReturnsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- control.NewKeyReader(pr).Run(ctx, make(chan control.Key)) }()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run blocked after cancel")
	}
}

func ExampleDecode() {
	for _, k := range control.Decode([]byte("3 \x1b[Aq")) {
		fmt.Println(k)
	}
	// Output:
	// char_map(3)
	// pause
	// quit
}
