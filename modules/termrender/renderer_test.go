package termrender

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/tplay/modules/charart"
	"github.com/e7canasta/tplay/modules/playback"
)

// fakeTerm records everything written and reports a settable size.
type fakeTerm struct {
	mu       sync.Mutex
	out      bytes.Buffer
	cols     int
	rows     int
	entered  bool
	restores int
	writeErr error
}

func (f *fakeTerm) Enter() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entered = true
	return nil
}

func (f *fakeTerm) Restore() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entered = false
	f.restores++
	return nil
}

func (f *fakeTerm) Size() (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cols, f.rows, nil
}

func (f *fakeTerm) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.out.Write(p)
}

func (f *fakeTerm) setSize(cols, rows int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cols, f.rows = cols, rows
}

func (f *fakeTerm) take() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.out.String()
	f.out.Reset()
	return s
}

func grid(cols, rows int, glyphs string, fg charart.Color) *charart.RenderedFrame {
	f := &charart.RenderedFrame{Cols: cols, Rows: rows, TermCols: cols, TermRows: rows}
	r := []rune(glyphs)
	for i := 0; i < cols*rows; i++ {
		f.Cells = append(f.Cells, charart.CharCell{Glyph: string(r[i%len(r)]), Fg: fg})
	}
	return f
}

func acquired(t *testing.T, cols, rows int) (*Renderer, *fakeTerm, *playback.State) {
	t.Helper()
	ft := &fakeTerm{cols: cols, rows: rows}
	state := playback.NewState(playback.Snapshot{})
	r := New(ft, state, Options{Title: "tplay: test.gif"})
	if err := r.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ft.take()
	return r, ft, state
}

func TestRenderer_AcquireRelease(t *testing.T) {
	ft := &fakeTerm{cols: 80, rows: 24}
	state := playback.NewState(playback.Snapshot{})
	r := New(ft, state, Options{Title: "tplay: cat.gif"})

	if err := r.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !ft.entered {
		t.Error("terminal not entered")
	}
	if out := ft.take(); out != "\x1b]0;tplay: cat.gif\x07" {
		t.Errorf("title sequence = %q", out)
	}
	if sn := state.Load(); sn.TermCols != 80 || sn.TermRows != 24 {
		t.Errorf("state size = %dx%d", sn.TermCols, sn.TermRows)
	}

	for i := 0; i < 3; i++ {
		if err := r.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}
	if ft.restores != 1 || ft.entered {
		t.Errorf("restores = %d, entered = %v; want exactly one restore", ft.restores, ft.entered)
	}
}

func TestRenderer_DrawMonochrome(t *testing.T) {
	r, ft, _ := acquired(t, 2, 2)

	if err := r.Draw(grid(2, 2, "abcd", charart.Color{})); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if got, want := ft.take(), "\x1b[Hab\r\ncd"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRenderer_DrawMinimalColorChanges(t *testing.T) {
	r, ft, _ := acquired(t, 4, 1)

	red := charart.RGB(255, 0, 0)
	blue := charart.RGB(0, 0, 255)
	f := grid(4, 1, "abcd", red)
	f.Cells[2].Fg = blue
	f.Cells[3].Fg = blue

	if err := r.Draw(f); err != nil {
		t.Fatal(err)
	}
	want := "\x1b[H\x1b[38;2;255;0;0mab\x1b[38;2;0;0;255mcd\x1b[0m"
	if got := ft.take(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRenderer_DrawBackgroundAndReset(t *testing.T) {
	r, ft, _ := acquired(t, 2, 1)

	f := grid(2, 1, "xy", charart.RGB(10, 20, 30))
	f.Cells[0].Bg = charart.RGB(1, 2, 3)
	f.Cells[1].Fg = charart.Color{}

	if err := r.Draw(f); err != nil {
		t.Fatal(err)
	}
	want := "\x1b[H\x1b[38;2;10;20;30m\x1b[48;2;1;2;3mx\x1b[0my"
	if got := ft.take(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRenderer_SkipsMismatchedAndEmpty(t *testing.T) {
	r, ft, _ := acquired(t, 80, 24)

	stale := grid(40, 12, "#", charart.Color{})
	if err := r.Draw(stale); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	empty := &charart.RenderedFrame{TermCols: 80, TermRows: 24}
	if err := r.Draw(empty); err != nil {
		t.Fatalf("Draw empty: %v", err)
	}

	if out := ft.take(); out != "" {
		t.Errorf("skipped frames wrote %q", out)
	}
	if st := r.Stats(); st.Skipped != 2 || st.Drawn != 0 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestRenderer_WriteError(t *testing.T) {
	r, ft, _ := acquired(t, 1, 1)
	ft.writeErr = errors.New("EIO")

	err := r.Draw(grid(1, 1, "x", charart.Color{}))
	var re *RenderError
	if !errors.As(err, &re) || re.Op != "write" {
		t.Fatalf("Draw = %v, want *RenderError{Op: write}", err)
	}
}

func TestRenderer_WatchResize(t *testing.T) {
	r, ft, state := acquired(t, 80, 24)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.WatchResize(ctx, 5*time.Millisecond) }()

	ft.setSize(100, 30)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if sn := state.Load(); sn.TermCols == 100 && sn.TermRows == 30 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("resize not published to state")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("WatchResize = %v", err)
	}

	if err := r.Draw(grid(100, 30, "o", charart.Color{})); err != nil {
		t.Fatal(err)
	}
	if out := ft.take(); !strings.HasPrefix(out, "\x1b[0m\x1b[2J\x1b[H") {
		t.Errorf("first frame after resize does not clear: %q", out[:min(len(out), 20)])
	}
	if st := r.Stats(); st.Resizes != 1 {
		t.Errorf("Resizes = %d, want 1", st.Resizes)
	}
}
