// Package termrender draws character grids to a terminal and owns the
// terminal mode for the lifetime of a session.
package termrender

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/tplay/modules/charart"
	"github.com/e7canasta/tplay/modules/playback"
)

// RenderError reports a terminal failure. It is fatal to the session.
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("termrender: %s: %v", e.Op, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Options configures a Renderer.
type Options struct {
	// Title is written to the terminal window title on Acquire (optional)
	Title string
	// OnResize is called by WatchResize after a size change is published (optional)
	OnResize func(cols, rows int)
}

// Stats contains renderer counters.
type Stats struct {
	Drawn   uint64 // frames written to the terminal
	Skipped uint64 // frames skipped (empty, or computed for another terminal size)
	Bytes   uint64 // bytes written
	Resizes uint64 // terminal size changes detected
}

// Renderer writes RenderedFrames to a Terminal.
//
// Each frame starts at the home position and rows are separated by CR LF, so
// the screen never scrolls. Color escapes are emitted only when the color
// changes from the previous cell. A frame computed for a different terminal
// size than the current one is skipped rather than drawn misaligned.
//
// Acquire and Release bracket the session; Release restores the terminal and
// is safe to call on every exit path.
type Renderer struct {
	term  Terminal
	state *playback.State
	opts  Options

	buf bytes.Buffer

	mu       sync.Mutex
	acquired bool

	cols      atomic.Int64
	rows      atomic.Int64
	needClear atomic.Bool

	drawn   atomic.Uint64
	skipped atomic.Uint64
	bytes   atomic.Uint64
	resizes atomic.Uint64
}

// New returns a Renderer drawing to t and publishing size changes to state.
func New(t Terminal, state *playback.State, opts Options) *Renderer {
	return &Renderer{term: t, state: state, opts: opts}
}

// Acquire enters the terminal's drawing mode and records its size.
func (r *Renderer) Acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.acquired {
		return nil
	}
	if err := r.term.Enter(); err != nil {
		return &RenderError{Op: "acquire", Err: err}
	}
	r.acquired = true

	if r.opts.Title != "" {
		if _, err := r.term.Write([]byte("\x1b]0;" + r.opts.Title + "\x07")); err != nil {
			slog.Warn("termrender: failed to set title", "error", err)
		}
	}

	cols, rows, err := r.term.Size()
	if err != nil {
		return &RenderError{Op: "size", Err: err}
	}
	r.setSize(cols, rows)

	slog.Info("termrender: terminal acquired", "cols", cols, "rows", rows)
	return nil
}

// Release restores the terminal. Safe to call more than once.
func (r *Renderer) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.acquired {
		return nil
	}
	r.acquired = false
	if err := r.term.Restore(); err != nil {
		return &RenderError{Op: "restore", Err: err}
	}
	slog.Info("termrender: terminal restored",
		"frames_drawn", r.drawn.Load(),
		"frames_skipped", r.skipped.Load(),
	)
	return nil
}

func (r *Renderer) setSize(cols, rows int) {
	r.cols.Store(int64(cols))
	r.rows.Store(int64(rows))
	r.state.Update(func(s *playback.Snapshot) {
		s.TermCols = cols
		s.TermRows = rows
	})
}

// Size returns the last known terminal size.
func (r *Renderer) Size() (cols, rows int) {
	return int(r.cols.Load()), int(r.rows.Load())
}

// Draw writes f to the terminal. Must not be called concurrently.
func (r *Renderer) Draw(f *charart.RenderedFrame) error {
	cols, rows := r.Size()
	if f.Empty() || f.TermCols != cols || f.TermRows != rows {
		r.skipped.Add(1)
		slog.Debug("termrender: frame skipped",
			"seq", f.Seq,
			"grid", fmt.Sprintf("%dx%d", f.Cols, f.Rows),
			"frame_term", fmt.Sprintf("%dx%d", f.TermCols, f.TermRows),
			"term", fmt.Sprintf("%dx%d", cols, rows),
		)
		return nil
	}

	r.buf.Reset()
	if r.needClear.Swap(false) {
		r.buf.WriteString(escReset + escClear)
	}
	r.buf.WriteString(escHome)
	encode(&r.buf, f)

	n, err := r.term.Write(r.buf.Bytes())
	r.bytes.Add(uint64(n))
	if err != nil {
		return &RenderError{Op: "write", Err: err}
	}
	r.drawn.Add(1)
	return nil
}

// encode appends the escape sequence stream for f to buf.
func encode(buf *bytes.Buffer, f *charart.RenderedFrame) {
	var fg, bg charart.Color
	for y := 0; y < f.Rows; y++ {
		if y > 0 {
			buf.WriteString("\r\n")
		}
		for _, c := range f.Row(y) {
			if c.Fg != fg || c.Bg != bg {
				if (fg.Set && !c.Fg.Set) || (bg.Set && !c.Bg.Set) {
					buf.WriteString(escReset)
					fg, bg = charart.Color{}, charart.Color{}
				}
				if c.Fg.Set && c.Fg != fg {
					writeColor(buf, 38, c.Fg)
				}
				if c.Bg.Set && c.Bg != bg {
					writeColor(buf, 48, c.Bg)
				}
				fg, bg = c.Fg, c.Bg
			}
			buf.WriteString(c.Glyph)
		}
	}
	if fg.Set || bg.Set {
		buf.WriteString(escReset)
	}
}

// writeColor appends a truecolor SGR sequence; layer is 38 (fg) or 48 (bg).
func writeColor(buf *bytes.Buffer, layer int, c charart.Color) {
	var tmp [24]byte
	b := append(tmp[:0], "\x1b["...)
	b = strconv.AppendInt(b, int64(layer), 10)
	b = append(b, ";2;"...)
	b = strconv.AppendUint(b, uint64(c.R), 10)
	b = append(b, ';')
	b = strconv.AppendUint(b, uint64(c.G), 10)
	b = append(b, ';')
	b = strconv.AppendUint(b, uint64(c.B), 10)
	b = append(b, 'm')
	buf.Write(b)
}

// WatchResize polls the terminal size every interval until ctx is done.
// Size changes are published to the playback state and the next frame
// clears the screen.
func (r *Renderer) WatchResize(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		cols, rows, err := r.term.Size()
		if err != nil {
			failures++
			if failures == 1 {
				slog.Warn("termrender: cannot read terminal size", "error", err)
			}
			continue
		}
		failures = 0

		oldCols, oldRows := r.Size()
		if cols == oldCols && rows == oldRows {
			continue
		}
		r.setSize(cols, rows)
		r.needClear.Store(true)
		r.resizes.Add(1)
		slog.Info("termrender: terminal resized",
			"cols", cols,
			"rows", rows,
			"previous", fmt.Sprintf("%dx%d", oldCols, oldRows),
		)
		if r.opts.OnResize != nil {
			r.opts.OnResize(cols, rows)
		}
	}
}

// Stats returns the renderer counters.
func (r *Renderer) Stats() Stats {
	return Stats{
		Drawn:   r.drawn.Load(),
		Skipped: r.skipped.Load(),
		Bytes:   r.bytes.Load(),
		Resizes: r.resizes.Load(),
	}
}
