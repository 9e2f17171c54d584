package termrender

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/term"
)

// Terminal abstracts the low-level terminal operations the renderer needs,
// so tests can substitute a virtual terminal.
type Terminal interface {
	// Enter switches to raw mode and the alternate screen and hides the cursor.
	Enter() error
	// Restore undoes Enter. It is safe to call more than once.
	Restore() error
	// Size returns the terminal size in cells.
	Size() (cols, rows int, err error)
	Write(p []byte) (n int, err error)
}

const (
	escAltScreenOn  = "\x1b[?1049h"
	escAltScreenOff = "\x1b[?1049l"
	escHideCursor   = "\x1b[?25l"
	escShowCursor   = "\x1b[?25h"
	escClear        = "\x1b[2J"
	escHome         = "\x1b[H"
	escReset        = "\x1b[0m"
)

// XTerm drives an ANSI terminal through golang.org/x/term.
type XTerm struct {
	in  *os.File
	out *os.File

	mu      sync.Mutex
	raw     *term.State
	entered bool
}

// NewXTerm returns a terminal reading keys from in and drawing to out
// (normally os.Stdin and os.Stdout).
func NewXTerm(in, out *os.File) *XTerm {
	return &XTerm{in: in, out: out}
}

func (t *XTerm) Enter() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entered {
		return nil
	}
	if !term.IsTerminal(int(t.out.Fd())) {
		return fmt.Errorf("termrender: output is not a terminal")
	}

	if term.IsTerminal(int(t.in.Fd())) {
		st, err := term.MakeRaw(int(t.in.Fd()))
		if err != nil {
			return fmt.Errorf("termrender: enter raw mode: %w", err)
		}
		t.raw = st
	} else {
		slog.Warn("termrender: input is not a terminal, keys disabled")
	}

	if _, err := t.out.WriteString(escAltScreenOn + escHideCursor + escClear + escHome); err != nil {
		t.restoreLocked()
		return fmt.Errorf("termrender: enter alternate screen: %w", err)
	}
	t.entered = true
	return nil
}

func (t *XTerm) Restore() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.restoreLocked()
}

func (t *XTerm) restoreLocked() error {
	var firstErr error
	if t.entered {
		if _, err := t.out.WriteString(escReset + escShowCursor + escAltScreenOff); err != nil {
			firstErr = err
		}
		t.entered = false
	}
	if t.raw != nil {
		if err := term.Restore(int(t.in.Fd()), t.raw); err != nil && firstErr == nil {
			firstErr = err
		}
		t.raw = nil
	}
	return firstErr
}

func (t *XTerm) Size() (int, int, error) {
	return term.GetSize(int(t.out.Fd()))
}

func (t *XTerm) Write(p []byte) (int, error) {
	return t.out.Write(p)
}
