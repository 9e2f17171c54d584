package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
)

// KeyReader decodes keys from a raw-mode terminal.
type KeyReader struct {
	in io.Reader
}

// NewKeyReader reads keys from in (usually os.Stdin).
func NewKeyReader(in io.Reader) *KeyReader {
	return &KeyReader{in: in}
}

// Run sends decoded keys to out until ctx is done or input ends.
//
// Reads from a terminal cannot be interrupted, so the read loop runs on its
// own goroutine and Run returns as soon as ctx is done; the pending read is
// abandoned and ends with the process. End of input returns nil: the session
// keeps playing without keyboard control.
func (r *KeyReader) Run(ctx context.Context, out chan<- Key) error {
	type chunk struct {
		keys []Key
		err  error
	}
	chunks := make(chan chunk, 1)

	go func() {
		buf := make([]byte, 64)
		for {
			n, err := r.in.Read(buf)
			if n > 0 {
				if keys := Decode(buf[:n]); len(keys) > 0 {
					select {
					case chunks <- chunk{keys: keys}:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil {
				select {
				case chunks <- chunk{err: err}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-chunks:
			if c.err != nil {
				if errors.Is(c.err, io.EOF) || errors.Is(c.err, os.ErrClosed) {
					slog.Info("control: input closed, keyboard control disabled")
					return nil
				}
				slog.Warn("control: input read failed, keyboard control disabled", "error", c.err)
				return nil
			}
			for _, k := range c.keys {
				select {
				case out <- k:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}
