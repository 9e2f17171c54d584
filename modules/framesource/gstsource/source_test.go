package gstsource

import (
	"context"
	"errors"
	"testing"

	"github.com/e7canasta/tplay/modules/framesource"
)

// TestRestartErr covers the window in Reset where the lock is released while
// the old pipeline stops.
func TestRestartErr(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		closed bool
		ctx    context.Context
		want   error
	}{
		{"open and live context", false, context.Background(), nil},
		{"closed while stopping", true, context.Background(), framesource.ErrClosed},
		{"closed wins over cancel", true, cancelled, framesource.ErrClosed},
		{"context cancelled", false, cancelled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Source{closed: make(chan struct{})}
			if tt.closed {
				close(s.closed)
			}
			if err := s.restartErr(tt.ctx); !errors.Is(err, tt.want) {
				t.Errorf("restartErr = %v, want %v", err, tt.want)
			}
		})
	}
}
