package gstpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrEOS is returned by MonitorPipelineBus when the pipeline drains.
var ErrEOS = errors.New("gst: end of stream")

// ErrorCounters holds atomic counters for the error categories.
type ErrorCounters struct {
	Network atomic.Uint64
	Codec   atomic.Uint64
	Auth    atomic.Uint64
	Unknown atomic.Uint64
}

func (c *ErrorCounters) add(cat ErrorCategory) {
	switch cat {
	case ErrCategoryNetwork:
		c.Network.Add(1)
	case ErrCategoryCodec:
		c.Codec.Add(1)
	case ErrCategoryAuth:
		c.Auth.Add(1)
	default:
		c.Unknown.Add(1)
	}
}

// MonitorPipelineBus polls the pipeline bus until the context is cancelled
// (returns nil), the stream ends (ErrEOS) or the pipeline posts an error.
//
// Reaching PLAYING resets the consecutive failure count in state so a live
// source that recovers gets a fresh retry budget.
func MonitorPipelineBus(
	ctx context.Context,
	pipeline *gst.Pipeline,
	counters *ErrorCounters,
	state *ReconnectState,
	label string,
) error {
	if pipeline == nil {
		return fmt.Errorf("pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()
	started := time.Now()

	for {
		if ctx.Err() != nil {
			slog.Debug("gst: context cancelled, stopping pipeline monitor", "source", label)
			return nil
		}

		// short timeout keeps shutdown responsive
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Info("gst: end of stream received", "source", label, "uptime", time.Since(started))
			return ErrEOS

		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyGStreamerError(gerr)
			if counters != nil {
				counters.add(category)
			}

			slog.Error("gst: pipeline error",
				"source", label,
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
				"uptime", time.Since(started),
			)
			return fmt.Errorf("pipeline error [%s]: %s", category.String(), gerr.Error())

		case gst.MessageStateChanged:
			if msg.Source() != pipeline.GetName() {
				continue
			}
			old, now := msg.ParseStateChanged()
			slog.Debug("gst: pipeline state changed", "source", label, "from", old, "to", now)
			if now == gst.StatePlaying && state != nil {
				state.CurrentRetries = 0
			}
		}
	}
}
