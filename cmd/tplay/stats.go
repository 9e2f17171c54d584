package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/e7canasta/tplay/modules/controlbus"
	"github.com/e7canasta/tplay/modules/session"
)

// reportStats periodically logs session statistics. The terminal belongs to
// the renderer while playing, so the report goes to the log.
func reportStats(ctx context.Context, interval time.Duration, sess *session.Session) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastRendered uint64
	lastTick := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			st := sess.Stats()
			fps := float64(st.Scheduler.Rendered-lastRendered) / now.Sub(lastTick).Seconds()
			lastRendered, lastTick = st.Scheduler.Rendered, now

			slog.Info("stats: session",
				"uptime", st.Uptime.Round(time.Second),
				"pulled", st.Pulled,
				"rendered", st.Scheduler.Rendered,
				"render_fps", fmt.Sprintf("%.2f", fps),
				"target_interval", st.Scheduler.Interval,
				"dropped", st.Scheduler.Dropped,
				"drop_rate", fmt.Sprintf("%.1f%%", dropRate(st.Scheduler.Received, st.Scheduler.Dropped)),
				"late_renders", st.Scheduler.LateRenders,
				"skipped_draws", st.Renderer.Skipped,
				"loop_restarts", st.LoopRestarts,
				"reconnects", st.Source.Reconnects,
			)
		}
	}
}

// printFinalStats prints a summary once the terminal has been restored.
func printFinalStats(w io.Writer, st session.Stats) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                       Session Statistics                      ")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════")

	fmt.Fprintf(w, "  Uptime:                %v\n", st.Uptime.Round(time.Millisecond))
	fmt.Fprintf(w, "  Frames Pulled:         %d frames\n", st.Pulled)
	fmt.Fprintf(w, "  Frames Converted:      %d frames\n", st.Converted)
	fmt.Fprintf(w, "  Frames Rendered:       %d frames\n", st.Scheduler.Rendered)
	fmt.Fprintf(w, "  Scheduler Drops:       %d frames (%.1f%%)\n",
		st.Scheduler.Dropped,
		dropRate(st.Scheduler.Received, st.Scheduler.Dropped))
	fmt.Fprintf(w, "  Discarded While Paused: %d frames\n", st.Scheduler.DiscardedPaused)
	fmt.Fprintf(w, "  Late Renders:          %d\n", st.Scheduler.LateRenders)
	fmt.Fprintf(w, "  Skipped Draws:         %d\n", st.Renderer.Skipped)
	fmt.Fprintf(w, "  Terminal Resizes:      %d\n", st.Renderer.Resizes)
	fmt.Fprintf(w, "  Bytes Written:         %d\n", st.Renderer.Bytes)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Loop Restarts:         %d\n", st.LoopRestarts)
	fmt.Fprintf(w, "  Reconnection Count:    %d\n", st.Source.Reconnects)
	if errs := st.Source.ErrorsNetwork + st.Source.ErrorsCodec + st.Source.ErrorsAuth + st.Source.ErrorsUnknown; errs > 0 {
		fmt.Fprintf(w, "  Source Errors:         %d (network=%d codec=%d auth=%d unknown=%d)\n",
			errs, st.Source.ErrorsNetwork, st.Source.ErrorsCodec, st.Source.ErrorsAuth, st.Source.ErrorsUnknown)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Keys Applied:          %d\n", st.Input.Applied)
	fmt.Fprintf(w, "  Control Events:        %d published, %d dropped (%.1f%%)\n",
		st.Bus.TotalPublished,
		st.Bus.TotalDropped,
		controlbus.DropRate(st.Bus)*100)

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════")
	fmt.Fprintln(w)
}

// dropRate calculates drop percentage
func dropRate(total, drops uint64) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(drops) / float64(total) * 100.0
}
