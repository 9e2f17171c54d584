package audio

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// GstBackend plays the audio track of any media GStreamer can decode,
// straight from the media file:
//
//	uridecodebin ~> audioconvert ! audioresample ! volume ! autoaudiosink
//
// The video stream is left unlinked.
type GstBackend struct {
	mu       sync.Mutex
	pipeline *gst.Pipeline
	volume   *gst.Element

	started time.Time
	offset  time.Duration
	paused  bool
}

// NewGstBackend returns a backend on the default GStreamer audio sink.
func NewGstBackend() *GstBackend {
	return &GstBackend{}
}

func (g *GstBackend) Name() string { return "gstreamer" }

func (g *GstBackend) Open(ctx context.Context, path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pipeline != nil {
		return fmt.Errorf("already open")
	}
	gst.Init(nil)

	uri := path
	if u, err := url.Parse(path); err != nil || len(u.Scheme) < 2 {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		uri = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	}

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	decode, err := gst.NewElement("uridecodebin")
	if err != nil {
		return fmt.Errorf("failed to create uridecodebin: %w", err)
	}
	if err := decode.SetProperty("uri", uri); err != nil {
		return fmt.Errorf("failed to set uri: %w", err)
	}

	convert, err := gst.NewElement("audioconvert")
	if err != nil {
		return fmt.Errorf("failed to create audioconvert: %w", err)
	}
	resample, err := gst.NewElement("audioresample")
	if err != nil {
		return fmt.Errorf("failed to create audioresample: %w", err)
	}
	volume, err := gst.NewElement("volume")
	if err != nil {
		return fmt.Errorf("failed to create volume: %w", err)
	}
	sink, err := gst.NewElement("autoaudiosink")
	if err != nil {
		return fmt.Errorf("failed to create autoaudiosink: %w", err)
	}

	if err := pipeline.AddMany(decode, convert, resample, volume, sink); err != nil {
		return fmt.Errorf("failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(convert, resample, volume, sink); err != nil {
		return fmt.Errorf("failed to link audio chain: %w", err)
	}

	decode.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		sinkPad := convert.GetStaticPad("sink")
		if sinkPad == nil || sinkPad.IsLinked() {
			return
		}
		if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
			slog.Debug("audio: pad not linked", "pad", srcPad.GetName(), "result", ret)
			return
		}
		slog.Debug("audio: decoder pad linked", "pad", srcPad.GetName())
	})

	if err := pipeline.SetState(gst.StatePaused); err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("failed to preroll pipeline: %w", err)
	}

	g.pipeline = pipeline
	g.volume = volume
	g.offset = 0
	g.paused = false
	return nil
}

func (g *GstBackend) Play() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pipeline == nil {
		return fmt.Errorf("not open")
	}
	if g.paused {
		return nil
	}
	if err := g.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	g.started = time.Now()
	return nil
}

func (g *GstBackend) Pause(paused bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pipeline == nil {
		return fmt.Errorf("not open")
	}
	if paused == g.paused {
		return nil
	}

	state := gst.StatePlaying
	if paused {
		state = gst.StatePaused
	}
	if err := g.pipeline.SetState(state); err != nil {
		return fmt.Errorf("failed to change state: %w", err)
	}

	now := time.Now()
	if paused {
		if !g.started.IsZero() {
			g.offset += now.Sub(g.started)
		}
	} else {
		g.started = now
	}
	g.paused = paused
	return nil
}

func (g *GstBackend) SetMuted(muted bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.volume == nil {
		return fmt.Errorf("not open")
	}
	return g.volume.SetProperty("mute", muted)
}

// Elapsed is the pipeline position, so it stops moving on underrun or at the
// end of the track. The wall clock since Play (excluding pauses) is used
// while the position cannot be queried.
func (g *GstBackend) Elapsed() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	wall := g.offset
	if !g.paused && !g.started.IsZero() {
		wall += time.Since(g.started)
	}
	if g.pipeline == nil {
		return wall
	}
	ok, pos := g.pipeline.QueryPosition(gst.FormatTime)
	return pipelinePosition(ok, pos, wall)
}

// pipelinePosition converts a position query result, falling back to wall
// when the query failed or returned no position.
func pipelinePosition(ok bool, ns int64, wall time.Duration) time.Duration {
	if !ok || ns < 0 {
		return wall
	}
	return time.Duration(ns)
}

func (g *GstBackend) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pipeline == nil {
		return nil
	}
	err := g.pipeline.SetState(gst.StateNull)
	g.pipeline, g.volume = nil, nil
	g.started, g.offset, g.paused = time.Time{}, 0, false
	return err
}
