// Package gstsource implements framesource.Source on top of GStreamer for
// video files, http(s) and rtsp URIs, and capture devices.
package gstsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/tplay/modules/framesource"
	"github.com/e7canasta/tplay/modules/framesource/internal/gstpipe"
	"github.com/e7canasta/tplay/modules/framesource/internal/warmup"
)

// Config describes the media to decode.
type Config struct {
	// Kind is framesource.KindVideo, KindStream or KindCamera
	Kind framesource.Kind
	// Location is a file path or URI (video, stream)
	Location string
	// CameraElement is the capture element (default v4l2src)
	CameraElement string
	// Device is the capture device (default /dev/video0 for v4l2src)
	Device string
	// Width and Height are the decode geometry (RGB output)
	Width  int
	Height int
	// NativeFPS is the declared media rate; 0 means measure it from arrivals
	NativeFPS float64
	// Reconnect applies to live kinds only
	MaxReconnectAttempts  int
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	// StopTimeout bounds how long Close waits for pipeline goroutines (default 3s)
	StopTimeout time.Duration
}

// Source decodes through a GStreamer pipeline. One pipeline instance runs at
// a time; Reset and live reconnects replace it.
type Source struct {
	cfg          Config
	uri          string
	reconnectCfg gstpipe.ReconnectConfig

	frames chan framesource.RawFrame
	done   chan error

	mu        sync.Mutex
	elements  *gstpipe.PipelineElements
	runCancel context.CancelFunc
	runDone   chan struct{}
	wg        sync.WaitGroup

	pending error // sticky terminal error; pump goroutine only

	closeOnce sync.Once
	closed    chan struct{}

	frameCount atomic.Uint64
	delivered  atomic.Uint64
	bytesRead  atomic.Uint64
	resets     atomic.Uint32
	errors     gstpipe.ErrorCounters
	reconnect  *gstpipe.ReconnectState
	estimator  *warmup.Estimator
}

// New validates cfg and checks that GStreamer is usable. It does not start
// decoding; call Open.
func New(cfg Config) (*Source, error) {
	switch cfg.Kind {
	case framesource.KindVideo, framesource.KindStream, framesource.KindCamera:
	default:
		return nil, fmt.Errorf("gstsource: unsupported kind %s", cfg.Kind)
	}
	if cfg.Kind != framesource.KindCamera && cfg.Location == "" {
		return nil, fmt.Errorf("gstsource: location is required for %s", cfg.Kind)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("gstsource: invalid decode size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Kind == framesource.KindCamera && cfg.CameraElement == "" {
		cfg.CameraElement = "v4l2src"
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 3 * time.Second
	}

	if err := gstpipe.CheckAvailable(); err != nil {
		return nil, framesource.Wrap(cfg.Kind, "open", err)
	}

	uri := ""
	if cfg.Kind != framesource.KindCamera {
		var err error
		if uri, err = toURI(cfg.Location); err != nil {
			return nil, framesource.Wrap(cfg.Kind, "open", err)
		}
	}

	reconnectCfg := gstpipe.DefaultReconnectConfig()
	if cfg.MaxReconnectAttempts > 0 {
		reconnectCfg.MaxRetries = cfg.MaxReconnectAttempts
	}
	if cfg.ReconnectInitialDelay > 0 {
		reconnectCfg.RetryDelay = cfg.ReconnectInitialDelay
	}
	if cfg.ReconnectMaxDelay > 0 {
		reconnectCfg.MaxRetryDelay = cfg.ReconnectMaxDelay
	}

	s := &Source{
		cfg:          cfg,
		uri:          uri,
		reconnectCfg: reconnectCfg,
		frames:       make(chan framesource.RawFrame, 1),
		done:         make(chan error, 1),
		closed:       make(chan struct{}),
		reconnect:    &gstpipe.ReconnectState{},
	}
	if cfg.NativeFPS <= 0 {
		s.estimator = warmup.NewEstimator(30)
	}

	slog.Info("gstsource: source created",
		"kind", cfg.Kind.String(),
		"location", cfg.Location,
		"device", cfg.Device,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"native_fps", cfg.NativeFPS,
	)
	return s, nil
}

// toURI turns a local path into a file:// URI and passes URIs through.
func toURI(location string) (string, error) {
	if u, err := url.Parse(location); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return location, nil
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// Open builds the pipeline and starts decoding. Frames become available to
// Next once the pipeline reaches PLAYING.
func (s *Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runCancel != nil {
		return fmt.Errorf("gstsource: already open")
	}
	return framesource.Wrap(s.cfg.Kind, "open", s.startLocked(ctx))
}

// startLocked launches a pipeline instance and its supervisor goroutine.
func (s *Source) startLocked(parent context.Context) error {
	runCtx, cancel := context.WithCancel(parent)
	runDone := make(chan struct{})

	if err := s.buildLocked(runCtx); err != nil {
		cancel()
		return err
	}

	s.runCancel = cancel
	s.runDone = runDone

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(runDone)
		s.supervise(runCtx)
	}()
	return nil
}

// buildLocked creates a pipeline bound to runCtx and sets it PLAYING.
func (s *Source) buildLocked(runCtx context.Context) error {
	elements, err := gstpipe.CreatePipeline(gstpipe.PipelineConfig{
		URI:           s.uri,
		CameraElement: s.cfg.CameraElement,
		Device:        s.cfg.Device,
		Width:         s.cfg.Width,
		Height:        s.cfg.Height,
		Live:          s.cfg.Kind.Live(),
	})
	if err != nil {
		return err
	}

	cbCtx := &gstpipe.CallbackContext{
		Frames:       s.frames,
		Done:         runCtx.Done(),
		FrameCounter: &s.frameCount,
		BytesRead:    &s.bytesRead,
		Width:        s.cfg.Width,
		Height:       s.cfg.Height,
	}
	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return gstpipe.OnNewSample(sink, cbCtx)
		},
	})

	if elements.Decode != nil {
		var linked atomic.Bool
		convert := elements.Convert
		elements.Decode.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
			gstpipe.OnPadAdded(srcPad, convert, &linked)
		})
	}

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		gstpipe.DestroyPipeline(elements)
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	s.elements = elements
	slog.Info("gstsource: pipeline playing", "kind", s.cfg.Kind.String(), "location", s.cfg.Location)
	return nil
}

// supervise watches the bus of the running pipeline. Files report EOS and
// errors straight to Next; live sources rebuild the pipeline with backoff.
func (s *Source) supervise(runCtx context.Context) {
	var err error
	if s.cfg.Kind.Live() {
		err = gstpipe.RunWithReconnect(runCtx, func(ctx context.Context, attempt int) error {
			if attempt > 0 {
				if rerr := s.rebuild(ctx); rerr != nil {
					return rerr
				}
			}
			// a live feed that reaches EOS has dropped, so ErrEOS retries too
			return s.monitor(ctx)
		}, s.reconnectCfg, s.reconnect)
	} else {
		err = s.monitor(runCtx)
	}

	if runCtx.Err() != nil {
		return
	}
	if errors.Is(err, gstpipe.ErrEOS) {
		err = framesource.ErrEndOfStream
	} else if err != nil {
		err = framesource.Wrap(s.cfg.Kind, "next", err)
	}
	if err != nil {
		s.done <- err
	}
}

func (s *Source) monitor(ctx context.Context) error {
	s.mu.Lock()
	elements := s.elements
	s.mu.Unlock()
	if elements == nil {
		return fmt.Errorf("pipeline not initialized")
	}
	return gstpipe.MonitorPipelineBus(ctx, elements.Pipeline, &s.errors, s.reconnect, s.cfg.Location)
}

// rebuild replaces a failed live pipeline in place.
func (s *Source) rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := gstpipe.DestroyPipeline(s.elements); err != nil {
		slog.Warn("gstsource: failed to destroy pipeline before restart", "error", err)
	}
	s.elements = nil
	if s.estimator != nil {
		s.estimator.Reset()
	}
	return s.buildLocked(ctx)
}

// Next returns the next decoded frame.
func (s *Source) Next(ctx context.Context) (framesource.RawFrame, error) {
	if s.pending != nil {
		return framesource.RawFrame{}, s.pending
	}

	select {
	case f := <-s.frames:
		return s.deliver(f), nil
	case err := <-s.done:
		// the last frame may still sit in the channel when EOS arrives
		s.pending = err
		select {
		case f := <-s.frames:
			return s.deliver(f), nil
		default:
		}
		return framesource.RawFrame{}, err
	case <-ctx.Done():
		return framesource.RawFrame{}, ctx.Err()
	case <-s.closed:
		return framesource.RawFrame{}, framesource.ErrClosed
	}
}

func (s *Source) deliver(f framesource.RawFrame) framesource.RawFrame {
	s.delivered.Add(1)
	if s.estimator != nil {
		s.estimator.Observe(f.Timestamp)
	}
	return f
}

// Reset tears the pipeline down and decodes from the start again. Live
// sources cannot be reset.
func (s *Source) Reset(ctx context.Context) error {
	if s.cfg.Kind.Live() {
		return framesource.ErrNotResettable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return framesource.ErrClosed
	default:
	}

	s.stopLocked()
	s.drain()
	s.pending = nil

	// stopLocked drops the lock, so Close or cancellation may have happened
	if err := s.restartErr(ctx); err != nil {
		return err
	}
	if err := s.startLocked(ctx); err != nil {
		return framesource.Wrap(s.cfg.Kind, "reset", err)
	}
	s.resets.Add(1)
	slog.Debug("gstsource: source reset", "location", s.cfg.Location, "resets", s.resets.Load())
	return nil
}

// restartErr reports why a new pipeline instance must not be started.
func (s *Source) restartErr(ctx context.Context) error {
	select {
	case <-s.closed:
		return framesource.ErrClosed
	default:
	}
	return ctx.Err()
}

// stopLocked cancels the running instance, waits for its supervisor and
// destroys the pipeline. The lock is released while waiting because the
// supervisor of a live source takes it to rebuild.
func (s *Source) stopLocked() {
	if s.runCancel == nil {
		return
	}
	s.runCancel()
	runDone := s.runDone
	s.runCancel = nil

	s.mu.Unlock()
	select {
	case <-runDone:
	case <-time.After(s.cfg.StopTimeout):
		slog.Warn("gstsource: stop timeout exceeded, supervisor may still be running")
	}
	s.mu.Lock()

	if err := gstpipe.DestroyPipeline(s.elements); err != nil {
		slog.Error("gstsource: failed to destroy pipeline", "error", err)
	}
	s.elements = nil
}

func (s *Source) drain() {
	for {
		select {
		case <-s.frames:
		case <-s.done:
		default:
			return
		}
	}
}

// NativeRate returns the declared rate, or the measured one once stable.
func (s *Source) NativeRate() (float64, bool) {
	if s.cfg.NativeFPS > 0 {
		return s.cfg.NativeFPS, true
	}
	return s.estimator.Rate()
}

func (s *Source) Kind() framesource.Kind { return s.cfg.Kind }

func (s *Source) Stats() framesource.SourceStats {
	return framesource.SourceStats{
		FrameCount:    s.delivered.Load(),
		BytesRead:     s.bytesRead.Load(),
		Resets:        s.resets.Load(),
		Reconnects:    s.reconnect.Reconnects.Load(),
		ErrorsNetwork: s.errors.Network.Load(),
		ErrorsCodec:   s.errors.Codec.Load(),
		ErrorsAuth:    s.errors.Auth.Load(),
		ErrorsUnknown: s.errors.Unknown.Load(),
	}
}

// Close stops decoding and releases the pipeline. Safe to call concurrently
// with a blocked Next.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.mu.Lock()
		s.stopLocked()
		s.mu.Unlock()

		s.wg.Wait()
		slog.Info("gstsource: source closed",
			"location", s.cfg.Location,
			"frames_decoded", s.frameCount.Load(),
			"frames_delivered", s.delivered.Load(),
			"reconnects", s.reconnect.Reconnects.Load(),
		)
	})
	return nil
}
