// Package media opens a framesource.Source for any supported input: it
// detects the media kind, probes or downloads as needed and dispatches to the
// matching Source implementation.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/e7canasta/tplay/modules/framesource"
	"github.com/e7canasta/tplay/modules/framesource/gstsource"
)

// Spec describes what to open.
type Spec struct {
	// Input is a path, URL, "camera" or "camera:<device>"
	Input string
	// MaxWidth bounds the decode width of video (aspect preserved, 0 = native)
	MaxWidth int

	CameraDevice     string // default /dev/video0
	CameraElement    string // default v4l2src
	CameraResolution framesource.Resolution

	MaxReconnectAttempts  int
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
}

// Media is an opened input.
type Media struct {
	framesource.Source

	// Location is the local path or URI actually decoded (the downloaded
	// file for remote inputs)
	Location string
	// Metadata is the ffprobe result for video inputs, nil otherwise
	Metadata *framesource.MediaMetadata

	tempFile string
}

// HasAudio reports whether the decoded media carries an audio track.
func (m *Media) HasAudio() bool {
	return m.Metadata != nil && m.Metadata.HasAudio
}

// Close closes the source and removes any downloaded file.
func (m *Media) Close() error {
	err := m.Source.Close()
	if m.tempFile != "" {
		if rerr := os.Remove(m.tempFile); rerr != nil && !os.IsNotExist(rerr) {
			slog.Warn("media: failed to remove downloaded file", "path", m.tempFile, "error", rerr)
		}
		m.tempFile = ""
	}
	return err
}

// Open detects the kind of spec.Input and returns a started Source for it.
func Open(ctx context.Context, spec Spec) (*Media, error) {
	kind := framesource.DetectKind(spec.Input)
	slog.Info("media: opening input", "input", spec.Input, "kind", kind.String())

	switch kind {
	case framesource.KindImage:
		src, err := framesource.NewImageSource(spec.Input)
		if err != nil {
			return nil, err
		}
		return &Media{Source: src, Location: spec.Input}, nil

	case framesource.KindAnimation:
		src, err := framesource.NewGIFSource(spec.Input)
		if err != nil {
			return nil, err
		}
		return &Media{Source: src, Location: spec.Input}, nil

	case framesource.KindRemote:
		path, err := framesource.Download(ctx, spec.Input)
		if err != nil {
			return nil, err
		}
		m, err := openVideo(ctx, spec, path, framesource.KindVideo)
		if err != nil {
			os.Remove(path)
			return nil, err
		}
		m.tempFile = path
		return m, nil

	case framesource.KindVideo:
		return openVideo(ctx, spec, spec.Input, framesource.KindVideo)

	case framesource.KindStream:
		return openVideo(ctx, spec, spec.Input, framesource.KindStream)

	case framesource.KindCamera:
		return openCamera(ctx, spec)

	default:
		return nil, framesource.Wrap(kind, "open", fmt.Errorf("unsupported input %q", spec.Input))
	}
}

// openVideo probes location for geometry and rate, then starts a GStreamer
// source sized to fit spec.MaxWidth. Live streams that cannot be probed fall
// back to the camera resolution and a measured rate.
func openVideo(ctx context.Context, spec Spec, location string, kind framesource.Kind) (*Media, error) {
	md, err := framesource.Probe(ctx, location)
	if err != nil {
		if kind != framesource.KindStream {
			return nil, framesource.Wrap(kind, "probe", err)
		}
		slog.Warn("media: probe failed, using default geometry", "input", location, "error", err)
		md = nil
	}

	cfg := gstsource.Config{
		Kind:                  kind,
		Location:              location,
		MaxReconnectAttempts:  spec.MaxReconnectAttempts,
		ReconnectInitialDelay: spec.ReconnectInitialDelay,
		ReconnectMaxDelay:     spec.ReconnectMaxDelay,
	}
	if md != nil && md.Width > 0 && md.Height > 0 {
		cfg.Width, cfg.Height = framesource.FitWithin(md.Width, md.Height, spec.MaxWidth)
		cfg.NativeFPS = md.FPS
	} else {
		cfg.Width, cfg.Height = spec.CameraResolution.Dimensions()
	}

	src, err := startGst(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Media{Source: src, Location: location, Metadata: md}, nil
}

func openCamera(ctx context.Context, spec Spec) (*Media, error) {
	device := framesource.CameraDevice(spec.Input, spec.CameraDevice)
	w, h := spec.CameraResolution.Dimensions()

	src, err := startGst(ctx, gstsource.Config{
		Kind:                  framesource.KindCamera,
		CameraElement:         spec.CameraElement,
		Device:                device,
		Width:                 w,
		Height:                h,
		MaxReconnectAttempts:  spec.MaxReconnectAttempts,
		ReconnectInitialDelay: spec.ReconnectInitialDelay,
		ReconnectMaxDelay:     spec.ReconnectMaxDelay,
	})
	if err != nil {
		return nil, err
	}
	return &Media{Source: src, Location: device}, nil
}

func startGst(ctx context.Context, cfg gstsource.Config) (*gstsource.Source, error) {
	src, err := gstsource.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := src.Open(ctx); err != nil {
		src.Close()
		return nil, err
	}
	return src, nil
}
