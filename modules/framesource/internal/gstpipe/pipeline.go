// Package gstpipe builds and supervises the GStreamer pipelines behind the
// video, stream and camera frame sources.
package gstpipe

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// PipelineConfig describes one decode pipeline.
type PipelineConfig struct {
	// URI is decoded with uridecodebin (file://, rtsp://, http(s)://). Empty
	// selects the camera branch.
	URI string
	// CameraElement is the capture element factory (v4l2src, avfvideosrc, ...)
	CameraElement string
	// Device is set as the camera element's "device" property when non-empty
	Device string
	// Width and Height are the RGB output geometry
	Width  int
	Height int
	// Live makes the appsink drop stale buffers instead of holding the decoder
	Live bool
}

// PipelineElements holds the elements the source needs after construction.
type PipelineElements struct {
	Pipeline   *gst.Pipeline
	AppSink    *app.Sink
	Decode     *gst.Element // uridecodebin, nil for cameras
	Convert    *gst.Element // first static element after the decoder
	CapsFilter *gst.Element
}

// CheckAvailable verifies GStreamer is initialized and usable by creating a
// throwaway element.
func CheckAvailable() error {
	gst.Init(nil)

	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}

// CreatePipeline builds:
//
//	uridecodebin ~> videoconvert ! videoscale ! capsfilter(RGB,WxH) ! appsink
//	<camera>     !  videoconvert ! videoscale ! capsfilter(RGB,WxH) ! appsink
//
// uridecodebin pads appear dynamically; the caller connects OnPadAdded to
// Decode's "pad-added" signal.
func CreatePipeline(cfg PipelineConfig) (*PipelineElements, error) {
	gst.Init(nil)

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", cfg.Width, cfg.Height)
	}

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	var head *gst.Element
	var decode *gst.Element
	if cfg.URI != "" {
		decode, err = gst.NewElement("uridecodebin")
		if err != nil {
			return nil, fmt.Errorf("failed to create uridecodebin: %w", err)
		}
		decode.SetProperty("uri", cfg.URI)
		head = decode
	} else {
		factory := cfg.CameraElement
		if factory == "" {
			factory = "v4l2src"
		}
		head, err = gst.NewElement(factory)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", factory, err)
		}
		if cfg.Device != "" {
			head.SetProperty("device", cfg.Device)
		}
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	convert.SetProperty("n-threads", 0) // 0 = auto-detect cores

	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildCaps(cfg.Width, cfg.Height)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // pacing belongs to the scheduler
	appsink.SetProperty("max-buffers", 1) // one decoded frame in flight
	appsink.SetProperty("drop", cfg.Live) // live: keep the newest; files: hold the decoder

	if err := pipeline.AddMany(head, convert, scale, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to add pipeline elements: %w", err)
	}

	linked := []*gst.Element{convert, scale, capsfilter, appsink.Element}
	if decode == nil {
		linked = append([]*gst.Element{head}, linked...)
	}
	if err := gst.ElementLinkMany(linked...); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	slog.Debug("gst: pipeline created",
		"uri", cfg.URI,
		"camera_element", cfg.CameraElement,
		"device", cfg.Device,
		"caps", buildCaps(cfg.Width, cfg.Height),
		"live", cfg.Live,
	)

	return &PipelineElements{
		Pipeline:   pipeline,
		AppSink:    appsink,
		Decode:     decode,
		Convert:    convert,
		CapsFilter: capsfilter,
	}, nil
}

// DestroyPipeline sets the pipeline to NULL, releasing devices and sockets.
func DestroyPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

func buildCaps(width, height int) string {
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d", width, height)
}
