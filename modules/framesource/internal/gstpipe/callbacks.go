package gstpipe

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/tplay/modules/framesource"
)

// CallbackContext holds state needed by the appsink callback.
type CallbackContext struct {
	Frames       chan<- framesource.RawFrame
	Done         <-chan struct{} // closed when this pipeline instance stops
	FrameCounter *atomic.Uint64
	BytesRead    *atomic.Uint64
	Width        int
	Height       int
}

// OnNewSample copies the decoded RGB buffer into a RawFrame and hands it to
// the source. The send blocks: a full channel holds the streaming thread,
// which is how backpressure reaches the decoder.
//
// Returns gst.FlowEOS once Done is closed so state changes to NULL never wait
// on a callback stuck in send.
func OnNewSample(sink *app.Sink, ctx *CallbackContext) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gst: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gst: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("gst: empty buffer received")
		return gst.FlowOK
	}

	// GStreamer reuses the buffer after we return
	pix := make([]byte, len(data))
	copy(pix, data)
	buffer.Unmap()

	frame := framesource.RawFrame{
		Seq:       ctx.FrameCounter.Add(1),
		Width:     ctx.Width,
		Height:    ctx.Height,
		Stride:    rgbStride(ctx.Width, len(pix), ctx.Height),
		Format:    framesource.FormatRGB,
		Pix:       pix,
		Timestamp: time.Now(),
		TraceID:   uuid.New().String(),
	}
	ctx.BytesRead.Add(uint64(len(pix)))

	select {
	case ctx.Frames <- frame:
		slog.Debug("gst: frame sent", "seq", frame.Seq, "size_bytes", len(pix), "trace_id", frame.TraceID)
		return gst.FlowOK
	case <-ctx.Done:
		return gst.FlowEOS
	}
}

// rgbStride recovers the row stride of a packed RGB buffer. GStreamer pads
// video rows to 4-byte boundaries, so width*3 is not always the stride.
func rgbStride(width, size, height int) int {
	if height > 0 && size/height >= width*3 {
		return size / height
	}
	return width * 3
}

// OnPadAdded links a freshly exposed uridecodebin pad to the video branch.
// Audio and subtitle pads fail the caps check on videoconvert and are left
// unlinked.
func OnPadAdded(srcPad *gst.Pad, sinkElement *gst.Element, linked *atomic.Bool) {
	if linked.Load() {
		slog.Debug("gst: video branch already linked, ignoring pad", "pad", srcPad.GetName())
		return
	}

	sinkPad := sinkElement.GetStaticPad("sink")
	if sinkPad == nil {
		slog.Error("gst: failed to get sink pad from videoconvert")
		return
	}

	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		slog.Debug("gst: pad not linked (not video)",
			"src_pad", srcPad.GetName(),
			"ret", ret,
		)
		return
	}

	linked.Store(true)
	slog.Debug("gst: video pad linked", "src_pad", srcPad.GetName())
}
