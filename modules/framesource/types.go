package framesource

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PixelFormat describes the channel layout of RawFrame.Pix.
type PixelFormat int

const (
	// FormatRGB is packed 8-bit R, G, B (GStreamer "video/x-raw,format=RGB").
	FormatRGB PixelFormat = iota
	// FormatRGBA is packed 8-bit R, G, B, A (image.RGBA / image.NRGBA).
	FormatRGBA
)

// BytesPerPixel returns the number of bytes one pixel occupies.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case FormatRGBA:
		return 4
	default:
		return 3
	}
}

// String returns a human-readable name of the pixel format.
func (p PixelFormat) String() string {
	switch p {
	case FormatRGB:
		return "RGB"
	case FormatRGBA:
		return "RGBA"
	default:
		return "unknown"
	}
}

// RawFrame is a single decoded picture handed from a Source to the converter.
//
// Ownership moves with the value: once a RawFrame has been sent on a channel the
// producer must not touch Pix again.
type RawFrame struct {
	// Seq is the monotonic sequence number within the current pass of the source
	Seq uint64
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Stride is the number of bytes between the starts of two rows
	Stride int
	// Format is the channel layout of Pix
	Format PixelFormat
	// Pix holds the pixels row-major, top row first
	Pix []byte
	// PTS is the presentation time relative to the start of the media (valid if HasPTS)
	PTS time.Duration
	// HasPTS reports whether PTS carries a source timestamp
	HasPTS bool
	// Duration is the display duration hint for this frame (0 = unknown)
	Duration time.Duration
	// Timestamp is when the frame was produced by the decoder
	Timestamp time.Time
	// TraceID identifies the frame in logs
	TraceID string
}

// Validate checks that the frame geometry matches its pixel buffer.
func (f *RawFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("framesource: invalid frame size %dx%d", f.Width, f.Height)
	}
	bpp := f.Format.BytesPerPixel()
	if f.Stride < f.Width*bpp {
		return fmt.Errorf("framesource: stride %d too small for width %d (%s)", f.Stride, f.Width, f.Format)
	}
	if need := f.Stride*(f.Height-1) + f.Width*bpp; len(f.Pix) < need {
		return fmt.Errorf("framesource: pixel buffer too short: have %d bytes, need %d", len(f.Pix), need)
	}
	return nil
}

// RGB returns the color of the pixel at (x, y). No bounds checks.
func (f *RawFrame) RGB(x, y int) (r, g, b uint8) {
	i := y*f.Stride + x*f.Format.BytesPerPixel()
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Kind identifies the family of media a Source decodes.
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindAnimation
	KindVideo
	KindCamera
	KindStream
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindAnimation:
		return "animation"
	case KindVideo:
		return "video"
	case KindCamera:
		return "camera"
	case KindStream:
		return "stream"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Live reports whether media of this kind has no beginning to rewind to.
func (k Kind) Live() bool {
	return k == KindCamera || k == KindStream
}

// Resolution represents the capture resolutions supported for cameras and
// live streams whose geometry cannot be probed.
type Resolution int

const (
	// Res480p represents 640x480 resolution (VGA, the usual webcam default)
	Res480p Resolution = iota
	// Res512p represents 910x512 resolution
	Res512p
	// Res720p represents 1280x720 resolution (HD)
	Res720p
	// Res1080p represents 1920x1080 resolution (Full HD)
	Res1080p
)

// Dimensions returns the width and height for the resolution
func (r Resolution) Dimensions() (width, height int) {
	switch r {
	case Res480p:
		return 640, 480
	case Res512p:
		return 910, 512
	case Res720p:
		return 1280, 720
	case Res1080p:
		return 1920, 1080
	default:
		return 640, 480
	}
}

// String returns a human-readable string representation of the resolution
func (r Resolution) String() string {
	switch r {
	case Res480p:
		return "480p"
	case Res512p:
		return "512p"
	case Res720p:
		return "720p"
	case Res1080p:
		return "1080p"
	default:
		return "480p"
	}
}

// ParseResolution maps "480p", "512p", "720p" and "1080p" to a Resolution.
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "480p", "":
		return Res480p, nil
	case "512p":
		return Res512p, nil
	case "720p":
		return Res720p, nil
	case "1080p":
		return Res1080p, nil
	default:
		return Res480p, fmt.Errorf("framesource: unknown resolution %q (want 480p, 512p, 720p or 1080p)", s)
	}
}

// SourceStats contains counters a Source exposes for the session report.
type SourceStats struct {
	// FrameCount is the total number of frames delivered by Next
	FrameCount uint64
	// BytesRead is the total pixel bytes delivered
	BytesRead uint64
	// Resets is the number of successful Reset calls
	Resets uint32
	// Reconnects is the number of pipeline restarts after errors (live sources)
	Reconnects uint32
	// ErrorsNetwork, ErrorsCodec, ErrorsAuth, ErrorsUnknown classify decoder errors
	ErrorsNetwork uint64
	ErrorsCodec   uint64
	ErrorsAuth    uint64
	ErrorsUnknown uint64
}

var (
	// ErrEndOfStream is returned by Next once the source has no more frames.
	ErrEndOfStream = errors.New("framesource: end of stream")

	// ErrNotResettable is returned by Reset on sources that cannot rewind.
	ErrNotResettable = errors.New("framesource: source cannot be reset")

	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("framesource: source closed")
)

// SourceError reports a decode, device or network failure. It is fatal to
// the session that owns the source.
type SourceError struct {
	// Op is the operation that failed ("open", "next", "reset", ...)
	Op string
	// Kind is the media kind of the failing source
	Kind Kind
	// Err is the underlying error
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("framesource: %s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Wrap builds a SourceError unless err is nil, already a SourceError, a
// context error, or one of the control-flow sentinels.
func Wrap(kind Kind, op string, err error) error {
	if err == nil || errors.Is(err, ErrEndOfStream) || errors.Is(err, ErrNotResettable) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *SourceError
	if errors.As(err, &se) {
		return err
	}
	return &SourceError{Op: op, Kind: kind, Err: err}
}
