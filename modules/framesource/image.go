package framesource

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/tiff" // register decoder
	_ "golang.org/x/image/webp" // register decoder
)

// StillRate is the rate at which an ImageSource repeats its picture, so that
// terminal resizes and char-map switches reach the screen without a decoder.
const StillRate = 5.0

// ImageSource serves one decoded still picture, repeated forever.
type ImageSource struct {
	path   string
	frame  RawFrame
	seq    atomic.Uint64
	bytes  atomic.Uint64
	closed atomic.Bool
}

// NewImageSource decodes the picture at path.
func NewImageSource(path string) (*ImageSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Wrap(KindImage, "open", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, Wrap(KindImage, "decode", fmt.Errorf("%s: %w", path, err))
	}

	frame := FrameFromImage(img)
	frame.TraceID = uuid.New().String()

	slog.Info("framesource: image decoded",
		"path", path,
		"format", format,
		"resolution", fmt.Sprintf("%dx%d", frame.Width, frame.Height),
	)

	return &ImageSource{path: path, frame: frame}, nil
}

// NewImageSourceFromImage wraps an already decoded picture.
func NewImageSourceFromImage(img image.Image) *ImageSource {
	return &ImageSource{path: "<memory>", frame: FrameFromImage(img)}
}

// FrameFromImage copies img into an RGBA RawFrame.
func FrameFromImage(img image.Image) RawFrame {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	}
	return RawFrame{
		Width:     rgba.Rect.Dx(),
		Height:    rgba.Rect.Dy(),
		Stride:    rgba.Stride,
		Format:    FormatRGBA,
		Pix:       rgba.Pix,
		Timestamp: time.Now(),
	}
}

// Next returns the picture again. Pix is shared between calls and must be
// treated as read-only.
func (s *ImageSource) Next(ctx context.Context) (RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return RawFrame{}, err
	}
	if s.closed.Load() {
		return RawFrame{}, ErrClosed
	}

	s.bytes.Add(uint64(len(s.frame.Pix)))

	f := s.frame
	f.Seq = s.seq.Add(1)
	f.Timestamp = time.Now()
	return f, nil
}

// Reset is a no-op: a still never runs out.
func (s *ImageSource) Reset(ctx context.Context) error { return nil }

func (s *ImageSource) NativeRate() (float64, bool) { return StillRate, true }

func (s *ImageSource) Kind() Kind { return KindImage }

func (s *ImageSource) Stats() SourceStats {
	return SourceStats{FrameCount: s.seq.Load(), BytesRead: s.bytes.Load()}
}

func (s *ImageSource) Close() error {
	s.closed.Store(true)
	return nil
}
