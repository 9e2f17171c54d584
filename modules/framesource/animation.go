package framesource

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// defaultGIFDelay is used for GIF frames that declare no delay, matching what
// browsers do.
const defaultGIFDelay = 100 * time.Millisecond

// AnimationSource serves a fully decoded frame sequence once per pass.
// Reset starts the next pass.
type AnimationSource struct {
	frames []RawFrame
	rate   float64

	pos    int
	seq    atomic.Uint64
	bytes  atomic.Uint64
	resets atomic.Uint32
	closed atomic.Bool
}

// NewGIFSource decodes every frame of the GIF at path up front, compositing
// each frame onto the canvas left by its predecessors.
func NewGIFSource(path string) (*AnimationSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Wrap(KindAnimation, "open", err)
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, Wrap(KindAnimation, "decode", fmt.Errorf("%s: %w", path, err))
	}

	images, delays := compositeGIF(g)
	src, err := NewAnimationSource(images, delays)
	if err != nil {
		return nil, err
	}

	slog.Info("framesource: animation decoded",
		"path", path,
		"frames", len(images),
		"native_fps", src.rate,
	)
	return src, nil
}

// NewAnimationSource builds a source from frames and their display delays.
// delays may be nil or shorter than frames; missing entries use the GIF default.
func NewAnimationSource(frames []image.Image, delays []time.Duration) (*AnimationSource, error) {
	if len(frames) == 0 {
		return nil, Wrap(KindAnimation, "open", fmt.Errorf("animation has no frames"))
	}

	s := &AnimationSource{frames: make([]RawFrame, len(frames))}

	var total, pts time.Duration
	for i, img := range frames {
		d := defaultGIFDelay
		if i < len(delays) && delays[i] > 0 {
			d = delays[i]
		}
		rf := FrameFromImage(img)
		rf.PTS = pts
		rf.HasPTS = true
		rf.Duration = d
		s.frames[i] = rf

		pts += d
		total += d
	}
	s.rate = float64(len(frames)) / total.Seconds()
	return s, nil
}

// compositeGIF renders each GIF frame onto a full-size canvas, honoring the
// "restore to background" and "restore to previous" disposal methods.
func compositeGIF(g *gif.GIF) ([]image.Image, []time.Duration) {
	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		for _, p := range g.Image {
			b := p.Bounds()
			if b.Max.X > w {
				w = b.Max.X
			}
			if b.Max.Y > h {
				h = b.Max.Y
			}
		}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	images := make([]image.Image, 0, len(g.Image))
	delays := make([]time.Duration, 0, len(g.Image))

	for i, p := range g.Image {
		var previous *image.RGBA
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			previous = image.NewRGBA(canvas.Rect)
			copy(previous.Pix, canvas.Pix)
		}

		draw.Draw(canvas, p.Bounds(), p, p.Bounds().Min, draw.Over)

		snapshot := image.NewRGBA(canvas.Rect)
		copy(snapshot.Pix, canvas.Pix)
		images = append(images, snapshot)

		var d time.Duration
		if i < len(g.Delay) {
			d = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		delays = append(delays, d)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, p.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}
	return images, delays
}

// Next returns the next frame of the current pass, or ErrEndOfStream after
// the last one. Pix is shared between passes and must be treated as read-only.
func (s *AnimationSource) Next(ctx context.Context) (RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return RawFrame{}, err
	}
	if s.closed.Load() {
		return RawFrame{}, ErrClosed
	}
	if s.pos >= len(s.frames) {
		return RawFrame{}, ErrEndOfStream
	}

	f := s.frames[s.pos]
	s.pos++
	f.Seq = s.seq.Add(1)
	f.Timestamp = time.Now()
	s.bytes.Add(uint64(len(f.Pix)))
	return f, nil
}

// Reset rewinds to the first frame.
func (s *AnimationSource) Reset(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.pos = 0
	s.resets.Add(1)
	return nil
}

// Len returns the number of frames in one pass.
func (s *AnimationSource) Len() int { return len(s.frames) }

func (s *AnimationSource) NativeRate() (float64, bool) { return s.rate, s.rate > 0 }

func (s *AnimationSource) Kind() Kind { return KindAnimation }

func (s *AnimationSource) Stats() SourceStats {
	return SourceStats{
		FrameCount: s.seq.Load(),
		BytesRead:  s.bytes.Load(),
		Resets:     s.resets.Load(),
	}
}

func (s *AnimationSource) Close() error {
	s.closed.Store(true)
	return nil
}
