package framesource

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFrameFromImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(5, 5, 9, 8))
	img.Set(5, 5, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	f := FrameFromImage(img)
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if f.Width != 4 || f.Height != 3 || f.Format != FormatRGBA {
		t.Fatalf("unexpected geometry %dx%d %s", f.Width, f.Height, f.Format)
	}
	r, g, b := f.RGB(0, 0)
	if r != 200 || g != 100 || b != 50 {
		t.Errorf("RGB(0,0) = %d,%d,%d; want 200,100,50", r, g, b)
	}
}

func TestRawFrameValidate(t *testing.T) {
	tests := []struct {
		name    string
		frame   RawFrame
		wantErr bool
	}{
		{"ok rgb", RawFrame{Width: 2, Height: 2, Stride: 6, Format: FormatRGB, Pix: make([]byte, 12)}, false},
		{"padded stride", RawFrame{Width: 2, Height: 2, Stride: 8, Format: FormatRGB, Pix: make([]byte, 14)}, false},
		{"zero width", RawFrame{Width: 0, Height: 2, Stride: 6, Pix: make([]byte, 12)}, true},
		{"short stride", RawFrame{Width: 2, Height: 2, Stride: 4, Format: FormatRGB, Pix: make([]byte, 12)}, true},
		{"short buffer", RawFrame{Width: 2, Height: 2, Stride: 8, Format: FormatRGBA, Pix: make([]byte, 12)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestImageSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "still.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, solid(8, 4, color.White)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	src, err := NewImageSource(path)
	if err != nil {
		t.Fatalf("NewImageSource: %v", err)
	}
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		fr, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("Next #%d: %v", i, err)
		}
		if fr.Seq != uint64(i) || fr.Width != 8 || fr.Height != 4 {
			t.Errorf("frame #%d: seq=%d size=%dx%d", i, fr.Seq, fr.Width, fr.Height)
		}
	}

	if rate, ok := src.NativeRate(); !ok || rate != StillRate {
		t.Errorf("NativeRate() = %f, %v", rate, ok)
	}
	if err := src.Reset(ctx); err != nil {
		t.Errorf("Reset: %v", err)
	}
	if st := src.Stats(); st.FrameCount != 3 {
		t.Errorf("FrameCount = %d, want 3", st.FrameCount)
	}

	src.Close()
	if _, err := src.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Next after Close: %v, want ErrClosed", err)
	}
}

func TestImageSource_Missing(t *testing.T) {
	_, err := NewImageSource(filepath.Join(t.TempDir(), "nope.png"))
	var se *SourceError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SourceError, got %v", err)
	}
	if se.Kind != KindImage || se.Op != "open" {
		t.Errorf("SourceError = %+v", se)
	}
}

func TestAnimationSource_Passes(t *testing.T) {
	frames := []image.Image{
		solid(2, 2, color.Black),
		solid(2, 2, color.White),
		solid(2, 2, color.Black),
	}
	delays := []time.Duration{50 * time.Millisecond, 0, 50 * time.Millisecond}

	src, err := NewAnimationSource(frames, delays)
	if err != nil {
		t.Fatalf("NewAnimationSource: %v", err)
	}
	ctx := context.Background()

	// 50ms + 100ms default + 50ms = 200ms for 3 frames
	if rate, ok := src.NativeRate(); !ok || rate < 14.99 || rate > 15.01 {
		t.Errorf("NativeRate() = %f, %v; want 15", rate, ok)
	}

	for pass := 0; pass < 2; pass++ {
		var pts []time.Duration
		for i := 0; i < src.Len(); i++ {
			fr, err := src.Next(ctx)
			if err != nil {
				t.Fatalf("pass %d frame %d: %v", pass, i, err)
			}
			pts = append(pts, fr.PTS)
		}
		if pts[1] != 50*time.Millisecond || pts[2] != 150*time.Millisecond {
			t.Errorf("pass %d PTS = %v", pass, pts)
		}
		if _, err := src.Next(ctx); !errors.Is(err, ErrEndOfStream) {
			t.Fatalf("pass %d: expected ErrEndOfStream, got %v", pass, err)
		}
		if err := src.Reset(ctx); err != nil {
			t.Fatalf("Reset: %v", err)
		}
	}

	st := src.Stats()
	if st.FrameCount != 6 || st.Resets != 2 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestAnimationSource_Empty(t *testing.T) {
	if _, err := NewAnimationSource(nil, nil); err == nil {
		t.Error("expected error for an animation without frames")
	}
}

func TestGIFSource(t *testing.T) {
	g := &gif.GIF{}
	for i := 0; i < 4; i++ {
		p := image.NewPaletted(image.Rect(0, 0, 6, 6), palette.Plan9)
		p.SetColorIndex(i, i, uint8(i+1))
		g.Image = append(g.Image, p)
		g.Delay = append(g.Delay, 5) // 50ms
	}

	path := filepath.Join(t.TempDir(), "anim.gif")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := gif.EncodeAll(f, g); err != nil {
		t.Fatal(err)
	}
	f.Close()

	src, err := NewGIFSource(path)
	if err != nil {
		t.Fatalf("NewGIFSource: %v", err)
	}
	if src.Len() != 4 {
		t.Errorf("Len() = %d, want 4", src.Len())
	}
	if rate, _ := src.NativeRate(); rate < 19.99 || rate > 20.01 {
		t.Errorf("NativeRate() = %f, want 20", rate)
	}
	if src.Kind() != KindAnimation {
		t.Errorf("Kind() = %s", src.Kind())
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("boom")

	if Wrap(KindVideo, "next", nil) != nil {
		t.Error("Wrap(nil) != nil")
	}
	if err := Wrap(KindVideo, "next", ErrEndOfStream); err != ErrEndOfStream {
		t.Errorf("sentinel was wrapped: %v", err)
	}
	if err := Wrap(KindVideo, "next", context.Canceled); err != context.Canceled {
		t.Errorf("context error was wrapped: %v", err)
	}

	err := Wrap(KindStream, "next", base)
	if !errors.Is(err, base) {
		t.Error("wrapped error lost its cause")
	}
	if again := Wrap(KindVideo, "reset", err); again != err {
		t.Error("SourceError was wrapped twice")
	}
}
