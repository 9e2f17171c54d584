package charart

import (
	"fmt"
	"math"

	"github.com/e7canasta/tplay/modules/framesource"
)

// Rec. 601 luma weights.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// Options selects how cells are colored.
type Options struct {
	// Map is the active character map (required)
	Map *CharMap
	// Grayscale replaces each cell color with its luminance
	Grayscale bool
	// Monochrome emits glyphs without any color
	Monochrome bool
	// Background also paints a dimmed copy of the color behind the glyph
	Background bool
}

// Luminance returns the perceptual brightness of an sRGB color in [0, 1].
func Luminance(r, g, b uint8) float64 {
	return (lumaR*float64(r) + lumaG*float64(g) + lumaB*float64(b)) / 255
}

// TargetGrid returns the conversion grid for a terminal of termCols x
// termRows cells. wmod divides the column count for glyphs that occupy more
// than one cell (emoji maps use 2). Values below 1 count as 1.
func TargetGrid(termCols, termRows, wmod int) (cols, rows int) {
	if wmod < 1 {
		wmod = 1
	}
	if termCols <= 0 || termRows <= 0 {
		return 0, 0
	}
	return termCols / wmod, termRows
}

// Convert turns f into a cols x rows grid of cells. A zero-area target
// yields an empty frame and no error.
func Convert(f *framesource.RawFrame, cols, rows int, opts Options) (*RenderedFrame, error) {
	if opts.Map == nil {
		return nil, ErrEmptyCharMap
	}
	out := &RenderedFrame{
		Seq:     f.Seq,
		PTS:     f.PTS,
		HasPTS:  f.HasPTS,
		TraceID: f.TraceID,
	}
	if cols <= 0 || rows <= 0 {
		return out, nil
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("charart: convert frame %d: %w", f.Seq, err)
	}

	rgb := resample(f, cols, rows)
	cells := make([]CharCell, cols*rows)
	for i := range cells {
		r, g, b := rgb[i*3], rgb[i*3+1], rgb[i*3+2]
		l := Luminance(r, g, b)
		c := &cells[i]
		c.Glyph = opts.Map.Glyph(l)

		if opts.Monochrome {
			continue
		}
		if opts.Grayscale {
			y := uint8(math.Round(l * 255))
			r, g, b = y, y, y
		}
		c.Fg = RGB(r, g, b)
		if opts.Background {
			c.Bg = RGB(r/4, g/4, b/4)
		}
	}

	out.Cols, out.Rows = cols, rows
	out.Cells = cells
	return out, nil
}
