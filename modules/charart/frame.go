package charart

import "time"

// Color is a 24-bit RGB color. Set is false for "no color" (monochrome
// output, or no background).
type Color struct {
	R, G, B uint8
	Set     bool
}

// RGB returns a set color.
func RGB(r, g, b uint8) Color { return Color{R: r, G: g, B: b, Set: true} }

// CharCell is one terminal grid cell.
type CharCell struct {
	Glyph string
	Fg    Color
	Bg    Color
}

// RenderedFrame is a dense, row-major grid of cells. It is immutable once
// returned by Convert.
type RenderedFrame struct {
	// Cols and Rows are the grid size in cells
	Cols int
	Rows int
	// Cells holds Rows*Cols cells, top row first
	Cells []CharCell
	// TermCols and TermRows are the terminal size the grid was computed for
	TermCols int
	TermRows int
	// Seq is the source frame sequence number
	Seq uint64
	// PTS is the media time of the source frame (valid if HasPTS)
	PTS    time.Duration
	HasPTS bool
	// TraceID follows the source frame through the logs
	TraceID string
}

// Empty reports whether there is nothing to draw.
func (f *RenderedFrame) Empty() bool {
	return f.Cols == 0 || f.Rows == 0
}

// Row returns the cells of row y.
func (f *RenderedFrame) Row(y int) []CharCell {
	return f.Cells[y*f.Cols : (y+1)*f.Cols]
}

// At returns the cell at column x, row y.
func (f *RenderedFrame) At(x, y int) CharCell {
	return f.Cells[y*f.Cols+x]
}
