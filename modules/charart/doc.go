// Package charart converts decoded pixel frames into colored character grids.
//
// A frame is averaged down to one pixel per terminal cell, each cell's
// luminance selects a glyph from the active CharMap (dark to light), and the
// averaged color becomes the glyph's foreground:
//
//	maps, _ := charart.Presets("")
//	cols, rows := charart.TargetGrid(termCols, termRows, 1)
//	frame, err := charart.Convert(&raw, cols, rows, charart.Options{Map: maps[0]})
//
// Convert is pure and safe for concurrent use; RenderedFrame values are never
// modified after they are returned.
package charart
