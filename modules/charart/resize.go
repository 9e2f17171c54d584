package charart

import "github.com/e7canasta/tplay/modules/framesource"

// span returns, for each of n output cells along an axis of size src, the
// source range [lo, hi) it averages. Upscaling degrades to nearest neighbour.
func span(src, n int) (lo, hi []int) {
	lo = make([]int, n)
	hi = make([]int, n)
	for i := 0; i < n; i++ {
		a := i * src / n
		b := (i + 1) * src / n
		if b <= a {
			b = a + 1
		}
		if b > src {
			b = src
		}
		lo[i], hi[i] = a, b
	}
	return lo, hi
}

// resample averages f down (or up) to cols x rows RGB triples, row-major.
func resample(f *framesource.RawFrame, cols, rows int) []uint8 {
	out := make([]uint8, cols*rows*3)
	xlo, xhi := span(f.Width, cols)
	ylo, yhi := span(f.Height, rows)
	bpp := f.Format.BytesPerPixel()

	o := 0
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			var r, g, b, n uint32
			for y := ylo[cy]; y < yhi[cy]; y++ {
				i := y*f.Stride + xlo[cx]*bpp
				for x := xlo[cx]; x < xhi[cx]; x++ {
					r += uint32(f.Pix[i])
					g += uint32(f.Pix[i+1])
					b += uint32(f.Pix[i+2])
					i += bpp
					n++
				}
			}
			out[o] = uint8(r / n)
			out[o+1] = uint8(g / n)
			out[o+2] = uint8(b / n)
			o += 3
		}
	}
	return out
}
