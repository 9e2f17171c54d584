package charart

import (
	"errors"
	"math"
)

// Built-in glyph sets, ordered dark to light.
const (
	Short    = " .:-=+*#%@"
	ShortExt = " ░▒▓█"
	Long     = " .'`^\",:;Il!i~+_-?][}{1)(|/tfjrxnuvczXYUJCLQ0OZmwqpdbkhao*#MW&8%B@$"
	Long2    = " `.-':_,^=;><+!rc*/z?sLTv)J7(|Fi{C}fI31tlu[neoZ5Yxjya]2ESwqkP6h9d4VpOGbUAKXHm8RD#$Bg0MNWQ%&@"
)

// ErrEmptyCharMap is returned by NewCharMap for a map without glyphs.
var ErrEmptyCharMap = errors.New("charart: character map is empty")

// CharMap is an ordered, non-empty glyph sequence from darkest to lightest.
// Glyphs are single runes, which may be wider than one terminal cell.
type CharMap struct {
	glyphs []string
}

// NewCharMap splits s into one glyph per rune.
func NewCharMap(s string) (*CharMap, error) {
	glyphs := make([]string, 0, len(s))
	for _, r := range s {
		glyphs = append(glyphs, string(r))
	}
	if len(glyphs) == 0 {
		return nil, ErrEmptyCharMap
	}
	return &CharMap{glyphs: glyphs}, nil
}

func mustCharMap(s string) *CharMap {
	m, err := NewCharMap(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Presets returns the selectable maps: user (or Short when user is empty)
// at index 0, followed by Short, ShortExt, Long and Long2.
func Presets(user string) ([]*CharMap, error) {
	first := Short
	if user != "" {
		first = user
	}
	m, err := NewCharMap(first)
	if err != nil {
		return nil, err
	}
	return []*CharMap{
		m,
		mustCharMap(Short),
		mustCharMap(ShortExt),
		mustCharMap(Long),
		mustCharMap(Long2),
	}, nil
}

// Len returns the number of glyphs.
func (m *CharMap) Len() int { return len(m.glyphs) }

// Index maps a luminance in [0, 1] to round(l*(len-1)), clamped into range.
// NaN maps to 0.
func (m *CharMap) Index(l float64) int {
	last := len(m.glyphs) - 1
	if !(l > 0) {
		return 0
	}
	i := int(math.Round(l * float64(last)))
	if i > last {
		return last
	}
	return i
}

// Glyph returns the glyph for luminance l.
func (m *CharMap) Glyph(l float64) string {
	return m.glyphs[m.Index(l)]
}

// At returns glyph i, clamped into range.
func (m *CharMap) At(i int) string {
	if i < 0 {
		i = 0
	}
	if i >= len(m.glyphs) {
		i = len(m.glyphs) - 1
	}
	return m.glyphs[i]
}

func (m *CharMap) String() string {
	var n int
	for _, g := range m.glyphs {
		n += len(g)
	}
	b := make([]byte, 0, n)
	for _, g := range m.glyphs {
		b = append(b, g...)
	}
	return string(b)
}
