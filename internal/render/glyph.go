// Package render prints availability grids as console glyphs or GeoJSON.
package render

import (
	"bufio"
	"io"

	"historical-imagery/internal/availability"
)

// glyphs is indexed [top][bottom]
var glyphs = [3][3]rune{
	availability.Unknown: {
		availability.Unknown:     ' ',
		availability.Unavailable: '.',
		availability.Available:   '▄',
	},
	availability.Unavailable: {
		availability.Unknown:     '˙',
		availability.Unavailable: ':',
		availability.Available:   '▄',
	},
	availability.Available: {
		availability.Unknown:     '▀',
		availability.Unavailable: '▀',
		availability.Available:   '█',
	},
}

// Glyph combines two vertically adjacent cells into one character
func Glyph(top, bottom availability.Availability) rune {
	return glyphs[top][bottom]
}

// lastRowGlyph renders the unpaired final row of an odd-height grid
func lastRowGlyph(top availability.Availability) rune {
	return glyphs[top][availability.Unknown]
}

// Lines returns the glyph map of g, one string per pair of rows
func Lines(g *availability.Grid) []string {
	var lines []string
	for y := 0; y < g.Rows(); y += 2 {
		line := make([]rune, g.Columns())
		for x := range line {
			if y+1 < g.Rows() {
				line[x] = Glyph(g.Get(y, x), g.Get(y+1, x))
			} else {
				line[x] = lastRowGlyph(g.Get(y, x))
			}
		}
		lines = append(lines, string(line))
	}
	return lines
}

// WriteGlyphs prints the glyph map of g to w
func WriteGlyphs(w io.Writer, g *availability.Grid) error {
	bw := bufio.NewWriter(w)
	for _, line := range Lines(g) {
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
