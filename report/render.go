// Package report renders run results for a console: shaded matrices for
// digit images and confusion heat maps, classification reports and the
// grid-search table.
package report

import (
	"fmt"
	"io"
	"strings"
)

// Renderer draws a numeric matrix. Rendering is fire-and-forget: failures
// are the renderer's concern and never reach the caller.
type Renderer interface {
	Render(m [][]float64, title, xLabel, yLabel string)
}

// shades maps normalised intensity to a glyph, lightest first.
var shades = []rune(" .:-=+*#%@")

// ASCIIRenderer draws each cell as a shaded glyph, optionally followed by the
// numeric value.
type ASCIIRenderer struct {
	W          io.Writer
	ShowValues bool
}

// NewASCIIRenderer returns a renderer writing to w.
func NewASCIIRenderer(w io.Writer, showValues bool) *ASCIIRenderer {
	return &ASCIIRenderer{W: w, ShowValues: showValues}
}

// Render writes the matrix with row indices on the left and column indices on top.
func (r *ASCIIRenderer) Render(m [][]float64, title, xLabel, yLabel string) {
	if r == nil || r.W == nil {
		return
	}
	fmt.Fprint(r.W, shadeMatrix(m, title, xLabel, yLabel, r.ShowValues))
}

func shadeMatrix(m [][]float64, title, xLabel, yLabel string, showValues bool) string {
	var b strings.Builder
	if title != "" {
		b.WriteString(title)
		b.WriteByte('\n')
	}
	if len(m) == 0 {
		return b.String()
	}
	lo, hi := m[0][0], m[0][0]
	cols := 0
	for _, row := range m {
		if len(row) > cols {
			cols = len(row)
		}
		for _, v := range row {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}

	cell := 2
	if showValues {
		cell = 6
	}
	if xLabel != "" {
		fmt.Fprintf(&b, "%4s%s\n", "", xLabel)
	}
	fmt.Fprintf(&b, "%4s", "")
	for j := 0; j < cols; j++ {
		fmt.Fprintf(&b, "%*d", cell, j)
	}
	b.WriteByte('\n')
	for i, row := range m {
		fmt.Fprintf(&b, "%3d ", i)
		for _, v := range row {
			glyph := shade(v, lo, hi)
			if showValues {
				fmt.Fprintf(&b, " %c%4g", glyph, v)
			} else {
				fmt.Fprintf(&b, " %c", glyph)
			}
		}
		b.WriteByte('\n')
	}
	if yLabel != "" {
		fmt.Fprintf(&b, "rows: %s\n", yLabel)
	}
	return b.String()
}

func shade(v, lo, hi float64) rune {
	if hi <= lo {
		return shades[0]
	}
	idx := int((v - lo) / (hi - lo) * float64(len(shades)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(shades) {
		idx = len(shades) - 1
	}
	return shades[idx]
}

// NopRenderer discards everything.
type NopRenderer struct{}

// Render does nothing.
func (NopRenderer) Render([][]float64, string, string, string) {}
