// Package layout turns the extracted block model into renderer-ready
// elements: every block gets its vertical spacing, images get their draw
// dimensions against the page, tables become rectangular.
package layout

import (
	"kpc/note"
	"kpc/utils/images"
)

// PxToPt converts CSS pixels (96 per inch) to points (72 per inch).
const PxToPt = 0.75

// Page describes fixed output page geometry in points.
type Page struct {
	Width  float64
	Height float64
	Margin float64
}

func (p Page) ContentWidth() float64 {
	return p.Width - 2*p.Margin
}

func (p Page) ContentHeight() float64 {
	return p.Height - 2*p.Margin
}

// Spacing is vertical whitespace around an element, in points.
type Spacing struct {
	Before float64
	After  float64
}

var spacingTokens = map[note.Kind]Spacing{
	note.KindHeading:   {Before: 12, After: 6},
	note.KindParagraph: {Before: 0, After: 6},
	note.KindList:      {Before: 0, After: 6},
	note.KindTable:     {Before: 6, After: 12},
	note.KindImage:     {Before: 6, After: 12},
	note.KindCode:      {Before: 6, After: 12},
}

// Element is a positioned block ready for the renderer.
type Element struct {
	Block   note.Block
	Spacing Spacing

	// image blocks only
	Resolved   *images.Resolved
	DrawWidth  float64 // points
	DrawHeight float64
}

// Normalize pairs blocks with spacing and draw geometry. Image blocks
// consume resolution results by position - the i-th image block takes the
// i-th entry. Decorative images disappear from output.
func Normalize(blocks []note.Block, resolved []images.Resolved, page Page) []Element {
	out := make([]Element, 0, len(blocks))
	imgIdx := 0

	for _, b := range blocks {
		el := Element{Block: b, Spacing: spacingTokens[b.Kind]}

		switch b.Kind {
		case note.KindImage:
			res := images.Resolved{Source: b.Image.Source, Reason: images.FailEmptySource}
			if imgIdx < len(resolved) {
				res = resolved[imgIdx]
			}
			imgIdx++
			if res.Decorative {
				continue
			}
			el.Resolved = &res
			if res.OK() {
				el.DrawWidth, el.DrawHeight = fitImage(b.Image, res, page)
			}
		case note.KindTable:
			el.Block.Rows = padRows(b.Rows)
		}
		out = append(out, el)
	}
	return out
}

// fitImage computes draw dimensions in points: natural pixel size shrunk by
// the author's dimension hints, then fit into the content box. Images are
// never upscaled.
func fitImage(ref note.ImageRef, res images.Resolved, page Page) (w, h float64) {
	pw, ph := float64(res.Width), float64(res.Height)
	if pw <= 0 || ph <= 0 {
		return 0, 0
	}

	// hints only shrink - a hint larger than the source would upscale
	if ref.WidthHint > 0 && float64(ref.WidthHint) < pw {
		scale := float64(ref.WidthHint) / pw
		pw, ph = pw*scale, ph*scale
	} else if ref.HeightHint > 0 && float64(ref.HeightHint) < ph {
		scale := float64(ref.HeightHint) / ph
		pw, ph = pw*scale, ph*scale
	}

	w, h = pw*PxToPt, ph*PxToPt

	maxW, maxH := page.ContentWidth(), page.ContentHeight()
	if maxW > 0 && maxH > 0 && (w > maxW || h > maxH) {
		s := min(maxW/w, maxH/h)
		w, h = w*s, h*s
	}
	return w, h
}

// padRows pads ragged rows with empty cells so every row spans the same
// number of columns.
func padRows(rows [][]note.Cell) [][]note.Cell {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}

	out := make([][]note.Cell, len(rows))
	for i, r := range rows {
		if len(r) == width {
			out[i] = r
			continue
		}
		padded := make([]note.Cell, width)
		copy(padded, r)
		out[i] = padded
	}
	return out
}
