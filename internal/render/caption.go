// Package render draws captions and composes video frames.
package render

import (
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	"github.com/spherical/paper-video/internal/domain"
)

// Caption layout constants, in pixels.
const (
	// Margin is subtracted from the raster width to get the wrap limit
	Margin = 20
	// TopMargin is the y of the first line
	TopMargin = 10
	// LineGap is added to the font size to get the line pitch
	LineGap = 5
)

// CaptionRenderer renders word-wrapped, centred text into an RGBA raster
type CaptionRenderer struct {
	fonts *FontSource
}

var _ domain.FrameRenderer = (*CaptionRenderer)(nil)

// NewCaptionRenderer creates a renderer drawing with fonts
func NewCaptionRenderer(fonts *FontSource) *CaptionRenderer {
	return &CaptionRenderer{fonts: fonts}
}

// Render draws text wrapped to size.X-Margin. Lines start at TopMargin and
// advance by fontSize+LineGap; each is centred on whole pixels. Text that
// overflows the raster height is clipped.
func (r *CaptionRenderer) Render(text string, size image.Point, fontSize float64, fg, bg color.Color) (image.Image, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, domain.RenderError("caption size must be positive", nil)
	}
	if fontSize <= 0 {
		return nil, domain.RenderError("font size must be positive", nil)
	}

	face := r.fonts.Face(fontSize)
	defer face.Close()

	dc := gg.NewContext(size.X, size.Y)
	dc.SetColor(bg)
	dc.Clear()
	dc.SetFontFace(face)
	dc.SetColor(fg)

	y := float64(TopMargin)
	for _, line := range wrap(face, text, float64(size.X-Margin)) {
		tw := int(math.Ceil(measure(face, line)))
		x := floorDiv(size.X-tw, 2)
		dc.DrawStringAnchored(line, float64(x), y, 0, 1)
		y += fontSize + LineGap
	}

	return dc.Image(), nil
}

// Layout returns the lines Render would draw for text at the given width
func (r *CaptionRenderer) Layout(text string, width int, fontSize float64) []string {
	face := r.fonts.Face(fontSize)
	defer face.Close()
	return wrap(face, text, float64(width-Margin))
}

// MeasureWidth returns the advance width of s at fontSize
func (r *CaptionRenderer) MeasureWidth(s string, fontSize float64) float64 {
	face := r.fonts.Face(fontSize)
	defer face.Close()
	return measure(face, s)
}

// wrap is a greedy word wrap. A word is never split: a single word wider
// than limit gets a line of its own.
func wrap(face font.Face, text string, limit float64) []string {
	var lines []string
	var current []string

	for _, word := range strings.Fields(text) {
		current = append(current, word)
		candidate := strings.Join(current, " ")
		if measure(face, candidate) <= limit {
			continue
		}
		if len(current) > 1 {
			lines = append(lines, strings.Join(current[:len(current)-1], " "))
			current = []string{word}
		} else {
			lines = append(lines, candidate)
			current = nil
		}
	}

	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}
	return lines
}

func measure(face font.Face, s string) float64 {
	return float64(font.MeasureString(face, s)) / 64
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
