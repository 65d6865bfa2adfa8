package segment

import (
	"image"
	"math"

	"github.com/spherical/paper-video/internal/domain"
)

// Reference layout at 800x600. Other frame sizes scale it.
const (
	refWidth      = 800
	refHeight     = 600
	refTitleTop   = 50
	refTitleH     = 100
	refImageH     = 400
	refCaptionTop = 450
	refCaptionH   = 150
)

// FontSizes are the caption font sizes at the reference frame height
type FontSizes struct {
	Body    float64
	Title   float64
	Caption float64
}

// DefaultFontSizes returns 32/48/24
func DefaultFontSizes() FontSizes {
	return FontSizes{Body: 32, Title: 48, Caption: 24}
}

// Geometry places captions and figures in a frame
type Geometry struct {
	Frame         image.Point
	TitleTop      int
	TitleHeight   int
	ImageHeight   int
	CaptionTop    int
	CaptionHeight int
	Fonts         FontSizes
}

// NewGeometry scales the reference layout to the frame size in params.
// Vertical positions and font sizes follow the height ratio; captions and
// titles always span the full frame width.
func NewGeometry(params domain.EncodingParams, fonts FontSizes) Geometry {
	sy := float64(params.Height) / refHeight
	scale := func(v int) int { return int(math.Round(float64(v) * sy)) }

	return Geometry{
		Frame:         params.Size(),
		TitleTop:      scale(refTitleTop),
		TitleHeight:   scale(refTitleH),
		ImageHeight:   scale(refImageH),
		CaptionTop:    scale(refCaptionTop),
		CaptionHeight: scale(refCaptionH),
		Fonts: FontSizes{
			Body:    fonts.Body * sy,
			Title:   fonts.Title * sy,
			Caption: fonts.Caption * sy,
		},
	}
}
