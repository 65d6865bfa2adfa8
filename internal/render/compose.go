package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	// registered for image.Decode
	_ "image/gif"
	_ "image/jpeg"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/spherical/paper-video/internal/domain"
)

// Background is the frame colour behind captions and figures
var Background color.Color = color.Black

// TitledFrame composes a text segment frame: the body caption covers the
// frame and the title raster is centred horizontally at titleTop.
func TitledFrame(size image.Point, body, title image.Image, titleTop int) image.Image {
	dc := newFrame(size)
	dc.DrawImage(body, 0, 0)
	dc.DrawImage(title, centre(size.X, title.Bounds().Dx()), titleTop)
	return dc.Image()
}

// FigureFrame composes an image segment frame: the figure, scaled to
// imageHeight, is centred in the frame and the caption raster is centred
// horizontally at captionTop.
func FigureFrame(size image.Point, figure image.Image, imageHeight int, caption image.Image, captionTop int) image.Image {
	dc := newFrame(size)

	scaled := ScaleToHeight(figure, imageHeight, size.X)
	b := scaled.Bounds()
	dc.DrawImage(scaled, centre(size.X, b.Dx()), centre(size.Y, b.Dy()))
	dc.DrawImage(caption, centre(size.X, caption.Bounds().Dx()), captionTop)
	return dc.Image()
}

// ScaleToHeight resizes img to height h keeping its aspect ratio. When the
// result would be wider than maxWidth it is fitted to maxWidth instead.
func ScaleToHeight(img image.Image, h, maxWidth int) image.Image {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 || h <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}

	w := int(float64(b.Dx())*float64(h)/float64(b.Dy()) + 0.5)
	if maxWidth > 0 && w > maxWidth {
		h = int(float64(h)*float64(maxWidth)/float64(w) + 0.5)
		w = maxWidth
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// DecodeImage decodes PNG, JPEG or GIF figure data
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.RenderError("decode figure", err)
	}
	return img, nil
}

// EncodePNG encodes a frame for the encoder boundary
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, domain.RenderError("encode frame", err)
	}
	return buf.Bytes(), nil
}

func newFrame(size image.Point) *gg.Context {
	dc := gg.NewContext(size.X, size.Y)
	dc.SetColor(Background)
	dc.Clear()
	return dc
}

func centre(outer, inner int) int {
	return floorDiv(outer-inner, 2)
}
