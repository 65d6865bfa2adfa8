package pdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsawler/tabula/core"

	"github.com/spherical/paper-video/internal/domain"
)

// objects resolves indirect references from a fixed table
type objects map[int]core.Object

func (o objects) Resolve(obj core.Object) (core.Object, error) {
	ref, ok := obj.(core.IndirectRef)
	if !ok {
		return obj, nil
	}
	resolved, found := o[ref.Number]
	if !found {
		return nil, fmt.Errorf("object %d not found", ref.Number)
	}
	return resolved, nil
}

func ref(n int) core.IndirectRef {
	return core.IndirectRef{Number: n}
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func imageStream(w, h, bpc int, cs core.Object, data []byte) *core.Stream {
	dict := core.Dict{
		"Type":             core.Name("XObject"),
		"Subtype":          core.Name("Image"),
		"Width":            core.Int(w),
		"Height":           core.Int(h),
		"BitsPerComponent": core.Int(bpc),
	}
	if cs != nil {
		dict["ColorSpace"] = cs
	}
	return &core.Stream{Dict: dict, Data: data}
}

func decodePNG(t *testing.T, raw domain.RawImage) image.Image {
	t.Helper()
	require.Equal(t, "png", raw.Format)
	img, err := png.Decode(bytes.NewReader(raw.Data))
	require.NoError(t, err)
	return img
}

func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

var (
	red   = rgb(255, 0, 0)
	green = rgb(0, 255, 0)
	blue  = rgb(0, 0, 255)
	black = rgb(0, 0, 0)
	white = rgb(255, 255, 255)
)

func TestDecodeImageXObject_Colours(t *testing.T) {
	redBlue := []byte{255, 0, 0, 0, 0, 255}

	tests := []struct {
		name      string
		objects   objects
		resources core.Dict
		stream    *core.Stream
		want      []color.RGBA
	}{
		{
			name:   "DeviceRGB",
			stream: imageStream(2, 1, 8, core.Name("DeviceRGB"), redBlue),
			want:   []color.RGBA{red, blue},
		},
		{
			name: "ICCBased RGB keeps colour",
			objects: objects{
				7: &core.Stream{Dict: core.Dict{"N": core.Int(3)}, Data: []byte("icc")},
			},
			stream: imageStream(2, 1, 8, core.Array{core.Name("ICCBased"), ref(7)}, redBlue),
			want:   []color.RGBA{red, blue},
		},
		{
			name: "ICCBased without N uses Alternate",
			objects: objects{
				7: &core.Stream{Dict: core.Dict{"Alternate": core.Name("DeviceRGB")}, Data: []byte("icc")},
			},
			stream: imageStream(2, 1, 8, core.Array{core.Name("ICCBased"), ref(7)}, redBlue),
			want:   []color.RGBA{red, blue},
		},
		{
			name: "ICCBased component count inferred from data",
			objects: objects{
				7: &core.Stream{Dict: core.Dict{}, Data: []byte("icc")},
			},
			stream: imageStream(2, 1, 8, core.Array{core.Name("ICCBased"), ref(7)}, redBlue),
			want:   []color.RGBA{red, blue},
		},
		{
			name: "ICCBased gray",
			objects: objects{
				7: &core.Stream{Dict: core.Dict{"N": core.Int(1)}, Data: []byte("icc")},
			},
			stream: imageStream(2, 1, 8, core.Array{core.Name("ICCBased"), ref(7)}, []byte{0, 255}),
			want:   []color.RGBA{black, white},
		},
		{
			name: "Indexed over DeviceRGB with string lookup",
			stream: imageStream(2, 1, 8,
				core.Array{core.Name("Indexed"), core.Name("DeviceRGB"), core.Int(1), core.String("\xff\x00\x00\x00\xff\x00")},
				[]byte{1, 0}),
			want: []color.RGBA{green, red},
		},
		{
			name: "Indexed 4 bit over ICCBased with stream lookup",
			objects: objects{
				7: &core.Stream{Dict: core.Dict{"N": core.Int(3)}, Data: []byte("icc")},
				8: &core.Stream{Data: []byte{255, 0, 0, 0, 255, 0, 0, 0, 255}},
			},
			stream: imageStream(3, 1, 4,
				core.Array{core.Name("Indexed"), core.Array{core.Name("ICCBased"), ref(7)}, core.Int(2), ref(8)},
				[]byte{0x01, 0x20}),
			want: []color.RGBA{red, green, blue},
		},
		{
			name:   "DeviceCMYK",
			stream: imageStream(2, 1, 8, core.Name("DeviceCMYK"), []byte{0, 0, 0, 0, 0, 0, 0, 255}),
			want:   []color.RGBA{white, black},
		},
		{
			name: "named colour space resource",
			resources: core.Dict{
				"ColorSpace": core.Dict{"CS0": core.Array{core.Name("ICCBased"), ref(7)}},
			},
			objects: objects{
				7: &core.Stream{Dict: core.Dict{"N": core.Int(3)}, Data: []byte("icc")},
			},
			stream: imageStream(2, 1, 8, core.Name("CS0"), redBlue),
			want:   []color.RGBA{red, blue},
		},
		{
			name: "flate compressed RGB",
			stream: func() *core.Stream {
				s := imageStream(2, 1, 8, core.Name("DeviceRGB"), deflate(t, redBlue))
				s.Dict["Filter"] = core.Name("FlateDecode")
				return s
			}(),
			want: []color.RGBA{red, blue},
		},
		{
			name: "1 bit gray with inverted Decode",
			stream: func() *core.Stream {
				s := imageStream(2, 1, 1, core.Name("DeviceGray"), []byte{0x80})
				s.Dict["Decode"] = core.Array{core.Int(1), core.Int(0)}
				return s
			}(),
			want: []color.RGBA{black, white},
		},
		{
			name: "image mask paints zero samples",
			stream: func() *core.Stream {
				s := imageStream(2, 1, 1, nil, []byte{0x40})
				s.Dict["ImageMask"] = core.Bool(true)
				return s
			}(),
			want: []color.RGBA{black, white},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resources := tt.resources
			if resources == nil {
				resources = core.Dict{}
			}
			resolver := tt.objects
			if resolver == nil {
				resolver = objects{}
			}

			raw, err := decodeImageXObject(resolver, resources, imageXObject{name: "Im1", stream: tt.stream})
			require.NoError(t, err)

			img := decodePNG(t, raw)
			require.Equal(t, len(tt.want), img.Bounds().Dx())
			assert.Equal(t, 1, img.Bounds().Dy())
			for x, want := range tt.want {
				got := color.RGBAModel.Convert(img.At(x, 0)).(color.RGBA)
				assert.Equal(t, want, got, "pixel %d", x)
			}
		})
	}
}

func TestDecodeImageXObject_JPEGPassesThrough(t *testing.T) {
	jpeg := []byte("\xff\xd8\xff\xe0fake-jpeg")
	s := imageStream(4, 3, 8, core.Name("DeviceRGB"), jpeg)
	s.Dict["Filter"] = core.Name("DCTDecode")

	raw, err := decodeImageXObject(objects{}, core.Dict{}, imageXObject{name: "Im1", stream: s})
	require.NoError(t, err)
	assert.Equal(t, "jpeg", raw.Format)
	assert.Equal(t, jpeg, raw.Data)
	assert.Equal(t, 4, raw.Width)
	assert.Equal(t, 3, raw.Height)
}

func TestDecodeImageXObject_Undecodable(t *testing.T) {
	tests := []struct {
		name    string
		objects objects
		stream  *core.Stream
	}{
		{
			name: "JPEG 2000",
			stream: func() *core.Stream {
				s := imageStream(1, 1, 8, core.Name("DeviceRGB"), []byte("jp2"))
				s.Dict["Filter"] = core.Name("JPXDecode")
				return s
			}(),
		},
		{
			name:   "Separation colour space",
			stream: imageStream(1, 1, 8, core.Array{core.Name("Separation"), core.Name("Spot")}, []byte{1}),
		},
		{
			name:   "RGB data too short",
			stream: imageStream(2, 2, 8, core.Name("DeviceRGB"), []byte{1, 2, 3, 4}),
		},
		{
			name: "ICC profile with two components",
			objects: objects{
				7: &core.Stream{Dict: core.Dict{"N": core.Int(2)}},
			},
			stream: imageStream(1, 1, 8, core.Array{core.Name("ICCBased"), ref(7)}, []byte{1, 2}),
		},
		{
			name: "Indexed lookup too short",
			stream: imageStream(1, 1, 8,
				core.Array{core.Name("Indexed"), core.Name("DeviceRGB"), core.Int(3), core.String("\x00\x00\x00")},
				[]byte{0}),
		},
		{
			name:   "missing colour space",
			stream: imageStream(1, 1, 8, nil, []byte{0}),
		},
		{
			name:   "unsupported bit depth",
			stream: imageStream(1, 1, 3, core.Name("DeviceGray"), []byte{0}),
		},
		{
			name: "missing width",
			stream: func() *core.Stream {
				s := imageStream(1, 1, 8, core.Name("DeviceGray"), []byte{0})
				delete(s.Dict, "Width")
				return s
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := tt.objects
			if resolver == nil {
				resolver = objects{}
			}
			_, err := decodeImageXObject(resolver, core.Dict{}, imageXObject{name: "Im1", stream: tt.stream})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUndecodableImage)
		})
	}
}

func TestPageImageXObjects_NaturalOrder(t *testing.T) {
	img := func() *core.Stream { return imageStream(1, 1, 8, core.Name("DeviceGray"), []byte{0}) }
	form := &core.Stream{Dict: core.Dict{"Subtype": core.Name("Form")}}

	resolver := objects{
		10: core.Dict{
			"Im10": img(),
			"Im2":  ref(11),
			"Fm1":  form,
			"Im1":  img(),
		},
		11: img(),
	}
	resources := core.Dict{"XObject": ref(10)}

	found, err := pageImageXObjects(resolver, resources)
	require.NoError(t, err)

	names := make([]string, len(found))
	for i, x := range found {
		names[i] = x.name
	}
	assert.Equal(t, []string{"Im1", "Im2", "Im10"}, names)
}

func TestPageImageXObjects_NoXObjects(t *testing.T) {
	found, err := pageImageXObjects(objects{}, core.Dict{})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestSample(t *testing.T) {
	row := []byte{0b10110010, 0xAB, 0xCD}

	assert.Equal(t, 1, sample(row, 0, 1))
	assert.Equal(t, 0, sample(row, 1, 1))
	assert.Equal(t, 0b10, sample(row, 0, 2))
	assert.Equal(t, 0b11, sample(row, 1, 2))
	assert.Equal(t, 0xB, sample(row, 0, 4))
	assert.Equal(t, 0x2, sample(row, 1, 4))
	assert.Equal(t, 0xAB, sample(row, 1, 8))
	assert.Equal(t, 0xABCD, sample(row[1:], 0, 16))
}
