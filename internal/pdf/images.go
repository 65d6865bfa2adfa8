package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"

	"github.com/tsawler/tabula/core"

	"github.com/spherical/paper-video/internal/domain"
)

// maxColorSpaceDepth bounds nested colour space arrays (Indexed over ICCBased)
const maxColorSpaceDepth = 4

// resolver follows indirect references; *reader.Reader implements it
type resolver interface {
	Resolve(obj core.Object) (core.Object, error)
}

// colorSpace is a resolved image colour space
type colorSpace struct {
	family     string
	components int

	// Indexed only
	base   *colorSpace
	hival  int
	lookup []byte
}

// imageXObject is an image XObject as found in a page's resources
type imageXObject struct {
	name   string
	stream *core.Stream
}

// pageImageXObjects lists the image XObjects of a resource dictionary in
// natural name order. Form XObjects and other streams are ignored.
func pageImageXObjects(r resolver, resources core.Dict) ([]imageXObject, error) {
	obj := resources.Get("XObject")
	if obj == nil {
		return nil, nil
	}
	resolved, err := r.Resolve(obj)
	if err != nil {
		return nil, fmt.Errorf("resolve XObject dictionary: %w", err)
	}
	xobjects, ok := resolved.(core.Dict)
	if !ok {
		return nil, nil
	}

	// resource dictionaries are maps; name order gives a stable ordinal
	names := xobjects.Keys()
	sort.SliceStable(names, func(i, j int) bool {
		return naturalLess(names[i], names[j])
	})

	var images []imageXObject
	for _, name := range names {
		resolved, err := r.Resolve(xobjects.Get(name))
		if err != nil {
			return nil, fmt.Errorf("resolve XObject %s: %w", name, err)
		}
		stream, ok := resolved.(*core.Stream)
		if !ok {
			continue
		}
		if subtype, _ := stream.Dict.GetName("Subtype"); subtype != "Image" {
			continue
		}
		images = append(images, imageXObject{name: name, stream: stream})
	}
	return images, nil
}

// decodeImageXObject turns an image XObject into a RawImage. JPEG streams are
// passed through; everything else is unpacked from its samples and encoded
// as PNG. Encodings that cannot be converted faithfully wrap
// domain.ErrUndecodableImage.
func decodeImageXObject(r resolver, resources core.Dict, x imageXObject) (domain.RawImage, error) {
	dict := x.stream.Dict

	width, wok := dict.GetInt("Width")
	height, hok := dict.GetInt("Height")
	if !wok || !hok || width <= 0 || height <= 0 {
		return domain.RawImage{}, undecodable("missing or invalid Width/Height")
	}

	data, err := x.stream.Decode()
	if err != nil {
		return domain.RawImage{}, undecodable("decode stream: %v", err)
	}

	switch lastFilter(dict) {
	case "DCTDecode", "DCT":
		// stream data is the JPEG file itself
		return domain.RawImage{Data: data, Format: "jpeg", Width: int(width), Height: int(height)}, nil
	case "JPXDecode":
		return domain.RawImage{}, undecodable("JPEG 2000 images are not supported")
	}

	s := samples{
		width:  int(width),
		height: int(height),
		bpc:    8,
		data:   data,
	}
	if bpc, ok := dict.GetInt("BitsPerComponent"); ok {
		s.bpc = int(bpc)
	}

	if mask, _ := dict.GetBool("ImageMask"); mask {
		s.bpc = 1
		s.space = colorSpace{family: "ImageMask", components: 1}
	} else {
		csObj := dict.Get("ColorSpace")
		if csObj == nil {
			return domain.RawImage{}, undecodable("image has no ColorSpace")
		}
		s.space, err = resolveColorSpace(r, resources, csObj, s.samplesPerPixel(), 0)
		if err != nil {
			return domain.RawImage{}, err
		}
	}

	if arr, ok := dict.GetArray("Decode"); ok {
		s.decode = numbers(arr)
	}

	img, err := s.image()
	if err != nil {
		return domain.RawImage{}, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.RawImage{}, fmt.Errorf("encode PNG: %w", err)
	}
	return domain.RawImage{Data: buf.Bytes(), Format: "png", Width: int(width), Height: int(height)}, nil
}

// resolveColorSpace resolves a colour space name or array. samplesPerPixel
// stands in for the component count of an ICC profile that declares none.
func resolveColorSpace(r resolver, resources core.Dict, obj core.Object, samplesPerPixel float64, depth int) (colorSpace, error) {
	if depth > maxColorSpaceDepth {
		return colorSpace{}, undecodable("colour space nesting too deep")
	}

	resolved, err := r.Resolve(obj)
	if err != nil {
		return colorSpace{}, undecodable("resolve colour space: %v", err)
	}

	switch v := resolved.(type) {
	case core.Name:
		switch v {
		case "DeviceGray", "G", "CalGray":
			return colorSpace{family: "DeviceGray", components: 1}, nil
		case "DeviceRGB", "RGB", "CalRGB":
			return colorSpace{family: "DeviceRGB", components: 3}, nil
		case "DeviceCMYK", "CMYK":
			return colorSpace{family: "DeviceCMYK", components: 4}, nil
		}
		// a named resource such as /CS0
		if named := namedColorSpace(r, resources, string(v)); named != nil {
			return resolveColorSpace(r, resources, named, samplesPerPixel, depth+1)
		}
		return colorSpace{}, undecodable("unsupported colour space %s", v)

	case core.Array:
		family, ok := v.GetName(0)
		if !ok {
			return colorSpace{}, undecodable("colour space array has no family name")
		}
		switch family {
		case "CalGray", "CalRGB", "DeviceGray", "DeviceRGB", "DeviceCMYK":
			return resolveColorSpace(r, resources, family, samplesPerPixel, depth+1)
		case "ICCBased":
			return iccColorSpace(r, resources, v, samplesPerPixel, depth)
		case "Indexed", "I":
			return indexedColorSpace(r, resources, v, depth)
		default:
			return colorSpace{}, undecodable("unsupported colour space %s", family)
		}
	}

	return colorSpace{}, undecodable("invalid colour space object %T", resolved)
}

func iccColorSpace(r resolver, resources core.Dict, arr core.Array, samplesPerPixel float64, depth int) (colorSpace, error) {
	profile, err := r.Resolve(arr.Get(1))
	if err != nil {
		return colorSpace{}, undecodable("resolve ICC profile: %v", err)
	}
	stream, ok := profile.(*core.Stream)
	if !ok {
		return colorSpace{}, undecodable("ICC profile is not a stream")
	}

	n, ok := stream.Dict.GetInt("N")
	if !ok {
		if alt := stream.Dict.Get("Alternate"); alt != nil {
			return resolveColorSpace(r, resources, alt, samplesPerPixel, depth+1)
		}
		n = core.Int(int(samplesPerPixel + 0.5))
	}

	switch n {
	case 1:
		return colorSpace{family: "DeviceGray", components: 1}, nil
	case 3:
		return colorSpace{family: "DeviceRGB", components: 3}, nil
	case 4:
		return colorSpace{family: "DeviceCMYK", components: 4}, nil
	}
	return colorSpace{}, undecodable("ICC profile with %d components", n)
}

func indexedColorSpace(r resolver, resources core.Dict, arr core.Array, depth int) (colorSpace, error) {
	if arr.Len() < 4 {
		return colorSpace{}, undecodable("Indexed colour space needs base, hival and lookup")
	}

	base, err := resolveColorSpace(r, resources, arr.Get(1), 0, depth+1)
	if err != nil {
		return colorSpace{}, err
	}
	if base.family == "Indexed" {
		return colorSpace{}, undecodable("Indexed colour space over Indexed base")
	}

	hival, ok := arr.GetInt(2)
	if !ok || hival < 0 || hival > 255 {
		return colorSpace{}, undecodable("invalid Indexed hival")
	}

	lookupObj, err := r.Resolve(arr.Get(3))
	if err != nil {
		return colorSpace{}, undecodable("resolve Indexed lookup: %v", err)
	}
	var lookup []byte
	switch l := lookupObj.(type) {
	case core.String:
		lookup = []byte(l)
	case *core.Stream:
		lookup, err = l.Decode()
		if err != nil {
			return colorSpace{}, undecodable("decode Indexed lookup: %v", err)
		}
	default:
		return colorSpace{}, undecodable("invalid Indexed lookup %T", lookupObj)
	}

	if need := (int(hival) + 1) * base.components; len(lookup) < need {
		return colorSpace{}, undecodable("Indexed lookup has %d bytes, need %d", len(lookup), need)
	}

	return colorSpace{
		family:     "Indexed",
		components: 1,
		base:       &base,
		hival:      int(hival),
		lookup:     lookup,
	}, nil
}

func namedColorSpace(r resolver, resources core.Dict, name string) core.Object {
	obj := resources.Get("ColorSpace")
	if obj == nil {
		return nil
	}
	resolved, err := r.Resolve(obj)
	if err != nil {
		return nil
	}
	spaces, ok := resolved.(core.Dict)
	if !ok {
		return nil
	}
	return spaces.Get(name)
}

// samples is the unpacked description of an image stream
type samples struct {
	width, height int
	bpc           int
	space         colorSpace
	decode        []float64
	data          []byte
}

// samplesPerPixel estimates the component count from the stream length
func (s samples) samplesPerPixel() float64 {
	if s.width <= 0 || s.height <= 0 || s.bpc <= 0 {
		return 0
	}
	return float64(len(s.data)) * 8 / float64(s.bpc) / float64(s.width*s.height)
}

// image converts the samples to a Go image: Gray for one-component and mask
// images, RGBA for everything else.
func (s samples) image() (image.Image, error) {
	switch s.bpc {
	case 1, 2, 4, 8, 16:
	default:
		return nil, undecodable("unsupported bits per component %d", s.bpc)
	}
	if s.space.family == "Indexed" && s.bpc == 16 {
		return nil, undecodable("Indexed images cannot use 16 bits per component")
	}

	comps := s.space.components
	stride := (s.width*comps*s.bpc + 7) / 8
	if need := stride * s.height; len(s.data) < need {
		return nil, undecodable("insufficient data: got %d bytes, need %d for %dx%d %s at %d bpc",
			len(s.data), need, s.width, s.height, s.space.family, s.bpc)
	}

	maxSample := float64(int(1)<<s.bpc - 1)
	rect := image.Rect(0, 0, s.width, s.height)

	var gray *image.Gray
	var rgba *image.RGBA
	if comps == 1 && s.space.family != "Indexed" {
		gray = image.NewGray(rect)
	} else {
		rgba = image.NewRGBA(rect)
	}

	vals := make([]uint8, comps)
	for y := 0; y < s.height; y++ {
		row := s.data[y*stride : (y+1)*stride]
		for x := 0; x < s.width; x++ {
			for c := 0; c < comps; c++ {
				raw := float64(sample(row, x*comps+c, s.bpc))
				vals[c] = s.component(c, raw, maxSample)
			}

			switch {
			case gray != nil:
				gray.Pix[y*gray.Stride+x] = vals[0]
			default:
				r, g, b := s.rgb(vals)
				i := y*rgba.Stride + x*4
				rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2], rgba.Pix[i+3] = r, g, b, 255
			}
		}
	}

	if gray != nil {
		return gray, nil
	}
	return rgba, nil
}

// component maps a raw sample through the Decode array. For Indexed images
// the result is a palette index; otherwise an 8-bit intensity.
func (s samples) component(c int, raw, maxSample float64) uint8 {
	if s.space.family == "Indexed" {
		idx := raw
		if len(s.decode) >= 2 {
			idx = s.decode[0] + raw*(s.decode[1]-s.decode[0])/maxSample
		}
		if idx < 0 {
			idx = 0
		}
		if idx > float64(s.space.hival) {
			idx = float64(s.space.hival)
		}
		return uint8(idx + 0.5)
	}

	// for masks this paints sample 0 black unless Decode swaps it
	dmin, dmax := 0.0, 1.0
	if len(s.decode) >= 2*c+2 {
		dmin, dmax = s.decode[2*c], s.decode[2*c+1]
	}
	v := dmin + raw*(dmax-dmin)/maxSample
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(v*255 + 0.5)
}

// rgb converts one pixel's components to RGB
func (s samples) rgb(vals []uint8) (uint8, uint8, uint8) {
	space := s.space
	if space.family == "Indexed" {
		base := space.base
		off := int(vals[0]) * base.components
		entry := space.lookup[off : off+base.components]
		switch base.components {
		case 1:
			return entry[0], entry[0], entry[0]
		case 4:
			return color.CMYKToRGB(entry[0], entry[1], entry[2], entry[3])
		default:
			return entry[0], entry[1], entry[2]
		}
	}

	switch space.components {
	case 4:
		return color.CMYKToRGB(vals[0], vals[1], vals[2], vals[3])
	default:
		return vals[0], vals[1], vals[2]
	}
}

// sample reads the i-th sample of a row packed at bpc bits, MSB first
func sample(row []byte, i, bpc int) int {
	switch bpc {
	case 8:
		return int(row[i])
	case 16:
		return int(row[2*i])<<8 | int(row[2*i+1])
	}
	bit := i * bpc
	shift := 8 - bpc - bit%8
	return int(row[bit/8]>>shift) & (1<<bpc - 1)
}

// lastFilter returns the final filter of the stream's chain, which names the
// encoding left after Decode.
func lastFilter(dict core.Dict) string {
	switch f := dict.Get("Filter").(type) {
	case core.Name:
		return string(f)
	case core.Array:
		if name, ok := f.GetName(f.Len() - 1); ok {
			return string(name)
		}
	}
	return ""
}

func numbers(arr core.Array) []float64 {
	out := make([]float64, 0, arr.Len())
	for _, obj := range arr {
		switch n := obj.(type) {
		case core.Int:
			out = append(out, float64(n))
		case core.Real:
			out = append(out, float64(n))
		default:
			return nil
		}
	}
	return out
}

func undecodable(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", domain.ErrUndecodableImage, fmt.Sprintf(format, args...))
}
