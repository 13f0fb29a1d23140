package motionheic

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
)

// Decode parses a JPEG/R byte stream into an HDR image and SDR base image.
// It reconstructs a display-referred HDR rendering from an already-produced
// Ultra HDR container; it never authors a gain map from scratch.
func Decode(data []byte, opts *DecodeOptions) (*HDRImage, image.Image, *GainMapMetadata, error) {
	if len(data) < 4 {
		return nil, nil, nil, errors.New("input too small")
	}
	ranges, err := scanJPEGs(data)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(ranges) < 2 {
		return nil, nil, nil, errors.New("gainmap image not found")
	}
	primary := data[ranges[0][0]:ranges[0][1]]
	gainmap := data[ranges[1][0]:ranges[1][1]]

	baseImg, err := jpeg.Decode(bytes.NewReader(primary))
	if err != nil {
		return nil, nil, nil, err
	}
	gainmapImg, err := jpeg.Decode(bytes.NewReader(gainmap))
	if err != nil {
		return nil, nil, nil, err
	}

	meta, err := gainmapMetadataFromJPEG(gainmap)
	if err != nil {
		return nil, nil, nil, err
	}

	hdr := applyGainMap(baseImg, gainmapImg, meta, opts)
	hdr.Transfer = TransferLinear

	// The primary range starts at the container header, so its APP
	// segments carry the base image's ICC profile.
	if _, icc, err := extractExifAndIcc(primary); err == nil {
		hdr.Gamut, _ = detectGamutFromICC(collectICCProfile(icc))
	}
	if opts != nil && opts.TargetGamut != GamutUnspecified {
		convertGamutInPlace(hdr, opts.TargetGamut)
	}
	return hdr, baseImg, meta, nil
}

// gainmapMetadataFromJPEG reads gain-map parameters off the embedded
// gain-map image, preferring the ISO 21496-1 block over Adobe hdrgm XMP.
func gainmapMetadataFromJPEG(gainmap []byte) (*GainMapMetadata, error) {
	app1, app2, err := extractAppSegments(gainmap)
	if err != nil {
		return nil, err
	}
	if iso := findISO(app2); iso != nil {
		return decodeGainmapMetadataISO(iso[len(isoNamespace)+1:])
	}
	if xmp := findXMP(app1); xmp != nil {
		return parseXMP(xmp)
	}
	return nil, errors.New("no gainmap metadata found")
}

// convertGamutInPlace rewrites every pixel of h into the target gamut.
func convertGamutInPlace(h *HDRImage, to ColorGamut) {
	if h.Gamut == GamutUnspecified || h.Gamut == to {
		return
	}
	for i := 0; i+2 < len(h.Pix); i += 3 {
		v := convertLinearGamut(rgb{r: h.Pix[i], g: h.Pix[i+1], b: h.Pix[i+2]}, h.Gamut, to)
		h.Pix[i], h.Pix[i+1], h.Pix[i+2] = v.r, v.g, v.b
	}
	h.Gamut = to
}

func sampleSDR(img image.Image, x, y int) rgb {
	b := img.Bounds()
	if x < b.Min.X {
		x = b.Min.X
	}
	if y < b.Min.Y {
		y = b.Min.Y
	}
	if x >= b.Max.X {
		x = b.Max.X - 1
	}
	if y >= b.Max.Y {
		y = b.Max.Y - 1
	}
	r, g, b2, _ := img.At(x, y).RGBA()
	// RGBA returns 16-bit values in [0, 65535]
	return rgb{
		r: srgbInvOetf(float32(r) / 65535.0),
		g: srgbInvOetf(float32(g) / 65535.0),
		b: srgbInvOetf(float32(b2) / 65535.0),
	}
}

func applyGainMap(base image.Image, gainmap image.Image, meta *GainMapMetadata, opts *DecodeOptions) *HDRImage {
	b := base.Bounds()
	w, h := b.Dx(), b.Dy()
	out := &HDRImage{Width: w, Height: h, Stride: w * 3, Pix: make([]float32, w*h*3)}

	gmBounds := gainmap.Bounds()
	gmW, gmH := gmBounds.Dx(), gmBounds.Dy()
	mapScaleX := float32(w) / float32(gmW)
	mapScaleY := float32(h) / float32(gmH)

	maxBoost := meta.HDRCapacityMax
	if opts != nil && opts.MaxDisplayBoost > 0 {
		maxBoost = opts.MaxDisplayBoost
	}
	weight := float32(1.0)
	if maxBoost < meta.HDRCapacityMax {
		weight = (log2f(maxBoost) - log2f(meta.HDRCapacityMin)) / (log2f(meta.HDRCapacityMax) - log2f(meta.HDRCapacityMin))
		weight = clamp(weight, 0, 1)
	}

	isGray := isGrayImage(gainmap)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			baseRGB := sampleSDR(base, b.Min.X+x, b.Min.Y+y)

			gx := clampInt(int(float32(x)/mapScaleX+0.5), 0, gmW-1)
			gy := clampInt(int(float32(y)/mapScaleY+0.5), 0, gmH-1)
			var hdr rgb
			if isGray {
				gain := float32(grayAt(gainmap, gx, gy)) / 255.0
				hdr = applyGainSingle(baseRGB, gain, meta, weight)
			} else {
				gr, gg, gb := rgbAt(gainmap, gx, gy)
				gain := rgb{r: float32(gr) / 255.0, g: float32(gg) / 255.0, b: float32(gb) / 255.0}
				hdr = applyGainRGB(baseRGB, gain, meta, weight)
			}
			idx := y*out.Stride + x*3
			out.Pix[idx] = hdr.r
			out.Pix[idx+1] = hdr.g
			out.Pix[idx+2] = hdr.b
		}
	}
	return out
}

func isGrayImage(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	default:
		return false
	}
}

func grayAt(img image.Image, x, y int) uint8 {
	c := color.GrayModel.Convert(img.At(img.Bounds().Min.X+x, img.Bounds().Min.Y+y)).(color.Gray)
	return c.Y
}

func rgbAt(img image.Image, x, y int) (uint8, uint8, uint8) {
	r, g, b, _ := img.At(img.Bounds().Min.X+x, img.Bounds().Min.Y+y).RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

func max3(a, b, c float32) float32 {
	if a >= b && a >= c {
		return a
	}
	if b >= a && b >= c {
		return b
	}
	return c
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
