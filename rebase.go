package motionheic

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
)

// RebaseOptions controls gainmap rebase behavior.
type RebaseOptions struct {
	BaseQuality    int
	GainmapQuality int
}

// RebaseResult contains the rebased container and component JPEGs.
type RebaseResult struct {
	Container []byte
	Primary   []byte
	Gainmap   []byte
}

// RebaseUltraHDR replaces the primary SDR image while adjusting the gainmap
// so the HDR reconstruction stays as close as possible to the original:
// for each pixel the old base and gain map are used to rebuild the HDR
// value, then the gain the new base needs to reach that value is re-derived.
func RebaseUltraHDR(data []byte, newSDR image.Image, opt *RebaseOptions) (*RebaseResult, error) {
	if newSDR == nil {
		return nil, errors.New("new SDR image is nil")
	}
	split, err := Split(data)
	if err != nil {
		return nil, err
	}
	oldSDR, _, err := image.Decode(bytes.NewReader(split.PrimaryJPEG))
	if err != nil {
		return nil, err
	}
	gainmapImg, _, err := image.Decode(bytes.NewReader(split.GainmapJPEG))
	if err != nil {
		return nil, err
	}
	if oldSDR.Bounds().Dx() != newSDR.Bounds().Dx() || oldSDR.Bounds().Dy() != newSDR.Bounds().Dy() {
		return nil, errors.New("new SDR dimensions must match original")
	}

	gainmapOut, err := rebaseGainmap(oldSDR, newSDR, gainmapImg, split.Meta)
	if err != nil {
		return nil, err
	}

	gainQ, baseQ := defaultGainMapQuality, defaultBaseQuality
	if opt != nil {
		if opt.GainmapQuality > 0 {
			gainQ = opt.GainmapQuality
		}
		if opt.BaseQuality > 0 {
			baseQ = opt.BaseQuality
		}
	}
	gainmapJPEG, err := encodeWithQuality(gainmapOut, gainQ)
	if err != nil {
		return nil, err
	}
	primaryJPEG, err := encodeWithQuality(newSDR, baseQ)
	if err != nil {
		return nil, err
	}

	exif, icc, err := extractExifAndIcc(primaryJPEG)
	if err != nil {
		return nil, err
	}
	if len(exif) == 0 && len(icc) == 0 {
		// The fresh encode carries no metadata; inherit the original's.
		if exif, icc, err = extractExifAndIcc(split.PrimaryJPEG); err != nil {
			return nil, err
		}
	}
	container, err := assembleUltraHDR(
		&CompressedImage{Bytes: primaryJPEG},
		&CompressedImage{Bytes: gainmapJPEG},
		&containerParts{
			EXIF:         exif,
			ICC:          icc,
			SecondaryXMP: split.Segs.SecondaryXMP,
			SecondaryISO: split.Segs.SecondaryISO,
		})
	if err != nil {
		return nil, err
	}
	return &RebaseResult{
		Container: container,
		Primary:   primaryJPEG,
		Gainmap:   gainmapJPEG,
	}, nil
}

// RebaseUltraHDRFile reads an UltraHDR JPEG, rebases it on newSDRPath, and
// writes the output; primaryOut/gainmapOut optionally dump the components.
func RebaseUltraHDRFile(inPath, newSDRPath, outPath string, opt *RebaseOptions, primaryOut, gainmapOut string) error {
	data, err := os.ReadFile(filepath.Clean(inPath))
	if err != nil {
		return err
	}
	newSDRFile, err := os.Open(filepath.Clean(newSDRPath))
	if err != nil {
		return err
	}
	defer newSDRFile.Close()
	newSDR, _, err := image.Decode(newSDRFile)
	if err != nil {
		return err
	}
	res, err := RebaseUltraHDR(data, newSDR, opt)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Clean(outPath), res.Container, 0o644); err != nil {
		return err
	}
	if primaryOut != "" {
		if err := os.WriteFile(filepath.Clean(primaryOut), res.Primary, 0o644); err != nil {
			return err
		}
	}
	if gainmapOut != "" {
		if err := os.WriteFile(filepath.Clean(gainmapOut), res.Gainmap, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// regainChannel rebuilds the HDR value channel ch reached through the old
// base with decoded gain g, then returns the encoded gain that takes the
// new base to the same value.
func regainChannel(oldV, newV, g float32, ch int, meta *GainMapMetadata) uint8 {
	logBoost := log2f(meta.MinContentBoost[ch])*(1.0-g) + log2f(meta.MaxContentBoost[ch])*g
	hdr := (oldV+meta.OffsetSDR[ch])*exp2f(logBoost) - meta.OffsetHDR[ch]
	denom := newV + meta.OffsetSDR[ch]
	if denom <= 0 {
		denom = 1e-6
	}
	return gainFromFactor((hdr+meta.OffsetHDR[ch])/denom, meta.MinContentBoost[ch], meta.MaxContentBoost[ch], meta.Gamma[ch])
}

// rebaseGainmap produces a full-resolution gain map for newSDR preserving
// the old reconstruction. Single-channel maps stay single-channel.
func rebaseGainmap(oldSDR, newSDR, gainmap image.Image, meta *GainMapMetadata) (image.Image, error) {
	if meta == nil {
		return nil, errors.New("gainmap metadata missing")
	}
	b := newSDR.Bounds()
	w, h := b.Dx(), b.Dy()
	gmBounds := gainmap.Bounds()
	gmW, gmH := gmBounds.Dx(), gmBounds.Dy()
	mapScaleX := float32(w) / float32(gmW)
	mapScaleY := float32(h) / float32(gmH)
	sampleAt := func(x, y int) (int, int) {
		return clampInt(int(float32(x)/mapScaleX+0.5), 0, gmW-1),
			clampInt(int(float32(y)/mapScaleY+0.5), 0, gmH-1)
	}

	if isGrayImage(gainmap) {
		out := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				oldRGB := sampleSDR(oldSDR, b.Min.X+x, b.Min.Y+y)
				newRGB := sampleSDR(newSDR, b.Min.X+x, b.Min.Y+y)
				gx, gy := sampleAt(x, y)
				g := gainmapDecodeValue(grayAt(gainmap, gx, gy), meta.Gamma[0])
				v := regainChannel(max3(oldRGB.r, oldRGB.g, oldRGB.b), max3(newRGB.r, newRGB.g, newRGB.b), g, 0, meta)
				out.SetGray(x, y, color.Gray{Y: v})
			}
		}
		return out, nil
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			oldRGB := sampleSDR(oldSDR, b.Min.X+x, b.Min.Y+y)
			newRGB := sampleSDR(newSDR, b.Min.X+x, b.Min.Y+y)
			gx, gy := sampleAt(x, y)
			gr, gg, gb := rgbAt(gainmap, gx, gy)
			out.SetRGBA(x, y, color.RGBA{
				R: regainChannel(oldRGB.r, newRGB.r, gainmapDecodeValue(gr, meta.Gamma[0]), 0, meta),
				G: regainChannel(oldRGB.g, newRGB.g, gainmapDecodeValue(gg, meta.Gamma[1]), 1, meta),
				B: regainChannel(oldRGB.b, newRGB.b, gainmapDecodeValue(gb, meta.Gamma[2]), 2, meta),
				A: 0xFF,
			})
		}
	}
	return out, nil
}

// gainFromFactor encodes a linear gain factor back into a gain-map sample.
func gainFromFactor(gainFactor, minBoost, maxBoost, gamma float32) uint8 {
	if gainFactor < minBoost {
		gainFactor = minBoost
	}
	if gainFactor > maxBoost {
		gainFactor = maxBoost
	}
	g := float32(0)
	logMin, logMax := log2f(minBoost), log2f(maxBoost)
	if logMax != logMin {
		g = (log2f(gainFactor) - logMin) / (logMax - logMin)
	}
	g = clamp(g, 0, 1)
	if gamma != 1 {
		g = float32(math.Pow(float64(g), float64(gamma)))
	}
	return uint8(clamp(g*255.0, 0, 255) + 0.5)
}

func encodeWithQuality(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gainmapDecodeValue undoes the map gamma on a stored gain-map sample.
func gainmapDecodeValue(v uint8, gamma float32) float32 {
	g := float32(v) / 255.0
	if gamma != 1 {
		g = float32(math.Pow(float64(g), float64(1.0/gamma)))
	}
	return clamp(g, 0, 1)
}
