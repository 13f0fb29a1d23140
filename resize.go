package motionheic

import (
	"bytes"
	"image/jpeg"
	"os"

	"github.com/nfnt/resize"
)

// ResizeOptions controls thumbnail generation for an already-produced Ultra
// HDR container.
type ResizeOptions struct {
	Width, Height  uint
	PrimaryQuality int
	GainmapQuality int
}

// ResizeResult holds the resized container and its component JPEGs.
type ResizeResult struct {
	Container []byte
	Primary   []byte
	Gainmap   []byte
}

// ResizeUltraHDR downscales both the base image and the gain map of an
// already-assembled Ultra HDR container to the target dimensions, keeping
// the gain map's aspect ratio relative to the base.
func ResizeUltraHDR(data []byte, opt *ResizeOptions) (*ResizeResult, error) {
	split, err := Split(data)
	if err != nil {
		return nil, newError(KindDecode, "ResizeUltraHDR: split", err)
	}

	primary, err := jpeg.Decode(bytes.NewReader(split.PrimaryJPEG))
	if err != nil {
		return nil, newError(KindDecode, "ResizeUltraHDR: decode primary", err)
	}
	gainmap, err := jpeg.Decode(bytes.NewReader(split.GainmapJPEG))
	if err != nil {
		return nil, newError(KindDecode, "ResizeUltraHDR: decode gainmap", err)
	}

	primaryBounds := primary.Bounds()
	gainmapScaleW := float64(gainmap.Bounds().Dx()) / float64(primaryBounds.Dx())
	gainmapScaleH := float64(gainmap.Bounds().Dy()) / float64(primaryBounds.Dy())
	gmW := uint(float64(opt.Width) * gainmapScaleW)
	gmH := uint(float64(opt.Height) * gainmapScaleH)

	resizedPrimary := resize.Resize(opt.Width, opt.Height, primary, resize.Lanczos3)
	resizedGainmap := resize.Resize(gmW, gmH, gainmap, resize.Lanczos3)

	primaryJPEG, err := encodeWithQuality(resizedPrimary, opt.PrimaryQuality)
	if err != nil {
		return nil, err
	}
	gainmapJPEG, err := encodeWithQuality(resizedGainmap, opt.GainmapQuality)
	if err != nil {
		return nil, err
	}

	split.PrimaryJPEG = primaryJPEG
	split.GainmapJPEG = gainmapJPEG
	container, err := split.Join()
	if err != nil {
		return nil, newError(KindMux, "ResizeUltraHDR: join", err)
	}
	return &ResizeResult{Container: container, Primary: primaryJPEG, Gainmap: gainmapJPEG}, nil
}

// ResizeUltraHDRFile is the file-path convenience wrapper used by the CLI's
// resize subcommand.
func ResizeUltraHDRFile(inPath, outPath string, opt *ResizeOptions) (*ResizeResult, error) {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return nil, newError(KindIO, "ResizeUltraHDRFile: read", err)
	}
	res, err := ResizeUltraHDR(data, opt)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(outPath, res.Container, 0o644); err != nil {
		return nil, newError(KindIO, "ResizeUltraHDRFile: write", err)
	}
	return res, nil
}
