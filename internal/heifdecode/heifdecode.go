// Package heifdecode binds libheif (via github.com/strukturag/libheif-go)
// to the motionheic.HEICDecoder/HEICHandle interfaces. It decodes the
// primary image and enumerates auxiliary images by type URN.
package heifdecode

import (
	"context"
	"fmt"

	heif "github.com/strukturag/libheif-go"
)

// Decoder is the production motionheic.HEICDecoder.
type Decoder struct{}

// New returns a libheif-backed Decoder.
func New() *Decoder { return &Decoder{} }

// Open reads path with libheif and returns a Handle over its primary image.
func (d *Decoder) Open(_ context.Context, path string) (*Handle, error) {
	ctx, err := heif.NewContext()
	if err != nil {
		return nil, fmt.Errorf("heif: new context: %w", err)
	}
	if err := ctx.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("heif: read %s: %w", path, err)
	}
	primary, err := ctx.GetPrimaryImageHandle()
	if err != nil {
		return nil, fmt.Errorf("heif: primary image handle: %w", err)
	}
	return &Handle{ctx: ctx, primary: primary}, nil
}

// Handle is one opened HEIC file's primary image handle.
type Handle struct {
	ctx     *heif.Context
	primary *heif.ImageHandle
}

// Dimensions reports the primary image's pixel size without decoding it.
func (h *Handle) Dimensions() (int, int) {
	return h.primary.GetWidth(), h.primary.GetHeight()
}

// Close releases the underlying libheif context.
func (h *Handle) Close() error {
	h.ctx.Free()
	return nil
}

// ColorSpace narrows libheif's colorspace/chroma pair down to what this
// pipeline cares about.
type ColorSpace int

const (
	ColorSpaceUnknown ColorSpace = iota
	ColorSpaceYCbCr420
	ColorSpaceGrayscale
)

// Plane is one decoded 8- or 10-bit image plane straight off libheif,
// stride and all (the caller repacks it; see motionheic.packPlane).
type Plane struct {
	Width       int
	Height      int
	Stride      int
	StorageBits int
	Data        []byte
}

// Image is a decoded primary or auxiliary HEIC image.
type Image struct {
	ColorSpace ColorSpace
	Width      int
	Height     int
	Y, Cb, Cr  *Plane
}

// DecodePrimary decodes the primary image in its preferred decoding
// colorspace, avoiding an extra conversion inside libheif.
func (h *Handle) DecodePrimary(_ context.Context) (*Image, error) {
	colorspace, chroma, err := h.primary.GetPreferredDecodingColorspace()
	if err != nil {
		return nil, fmt.Errorf("heif: preferred decoding colorspace: %w", err)
	}
	img, err := h.ctx.DecodeImage(h.primary, colorspace, chroma, nil)
	if err != nil {
		return nil, fmt.Errorf("heif: decode primary: %w", err)
	}
	return imageFromHeif(img)
}

// DecodeAuxiliary decodes the auxiliary image whose type URN matches
// exactly; ok=false if no auxiliary image carries that URN (unknown
// auxiliary URNs are otherwise ignorable).
func (h *Handle) DecodeAuxiliary(_ context.Context, urn string) (*Image, bool, error) {
	ids, err := h.primary.GetListOfAuxiliaryImageIDs()
	if err != nil {
		return nil, false, fmt.Errorf("heif: list auxiliary image ids: %w", err)
	}
	for _, id := range ids {
		auxHandle, err := h.primary.GetAuxiliaryImageHandle(id)
		if err != nil {
			return nil, false, fmt.Errorf("heif: auxiliary image handle: %w", err)
		}
		auxType, err := auxHandle.GetAuxiliaryType()
		if err != nil {
			return nil, false, fmt.Errorf("heif: auxiliary type: %w", err)
		}
		if auxType != urn {
			continue
		}
		img, err := h.ctx.DecodeImage(auxHandle, heif.ColorspaceUndefined, heif.ChromaUndefined, nil)
		if err != nil {
			return nil, false, fmt.Errorf("heif: decode auxiliary: %w", err)
		}
		decoded, err := imageFromHeif(img)
		if err != nil {
			return nil, false, err
		}
		return decoded, true, nil
	}
	return nil, false, nil
}

func imageFromHeif(img *heif.Image) (*Image, error) {
	w := img.GetWidth(heif.ChannelY)
	h := img.GetHeight(heif.ChannelY)

	yPlane, yStride := img.GetPlane(heif.ChannelY)
	if yPlane == nil {
		return nil, fmt.Errorf("heif: no Y plane")
	}
	out := &Image{Width: w, Height: h, Y: &Plane{
		Width: w, Height: h, Stride: yStride, StorageBits: 8, Data: yPlane,
	}}

	cbPlane, cbStride := img.GetPlane(heif.ChannelCb)
	crPlane, crStride := img.GetPlane(heif.ChannelCr)
	if cbPlane != nil && crPlane != nil {
		cw, ch := (w+1)/2, (h+1)/2
		out.ColorSpace = ColorSpaceYCbCr420
		out.Cb = &Plane{Width: cw, Height: ch, Stride: cbStride, StorageBits: 8, Data: cbPlane}
		out.Cr = &Plane{Width: cw, Height: ch, Stride: crStride, StorageBits: 8, Data: crPlane}
	} else {
		out.ColorSpace = ColorSpaceGrayscale
	}
	return out, nil
}
