package motionheic

import (
	"context"

	"github.com/gwy15/motionheic/internal/avprobe"
	"github.com/gwy15/motionheic/internal/exiftool"
	"github.com/gwy15/motionheic/internal/heifdecode"
)

// exifAccessor lazily wires the exiftool-path-aware production EXIFAccessor
// unless a test double was injected via WithEXIFAccessor.
func (r *ConvertRequest) exifAccessor() EXIFAccessor {
	if r.exif != nil {
		return r.exif
	}
	if r.ExiftoolPath != nil {
		return exiftool.WithPath(*r.ExiftoolPath)
	}
	return exiftool.New()
}

// heicDecoder lazily wires the libheif-backed production HEICDecoder unless
// a test double was injected via WithHEICDecoder.
func (r *ConvertRequest) heicDecoder() HEICDecoder {
	if r.heic != nil {
		return r.heic
	}
	return heicDecoderAdapter{d: heifdecode.New()}
}

// avTranscoder lazily wires the ffprobe/ffmpeg-backed production
// AVTranscoder unless a test double was injected via WithAVTranscoder.
func (r *ConvertRequest) avTranscoder() AVTranscoder {
	if r.av != nil {
		return r.av
	}
	return avprobe.New()
}

// heicDecoderAdapter/heicHandleAdapter translate internal/heifdecode's
// plain Image/Plane types into this package's DecodedImage/RawPlane so the
// cgo-bound decoder can implement HEICDecoder/HEICHandle without the
// internal package importing the root package (which would cycle).
type heicDecoderAdapter struct{ d *heifdecode.Decoder }

func (a heicDecoderAdapter) Open(ctx context.Context, path string) (HEICHandle, error) {
	h, err := a.d.Open(ctx, path)
	if err != nil {
		return nil, newError(KindDecode, "heicDecoderAdapter.Open", err)
	}
	return heicHandleAdapter{h: h}, nil
}

type heicHandleAdapter struct{ h *heifdecode.Handle }

func (a heicHandleAdapter) Dimensions() (int, int) { return a.h.Dimensions() }
func (a heicHandleAdapter) Close() error           { return a.h.Close() }

func (a heicHandleAdapter) DecodePrimary(ctx context.Context) (*DecodedImage, error) {
	img, err := a.h.DecodePrimary(ctx)
	if err != nil {
		return nil, newError(KindDecode, "heicHandleAdapter.DecodePrimary", err)
	}
	return convertHeifImage(img), nil
}

func (a heicHandleAdapter) DecodeAuxiliary(ctx context.Context, urn string) (*DecodedImage, bool, error) {
	img, ok, err := a.h.DecodeAuxiliary(ctx, urn)
	if err != nil {
		return nil, false, newError(KindDecode, "heicHandleAdapter.DecodeAuxiliary", err)
	}
	if !ok {
		return nil, false, nil
	}
	return convertHeifImage(img), true, nil
}

func convertHeifImage(img *heifdecode.Image) *DecodedImage {
	out := &DecodedImage{Width: img.Width, Height: img.Height}
	switch img.ColorSpace {
	case heifdecode.ColorSpaceYCbCr420:
		out.ColorSpace = HEICColorSpaceYCbCr420
	case heifdecode.ColorSpaceGrayscale:
		out.ColorSpace = HEICColorSpaceGrayscale
	default:
		out.ColorSpace = HEICColorSpaceUnknown
	}
	if img.Y != nil {
		out.Y = convertHeifPlane(img.Y)
	}
	if img.Cb != nil {
		out.Cb = convertHeifPlane(img.Cb)
	}
	if img.Cr != nil {
		out.Cr = convertHeifPlane(img.Cr)
	}
	return out
}

func convertHeifPlane(p *heifdecode.Plane) *RawPlane {
	return &RawPlane{
		Width:       p.Width,
		Height:      p.Height,
		Stride:      p.Stride,
		StorageBits: p.StorageBits,
		Data:        p.Data,
	}
}
