package motionheic

import (
	"context"
	"os"
	"strings"
)

// appleGainmapAuxURN is the exact auxiliary-image type URN Apple HEIC
// encoders attach the gain map under. Unknown auxiliary URNs are
// ignorable.
const appleGainmapAuxURN = "urn:com:apple:photo:2020:aux:hdrgainmap"

// displayP3ProfileDescription is the required ProfileDescription prefix
// for an HDR-claiming HEIC.
const displayP3ProfileDescription = "Display P3"

// convertHEICToJPEG performs the Ultra HDR assembly: it decodes the HEIC
// primary and (if HDR) its Apple gain-map auxiliary,
// re-encodes both as JPEGs, and writes either a plain SDR JPEG or a full
// Ultra HDR container to outputPath.
func convertHEICToJPEG(ctx context.Context, req *ConvertRequest, exif EXIFAccessor, heic HEICDecoder) (err error) {
	// A non-P3 profile is only disqualifying once the image claims HDR;
	// that check happens after appleHeadroom below.
	profile, havePD, err := exif.Get(ctx, req.ImagePath, "ProfileDescription")
	if err != nil {
		return newError(KindToolError, "convertHEICToJPEG", err)
	}

	handle, err := heic.Open(ctx, req.ImagePath)
	if err != nil {
		return newError(KindDecode, "convertHEICToJPEG: open", err)
	}
	defer handle.Close()

	primary, err := recoverPanic(func() (*DecodedImage, error) {
		return handle.DecodePrimary(ctx)
	})
	if err != nil {
		return err
	}

	base, err := encodePrimaryJPEG(primary, req.ImageQuality)
	if err != nil {
		return err
	}

	headroom, isHDR, err := appleHeadroom(ctx, exif, req.ImagePath)
	if err != nil {
		return err
	}

	if !isHDR {
		if err := os.WriteFile(req.OutputPath, base.Bytes, 0o644); err != nil {
			return newError(KindIO, "convertHEICToJPEG: write SDR output", err)
		}
		return nil
	}
	base.Gamut = GamutDisplayP3

	if !havePD || !strings.HasPrefix(profile, displayP3ProfileDescription) {
		return newError(KindUnsupportedFormat, "convertHEICToJPEG: HDR claimed without Display P3 ProfileDescription", nil)
	}

	var found bool
	aux, err := recoverPanic(func() (*DecodedImage, error) {
		img, ok, derr := handle.DecodeAuxiliary(ctx, appleGainmapAuxURN)
		if derr != nil {
			return nil, newError(KindDecode, "convertHEICToJPEG: decode gainmap aux", derr)
		}
		found = ok
		return img, nil
	})
	if err != nil {
		return err
	}
	if !found {
		return newError(KindMissingMetadata, "convertHEICToJPEG: no "+appleGainmapAuxURN+" auxiliary image", nil)
	}

	gainmap, err := encodeGainMap(aux, headroom, req.GainmapQuality)
	if err != nil {
		return err
	}

	meta := &GainMapMetadata{
		Version:         jpegrVersion,
		MaxContentBoost: [3]float32{headroom, headroom, headroom},
		MinContentBoost: [3]float32{1, 1, 1},
		Gamma:           [3]float32{1, 1, 1},
		OffsetSDR:       [3]float32{0, 0, 0},
		OffsetHDR:       [3]float32{0, 0, 0},
		HDRCapacityMin:  1,
		HDRCapacityMax:  headroom,
		UseBaseCG:       true,
	}

	secondaryXMP := buildGainmapXMP(meta)
	secondaryISO, err := buildIsoPayload(meta)
	if err != nil {
		return newError(KindMux, "convertHEICToJPEG: encode gainmap ISO metadata", err)
	}
	secondaryImageSize := len(gainmap.Bytes) + appSize(secondaryXMP) + appSize(secondaryISO)
	primaryXMP := buildPrimaryXMP(meta, secondaryImageSize)

	baseExif, baseICC, err := extractExifAndIcc(base.Bytes)
	if err != nil {
		return newError(KindMux, "convertHEICToJPEG: extract exif/icc", err)
	}

	container, err := assembleUltraHDR(base, gainmap, &containerParts{
		EXIF:         baseExif,
		ICC:          baseICC,
		PrimaryXMP:   primaryXMP,
		SecondaryXMP: secondaryXMP,
		SecondaryISO: secondaryISO,
	})
	if err != nil {
		return newError(KindMux, "convertHEICToJPEG: assemble container", err)
	}

	if err := os.WriteFile(req.OutputPath, container, 0o644); err != nil {
		return newError(KindIO, "convertHEICToJPEG: write HDR output", err)
	}

	// The re-encode dropped the HEIC's EXIF block; restore it on the
	// written JPEG, clearing Orientation (the pixels are already upright).
	if err := exif.CopyMeta(ctx, req.ImagePath, req.OutputPath); err != nil {
		os.Remove(req.OutputPath)
		return newError(KindToolError, "convertHEICToJPEG: copy exif", err)
	}
	return nil
}

// recoverPanic converts a panic raised by a cgo-backed decode call into a
// KindEncoderFault error instead of letting it cross the package boundary.
func recoverPanic(fn func() (*DecodedImage, error)) (img *DecodedImage, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = newError(KindEncoderFault, "recoverPanic", errorFromRecover(r))
		}
	}()
	return fn()
}
