package motionheic

import (
	"context"
	"strconv"
)

// AppleHeadroom is the HDR linear headroom ratio h >= 1.
type AppleHeadroom = float32

// appleHeadroom recovers the Apple HDR headroom from EXIF/maker-note tags.
// ok=false means the image is not HDR and should be emitted as a plain SDR
// JPEG; it is not an error.
func appleHeadroom(ctx context.Context, exif EXIFAccessor, path string) (h AppleHeadroom, ok bool, err error) {
	version, found, err := exif.Get(ctx, path, "xmp:HDRGainMapVersion")
	if err != nil {
		return 0, false, newError(KindToolError, "appleHeadroom", err)
	}
	if !found {
		return 0, false, nil
	}
	_ = version

	if raw, found, err := exif.Get(ctx, path, "xmp:HDRGainMapHeadroom"); err != nil {
		return 0, false, newError(KindToolError, "appleHeadroom", err)
	} else if found {
		v, perr := strconv.ParseFloat(raw, 32)
		if perr != nil {
			return 0, false, newError(KindParse, "appleHeadroom: HDRGainMapHeadroom", perr)
		}
		return float32(v), true, nil
	}

	marker33Raw, found, err := exif.Get(ctx, path, "MakerNotes:HDRHeadroom")
	if err != nil {
		return 0, false, newError(KindToolError, "appleHeadroom", err)
	}
	if !found {
		return 0, false, newError(KindMissingMetadata, "appleHeadroom: MakerNotes:HDRHeadroom", nil)
	}
	marker33, err := strconv.ParseFloat(marker33Raw, 32)
	if err != nil {
		return 0, false, newError(KindParse, "appleHeadroom: MakerNotes:HDRHeadroom", err)
	}

	marker48Raw, found, err := exif.Get(ctx, path, "MakerNotes:HDRGain")
	if err != nil {
		return 0, false, newError(KindToolError, "appleHeadroom", err)
	}
	if !found {
		return 0, false, newError(KindMissingMetadata, "appleHeadroom: MakerNotes:HDRGain", nil)
	}
	marker48, err := strconv.ParseFloat(marker48Raw, 32)
	if err != nil {
		return 0, false, newError(KindParse, "appleHeadroom: MakerNotes:HDRGain", err)
	}

	return float32(headroomFromMarkers(float32(marker33), float32(marker48))), true, nil
}

// headroomFromMarkers implements the piecewise stops formula derived from
// Apple's maker-note conventions.
func headroomFromMarkers(marker33, marker48 float32) float32 {
	var stops float32
	if marker33 < 1.0 {
		if marker48 <= 0.01 {
			stops = -20.0*marker48 + 1.8
		} else {
			stops = -0.101*marker48 + 1.601
		}
	} else {
		if marker48 <= 0.01 {
			stops = -70.0*marker48 + 3.0
		} else {
			stops = -0.303*marker48 + 2.303
		}
	}
	if stops < 0 {
		stops = 0
	}
	return exp2f(stops)
}
