package motionheic

import (
	"bytes"
	"image"
	"image/jpeg"
)

// encodeGainMap converts Apple's perceptual gain-map (sRGB-encoded
// grayscale) into Ultra HDR's log-ratio encoding and JPEG-compresses it.
// min_content_boost=1, max_content_boost=h, map_gamma=1, offset_sdr=
// offset_hdr=0 is what makes the result semantically "Ultra HDR" rather
// than a re-encoded Apple gain map.
func encodeGainMap(gainmap *DecodedImage, headroom AppleHeadroom, quality int) (*CompressedImage, error) {
	if gainmap.Y == nil || gainmap.Y.StorageBits != 8 {
		return nil, newError(KindUnsupportedFormat, "encodeGainMap: expected 8-bit grayscale plane", nil)
	}
	plane := gainmap.Y
	if len(plane.Data) != plane.Stride*plane.Height {
		return nil, newError(KindUnsupportedFormat, "encodeGainMap: plane data length mismatch", nil)
	}

	w, h := plane.Width, plane.Height
	gray := image.NewGray(image.Rect(0, 0, w, h))

	for i := 0; i < h; i++ {
		srcRow := plane.Data[i*plane.Stride : i*plane.Stride+plane.Width]
		dstRow := gray.Pix[i*gray.Stride : i*gray.Stride+w]
		for j := 0; j < w; j++ {
			dstRow[j] = encodeApplePixel(srcRow[j], headroom)
		}
	}

	var buf bytes.Buffer
	opt := &jpeg.Options{Quality: clampQuality(quality)}
	if err := jpeg.Encode(&buf, gray, opt); err != nil {
		return nil, newError(KindEncode, "encodeGainMap", err)
	}
	return &CompressedImage{Bytes: buf.Bytes()}, nil
}

// encodeApplePixel applies the five-step sRGB-to-log-ratio transform to a
// single gain-map sample.
func encodeApplePixel(u8 byte, h AppleHeadroom) byte {
	u := float32(u8) / 255.0
	uLin := srgbInvOetf(u)
	pixelGain := 1.0 + (h-1.0)*uLin
	logRecovery := lnf(pixelGain) / lnf(h)
	recovery := clamp(logRecovery, 0, 1)
	encoded := floorf(recovery*255.0 + 0.5)
	return byte(encoded)
}
