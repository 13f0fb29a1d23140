package motionheic

import (
	"bytes"
	"image"
	"image/jpeg"
)

// encodePrimaryJPEG re-encodes the decoded HEIC primary (YCbCr 4:2:0, 8-bit)
// as a JPEG. The source planes may carry per-plane strides that are
// not tightly packed, so the chroma-subsampled buffer is rebuilt from
// scratch, zero-padding odd dimensions rather than reallocating per row.
func encodePrimaryJPEG(img *DecodedImage, quality int) (*CompressedImage, error) {
	if img.ColorSpace != HEICColorSpaceYCbCr420 {
		return nil, newError(KindUnsupportedFormat, "encodePrimaryJPEG", nil)
	}
	if img.Y == nil || img.Y.StorageBits != 8 {
		return nil, newError(KindUnsupportedFormat, "encodePrimaryJPEG: Y must be 8-bit", nil)
	}
	w, h := img.Width, img.Height
	w2 := ceilDiv2(w)
	h2 := ceilDiv2(h)
	w1 := 2 * w2
	h1 := 2 * h2
	if img.Cb == nil || img.Cr == nil {
		return nil, newError(KindUnsupportedFormat, "encodePrimaryJPEG: missing chroma planes", nil)
	}
	if img.Cb.Width != w2 || img.Cb.Height != h2 || img.Cr.Width != w2 || img.Cr.Height != h2 {
		return nil, newError(KindUnsupportedFormat, "encodePrimaryJPEG: chroma plane dims must be ceil(w/2) x ceil(h/2)", nil)
	}

	yc := image.NewYCbCr(image.Rect(0, 0, w1, h1), image.YCbCrSubsampleRatio420)
	packPlane(yc.Y, yc.YStride, w1, h1, img.Y, w, h)
	packPlane(yc.Cb, yc.CStride, w2, h2, img.Cb, w2, h2)
	packPlane(yc.Cr, yc.CStride, w2, h2, img.Cr, w2, h2)

	var buf bytes.Buffer
	opt := &jpeg.Options{Quality: clampQuality(quality)}
	if err := jpeg.Encode(&buf, yc.SubImage(image.Rect(0, 0, w, h)), opt); err != nil {
		return nil, newError(KindEncode, "encodePrimaryJPEG", err)
	}
	return &CompressedImage{Bytes: buf.Bytes()}, nil
}

func ceilDiv2(v int) int {
	return (v + 1) / 2
}

// packPlane copies src.Width bytes per row from a (possibly strided) source
// plane into a tightly packed destination buffer of dstW x dstH, zero
// padding any right/bottom margin.
func packPlane(dst []byte, dstStride, dstW, dstH int, src *RawPlane, copyW, copyH int) {
	for row := 0; row < dstH; row++ {
		dstRow := dst[row*dstStride : row*dstStride+dstW]
		if row < copyH && row < src.Height {
			srcRow := src.Data[row*src.Stride:]
			n := copyW
			if n > len(srcRow) {
				n = len(srcRow)
			}
			if n > src.Width {
				n = src.Width
			}
			copy(dstRow, srcRow[:n])
			for i := n; i < dstW; i++ {
				dstRow[i] = 0
			}
			continue
		}
		for i := range dstRow {
			dstRow[i] = 0
		}
	}
}

func clampQuality(q int) int {
	if q < 0 {
		return 0
	}
	if q > 100 {
		return 100
	}
	return q
}
