package motionheic

import (
	"bytes"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestEncodeApplePixelEndpoints(t *testing.T) {
	for _, h := range []float32{1.5, 2, 4, 8} {
		if got := encodeApplePixel(0, h); got != 0 {
			t.Fatalf("h=%v: encode(0) = %d, want 0", h, got)
		}
		if got := encodeApplePixel(255, h); got != 255 {
			t.Fatalf("h=%v: encode(255) = %d, want 255", h, got)
		}
	}
}

func TestEncodeApplePixelMonotonic(t *testing.T) {
	const h = 4.0
	prev := encodeApplePixel(0, h)
	for u := 1; u <= 255; u++ {
		cur := encodeApplePixel(byte(u), h)
		if cur < prev {
			t.Fatalf("encode(%d) = %d < encode(%d) = %d", u, cur, u-1, prev)
		}
		prev = cur
	}
}

func TestSrgbInvOetfProperties(t *testing.T) {
	prev := srgbInvOetf(0)
	if prev != 0 {
		t.Fatalf("reverseSrgb(0) = %v, want 0", prev)
	}
	for u := 1; u <= 255; u++ {
		v := srgbInvOetf(float32(u) / 255.0)
		if v < 0 || v > 1 {
			t.Fatalf("reverseSrgb(%d/255) = %v out of [0,1]", u, v)
		}
		if v <= prev {
			t.Fatalf("reverseSrgb not strictly increasing at %d: %v <= %v", u, v, prev)
		}
		prev = v
	}
	if last := srgbInvOetf(1); last != 1 {
		t.Fatalf("reverseSrgb(1) = %v, want 1", last)
	}
}

func TestEncodeGainMapProducesGrayscaleJPEG(t *testing.T) {
	img, err := encodeGainMap(testGray(6, 4), 4.0, 85)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(img.Bytes))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 6 || cfg.Height != 4 {
		t.Fatalf("gainmap dims = %dx%d, want 6x4", cfg.Width, cfg.Height)
	}
	if cfg.ColorModel != color.GrayModel {
		t.Fatal("gain map must be a single-component grayscale JPEG")
	}
}

func TestEncodeGainMapOnePixel(t *testing.T) {
	img, err := encodeGainMap(testGray(1, 1), 2.0, 85)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(img.Bytes))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 1 || cfg.Height != 1 {
		t.Fatalf("gainmap dims = %dx%d, want 1x1", cfg.Width, cfg.Height)
	}
}

func TestEncodeGainMapRejectsBadPlane(t *testing.T) {
	bad := testGray(4, 4)
	bad.Y.StorageBits = 10
	if _, err := encodeGainMap(bad, 4.0, 85); err == nil {
		t.Fatal("10-bit plane must be rejected")
	}

	short := testGray(4, 4)
	short.Y.Data = short.Y.Data[:8]
	if _, err := encodeGainMap(short, 4.0, 85); err == nil {
		t.Fatal("length-mismatched plane must be rejected")
	}
}
