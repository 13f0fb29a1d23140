package motionheic

import (
	"bytes"
	"image/jpeg"
	"testing"
)

func TestEncodePrimaryJPEGDimensions(t *testing.T) {
	cases := []struct {
		name string
		w, h int
		pad  int
	}{
		{name: "even", w: 8, h: 8},
		{name: "odd both", w: 7, h: 5},
		{name: "one pixel", w: 1, h: 1},
		{name: "padded strides", w: 6, h: 4, pad: 16},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			img, err := encodePrimaryJPEG(testYCbCr420(tc.w, tc.h, tc.pad), 90)
			if err != nil {
				t.Fatal(err)
			}
			cfg, err := jpeg.DecodeConfig(bytes.NewReader(img.Bytes))
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Width != tc.w || cfg.Height != tc.h {
				t.Fatalf("encoded dims = %dx%d, want %dx%d", cfg.Width, cfg.Height, tc.w, tc.h)
			}
		})
	}
}

func TestEncodePrimaryJPEGRejectsWrongFormat(t *testing.T) {
	gray := testGray(4, 4)
	if _, err := encodePrimaryJPEG(gray, 90); err == nil {
		t.Fatal("grayscale primary must be rejected")
	}

	tenBit := testYCbCr420(4, 4, 0)
	tenBit.Y.StorageBits = 10
	if _, err := encodePrimaryJPEG(tenBit, 90); err == nil {
		t.Fatal("10-bit Y plane must be rejected")
	}

	badChroma := testYCbCr420(4, 4, 0)
	badChroma.Cb.Width = 3
	if _, err := encodePrimaryJPEG(badChroma, 90); err == nil {
		t.Fatal("mismatched chroma dims must be rejected")
	}
}

func TestClampQuality(t *testing.T) {
	for _, tc := range []struct{ in, want int }{
		{-5, 0}, {0, 0}, {50, 50}, {100, 100}, {150, 100},
	} {
		if got := clampQuality(tc.in); got != tc.want {
			t.Fatalf("clampQuality(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestPackPlanePadsMargins(t *testing.T) {
	src := &RawPlane{Width: 3, Height: 2, Stride: 5, StorageBits: 8, Data: []byte{
		1, 2, 3, 0xAA, 0xAA,
		4, 5, 6, 0xAA, 0xAA,
	}}
	dst := make([]byte, 4*4)
	for i := range dst {
		dst[i] = 0xFF
	}
	packPlane(dst, 4, 4, 4, src, 3, 2)
	want := []byte{
		1, 2, 3, 0,
		4, 5, 6, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
	}
	if !bytes.Equal(dst, want) {
		t.Fatalf("packed plane = %v, want %v", dst, want)
	}
}
