package motionheic

import (
	"bytes"
	"math"
	"testing"
)

func testMetadata(h float32) *GainMapMetadata {
	return &GainMapMetadata{
		Version:         jpegrVersion,
		MaxContentBoost: [3]float32{h, h, h},
		MinContentBoost: [3]float32{1, 1, 1},
		Gamma:           [3]float32{1, 1, 1},
		HDRCapacityMin:  1,
		HDRCapacityMax:  h,
		UseBaseCG:       true,
	}
}

func testContainer(t *testing.T, h float32) []byte {
	t.Helper()
	base, err := encodePrimaryJPEG(testYCbCr420(16, 12, 0), 90)
	if err != nil {
		t.Fatal(err)
	}
	base.Gamut = GamutDisplayP3
	gainmap, err := encodeGainMap(testGray(8, 6), h, 85)
	if err != nil {
		t.Fatal(err)
	}

	meta := testMetadata(h)
	secondaryXMP := buildGainmapXMP(meta)
	secondaryISO, err := buildIsoPayload(meta)
	if err != nil {
		t.Fatal(err)
	}
	secondarySize := len(gainmap.Bytes) + appSize(secondaryXMP) + appSize(secondaryISO)

	container, err := assembleUltraHDR(base, gainmap, &containerParts{
		PrimaryXMP:   buildPrimaryXMP(meta, secondarySize),
		SecondaryXMP: secondaryXMP,
		SecondaryISO: secondaryISO,
	})
	if err != nil {
		t.Fatal(err)
	}
	return container
}

func TestAssembleSplitRoundTrip(t *testing.T) {
	container := testContainer(t, 4)

	ranges, err := scanJPEGs(container)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranges) != 2 {
		t.Fatalf("found %d embedded JPEGs, want 2", len(ranges))
	}
	if ranges[0][0] != 0 {
		t.Fatalf("primary range starts at %d, want 0", ranges[0][0])
	}
	if ranges[1][1] != len(container) {
		t.Fatalf("secondary range ends at %d, want %d", ranges[1][1], len(container))
	}

	split, err := Split(container)
	if err != nil {
		t.Fatal(err)
	}
	if split.Meta == nil {
		t.Fatal("split metadata missing")
	}
	if got := split.Meta.HDRCapacityMax; math.Abs(float64(got-4)) > 1e-3 {
		t.Fatalf("HDRCapacityMax = %v, want 4", got)
	}
	if got := split.Meta.MaxContentBoost[0]; math.Abs(float64(got-4)) > 1e-3 {
		t.Fatalf("MaxContentBoost = %v, want 4", got)
	}
	if !split.Meta.UseBaseCG {
		t.Fatal("UseBaseCG lost in round trip")
	}

	rejoined, err := split.Join()
	if err != nil {
		t.Fatal(err)
	}
	resplit, err := Split(rejoined)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(resplit.Meta.HDRCapacityMax-4)) > 1e-3 {
		t.Fatal("metadata lost on rejoin")
	}
}

func TestIsUltraHDR(t *testing.T) {
	container := testContainer(t, 4)
	ok, err := IsUltraHDR(bytes.NewReader(container))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("assembled container not detected as Ultra HDR")
	}

	plain, err := encodePrimaryJPEG(testYCbCr420(16, 12, 0), 90)
	if err != nil {
		t.Fatal(err)
	}
	ok, err = IsUltraHDR(bytes.NewReader(plain.Bytes))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("plain JPEG misdetected as Ultra HDR")
	}
}

func TestMpfRoundTrip(t *testing.T) {
	payload := generateMpf(1000, 0, 500, 960)
	if len(payload) != calculateMpfSize() {
		t.Fatalf("mpf payload size = %d, want %d", len(payload), calculateMpfSize())
	}
	info, err := parseMPF(payload)
	if err != nil {
		t.Fatal(err)
	}
	if info.primarySize != 1000 || info.secondarySize != 500 || info.secondaryOffset != 960 {
		t.Fatalf("parsed %+v", info)
	}
}

func TestIsoMetadataRoundTrip(t *testing.T) {
	meta := testMetadata(4)
	encoded, err := encodeGainmapMetadataISO(meta)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := decodeGainmapMetadataISO(encoded)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if math.Abs(float64(decoded.MaxContentBoost[i]-4)) > 1e-4 {
			t.Fatalf("MaxContentBoost[%d] = %v, want 4", i, decoded.MaxContentBoost[i])
		}
		if math.Abs(float64(decoded.MinContentBoost[i]-1)) > 1e-4 {
			t.Fatalf("MinContentBoost[%d] = %v, want 1", i, decoded.MinContentBoost[i])
		}
		if math.Abs(float64(decoded.Gamma[i]-1)) > 1e-4 {
			t.Fatalf("Gamma[%d] = %v, want 1", i, decoded.Gamma[i])
		}
	}
	if math.Abs(float64(decoded.HDRCapacityMin-1)) > 1e-4 || math.Abs(float64(decoded.HDRCapacityMax-4)) > 1e-4 {
		t.Fatalf("capacity = [%v, %v], want [1, 4]", decoded.HDRCapacityMin, decoded.HDRCapacityMax)
	}
	if !decoded.UseBaseCG {
		t.Fatal("UseBaseCG lost")
	}
}

func TestXMPRoundTrip(t *testing.T) {
	meta := testMetadata(4)
	payload := buildGainmapXMP(meta)
	parsed, err := parseXMP(payload)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(float64(parsed.MaxContentBoost[0]-4)) > 1e-3 {
		t.Fatalf("MaxContentBoost = %v, want 4", parsed.MaxContentBoost[0])
	}
	if math.Abs(float64(parsed.HDRCapacityMax-4)) > 1e-3 {
		t.Fatalf("HDRCapacityMax = %v, want 4", parsed.HDRCapacityMax)
	}
	if math.Abs(float64(parsed.MinContentBoost[0]-1)) > 1e-3 {
		t.Fatalf("MinContentBoost = %v, want 1", parsed.MinContentBoost[0])
	}
}

func TestUpdatePrimaryXmpLength(t *testing.T) {
	meta := testMetadata(2)
	payload := buildPrimaryXMP(meta, 1111)
	updated, err := updatePrimaryXmpLength(payload, 2222)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(updated, []byte(`Item:Length="2222"`)) {
		t.Fatal("Item:Length not updated")
	}
	if bytes.Contains(updated, []byte(`Item:Length="1111"`)) {
		t.Fatal("old Item:Length still present")
	}
}

func TestDecodeReconstructsHDR(t *testing.T) {
	container := testContainer(t, 4)
	hdr, sdr, meta, err := Decode(container, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sdr == nil || meta == nil {
		t.Fatal("missing decode outputs")
	}
	if hdr.Width != 16 || hdr.Height != 12 {
		t.Fatalf("hdr dims = %dx%d, want 16x12", hdr.Width, hdr.Height)
	}
	if hdr.Transfer != TransferLinear {
		t.Fatal("decoded HDR image must be linear")
	}
	maxPix := float32(0)
	for _, v := range hdr.Pix {
		if v > maxPix {
			maxPix = v
		}
	}
	baseMax := float32(0)
	b := sdr.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := sampleSDR(sdr, x, y)
			if m := max3(v.r, v.g, v.b); m > baseMax {
				baseMax = m
			}
		}
	}
	// The ramp gain map boosts the bright columns well past the base image.
	if maxPix < baseMax*1.5 {
		t.Fatalf("max linear value = %v vs base %v, expected ≥1.5x boost", maxPix, baseMax)
	}
}

func TestFloatToFractionExactDyadics(t *testing.T) {
	var n int32
	var d uint32
	if err := floatToSignedFraction(2.0, &n, &d); err != nil {
		t.Fatal(err)
	}
	if float64(n)/float64(d) != 2.0 {
		t.Fatalf("2.0 -> %d/%d", n, d)
	}
	if err := floatToSignedFraction(-0.5, &n, &d); err != nil {
		t.Fatal(err)
	}
	if float64(n)/float64(d) != -0.5 {
		t.Fatalf("-0.5 -> %d/%d", n, d)
	}
}
