package motionheic

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestHeadroomFromMarkers(t *testing.T) {
	cases := []struct {
		name     string
		marker33 float32
		marker48 float32
		want     float32
	}{
		{name: "low headroom small gain", marker33: 0.5, marker48: 0.005, want: float32(math.Exp2(1.7))},
		{name: "low headroom large gain", marker33: 0.5, marker48: 0.5, want: float32(math.Exp2(-0.101*0.5 + 1.601))},
		{name: "high headroom small gain", marker33: 1.5, marker48: 0.005, want: float32(math.Exp2(-70.0*0.005 + 3.0))},
		{name: "high headroom large gain", marker33: 1.5, marker48: 0.5, want: float32(math.Exp2(2.1515))},
		{name: "negative stops clamp to one", marker33: 0.5, marker48: 100, want: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := headroomFromMarkers(tc.marker33, tc.marker48)
			if math.Abs(float64(got-tc.want)) > 1e-4 {
				t.Fatalf("headroom = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHeadroomFromMarkersAlwaysAtLeastOne(t *testing.T) {
	for m33 := float32(-2); m33 <= 4; m33 += 0.25 {
		for m48 := float32(-2); m48 <= 4; m48 += 0.05 {
			h := headroomFromMarkers(m33, m48)
			if math.IsNaN(float64(h)) || math.IsInf(float64(h), 0) || h < 1 {
				t.Fatalf("headroom(%v, %v) = %v, want finite >= 1", m33, m48, h)
			}
		}
	}
}

func TestAppleHeadroomFromXMP(t *testing.T) {
	exif := &fakeEXIF{tags: map[string]map[string]string{
		"a.heic": {
			"xmp:HDRGainMapVersion":  "65536",
			"xmp:HDRGainMapHeadroom": "4.0",
		},
	}}
	h, ok, err := appleHeadroom(context.Background(), exif, "a.heic")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || h != 4.0 {
		t.Fatalf("got (%v, %v), want (4.0, true)", h, ok)
	}
}

func TestAppleHeadroomNotHDR(t *testing.T) {
	exif := &fakeEXIF{tags: map[string]map[string]string{"a.heic": {}}}
	_, ok, err := appleHeadroom(context.Background(), exif, "a.heic")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("image without HDRGainMapVersion must not be HDR")
	}
}

func TestAppleHeadroomFromMakerNotes(t *testing.T) {
	exif := &fakeEXIF{tags: map[string]map[string]string{
		"a.heic": {
			"xmp:HDRGainMapVersion":  "65536",
			"MakerNotes:HDRHeadroom": "0.5",
			"MakerNotes:HDRGain":     "0.005",
		},
	}}
	h, ok, err := appleHeadroom(context.Background(), exif, "a.heic")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected HDR")
	}
	want := math.Exp2(1.7)
	if math.Abs(float64(h)-want) > 1e-4 {
		t.Fatalf("headroom = %v, want %v", h, want)
	}
}

func TestAppleHeadroomMissingMakerNotes(t *testing.T) {
	exif := &fakeEXIF{tags: map[string]map[string]string{
		"a.heic": {"xmp:HDRGainMapVersion": "65536"},
	}}
	_, _, err := appleHeadroom(context.Background(), exif, "a.heic")
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindMissingMetadata {
		t.Fatalf("err = %v, want KindMissingMetadata", err)
	}
}

func TestAppleHeadroomUnparseable(t *testing.T) {
	exif := &fakeEXIF{tags: map[string]map[string]string{
		"a.heic": {
			"xmp:HDRGainMapVersion":  "65536",
			"xmp:HDRGainMapHeadroom": "not-a-number",
		},
	}}
	_, _, err := appleHeadroom(context.Background(), exif, "a.heic")
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindParse {
		t.Fatalf("err = %v, want KindParse", err)
	}
}
