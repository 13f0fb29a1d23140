package motionheic

import (
	"context"
	"errors"
	"os"
)

// fakeEXIF is an in-memory EXIFAccessor: tags are keyed by path then tag
// name, WriteMotionTags emulates exiftool's in-place rewrite by stamping
// the MicroVideo tag onto the path's tag map.
type fakeEXIF struct {
	tags        map[string]map[string]string
	motionSizes map[string]int64
	copies      [][2]string
	getErr      error
}

func (f *fakeEXIF) Get(_ context.Context, path, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	v, ok := f.tags[path][key]
	return v, ok, nil
}

func (f *fakeEXIF) CopyMeta(_ context.Context, src, dst string) error {
	f.copies = append(f.copies, [2]string{src, dst})
	return nil
}

func (f *fakeEXIF) WriteMotionTags(_ context.Context, path string, videoSize int64) error {
	if f.motionSizes == nil {
		f.motionSizes = map[string]int64{}
	}
	f.motionSizes[path] = videoSize
	if f.tags == nil {
		f.tags = map[string]map[string]string{}
	}
	if f.tags[path] == nil {
		f.tags[path] = map[string]string{}
	}
	f.tags[path]["XMP-GCamera:MicroVideo"] = "1"
	return nil
}

// fakeHEIC hands out pre-built decoded images without touching libheif.
type fakeHEIC struct {
	primary *DecodedImage
	gainmap *DecodedImage // nil means no matching auxiliary image
}

func (f *fakeHEIC) Open(context.Context, string) (HEICHandle, error) {
	return &fakeHEICHandle{f: f}, nil
}

type fakeHEICHandle struct{ f *fakeHEIC }

func (h *fakeHEICHandle) Dimensions() (int, int) {
	return h.f.primary.Width, h.f.primary.Height
}

func (h *fakeHEICHandle) DecodePrimary(context.Context) (*DecodedImage, error) {
	return h.f.primary, nil
}

func (h *fakeHEICHandle) DecodeAuxiliary(_ context.Context, urn string) (*DecodedImage, bool, error) {
	if h.f.gainmap == nil || urn != appleGainmapAuxURN {
		return nil, false, nil
	}
	return h.f.gainmap, true, nil
}

func (h *fakeHEICHandle) Close() error { return nil }

// fakeAV reports a fixed audio codec and, when asked to transcode, writes
// transcoded bytes to the requested output path.
type fakeAV struct {
	codec      string
	hasAudio   bool
	probeErr   error
	transcoded []byte
	outputs    []string
}

func (f *fakeAV) ProbeAudioCodec(context.Context, string) (string, bool, error) {
	if f.probeErr != nil {
		return "", false, f.probeErr
	}
	return f.codec, f.hasAudio, nil
}

func (f *fakeAV) TranscodeAudioToAAC(_ context.Context, _, output string, _ int) error {
	f.outputs = append(f.outputs, output)
	if f.transcoded == nil {
		return errors.New("no transcoded payload configured")
	}
	return os.WriteFile(output, f.transcoded, 0o644)
}

// testYCbCr420 builds a synthetic decoded primary with optionally padded
// strides to exercise the repacking path.
func testYCbCr420(w, h, pad int) *DecodedImage {
	w2 := (w + 1) / 2
	h2 := (h + 1) / 2
	plane := func(pw, ph int, seed byte) *RawPlane {
		stride := pw + pad
		data := make([]byte, stride*ph)
		for y := 0; y < ph; y++ {
			for x := 0; x < pw; x++ {
				data[y*stride+x] = seed + byte((x+y)%32)
			}
		}
		return &RawPlane{Width: pw, Height: ph, Stride: stride, StorageBits: 8, Data: data}
	}
	return &DecodedImage{
		ColorSpace: HEICColorSpaceYCbCr420,
		Width:      w,
		Height:     h,
		Y:          plane(w, h, 64),
		Cb:         plane(w2, h2, 120),
		Cr:         plane(w2, h2, 130),
	}
}

// testGray builds a synthetic gain-map plane with a left-to-right ramp.
func testGray(w, h int) *DecodedImage {
	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if w > 1 {
				data[y*w+x] = byte(x * 255 / (w - 1))
			} else {
				data[y*w+x] = 255
			}
		}
	}
	return &DecodedImage{
		ColorSpace: HEICColorSpaceGrayscale,
		Width:      w,
		Height:     h,
		Y:          &RawPlane{Width: w, Height: h, Stride: w, StorageBits: 8, Data: data},
	}
}
