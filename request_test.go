package motionheic

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func baseRequest(t *testing.T) (*ConvertRequest, string) {
	t.Helper()
	dir := t.TempDir()
	image := filepath.Join(dir, "live.heic")
	video := filepath.Join(dir, "live.mov")
	writeTestFile(t, image, []byte("heic-placeholder"))
	writeTestFile(t, video, []byte("mov-bytes-0123456789"))
	return &ConvertRequest{
		ImagePath:      image,
		VideoPath:      video,
		OutputPath:     filepath.Join(dir, "out.jpg"),
		ImageQuality:   90,
		GainmapQuality: 85,
	}, dir
}

func TestValidate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		req, _ := baseRequest(t)
		assert.NoError(t, Validate(req))
	})

	t.Run("missing image", func(t *testing.T) {
		req, _ := baseRequest(t)
		req.ImagePath = req.ImagePath + ".gone"
		assert.ErrorIs(t, Validate(req), ErrMissingInput)
	})

	t.Run("missing video", func(t *testing.T) {
		req, _ := baseRequest(t)
		req.VideoPath = req.VideoPath + ".gone"
		assert.ErrorIs(t, Validate(req), ErrMissingInput)
	})

	t.Run("bad output extension", func(t *testing.T) {
		req, dir := baseRequest(t)
		req.OutputPath = filepath.Join(dir, "photo.tiff")
		assert.ErrorIs(t, Validate(req), ErrBadOutputExt)
	})

	t.Run("uppercase extension accepted", func(t *testing.T) {
		req, dir := baseRequest(t)
		req.OutputPath = filepath.Join(dir, "OUT.JPEG")
		assert.NoError(t, Validate(req))
	})

	t.Run("output is directory", func(t *testing.T) {
		req, dir := baseRequest(t)
		sub := filepath.Join(dir, "sub.jpg")
		require.NoError(t, os.Mkdir(sub, 0o755))
		req.OutputPath = sub
		assert.ErrorIs(t, Validate(req), ErrOutputIsDirectory)
	})

	t.Run("output parent missing", func(t *testing.T) {
		req, dir := baseRequest(t)
		req.OutputPath = filepath.Join(dir, "nope", "out.jpg")
		assert.ErrorIs(t, Validate(req), ErrOutputParentGone)
	})

	t.Run("output exists", func(t *testing.T) {
		req, _ := baseRequest(t)
		writeTestFile(t, req.OutputPath, []byte("old"))
		assert.ErrorIs(t, Validate(req), ErrOutputExists)
	})

	t.Run("output exists with overwrite", func(t *testing.T) {
		req, _ := baseRequest(t)
		writeTestFile(t, req.OutputPath, []byte("old"))
		req.OverwriteExisting = true
		assert.NoError(t, Validate(req))
	})

	t.Run("in-place conversion allowed without overwrite", func(t *testing.T) {
		req, dir := baseRequest(t)
		inPlace := filepath.Join(dir, "photo.jpg")
		writeTestFile(t, inPlace, []byte("jpeg"))
		req.ImagePath = inPlace
		req.OutputPath = inPlace
		assert.NoError(t, Validate(req))
	})
}

func TestIOSameFile(t *testing.T) {
	req := &ConvertRequest{ImagePath: "/a/Photo.JPG", OutputPath: "/a/photo.jpg"}
	assert.True(t, req.IOSameFile())
	req.OutputPath = "/a/other.jpg"
	assert.False(t, req.IOSameFile())
}

func TestCleanupGuard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.jpg")

	writeTestFile(t, path, []byte("data"))
	g := newCleanupGuard(path)
	g.Run()
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "armed guard must remove the file")

	writeTestFile(t, path, []byte("data"))
	g = newCleanupGuard(path)
	g.Cancel()
	g.Run()
	_, err = os.Stat(path)
	assert.NoError(t, err, "cancelled guard must keep the file")
}

func hdrEXIF(imagePath string) *fakeEXIF {
	return &fakeEXIF{tags: map[string]map[string]string{
		imagePath: {
			"ProfileDescription":     "Display P3",
			"xmp:HDRGainMapVersion":  "65536",
			"xmp:HDRGainMapHeadroom": "4.0",
		},
	}}
}

func TestRunHDRConversion(t *testing.T) {
	req, _ := baseRequest(t)
	exif := hdrEXIF(req.ImagePath)
	req.WithEXIFAccessor(exif).
		WithHEICDecoder(&fakeHEIC{primary: testYCbCr420(16, 12, 0), gainmap: testGray(8, 6)}).
		WithAVTranscoder(&fakeAV{codec: "aac", hasAudio: true})

	require.NoError(t, req.Run(context.Background()))

	out, err := os.ReadFile(req.OutputPath)
	require.NoError(t, err)

	video, err := os.ReadFile(req.VideoPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(out, video), "video bytes must be appended verbatim")
	assert.Equal(t, int64(len(video)), exif.motionSizes[req.OutputPath], "MicroVideoOffset must equal appended video size")

	jpegPart := out[:len(out)-len(video)]
	ok, err := IsUltraHDR(bytes.NewReader(jpegPart))
	require.NoError(t, err)
	assert.True(t, ok, "image part must be an Ultra HDR container")

	split, err := Split(jpegPart)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, split.Meta.HDRCapacityMax, 1e-3)
	assert.InDelta(t, 4.0, split.Meta.MaxContentBoost[0], 1e-3)
	assert.InDelta(t, 1.0, split.Meta.MinContentBoost[0], 1e-3)
	assert.True(t, split.Meta.UseBaseCG)

	require.Len(t, exif.copies, 1, "EXIF must be copied from the source HEIC")
	assert.Equal(t, [2]string{req.ImagePath, req.OutputPath}, exif.copies[0])
}

func TestRunSDRConversion(t *testing.T) {
	req, _ := baseRequest(t)
	exif := &fakeEXIF{tags: map[string]map[string]string{req.ImagePath: {}}}
	req.WithEXIFAccessor(exif).
		WithHEICDecoder(&fakeHEIC{primary: testYCbCr420(16, 12, 0)}).
		WithAVTranscoder(&fakeAV{codec: "aac", hasAudio: true})

	require.NoError(t, req.Run(context.Background()))

	out, err := os.ReadFile(req.OutputPath)
	require.NoError(t, err)
	video, _ := os.ReadFile(req.VideoPath)
	jpegPart := out[:len(out)-len(video)]

	ok, err := IsUltraHDR(bytes.NewReader(jpegPart))
	require.NoError(t, err)
	assert.False(t, ok, "non-HDR input must produce a plain JPEG")
	assert.True(t, bytes.HasSuffix(out, video))
}

func TestRunHDRWithoutP3ProfileFails(t *testing.T) {
	req, _ := baseRequest(t)
	exif := hdrEXIF(req.ImagePath)
	exif.tags[req.ImagePath]["ProfileDescription"] = "sRGB IEC61966-2.1"
	req.WithEXIFAccessor(exif).
		WithHEICDecoder(&fakeHEIC{primary: testYCbCr420(16, 12, 0), gainmap: testGray(8, 6)}).
		WithAVTranscoder(&fakeAV{codec: "aac", hasAudio: true})

	err := req.Run(context.Background())
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindUnsupportedFormat, e.Kind)
}

func TestRunTranscodesNonAACAudio(t *testing.T) {
	req, dir := baseRequest(t)
	exif := hdrEXIF(req.ImagePath)
	transcoded := []byte("transcoded-mp4-payload")
	av := &fakeAV{codec: "pcm_s16le", hasAudio: true, transcoded: transcoded}
	req.WithEXIFAccessor(exif).
		WithHEICDecoder(&fakeHEIC{primary: testYCbCr420(16, 12, 0), gainmap: testGray(8, 6)}).
		WithAVTranscoder(av)

	require.NoError(t, req.Run(context.Background()))

	wantTemp := filepath.Join(dir, "live-aac-converting.mp4")
	require.Len(t, av.outputs, 1)
	assert.Equal(t, wantTemp, av.outputs[0])
	_, err := os.Stat(wantTemp)
	assert.True(t, os.IsNotExist(err), "transcode temp file must be removed")

	out, err := os.ReadFile(req.OutputPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(out, transcoded), "the transcoded bytes must be appended, not the original")
	assert.Equal(t, int64(len(transcoded)), exif.motionSizes[req.OutputPath])
}

func TestRunSkipsAppendWhenAlreadyMotionPhoto(t *testing.T) {
	req, _ := baseRequest(t)
	exif := hdrEXIF(req.ImagePath)
	av := &fakeAV{codec: "aac", hasAudio: true}
	req.OverwriteExisting = true
	req.WithEXIFAccessor(exif).
		WithHEICDecoder(&fakeHEIC{primary: testYCbCr420(16, 12, 0), gainmap: testGray(8, 6)}).
		WithAVTranscoder(av)

	require.NoError(t, req.Run(context.Background()))
	require.NoError(t, req.Run(context.Background()))

	out, err := os.ReadFile(req.OutputPath)
	require.NoError(t, err)
	video, _ := os.ReadFile(req.VideoPath)
	assert.False(t, bytes.HasSuffix(out, video), "second run must skip the video append")
	assert.Len(t, exif.motionSizes, 1, "motion tags must only be written once")
}

func TestRunRemovesOutputOnLateFailure(t *testing.T) {
	req, _ := baseRequest(t)
	exif := hdrEXIF(req.ImagePath)
	req.WithEXIFAccessor(exif).
		WithHEICDecoder(&fakeHEIC{primary: testYCbCr420(16, 12, 0), gainmap: testGray(8, 6)}).
		WithAVTranscoder(&fakeAV{probeErr: errors.New("ffprobe exploded")})

	require.Error(t, req.Run(context.Background()))
	_, err := os.Stat(req.OutputPath)
	assert.True(t, os.IsNotExist(err), "failed request must not leave a partial output")
}

func TestRunValidationFailureLeavesNothing(t *testing.T) {
	req, dir := baseRequest(t)
	req.OutputPath = filepath.Join(dir, "out.png")
	err := req.Run(context.Background())
	assert.ErrorIs(t, err, ErrBadOutputExt)
	_, statErr := os.Stat(req.OutputPath)
	assert.True(t, os.IsNotExist(statErr), "a rejected request must not create the output")
}

func TestDeleteOriginals(t *testing.T) {
	req, _ := baseRequest(t)
	require.NoError(t, req.DeleteOriginals())
	_, err := os.Stat(req.ImagePath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(req.VideoPath)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteOriginalsKeepsInPlaceImage(t *testing.T) {
	req, dir := baseRequest(t)
	inPlace := filepath.Join(dir, "photo.jpg")
	writeTestFile(t, inPlace, []byte("jpeg"))
	req.ImagePath = inPlace
	req.OutputPath = inPlace

	require.NoError(t, req.DeleteOriginals())
	_, err := os.Stat(inPlace)
	assert.NoError(t, err, "in-place image must survive")
	_, err = os.Stat(req.VideoPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRecoverPanicConvertsToEncoderFault(t *testing.T) {
	_, err := recoverPanic(func() (*DecodedImage, error) {
		panic("libheif abort")
	})
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindEncoderFault, e.Kind)
}
