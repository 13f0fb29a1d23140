package motionheic

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ConvertRequest identifies one conversion job. It is immutable after
// construction except for the test-only collaborator overrides below.
type ConvertRequest struct {
	ImagePath  string
	VideoPath  string
	OutputPath string

	// ImageQuality and GainmapQuality are each clamped to [0,100].
	ImageQuality   int
	GainmapQuality int

	OverwriteExisting bool
	ExiftoolPath      *string

	exif EXIFAccessor
	heic HEICDecoder
	av   AVTranscoder
}

// WithEXIFAccessor overrides the production exiftool-backed EXIFAccessor,
// primarily for tests driving the pipeline against a fake.
func (r *ConvertRequest) WithEXIFAccessor(e EXIFAccessor) *ConvertRequest { r.exif = e; return r }

// WithHEICDecoder overrides the production libheif-backed HEICDecoder.
func (r *ConvertRequest) WithHEICDecoder(d HEICDecoder) *ConvertRequest { r.heic = d; return r }

// WithAVTranscoder overrides the production ffprobe/ffmpeg-backed AVTranscoder.
func (r *ConvertRequest) WithAVTranscoder(a AVTranscoder) *ConvertRequest { r.av = a; return r }

// IOSameFile reports whether ImagePath and OutputPath name the same file,
// compared as OS strings case-insensitively. This permits in-place
// conversion without tripping ErrOutputExists.
func (r *ConvertRequest) IOSameFile() bool {
	return strings.EqualFold(filepath.Clean(r.ImagePath), filepath.Clean(r.OutputPath))
}

func (r *ConvertRequest) isInputHEIC() bool {
	return strings.EqualFold(strings.TrimPrefix(filepath.Ext(r.ImagePath), "."), "heic")
}

// Validate checks a ConvertRequest against the input/output preconditions:
// both source files must exist and be regular files, the output extension
// must be .jpg/.jpeg, and an existing output is only accepted in place or
// with OverwriteExisting set.
func Validate(req *ConvertRequest) error {
	if !isRegularFile(req.ImagePath) {
		return newError(KindValidation, "validate: image_path", ErrMissingInput)
	}
	if !isRegularFile(req.VideoPath) {
		return newError(KindValidation, "validate: video_path", ErrMissingInput)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(req.OutputPath), "."))
	if ext != "jpg" && ext != "jpeg" {
		return newError(KindValidation, "validate: output extension", ErrBadOutputExt)
	}

	if info, err := os.Stat(req.OutputPath); err == nil {
		if info.IsDir() {
			return newError(KindValidation, "validate: output_path", ErrOutputIsDirectory)
		}
		if !req.IOSameFile() && !req.OverwriteExisting {
			return newError(KindValidation, "validate: output_path", ErrOutputExists)
		}
	}

	parent := filepath.Dir(req.OutputPath)
	if parent != "." {
		if info, err := os.Stat(parent); err != nil || !info.IsDir() {
			return newError(KindValidation, "validate: output parent", ErrOutputParentGone)
		}
	}

	return nil
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// cleanupGuard deletes path on Run when active, unless Cancel is called
// first. The output JPEG is written before the video is appended, so a
// failure partway through leaves a half-built file; the guard removes it.
type cleanupGuard struct {
	path   string
	active bool
}

func newCleanupGuard(path string) *cleanupGuard { return &cleanupGuard{path: path, active: true} }

func (g *cleanupGuard) Cancel() { g.active = false }

func (g *cleanupGuard) Run() {
	if g.active {
		os.Remove(g.path)
	}
}

// Run executes the full pipeline for req: validate, build the (possibly
// Ultra HDR) JPEG, arm a cleanup guard on the output, append the motion
// video, then cancel the guard. Any failure after the primary JPEG is
// written removes OutputPath, yielding an all-or-nothing outcome.
func (r *ConvertRequest) Run(ctx context.Context) error {
	start := time.Now()
	logDebug(ctx, "running convert request "+r.ImagePath+" + "+r.VideoPath+" => "+r.OutputPath)

	if err := Validate(r); err != nil {
		return err
	}

	exif := r.exifAccessor()
	heic := r.heicDecoder()
	av := r.avTranscoder()

	if err := r.makeHDR(ctx, exif, heic); err != nil {
		return err
	}

	guard := newCleanupGuard(r.OutputPath)
	defer guard.Run()

	if err := makeMotion(ctx, r, exif, av); err != nil {
		return err
	}

	guard.Cancel()
	logInfo(ctx, "convert success in "+time.Since(start).String())
	return nil
}

// makeHDR builds the HDR JPEG: HEIC inputs go through the Ultra HDR
// assembly pipeline; anything else (already a JPEG sibling, e.g. when the
// caller paired a .jpg with its .mov) is copied through unchanged.
func (r *ConvertRequest) makeHDR(ctx context.Context, exif EXIFAccessor, heic HEICDecoder) error {
	if r.isInputHEIC() {
		return convertHEICToJPEG(ctx, r, exif, heic)
	}
	return copyFile(r.ImagePath, r.OutputPath)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return newError(KindIO, "copyFile: read", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return newError(KindIO, "copyFile: write", err)
	}
	return nil
}

// DeleteOriginals removes the source video and (unless IOSameFile) the
// source image; caller-invoked after a successful Run.
func (r *ConvertRequest) DeleteOriginals() error {
	if !r.IOSameFile() {
		if err := os.Remove(r.ImagePath); err != nil {
			return newError(KindIO, "DeleteOriginals: image", err)
		}
	}
	if err := os.Remove(r.VideoPath); err != nil {
		return newError(KindIO, "DeleteOriginals: video", err)
	}
	return nil
}
