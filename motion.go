package motionheic

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// aacBitRate is the caller-supplied bit rate used when the source audio
// codec needs transcoding to AAC.
const aacBitRate = 128 << 10

// makeMotion appends the motion video to the already-written output JPEG
// and writes the Motion Photo XMP tags. If the output already carries a
// Motion Photo marker, the append step is skipped (idempotence).
func makeMotion(ctx context.Context, req *ConvertRequest, exif EXIFAccessor, av AVTranscoder) error {
	if already, err := outputIsMotionPhoto(ctx, exif, req.OutputPath); err != nil {
		return err
	} else if already {
		logWarn(ctx, "Output is already a motion photo, skip append video")
		return syncFileTimes(req.ImagePath, req.OutputPath)
	}

	codec, hasAudio, err := av.ProbeAudioCodec(ctx, req.VideoPath)
	if err != nil {
		return newError(KindToolError, "makeMotion: probe audio", err)
	}

	if !hasAudio || codec == "aac" || codec == "ac3" {
		videoSize, err := appendVideo(req.OutputPath, req.VideoPath)
		if err != nil {
			return err
		}
		if err := exif.WriteMotionTags(ctx, req.OutputPath, videoSize); err != nil {
			return newError(KindToolError, "makeMotion: write motion tags", err)
		}
		return syncFileTimes(req.ImagePath, req.OutputPath)
	}

	stem := strings.TrimSuffix(filepath.Base(req.VideoPath), filepath.Ext(req.VideoPath))
	tmpVideo := filepath.Join(filepath.Dir(req.VideoPath), fmt.Sprintf("%s-aac-converting.mp4", stem))
	if _, err := os.Stat(tmpVideo); err == nil {
		return newError(KindIO, "makeMotion", fmt.Errorf("tempfile %s exists", tmpVideo))
	}
	defer os.Remove(tmpVideo)

	if err := av.TranscodeAudioToAAC(ctx, req.VideoPath, tmpVideo, aacBitRate); err != nil {
		return newError(KindEncode, "makeMotion: transcode audio to aac", err)
	}

	videoSize, err := appendVideo(req.OutputPath, tmpVideo)
	if err != nil {
		return err
	}
	if err := exif.WriteMotionTags(ctx, req.OutputPath, videoSize); err != nil {
		return newError(KindToolError, "makeMotion: write motion tags", err)
	}
	return syncFileTimes(req.ImagePath, req.OutputPath)
}

func outputIsMotionPhoto(ctx context.Context, exif EXIFAccessor, path string) (bool, error) {
	v, ok, err := exif.Get(ctx, path, "XMP-GCamera:MicroVideo")
	if err != nil {
		return false, newError(KindToolError, "outputIsMotionPhoto", err)
	}
	return ok && v == "1", nil
}

// appendVideo concatenates videoPath's bytes onto the tail of outputPath
// and returns the number of bytes appended.
func appendVideo(outputPath, videoPath string) (int64, error) {
	out, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, newError(KindIO, "appendVideo: open output", err)
	}
	defer out.Close()

	in, err := os.Open(videoPath)
	if err != nil {
		return 0, newError(KindIO, "appendVideo: open video", err)
	}
	defer in.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return 0, newError(KindIO, "appendVideo: copy", err)
	}
	return n, nil
}

// syncFileTimes copies the modification time from src to dst and sets dst's
// access time to now. The creation time is not copied.
func syncFileTimes(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return newError(KindIO, "syncFileTimes: stat src", err)
	}
	mtime := info.ModTime()
	if err := os.Chtimes(dst, time.Now(), mtime); err != nil {
		return newError(KindIO, "syncFileTimes: chtimes", err)
	}
	return nil
}
