// Package avprobe wraps ffprobe/ffmpeg as the AV probe/transcode
// collaborator: one ffprobe JSON call to inspect streams, one ffmpeg
// invocation to remux with the audio track re-encoded.
package avprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Prober is the production motionheic.AVTranscoder.
type Prober struct {
	FFprobePath string // empty uses "ffprobe" from PATH
	FFmpegPath  string // empty uses "ffmpeg" from PATH
}

// New returns a Prober using ffprobe/ffmpeg from PATH.
func New() *Prober { return &Prober{} }

func (p *Prober) ffprobeBin() string {
	if p.FFprobePath != "" {
		return p.FFprobePath
	}
	return "ffprobe"
}

func (p *Prober) ffmpegBin() string {
	if p.FFmpegPath != "" {
		return p.FFmpegPath
	}
	return "ffmpeg"
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
}

// ProbeAudioCodec reports the best audio stream's codec name. hasAudio=false when the video carries none.
func (p *Prober) ProbeAudioCodec(ctx context.Context, path string) (string, bool, error) {
	cmd := exec.CommandContext(ctx, p.ffprobeBin(),
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return "", false, fmt.Errorf("ffprobe %q: %w", path, err)
	}

	var raw ffprobeOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return "", false, fmt.Errorf("parse ffprobe json: %w", err)
	}
	for _, s := range raw.Streams {
		if s.CodecType == "audio" {
			return s.CodecName, true, nil
		}
	}
	return "", false, nil
}

func (p *Prober) probeAudioSampleRate(ctx context.Context, path string) (int, error) {
	cmd := exec.CommandContext(ctx, p.ffprobeBin(),
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	var raw ffprobeOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return 0, fmt.Errorf("parse ffprobe json: %w", err)
	}
	for _, s := range raw.Streams {
		if s.CodecType == "audio" {
			return parseSampleRate(s.SampleRate), nil
		}
	}
	return 0, fmt.Errorf("no audio stream in %s", path)
}
