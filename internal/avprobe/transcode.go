package avprobe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// buildTranscodeArgs constructs the ffmpeg argv for audio transcode:
// copy the video stream, re-encode the (forced-mono) audio stream to AAC at
// bitRate bits/sec, sample rate inherited from the input.
func buildTranscodeArgs(ffmpegBin, input, output string, sampleRate, bitRate int) []string {
	args := make([]string, 0, 20)
	args = append(args, ffmpegBin, "-hide_banner", "-nostdin", "-y")
	args = append(args, "-i", input)
	args = append(args, "-map", "0:v", "-c:v", "copy")
	args = append(args, "-map", "0:a", "-c:a", "aac", "-ac", "1")
	if sampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(sampleRate))
	}
	args = append(args, "-b:a", strconv.Itoa(bitRate/1000)+"k")
	args = append(args, "-movflags", "+faststart")
	args = append(args, output)
	return args
}

func parseSampleRate(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// TranscodeAudioToAAC re-muxes input to output, stream-copying video and
// re-encoding audio to mono AAC at bitRate bits/sec.
func (p *Prober) TranscodeAudioToAAC(ctx context.Context, input, output string, bitRate int) error {
	sampleRate, err := p.probeAudioSampleRate(ctx, input)
	if err != nil {
		return fmt.Errorf("probe sample rate: %w", err)
	}

	args := buildTranscodeArgs(p.ffmpegBin(), input, output, sampleRate, bitRate)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = nil

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", strings.Join(args[1:], " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
