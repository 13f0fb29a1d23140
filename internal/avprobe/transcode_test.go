package avprobe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTranscodeArgs(t *testing.T) {
	args := buildTranscodeArgs("ffmpeg", "in.mov", "out.mp4", 44100, 128<<10)
	assert.Equal(t, []string{
		"ffmpeg", "-hide_banner", "-nostdin", "-y",
		"-i", "in.mov",
		"-map", "0:v", "-c:v", "copy",
		"-map", "0:a", "-c:a", "aac", "-ac", "1",
		"-ar", "44100",
		"-b:a", "131k",
		"-movflags", "+faststart",
		"out.mp4",
	}, args)
}

func TestBuildTranscodeArgsSkipsUnknownSampleRate(t *testing.T) {
	args := buildTranscodeArgs("ffmpeg", "in.mov", "out.mp4", 0, 128<<10)
	assert.NotContains(t, args, "-ar")
}

func TestParseSampleRate(t *testing.T) {
	assert.Equal(t, 48000, parseSampleRate("48000"))
	assert.Equal(t, 0, parseSampleRate(""))
	assert.Equal(t, 0, parseSampleRate("n/a"))
}

func TestFfprobeStreamParsing(t *testing.T) {
	payload := []byte(`{
		"streams": [
			{"codec_type": "video", "codec_name": "hevc"},
			{"codec_type": "audio", "codec_name": "pcm_s16le", "sample_rate": "44100"}
		]
	}`)
	var raw ffprobeOutput
	require.NoError(t, json.Unmarshal(payload, &raw))
	require.Len(t, raw.Streams, 2)
	assert.Equal(t, "audio", raw.Streams[1].CodecType)
	assert.Equal(t, "pcm_s16le", raw.Streams[1].CodecName)
	assert.Equal(t, "44100", raw.Streams[1].SampleRate)
}
