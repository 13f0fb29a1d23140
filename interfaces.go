package motionheic

import "context"

// EXIFAccessor is the external EXIF read/write collaborator. The only
// production implementation shells out to the exiftool binary
// (internal/exiftool); tests substitute an in-memory fake.
type EXIFAccessor interface {
	// Get runs `exiftool -<key> -s -s -s <path>`. An empty stdout is
	// reported as ok=false, not an error.
	Get(ctx context.Context, path, key string) (value string, ok bool, err error)
	// CopyMeta runs `exiftool -TagsFromFile <src> -Orientation= -overwrite_original <dst>`.
	CopyMeta(ctx context.Context, src, dst string) error
	// WriteMotionTags stamps the Google/Xiaomi motion-photo tags
	// on path, given the byte length of the appended video.
	WriteMotionTags(ctx context.Context, path string, videoSize int64) error
}

// RawPlane is a single decoded 8- or 10-bit image plane.
type RawPlane struct {
	Width       int
	Height      int
	Stride      int
	StorageBits int
	Data        []byte
}

// DecodedImage is a decoded HEIC primary or auxiliary image. Cb/Cr are
// nil for the grayscale gain-map auxiliary.
type DecodedImage struct {
	ColorSpace HEICColorSpace
	Width      int
	Height     int
	Y          *RawPlane
	Cb         *RawPlane
	Cr         *RawPlane
}

// HEICColorSpace narrows the libheif colorspace/chroma pair down to what
// this pipeline accepts.
type HEICColorSpace int

const (
	HEICColorSpaceUnknown HEICColorSpace = iota
	HEICColorSpaceYCbCr420
	HEICColorSpaceGrayscale
)

// HEICDecoder opens a HEIC file and hands back a handle to its primary and
// auxiliary images. The production implementation binds to
// libheif (internal/heifdecode); tests substitute an in-memory fake.
type HEICDecoder interface {
	Open(ctx context.Context, path string) (HEICHandle, error)
}

// HEICHandle is one opened HEIC file.
type HEICHandle interface {
	// Dimensions reports the primary image's pixel size without decoding it.
	Dimensions() (w, h int)
	DecodePrimary(ctx context.Context) (*DecodedImage, error)
	// DecodeAuxiliary decodes the auxiliary image whose type URN matches
	// exactly, or returns ok=false if none does.
	DecodeAuxiliary(ctx context.Context, urn string) (img *DecodedImage, ok bool, err error)
	Close() error
}

// AVTranscoder is the external AV probe/transcode collaborator.
// The production implementation shells out to ffprobe/ffmpeg
// (internal/avprobe); tests substitute an in-memory fake.
type AVTranscoder interface {
	// ProbeAudioCodec reports the best audio stream's codec name, or
	// hasAudio=false when the video carries no audio stream.
	ProbeAudioCodec(ctx context.Context, path string) (codec string, hasAudio bool, err error)
	// TranscodeAudioToAAC remuxes input to output, stream-copying video and
	// re-encoding the (forced-mono) audio track to AAC at bitRate bits/sec.
	TranscodeAudioToAAC(ctx context.Context, input, output string, bitRate int) error
}
