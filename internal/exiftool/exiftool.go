// Package exiftool wraps the external exiftool binary as a key-value EXIF
// accessor. Each call launches a short-lived subprocess; there is no
// persistent exiftool session to manage.
package exiftool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Tool shells out to exiftool. The zero value uses "exiftool" from PATH.
type Tool struct {
	// Path overrides the exiftool binary location; empty uses PATH.
	Path string
}

// New returns a Tool using exiftool from PATH.
func New() *Tool { return &Tool{} }

// WithPath returns a Tool invoking the binary at path.
func WithPath(path string) *Tool { return &Tool{Path: path} }

func (t *Tool) bin() string {
	if t.Path != "" {
		return t.Path
	}
	return "exiftool"
}

func (t *Tool) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, t.bin(), args...)
	cmd.Stdin = nil
	return cmd
}

// Get runs `exiftool -<key> -s -s -s <path>`. Empty stdout is reported as
// ok=false; a non-zero exit bubbles stderr as a ToolError-flavored error.
func (t *Tool) Get(ctx context.Context, path, key string) (string, bool, error) {
	cmd := t.command(ctx, "-"+key, "-s", "-s", "-s", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", false, fmt.Errorf("exiftool -%s %s: %w: %s", key, path, err, strings.TrimSpace(stderr.String()))
	}

	value := strings.TrimSpace(stdout.String())
	if value == "" {
		return "", false, nil
	}
	return value, true, nil
}

// CopyMeta runs `exiftool -TagsFromFile <src> -Orientation= -overwrite_original <dst>`.
func (t *Tool) CopyMeta(ctx context.Context, src, dst string) error {
	cmd := t.command(ctx, "-TagsFromFile", src, "-Orientation=", "-overwrite_original", dst)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("exiftool -TagsFromFile %s %s: %w: %s", src, dst, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// gCameraConfig is a throwaway exiftool -config file declaring the
// namespace common EXIF tools don't know natively.
const gCameraConfig = `%Image::ExifTool::UserDefined = (
 'Image::ExifTool::XMP::Main' => {
 GCamera => {
 SubDirectory => {
 TagTable => 'Image::ExifTool::UserDefined::GCamera',
 },
 },
 },
);
%Image::ExifTool::UserDefined::GCamera = (
 GROUPS => { 0 => 'XMP', 1 => 'XMP-GCamera', 2 => 'Image' },
 NAMESPACE => { 'GCamera' => 'http://ns.google.com/photos/1.0/camera/' },
 WRITABLE => 'string',
 MicroVideo => { Writable => 'integer' },
 MicroVideoVersion => { Writable => 'integer' },
 MicroVideoOffset => { Writable => 'integer' },
 MicroVideoPresentationTimestampUs => { Writable => 'integer' },
);
1;
`

// WriteMotionTags stamps the Google/Xiaomi motion-photo tags on
// path. Because the common EXIF tools don't know the GCamera XMP namespace
// natively, a generated config file declares it for the duration of this
// one call.
func (t *Tool) WriteMotionTags(ctx context.Context, path string, videoSize int64) error {
	cfg, err := os.CreateTemp("", "motionheic-gcamera-*.config")
	if err != nil {
		return fmt.Errorf("create exiftool config: %w", err)
	}
	defer os.Remove(cfg.Name())
	if _, err := cfg.WriteString(gCameraConfig); err != nil {
		cfg.Close()
		return fmt.Errorf("write exiftool config: %w", err)
	}
	if err := cfg.Close(); err != nil {
		return fmt.Errorf("close exiftool config: %w", err)
	}

	args := []string{
		"-config", cfg.Name(),
		"-XMP-GCamera:MicroVideo=1",
		"-XMP-GCamera:MicroVideoVersion=1",
		"-XMP-GCamera:MicroVideoPresentationTimestampUs=1500000",
		"-XMP-GCamera:MicroVideoOffset=" + strconv.FormatInt(videoSize, 10),
		"-XiaomiTag=1",
		"-overwrite_original",
		path,
	}
	cmd := t.command(ctx, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("exiftool write motion tags %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
