// Command motionheic converts a single Apple Live Photo (HEIC+MOV) into an
// Android Motion Photo Ultra HDR JPEG. It wires one ConvertRequest and
// runs it; batch processing belongs to the caller (xargs, a wrapper
// script, a future walker).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	motionheic "github.com/gwy15/motionheic"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "convert":
		err = runConvert(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "rebase":
		err = runRebase(os.Args[2:])
	case "resize":
		err = runResize(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: motionheic <command> [flags]")
	fmt.Fprintln(os.Stderr, "Commands: convert, inspect, rebase, resize")
}

func runConvert(args []string) error {
	fs := pflag.NewFlagSet("convert", pflag.ContinueOnError)
	image := fs.StringP("image", "i", "", "source HEIC/JPEG image path")
	video := fs.StringP("video", "v", "", "source MOV/MP4 video path")
	output := fs.StringP("output", "o", "", "output Motion Photo JPEG path")
	imageQuality := fs.Int("image-quality", 95, "base JPEG quality (0-100)")
	gainmapQuality := fs.Int("gainmap-quality", 85, "gain-map JPEG quality (0-100)")
	overwrite := fs.Bool("overwrite", false, "overwrite an existing output file")
	exiftoolPath := fs.String("exiftool-path", "", "path to the exiftool binary (default: PATH)")
	deleteOriginals := fs.Bool("delete-originals", false, "remove source image/video after a successful conversion")
	verbose := fs.BoolP("verbose", "V", false, "debug-level logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *image == "" || *video == "" || *output == "" {
		return fmt.Errorf("--image, --video and --output are required")
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	req := &motionheic.ConvertRequest{
		ImagePath:         *image,
		VideoPath:         *video,
		OutputPath:        *output,
		ImageQuality:      *imageQuality,
		GainmapQuality:    *gainmapQuality,
		OverwriteExisting: *overwrite,
	}
	if *exiftoolPath != "" {
		req.ExiftoolPath = exiftoolPath
	}

	if err := req.Run(ctx); err != nil {
		return err
	}
	if *deleteOriginals {
		return req.DeleteOriginals()
	}
	return nil
}

func runInspect(args []string) error {
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	in := fs.StringP("in", "i", "", "JPEG to inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return fmt.Errorf("--in is required")
	}
	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()
	ok, err := motionheic.IsUltraHDR(f)
	if err != nil {
		return err
	}
	if ok {
		fmt.Println("ultrahdr")
	} else {
		fmt.Println("not ultrahdr")
	}
	return nil
}

func runRebase(args []string) error {
	fs := pflag.NewFlagSet("rebase", pflag.ContinueOnError)
	in := fs.StringP("in", "i", "", "input Ultra HDR JPEG")
	primary := fs.String("primary", "", "new SDR JPEG to rebase onto")
	out := fs.StringP("out", "o", "", "output Ultra HDR JPEG")
	quality := fs.Int("quality", 95, "base JPEG quality")
	gainmapQuality := fs.Int("gainmap-quality", 85, "gain-map JPEG quality")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *primary == "" || *out == "" {
		return fmt.Errorf("--in, --primary and --out are required")
	}
	return motionheic.RebaseUltraHDRFile(*in, *primary, *out, &motionheic.RebaseOptions{
		BaseQuality:    *quality,
		GainmapQuality: *gainmapQuality,
	}, "", "")
}

func runResize(args []string) error {
	fs := pflag.NewFlagSet("resize", pflag.ContinueOnError)
	in := fs.StringP("in", "i", "", "input Ultra HDR JPEG")
	out := fs.StringP("out", "o", "", "output Ultra HDR JPEG")
	width := fs.UintP("width", "w", 0, "target width")
	height := fs.UintP("height", "h", 0, "target height")
	quality := fs.Int("quality", 85, "base JPEG quality")
	gainmapQuality := fs.Int("gainmap-quality", 75, "gain-map JPEG quality")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" || *width == 0 || *height == 0 {
		return fmt.Errorf("--in, --out, --width and --height are required")
	}
	_, err := motionheic.ResizeUltraHDRFile(*in, *out, &motionheic.ResizeOptions{
		Width:          *width,
		Height:         *height,
		PrimaryQuality: *quality,
		GainmapQuality: *gainmapQuality,
	})
	return err
}
