package motionheic_test

import (
	"context"
	"os"
	"path/filepath"

	motionheic "github.com/gwy15/motionheic"
)

func ExampleConvertRequest_Run() {
	req := &motionheic.ConvertRequest{
		ImagePath:      filepath.FromSlash("testdata/IMG_0001.heic"),
		VideoPath:      filepath.FromSlash("testdata/IMG_0001.mov"),
		OutputPath:     filepath.FromSlash("testdata/IMG_0001.jpg"),
		ImageQuality:   95,
		GainmapQuality: 85,
	}
	_ = req.Run(context.Background())
}

func ExampleIsUltraHDR() {
	f, err := os.Open(filepath.FromSlash("testdata/motion.jpg"))
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = motionheic.IsUltraHDR(f)
}

func ExampleSplit() {
	data, err := os.ReadFile(filepath.FromSlash("testdata/motion.jpg"))
	if err != nil {
		return
	}
	split, err := motionheic.Split(data)
	if err != nil {
		return
	}
	bundle, err := motionheic.BuildMetadataBundle(split.PrimaryJPEG, split.Segs)
	if err != nil {
		return
	}
	_, _ = motionheic.AssembleFromBundle(split.PrimaryJPEG, split.GainmapJPEG, bundle)
}
