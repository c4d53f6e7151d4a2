// Command gen-frames writes a synthetic frame file for fusiontrack.
package main

import (
	"flag"
	"log"

	"github.com/banshee-data/eagerfusion/internal/config"
	"github.com/banshee-data/eagerfusion/internal/fusion/associate"
	"github.com/banshee-data/eagerfusion/internal/fusion/replay"
)

func main() {
	output := flag.String("o", "frames.json", "output path")
	frames := flag.Int("n", 100, "number of frames")
	objects := flag.Int("objects", 4, "objects in the scene")
	seed := flag.Int64("seed", 1, "random seed")
	noise := flag.Float64("noise", 2, "camera box noise (pixels)")
	dropout := flag.Float64("dropout", 0.05, "per-sensor detection dropout probability")
	clutter := flag.Float64("clutter", 0.2, "camera false positives per frame")
	cfgPath := flag.String("config", "", "tuning config supplying camera intrinsics and lidar coverage")
	flag.Parse()

	tuning := config.DefaultTuningConfig()
	if *cfgPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*cfgPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	fusion := associate.ConfigFromTuning(tuning)

	gen := replay.NewSyntheticGenerator(*fusion.Camera, *seed)
	gen.Lidar = fusion.Lidar
	gen.Objects = *objects
	gen.PixelNoise = *noise
	gen.CameraDropout = *dropout
	gen.LidarDropout = *dropout
	gen.ClutterRate = *clutter

	f := gen.Generate(*frames)
	if err := f.Save(*output); err != nil {
		log.Fatalf("save: %v", err)
	}
	log.Printf("✓ Created: %s (%d frames, run %s)", *output, len(f.Frames), f.RunID)
}
