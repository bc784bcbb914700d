// Command densefusion-cli runs a single step of a tracking session: track a
// frame sequence, or extract and dump the current volume as a point cloud,
// mirroring the teacher's flag-based step-dispatch CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/biotinker/densefusion"
	"github.com/biotinker/densefusion/internal/config"
	"github.com/biotinker/densefusion/internal/depthio"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/pointcloud"
)

const validSteps = "track, extract"

func main() {
	configPath := flag.String("config", "", "path to run configuration JSON file")
	step := flag.String("step", "", "step to run: "+validSteps)
	out := flag.String("out", "", "output PCD path for the extract step")
	connected26 := flag.Bool("connected26", true, "use 26-connectivity during extraction")
	flag.Parse()

	logger := logging.NewLogger("densefusion-cli")

	if *configPath == "" {
		logger.Fatal("-config flag is required")
	}
	if *step == "" {
		logger.Fatal("-step flag is required; valid steps: " + validSteps)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracker := densefusion.New(cfg.Rows, cfg.Cols, logger)
	if cfg.EnableColor {
		tracker.InitColorIntegration(uint16(cfg.ColorMaxWeight))
	}

	logger.Infof("=== Running step: %s ===", *step)

	switch *step {
	case "track":
		if err := runTrack(ctx, tracker, cfg, logger); err != nil {
			logger.Fatal(err)
		}
	case "extract":
		if err := runTrack(ctx, tracker, cfg, logger); err != nil {
			logger.Fatal(err)
		}
		if err := runExtract(tracker, *out, *connected26); err != nil {
			logger.Fatal(err)
		}
	default:
		logger.Fatalf("unknown step %q; valid steps: %s", *step, validSteps)
	}

	logger.Infof("step %s completed successfully", *step)
}

func runTrack(ctx context.Context, tracker *densefusion.Tracker, cfg *config.RunConfig, logger logging.Logger) error {
	frames, err := depthio.ListFrames(cfg.DepthFramesDir)
	if err != nil {
		return err
	}
	for i, path := range frames {
		depth, err := depthio.LoadDepthFrame(path, cfg.Rows, cfg.Cols)
		if err != nil {
			return err
		}
		tracked, err := tracker.Track(ctx, depth)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		logger.Debugf("frame %d: tracked=%v", i, tracked)
	}
	return nil
}

// runExtract dumps a host-side volume extraction to a PCD file, mirroring
// the teacher's watch.go point-cloud export helper.
func runExtract(tracker *densefusion.Tracker, out string, connected26 bool) error {
	if out == "" {
		return fmt.Errorf("-out is required for the extract step")
	}
	cloud, err := tracker.GetCloudFromVolumeHost(connected26)
	if err != nil {
		return fmt.Errorf("extracting cloud: %w", err)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	if err := pointcloud.ToPCD(cloud, f, pointcloud.PCDBinary); err != nil {
		return fmt.Errorf("writing pcd: %w", err)
	}
	return nil
}
