// Command densefusion runs a Tracker to completion over a directory of
// recorded depth frames, mirroring the connect-and-run shape of the
// teacher's service entrypoint but without any remote-robot dial: there is
// no camera component in this domain, only files on disk.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/biotinker/densefusion"
	"github.com/biotinker/densefusion/internal/config"
	"github.com/biotinker/densefusion/internal/depthio"

	"go.viam.com/rdk/logging"
)

func main() {
	configPath := flag.String("config", "", "path to run configuration JSON file")
	flag.Parse()

	logger := logging.NewDebugLogger("densefusion")

	if *configPath == "" {
		logger.Fatal("-config flag is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracker := densefusion.New(cfg.Rows, cfg.Cols, logger)
	if cfg.FX != 0 {
		tracker.SetDepthIntrinsics(cfg.FX, cfg.FY, cfg.CX, cfg.CY)
	}
	if cfg.VolumeSizeMeters.X != 0 {
		tracker.SetVolumeSize(cfg.VolumeSizeMeters)
	}
	if cfg.TruncationDistance != 0 {
		tracker.SetTsdfTruncationDistance(cfg.TruncationDistance)
	}
	if cfg.MaxICPDistanceMeters != 0 {
		tracker.SetDepthTruncationForICP(cfg.MaxICPDistanceMeters)
	}
	if cfg.EnableColor {
		tracker.InitColorIntegration(uint16(cfg.ColorMaxWeight))
	}

	frames, err := depthio.ListFrames(cfg.DepthFramesDir)
	if err != nil {
		logger.Fatal(err)
	}
	logger.Infof("found %d depth frames", len(frames))

	for i, path := range frames {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		default:
		}

		depth, err := depthio.LoadDepthFrame(path, cfg.Rows, cfg.Cols)
		if err != nil {
			logger.Fatal(err)
		}
		tracked, err := tracker.Track(ctx, depth)
		if err != nil {
			logger.Fatal(err)
		}
		logger.Infof("frame %d: tracked=%v", i, tracked)
	}
}
