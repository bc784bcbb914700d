package densefusion

import (
	"context"
	"fmt"

	"github.com/biotinker/densefusion/fusion"
)

// Track fuses one depth frame and returns whether the frame was
// successfully tracked. Frame 0 always returns false: the initial pose is
// used directly, the volume is integrated, and predictions are produced for
// frame 1, per spec.md §4.3's frame-0 edge case.
func (t *Tracker) Track(ctx context.Context, depth *fusion.DepthFrame) (bool, error) {
	return t.trackFrame(ctx, depth, nil)
}

// TrackWithColor fuses a depth+color frame pair. The color volume is
// updated only when the frame is successfully tracked, per spec.md §6.
func (t *Tracker) TrackWithColor(ctx context.Context, depth *fusion.DepthFrame, color *fusion.ColorFrame) (bool, error) {
	if !t.cfg.Color.Enabled {
		return false, ErrColorNotEnabled
	}
	if color == nil {
		return false, ErrNilColorFrame
	}
	return t.trackFrame(ctx, depth, color)
}

func (t *Tracker) trackFrame(ctx context.Context, depth *fusion.DepthFrame, color *fusion.ColorFrame) (bool, error) {
	if depth == nil {
		return false, ErrNilDepthFrame
	}
	if depth.Rows != t.rows || depth.Cols != t.cols {
		return false, ErrDimensionMismatch
	}
	if color != nil && (color.Rows != t.rows || color.Cols != t.cols) {
		return false, ErrDimensionMismatch
	}

	depthLevels, err := fusion.BuildDepthPyramid(ctx, depth, t.cfg.Depth.MaxICPDistanceMeters)
	if err != nil {
		return false, fmt.Errorf("depth preprocessing: %w", err)
	}

	curPyr, err := fusion.BuildPyramid(ctx, depthLevels, t.rows, t.cols, t.cfg.Intrinsics)
	if err != nil {
		return false, fmt.Errorf("map building: %w", err)
	}
	t.curPyr = curPyr

	if t.globalTime == 0 {
		return t.integrateAndPredict(ctx, depth, color, t.initialPose, false)
	}

	// poseStore always carries one more entry than globalTime (the seed
	// entry plus one append per integrateAndPredict call, frame 0
	// included), so the pose that actually produced the held predPyr is
	// the last entry, index poseStore.Len()-1 == globalTime, not
	// globalTime-1.
	prevPose := t.poseStore.Get(t.poseStore.Len() - 1)
	result, err := fusion.RunICP(ctx, &t.curPyr, &t.predPyr, prevPose, t.cfg.Intrinsics, t.cfg.ICP)
	if err != nil {
		return false, fmt.Errorf("icp: %w", err)
	}
	if result.Singular {
		t.logger.Warnf("frame %d: singular ICP normal matrix, resetting", t.globalTime)
		t.Reset()
		return false, nil
	}

	return t.integrateAndPredict(ctx, depth, color, result.Pose, true)
}

// integrateAndPredict fuses the frame at pose into the TSDF (and color
// volume, if enabled and tracked), appends the pose to the pose store,
// raycasts to build the next frame's predicted pyramid, and advances
// global_time.
func (t *Tracker) integrateAndPredict(ctx context.Context, depth *fusion.DepthFrame, color *fusion.ColorFrame, pose fusion.Pose, tracked bool) (bool, error) {
	t.poseStore.Append(pose)

	if color != nil && t.cfg.Color.Enabled && tracked {
		if err := fusion.IntegrateColor(ctx, t.volume, depth, color, pose, t.cfg.Intrinsics); err != nil {
			return false, fmt.Errorf("color integration: %w", err)
		}
	} else if err := fusion.Integrate(ctx, t.volume, depth, pose, t.cfg.Intrinsics); err != nil {
		return false, fmt.Errorf("tsdf integration: %w", err)
	}

	predPyr, err := fusion.Raycast(ctx, t.volume, pose, t.cfg.Intrinsics, t.rows, t.cols)
	if err != nil {
		return false, fmt.Errorf("raycast: %w", err)
	}
	t.predPyr = predPyr
	t.havePredPyr = true
	t.globalTime++

	return tracked, nil
}
