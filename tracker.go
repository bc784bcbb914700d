// Package densefusion implements a real-time dense 3D reconstruction and
// camera-tracking engine: a stream of depth frames (optionally paired with
// color) is fused into a truncated signed-distance volume while the sensor's
// 6-DoF pose is estimated per frame via coarse-to-fine ICP against the
// model's own raycast prediction.
package densefusion

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/biotinker/densefusion/fusion"

	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/rdk/utils"
)

// Tracker owns the Depth Preprocessor, Map Builder, ICP Solver, TSDF
// Integrator, Raycaster, Extractor, Pose Store, and lifecycle/reset logic
// for a single reconstruction volume.
type Tracker struct {
	logger logging.Logger

	rows, cols int
	cfg        fusion.Config

	volume    *fusion.Volume
	poseStore *fusion.PoseStore

	initialPose fusion.Pose

	globalTime int

	// curPyr is the current-frame camera-space pyramid, rebuilt every frame.
	curPyr fusion.Pyramid
	// predPyr is the world-space predicted pyramid from the previous frame's
	// raycast, used as the ICP target for the next frame.
	predPyr fusion.Pyramid
	havePredPyr bool
}

// New allocates a Tracker for depth frames of the given fixed size, with the
// defaults from spec.md §6: fx=fy=525, centered principal point, a 3m cube
// volume, and the initial pose looking along +Z into the volume center.
func New(rows, cols int, logger logging.Logger) *Tracker {
	cfg := fusion.DefaultConfig(rows, cols)
	initial := fusion.DefaultInitialPose(cfg.Volume.SizeMeters)

	t := &Tracker{
		logger:      logger,
		rows:        rows,
		cols:        cols,
		cfg:         cfg,
		volume:      fusion.NewVolume(cfg.Volume),
		initialPose: initial,
	}
	t.poseStore = fusion.NewPoseStore(initial)
	return t
}

// SetDepthIntrinsics overrides fx, fy and, optionally, cx/cy (-1 keeps the
// image-center default). Must be called before the first frame.
func (t *Tracker) SetDepthIntrinsics(fx, fy, cx, cy float64) {
	if cx < 0 {
		cx = float64(t.cols) / 2
	}
	if cy < 0 {
		cy = float64(t.rows) / 2
	}
	t.cfg.Intrinsics = fusion.Intrinsics{FX: fx, FY: fy, CX: cx, CY: cy}
}

// SetVolumeSize sets the reconstruction cube's world-space edge lengths and
// re-clamps the truncation distance if necessary. Resets the volume.
func (t *Tracker) SetVolumeSize(size r3.Vector) {
	t.cfg.Volume.SizeMeters = size
	t.cfg.Volume.TruncationDistanceMeters = t.clampTruncation(t.cfg.Volume.TruncationDistanceMeters)
	t.volume = fusion.NewVolume(t.cfg.Volume)
	if t.cfg.Color.Enabled {
		t.volume.EnableColor(t.cfg.Color)
	}
}

// SetInitialCameraPose overrides the pose used for frame 0 and for the next reset.
func (t *Tracker) SetInitialCameraPose(pose spatialmath.Pose) {
	t.initialPose = fusion.PoseFromSpatialmath(pose)
	t.poseStore.Reset(t.initialPose)
}

// SetTsdfTruncationDistance sets mu, clamped upward to 2.1*max(cell edge)
// per spec.md §3 (silently clamped, per §7's configuration-misuse policy).
func (t *Tracker) SetTsdfTruncationDistance(mu float64) {
	t.cfg.Volume.TruncationDistanceMeters = t.clampTruncation(mu)
}

func (t *Tracker) clampTruncation(mu float64) float64 {
	min := t.cfg.Volume.MinTruncationDistance()
	if mu < min {
		t.logger.Debugf("truncation distance %.4f below minimum %.4f, clamping", mu, min)
		return min
	}
	return mu
}

// SetDepthTruncationForICP sets the far-clip distance applied before ICP; 0 disables it.
func (t *Tracker) SetDepthTruncationForICP(dMax float64) {
	t.cfg.Depth.MaxICPDistanceMeters = dMax
}

// SetICPCorrespondenceFilteringParams sets the Euclidean and normal-angle
// (expressed as sin(angle)) correspondence rejection thresholds.
func (t *Tracker) SetICPCorrespondenceFilteringParams(distThresholdMeters, sinAngleThreshold float64) {
	t.cfg.ICP.DistThresholdMeters = distThresholdMeters
	t.cfg.ICP.SinAngleThreshold = sinAngleThreshold
}

// SetICPAngleThresholdDegrees is a convenience mutator for callers that think
// in degrees; it converts with utils.DegToRad the same way the teacher's
// cleanup.go converts operator-facing degree thresholds.
func (t *Tracker) SetICPAngleThresholdDegrees(distThresholdMeters, angleDegrees float64) {
	t.SetICPCorrespondenceFilteringParams(distThresholdMeters, math.Sin(utils.DegToRad(angleDegrees)))
}

// InitColorIntegration enables per-voxel color fusion with an independent
// weight cap from the TSDF weight cap.
func (t *Tracker) InitColorIntegration(maxWeight uint16) {
	t.cfg.Color = fusion.ColorConfig{Enabled: true, MaxWeight: maxWeight}
	t.volume.EnableColor(t.cfg.Color)
}
