package densefusion

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/biotinker/densefusion/fusion"

	"go.viam.com/rdk/logging"
)

func syntheticPlaneFrame(rows, cols int, mm uint16) *fusion.DepthFrame {
	data := make([]uint16, rows*cols)
	for i := range data {
		data[i] = mm
	}
	return &fusion.DepthFrame{Rows: rows, Cols: cols, Data: data}
}

// syntheticBowlFrame generates a paraboloid depth surface; unlike a
// fronto-parallel plane it gives ICP a full-rank, well-conditioned
// correspondence set (see fusion.syntheticBowlDepth).
func syntheticBowlFrame(rows, cols int, baseMM, curvatureMM float64) *fusion.DepthFrame {
	data := make([]uint16, rows*cols)
	cx, cy := float64(cols)/2, float64(rows)/2
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			dx := (float64(col) - cx) / float64(cols)
			dy := (float64(row) - cy) / float64(rows)
			data[row*cols+col] = uint16(baseMM + curvatureMM*(dx*dx+dy*dy))
		}
	}
	return &fusion.DepthFrame{Rows: rows, Cols: cols, Data: data}
}

func TestTracker_FirstFrameNeverReportsTracked(t *testing.T) {
	tr := New(32, 32, logging.NewTestLogger(t))
	depth := syntheticPlaneFrame(32, 32, 1500)

	tracked, err := tr.Track(context.Background(), depth)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if tracked {
		t.Errorf("frame 0 must never report tracked=true")
	}
}

func TestTracker_NilDepthFrameIsAnError(t *testing.T) {
	tr := New(32, 32, logging.NewTestLogger(t))
	if _, err := tr.Track(context.Background(), nil); !errors.Is(err, ErrNilDepthFrame) {
		t.Errorf("Track(nil) error = %v, want ErrNilDepthFrame", err)
	}
}

func TestTracker_DimensionMismatchIsAnError(t *testing.T) {
	tr := New(32, 32, logging.NewTestLogger(t))
	depth := syntheticPlaneFrame(16, 16, 1500)
	if _, err := tr.Track(context.Background(), depth); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Track(wrong-size) error = %v, want ErrDimensionMismatch", err)
	}
}

func TestTracker_TrackWithColorRequiresColorEnabled(t *testing.T) {
	tr := New(32, 32, logging.NewTestLogger(t))
	depth := syntheticPlaneFrame(32, 32, 1500)
	color := &fusion.ColorFrame{Rows: 32, Cols: 32, Data: make([]uint8, 32*32*3)}

	if _, err := tr.TrackWithColor(context.Background(), depth, color); !errors.Is(err, ErrColorNotEnabled) {
		t.Errorf("TrackWithColor without InitColorIntegration error = %v, want ErrColorNotEnabled", err)
	}
}

func TestTracker_TrackWithColorRejectsNilColorFrame(t *testing.T) {
	tr := New(32, 32, logging.NewTestLogger(t))
	tr.InitColorIntegration(64)
	depth := syntheticPlaneFrame(32, 32, 1500)

	if _, err := tr.TrackWithColor(context.Background(), depth, nil); !errors.Is(err, ErrNilColorFrame) {
		t.Errorf("TrackWithColor(nil color) error = %v, want ErrNilColorFrame", err)
	}
}

func TestTracker_SecondIdenticalFrameTracksWithoutMotion(t *testing.T) {
	tr := New(32, 32, logging.NewTestLogger(t))
	tr.SetDepthIntrinsics(50, 50, 16, 16)
	// Base depth of 3300mm puts the sensed surface near the volume center
	// (the default initial pose sits 1.8m in front of a 3m cube), so it
	// actually falls within integrateVoxel's truncation band.
	depth := syntheticBowlFrame(32, 32, 3300, 150)

	if _, err := tr.Track(context.Background(), depth); err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	tracked, err := tr.Track(context.Background(), depth)
	if err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	if !tracked {
		t.Errorf("expected frame 1 to track successfully against an unchanged scene")
	}
}

func TestTracker_ResetRewindsToInitialPose(t *testing.T) {
	tr := New(32, 32, logging.NewTestLogger(t))
	depth := syntheticPlaneFrame(32, 32, 1500)

	if _, err := tr.Track(context.Background(), depth); err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	if _, err := tr.Track(context.Background(), depth); err != nil {
		t.Fatalf("frame 1: %v", err)
	}

	tr.Reset()

	if tr.globalTime != 0 {
		t.Errorf("globalTime after Reset = %d, want 0", tr.globalTime)
	}
	if tr.poseStore.Len() != 1 {
		t.Errorf("pose store length after Reset = %d, want 1", tr.poseStore.Len())
	}
}

func TestTracker_GetCameraPoseClampsOutOfRange(t *testing.T) {
	tr := New(32, 32, logging.NewTestLogger(t))
	depth := syntheticPlaneFrame(32, 32, 1500)
	if _, err := tr.Track(context.Background(), depth); err != nil {
		t.Fatalf("frame 0: %v", err)
	}

	last := tr.GetCameraPose(-1)
	outOfRange := tr.GetCameraPose(1000)
	if !last.Point().ApproxEqual(outOfRange.Point()) {
		t.Errorf("GetCameraPose(1000) = %v, want it clamped to the last entry %v", outOfRange, last)
	}
}

// depthFrameFromRaycastLevel reprojects a raycast's world-frame hit points
// back into pose's camera frame to synthesize the depth frame a sensor at
// pose would have produced against the model that was raycast, mirroring
// buildVertexMap's own depth-to-vertex convention (depth is the camera-frame
// Z coordinate, not a radial distance).
func depthFrameFromRaycastLevel(level *fusion.PyramidLevel, pose fusion.Pose, rows, cols int) *fusion.DepthFrame {
	data := make([]uint16, rows*cols)
	for idx, v := range level.Vertices {
		if math.IsNaN(v.X) {
			continue
		}
		camPoint := pose.ToCameraFromWorld(v)
		mm := camPoint.Z * 1000
		if mm > 0 && mm < 65535 {
			data[idx] = uint16(mm)
		}
	}
	return &fusion.DepthFrame{Rows: rows, Cols: cols, Data: data}
}

// synthesizeDepthFromPose raycasts the tracker's current volume from pose
// and reprojects the result into a depth frame, simulating a sensor that
// moved to pose without changing the (already-fused) scene.
func synthesizeDepthFromPose(t *testing.T, tr *Tracker, pose fusion.Pose) *fusion.DepthFrame {
	t.Helper()
	scratch, err := fusion.Raycast(context.Background(), tr.volume, pose, tr.cfg.Intrinsics, tr.rows, tr.cols)
	if err != nil {
		t.Fatalf("synthesizing depth frame: %v", err)
	}
	return depthFrameFromRaycastLevel(&scratch.Levels[0], pose, tr.rows, tr.cols)
}

// TestTracker_RecoversPoseAcrossThreeFramesWithMotion pins down spec.md §8's
// multi-frame tracking invariant: the ICP correspondence search in frame N
// must use the pose that actually produced the held predPyr (the previous
// frame's tracked pose), not a stale pose from two frames back. A scene
// that never moves can't expose an off-by-one there, since neighboring
// poses are equal; this test introduces a genuine, different shift at each
// of three sequential Track calls.
func TestTracker_RecoversPoseAcrossThreeFramesWithMotion(t *testing.T) {
	tr := New(32, 32, logging.NewTestLogger(t))
	tr.SetDepthIntrinsics(50, 50, 16, 16)

	// Frame 0: seeds the volume at the tracker's initial pose. A base depth
	// of 3300mm lands the sensed surface near the volume center (the
	// default initial pose sits 1.8m in front of a 3m cube), so it
	// actually falls within integrateVoxel's truncation band.
	bowl0 := syntheticBowlFrame(32, 32, 3300, 150)
	if _, err := tr.Track(context.Background(), bowl0); err != nil {
		t.Fatalf("frame 0: %v", err)
	}

	// Frame 1: a real shift away from the initial pose.
	pose0 := tr.poseStore.Get(tr.poseStore.Len() - 1)
	shift1 := r3.Vector{X: 0.01, Y: -0.006, Z: 0.004}
	pose1 := fusion.Pose{R: pose0.R, T: pose0.T.Add(shift1)}
	frame1 := synthesizeDepthFromPose(t, tr, pose1)

	tracked1, err := tr.Track(context.Background(), frame1)
	if err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	if !tracked1 {
		t.Fatalf("expected frame 1 to track against a model of its own scene")
	}
	got1 := tr.poseStore.Get(tr.poseStore.Len() - 1)
	if got1.T.Sub(pose1.T).Norm() > 0.01 {
		t.Fatalf("frame 1 recovered translation %v, want close to applied pose %v", got1.T, pose1.T)
	}

	// Frame 2: a second, different shift. Before the run.go fix this call
	// would search correspondences against predPyr (raycast from the
	// tracked pose1) using the stale pose0 instead, corrupting the
	// projective data association.
	shift2 := r3.Vector{X: -0.008, Y: 0.012, Z: -0.005}
	pose2 := fusion.Pose{R: got1.R, T: got1.T.Add(shift2)}
	frame2 := synthesizeDepthFromPose(t, tr, pose2)

	tracked2, err := tr.Track(context.Background(), frame2)
	if err != nil {
		t.Fatalf("frame 2: %v", err)
	}
	if !tracked2 {
		t.Fatalf("expected frame 2 to track against a model of its own scene")
	}

	got2 := tr.poseStore.Get(tr.poseStore.Len() - 1)
	gotShift2 := got2.T.Sub(got1.T)
	if gotShift2.Sub(shift2).Norm() > 0.01 {
		t.Errorf("frame 2 recovered shift %v, want close to the applied shift %v", gotShift2, shift2)
	}
}

func TestTracker_GetColorsFromVolumeNilWhenDisabled(t *testing.T) {
	tr := New(32, 32, logging.NewTestLogger(t))
	depth := syntheticPlaneFrame(32, 32, 1500)
	if _, err := tr.Track(context.Background(), depth); err != nil {
		t.Fatalf("frame 0: %v", err)
	}
	cloud, err := tr.GetCloudFromVolumeHost(true)
	if err != nil {
		t.Fatalf("GetCloudFromVolumeHost: %v", err)
	}
	if colors := tr.GetColorsFromVolume(cloud); colors != nil {
		t.Errorf("expected nil colors with color integration disabled, got %v", colors)
	}
}
