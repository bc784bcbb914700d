package fusion

import (
	"math"

	"github.com/golang/geo/r3"
)

// sinDegrees returns sin(angle) for an angle given in degrees, used for the
// ICP normal-angle threshold (spec.md §3 stores the threshold as sin(angle),
// not radians).
func sinDegrees(deg float64) float64 {
	return math.Sin(deg * math.Pi / 180)
}

// MaxLevels is the number of pyramid levels (L in the tracking literature).
const MaxLevels = 3

// Divisor scales the normalized TSDF value [-1, 1] into an int16. DIVISOR
// itself is the empty-voxel sentinel.
const Divisor = 32767

const (
	// DefaultVolumeDim is the default per-axis voxel resolution.
	DefaultVolumeDim = 512

	// DefaultVolumeSizeMeters is the default edge length of the reconstruction cube.
	DefaultVolumeSizeMeters = 3.0

	// DefaultFocalLength is the default fx = fy when the caller does not set intrinsics.
	DefaultFocalLength = 525.0

	// DefaultTruncationDistanceMeters is the constructor default for mu, before the
	// 2.1*max(cell edge) lower clamp is applied.
	DefaultTruncationDistanceMeters = 0.03

	// DefaultMaxWeight caps the number of TSDF observations fused into a voxel.
	DefaultMaxWeight = 64

	// DefaultMaxColorWeight caps color-volume observations independently of the TSDF weight.
	// See DESIGN.md Open Question decision: these are never coupled.
	DefaultMaxColorWeight = 64

	// RaycastStepFraction is the ray-marching step size as a fraction of mu.
	RaycastStepFraction = 0.8

	bilateralSpatialSigmaPixels = 4.5
	bilateralRangeSigmaMM       = 30.0
	bilateralWindowRadius       = 3 // 7x7 window
	pyramidDownRadius           = 2 // 5x5 window
)

// Intrinsics holds pinhole camera parameters in pixels.
type Intrinsics struct {
	FX, FY, CX, CY float64
}

// AtLevel scales intrinsics for pyramid level i (0 = full resolution).
func (in Intrinsics) AtLevel(level int) Intrinsics {
	scale := 1.0
	for i := 0; i < level; i++ {
		scale /= 2
	}
	return Intrinsics{
		FX: in.FX * scale,
		FY: in.FY * scale,
		CX: in.CX * scale,
		CY: in.CY * scale,
	}
}

// ICPConfig holds coarse-to-fine ICP parameters.
type ICPConfig struct {
	IterationsPerLevel  [MaxLevels]int // level 0..L-1, defaults {10,5,4}
	DistThresholdMeters float64        // max correspondence distance
	SinAngleThreshold   float64        // max sin(angle) between normals
}

// DepthConfig holds depth-preprocessing parameters.
type DepthConfig struct {
	MaxICPDistanceMeters float64 // 0 disables far-clip
}

// VolumeConfig holds TSDF volume geometry parameters.
type VolumeConfig struct {
	Dims                     [3]int
	SizeMeters               r3.Vector
	TruncationDistanceMeters float64
	MaxWeight                uint16
}

// CellSize returns the world-space edge length of a single voxel per axis.
func (v VolumeConfig) CellSize() r3.Vector {
	return r3.Vector{
		X: v.SizeMeters.X / float64(v.Dims[0]),
		Y: v.SizeMeters.Y / float64(v.Dims[1]),
		Z: v.SizeMeters.Z / float64(v.Dims[2]),
	}
}

// MinTruncationDistance returns 2.1 * max(cell edge), the lower clamp for mu.
func (v VolumeConfig) MinTruncationDistance() float64 {
	c := v.CellSize()
	m := c.X
	if c.Y > m {
		m = c.Y
	}
	if c.Z > m {
		m = c.Z
	}
	return 2.1 * m
}

// ColorConfig holds color-volume fusion parameters.
type ColorConfig struct {
	Enabled   bool
	MaxWeight uint16
}

// Config aggregates every tunable parameter of the tracking-and-fusion pipeline.
type Config struct {
	Rows, Cols int
	Intrinsics Intrinsics
	ICP        ICPConfig
	Depth      DepthConfig
	Volume     VolumeConfig
	Color      ColorConfig
}

// DefaultConfig returns a Config with the constructor defaults from the
// external-interface contract: fx=fy=525, cx/cy centered, a 3m cube volume,
// mu=0.03m (clamped upward if the resulting cell edge demands it), and ICP
// iteration counts {10,5,4} for levels {0,1,2}.
func DefaultConfig(rows, cols int) Config {
	cfg := Config{
		Rows: rows,
		Cols: cols,
		Intrinsics: Intrinsics{
			FX: DefaultFocalLength,
			FY: DefaultFocalLength,
			CX: float64(cols) / 2,
			CY: float64(rows) / 2,
		},
		ICP: ICPConfig{
			IterationsPerLevel:  [MaxLevels]int{10, 5, 4},
			DistThresholdMeters: 0.10,
			SinAngleThreshold:   sinDegrees(20),
		},
		Depth: DepthConfig{
			MaxICPDistanceMeters: 0,
		},
		Volume: VolumeConfig{
			Dims:       [3]int{DefaultVolumeDim, DefaultVolumeDim, DefaultVolumeDim},
			SizeMeters: r3.Vector{X: DefaultVolumeSizeMeters, Y: DefaultVolumeSizeMeters, Z: DefaultVolumeSizeMeters},
			MaxWeight:  DefaultMaxWeight,
		},
		Color: ColorConfig{
			Enabled:   false,
			MaxWeight: DefaultMaxColorWeight,
		},
	}
	cfg.Volume.TruncationDistanceMeters = clampTruncationDistance(DefaultTruncationDistanceMeters, cfg.Volume)
	return cfg
}

// clampTruncationDistance enforces mu >= 2.1*max(cell edge).
func clampTruncationDistance(mu float64, vc VolumeConfig) float64 {
	min := vc.MinTruncationDistance()
	if mu < min {
		return min
	}
	return mu
}

// DefaultInitialPose returns the camera pose used at construction: identity
// rotation, translation placed so the camera looks along +Z into the volume
// center from just outside it.
func DefaultInitialPose(volumeSize r3.Vector) Pose {
	return Pose{
		R: IdentityMat3(),
		T: r3.Vector{
			X: volumeSize.X / 2,
			Y: volumeSize.Y / 2,
			Z: -0.6 * volumeSize.Z,
		},
	}
}
