package densefusion

import (
	"context"
	"image"

	"github.com/golang/geo/r3"

	"github.com/biotinker/densefusion/fusion"

	"go.viam.com/rdk/pointcloud"
	"go.viam.com/rdk/spatialmath"
)

// GetCameraPose returns the pose fused at time; -1 (or any out-of-range
// value) returns the most recent pose, per spec.md §7's out-of-range policy.
func (t *Tracker) GetCameraPose(time int) spatialmath.Pose {
	return t.poseStore.Get(time).ToSpatialmath()
}

// GetImage renders the current predicted vertex/normal map with Lambertian
// shading under a single point light. lightPos is optional; a nil pointer
// selects the default (-3*volume_size).
func (t *Tracker) GetImage(lightPos *r3.Vector) image.Image {
	pos := fusion.DefaultLightPos(t.cfg.Volume.SizeMeters)
	if lightPos != nil {
		pos = *lightPos
	}
	return fusion.RenderLambertian(&t.predPyr.Levels[0], pos)
}

// GetImageFromPose raycasts into a scratch pyramid from an arbitrary pose
// and shades it, without disturbing the tracker's own predicted pyramid.
func (t *Tracker) GetImageFromPose(ctx context.Context, pose spatialmath.Pose, lightPos *r3.Vector) (image.Image, error) {
	scratch, err := fusion.Raycast(ctx, t.volume, fusion.PoseFromSpatialmath(pose), t.cfg.Intrinsics, t.rows, t.cols)
	if err != nil {
		return nil, err
	}
	pos := fusion.DefaultLightPos(t.cfg.Volume.SizeMeters)
	if lightPos != nil {
		pos = *lightPos
	}
	return fusion.RenderLambertian(&scratch.Levels[0], pos), nil
}

// GetLastFrameCloud returns the level-0 predicted vertex map from the most
// recent raycast, valid only until the next Track call overwrites it.
func (t *Tracker) GetLastFrameCloud() []r3.Vector {
	return t.predPyr.Levels[0].Vertices
}

// GetLastFrameNormals returns the level-0 predicted normal map from the most
// recent raycast, valid only until the next Track call overwrites it.
func (t *Tracker) GetLastFrameNormals() []r3.Vector {
	return t.predPyr.Levels[0].Normals
}

// GetCloudFromVolumeHost extracts a point cloud directly from the TSDF
// volume by zero-crossing detection. connected26 selects the 13-neighbor
// forward half of the 26-connected neighborhood instead of 6-connectivity.
func (t *Tracker) GetCloudFromVolumeHost(connected26 bool) (pointcloud.PointCloud, error) {
	return fusion.ExtractPointCloudHost(t.volume, connected26)
}

// GetNormalsFromVolume returns the TSDF gradient at every point of cloud.
func (t *Tracker) GetNormalsFromVolume(cloud pointcloud.PointCloud) []r3.Vector {
	return fusion.ExtractNormalsHost(t.volume, cloud)
}

// GetColorsFromVolume returns the trilinearly sampled color-volume RGB at
// every point of cloud; empty if color integration was never enabled, per
// spec.md §7's "empty color volume" policy (no failure signal).
func (t *Tracker) GetColorsFromVolume(cloud pointcloud.PointCloud) [][3]uint8 {
	return fusion.ExtractColorsHost(t.volume, cloud)
}

// GetTsdfVolume downloads the normalized (F/Divisor) TSDF value for every voxel.
func (t *Tracker) GetTsdfVolume() []float64 {
	values, _ := t.tsdfAndWeights()
	return values
}

// GetTsdfVolumeAndWeights downloads both the normalized TSDF value and
// weight for every voxel, in (z*Y+y, x) flat order matching spec.md §9.
func (t *Tracker) GetTsdfVolumeAndWeights() (values []float64, weights []uint16) {
	return t.tsdfAndWeights()
}

func (t *Tracker) tsdfAndWeights() ([]float64, []uint16) {
	dims := t.volume.Dims()
	n := dims[0] * dims[1] * dims[2]
	values := make([]float64, n)
	weights := make([]uint16, n)
	idx := 0
	for k := 0; k < dims[2]; k++ {
		for j := 0; j < dims[1]; j++ {
			for i := 0; i < dims[0]; i++ {
				f, w := t.volume.At(i, j, k)
				values[idx] = f
				weights[idx] = w
				idx++
			}
		}
	}
	return values, weights
}
