package fusion

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/pointcloud"
)

// neighborOffsets6 are the axis-aligned 6-connectivity neighbor offsets.
var neighborOffsets6 = [][3]int{
	{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
}

// neighborOffsets13 are the forward half of the 26-connected neighborhood
// (13 offsets); symmetry with the reverse half avoids emitting duplicate
// points for the same sign-flip pair.
var neighborOffsets13 = [][3]int{
	{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
	{1, 1, 0}, {1, -1, 0}, {1, 0, 1}, {1, 0, -1},
	{0, 1, 1}, {0, 1, -1},
	{1, 1, 1}, {1, 1, -1}, {1, -1, 1}, {1, -1, -1},
}

// ExtractPointCloudHost scans the volume host-side and emits a point at the
// sign-weighted linear interpolation between every voxel and each
// sign-flipping neighbor, per spec.md §4.6. connected26 selects the 13-offset
// forward half of the 26-connected neighborhood instead of the 6
// axis-aligned neighbors.
func ExtractPointCloudHost(vol *Volume, connected26 bool) (pointcloud.PointCloud, error) {
	offsets := neighborOffsets6
	if connected26 {
		offsets = neighborOffsets13
	}

	cloud := pointcloud.NewBasicEmpty()
	dims := vol.Dims()

	for k := 0; k < dims[2]; k++ {
		for j := 0; j < dims[1]; j++ {
			for i := 0; i < dims[0]; i++ {
				f, w := vol.At(i, j, k)
				if w == 0 || isSentinel(f) {
					continue
				}
				center := vol.VoxelCenter(i, j, k)

				for _, off := range offsets {
					ni, nj, nk := i+off[0], j+off[1], k+off[2]
					if !vol.InBounds(ni, nj, nk) {
						continue
					}
					fn, wn := vol.At(ni, nj, nk)
					if wn == 0 || isSentinel(fn) {
						continue
					}
					if (f > 0) == (fn > 0) {
						continue // no sign flip
					}
					neighborCenter := vol.VoxelCenter(ni, nj, nk)
					denom := absF(f) + absF(fn)
					if denom < 1e-12 {
						continue
					}
					point := neighborCenter.Mul(absF(f) / denom).Add(center.Mul(absF(fn) / denom))
					//nolint:errcheck
					cloud.Set(point, nil)
				}
			}
		}
	}
	return cloud, nil
}

func isSentinel(fNorm float64) bool {
	// fNorm is normalized F/Divisor; the sentinel Divisor normalizes to 1.0 exactly.
	return fNorm >= 1.0
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// ExtractNormalsHost returns the TSDF gradient (same central-difference
// scheme as the raycaster) at every point in cloud, in cloud iteration order.
func ExtractNormalsHost(vol *Volume, cloud pointcloud.PointCloud) []r3.Vector {
	normals := make([]r3.Vector, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, _ pointcloud.Data) bool {
		n, ok := centralDifferenceGradient(vol, p)
		if !ok {
			n = r3.Vector{}
		}
		normals = append(normals, n)
		return true
	})
	return normals
}

// ExtractColorsHost returns the trilinearly sampled color-volume RGB at
// every point in cloud; empty if color integration was never enabled.
func ExtractColorsHost(vol *Volume, cloud pointcloud.PointCloud) [][3]uint8 {
	if !vol.ColorEnabled() {
		return nil
	}
	colors := make([][3]uint8, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, _ pointcloud.Data) bool {
		colors = append(colors, trilinearSampleColor(vol, p))
		return true
	})
	return colors
}

// trilinearSampleColor samples the color volume at an arbitrary world point
// via trilinear interpolation of the 8 enclosing voxel centers, the same
// corner-weight scheme as trilinearSampleF. Out-of-bounds corners and corners
// with zero color weight contribute nothing to the blend rather than aborting
// it or darkening the result; the remaining weights are renormalized. If no
// enclosing corner carries color, the result is black (0,0,0).
func trilinearSampleColor(vol *Volume, p r3.Vector) [3]uint8 {
	cell := vol.cfg.CellSize()
	fx := p.X/cell.X - 0.5
	fy := p.Y/cell.Y - 0.5
	fz := p.Z/cell.Z - 0.5

	i0, j0, k0 := int(math.Floor(fx)), int(math.Floor(fy)), int(math.Floor(fz))
	tx, ty, tz := fx-float64(i0), fy-float64(j0), fz-float64(k0)

	var accR, accG, accB, weightSum float64
	for dz := 0; dz <= 1; dz++ {
		for dy := 0; dy <= 1; dy++ {
			for dx := 0; dx <= 1; dx++ {
				i, j, k := i0+dx, j0+dy, k0+dz
				if !vol.InBounds(i, j, k) {
					continue
				}
				cr, cg, cb, cw := vol.ColorAt(i, j, k)
				if cw == 0 {
					continue
				}
				wx := tx
				if dx == 0 {
					wx = 1 - tx
				}
				wy := ty
				if dy == 0 {
					wy = 1 - ty
				}
				wz := tz
				if dz == 0 {
					wz = 1 - tz
				}
				weight := wx * wy * wz
				accR += weight * float64(cr)
				accG += weight * float64(cg)
				accB += weight * float64(cb)
				weightSum += weight
			}
		}
	}
	if weightSum < 1e-12 {
		return [3]uint8{}
	}
	return [3]uint8{
		uint8(math.Round(accR / weightSum)),
		uint8(math.Round(accG / weightSum)),
		uint8(math.Round(accB / weightSum)),
	}
}
