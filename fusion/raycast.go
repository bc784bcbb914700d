package fusion

import (
	"context"
	"math"

	"github.com/golang/geo/r3"

	"golang.org/x/sync/errgroup"
)

// Raycast synthesizes the level-0 predicted vertex/normal map by marching a
// ray per pixel through the TSDF volume from pose, then builds levels 1..L-1
// by 2x subsampling (not re-raycasting), per spec.md §4.5. Rows are
// partitioned across goroutine workers, mirroring the accelerator kernel
// batch described in SPEC_FULL.md §2A.
func Raycast(ctx context.Context, vol *Volume, pose Pose, intr Intrinsics, rows, cols int) (Pyramid, error) {
	pyr := newPyramid(rows, cols)
	level0 := &pyr.Levels[0]

	g, gctx := errgroup.WithContext(ctx)
	for worker := 0; worker < workerCount(); worker++ {
		w := worker
		g.Go(func() error {
			for row := w; row < rows; row += workerCount() {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				for col := 0; col < cols; col++ {
					idx := row*cols + col
					point, normal, ok := raycastPixel(vol, pose, intr, row, col)
					if !ok {
						level0.Vertices[idx] = nanVector()
						level0.Normals[idx] = nanVector()
						continue
					}
					level0.Vertices[idx] = point
					level0.Normals[idx] = normal
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return pyr, err
	}

	prev := level0
	for i := 1; i < MaxLevels; i++ {
		down := downsamplePredictedLevel(prev)
		pyr.Levels[i] = down
		prev = &pyr.Levels[i]
	}
	return pyr, nil
}

// boxIntersect computes the near/far parametric intersection of a ray with
// the axis-aligned volume cube using the slab method, grounded on
// tfogal-ray-guided-ht/raymarch.go's intersect() (vmin/vmax over per-axis
// t0/t1, hit iff minmax >= maxmin).
func boxIntersect(origin, dir, boxMax r3.Vector) (tNear, tFar float64, hit bool) {
	invX, invY, invZ := 1/dir.X, 1/dir.Y, 1/dir.Z

	t0x, t1x := (0-origin.X)*invX, (boxMax.X-origin.X)*invX
	t0y, t1y := (0-origin.Y)*invY, (boxMax.Y-origin.Y)*invY
	t0z, t1z := (0-origin.Z)*invZ, (boxMax.Z-origin.Z)*invZ

	if t0x > t1x {
		t0x, t1x = t1x, t0x
	}
	if t0y > t1y {
		t0y, t1y = t1y, t0y
	}
	if t0z > t1z {
		t0z, t1z = t1z, t0z
	}

	tNear = math.Max(t0x, math.Max(t0y, t0z))
	tFar = math.Min(t1x, math.Min(t1y, t1z))
	if tNear >= tFar || tFar <= 0 {
		return 0, 0, false
	}
	if tNear < 0 {
		tNear = 0
	}
	return tNear, tFar, true
}

func raycastPixel(vol *Volume, pose Pose, intr Intrinsics, row, col int) (r3.Vector, r3.Vector, bool) {
	dirCam := r3.Vector{
		X: (float64(col) - intr.CX) / intr.FX,
		Y: (float64(row) - intr.CY) / intr.FY,
		Z: 1,
	}.Normalize()
	dirWorld := pose.ApplyRotation(dirCam)
	origin := pose.T

	tNear, tFar, hit := boxIntersect(origin, dirWorld, vol.cfg.SizeMeters)
	if !hit {
		return r3.Vector{}, r3.Vector{}, false
	}

	step := RaycastStepFraction * vol.cfg.TruncationDistanceMeters
	if step <= 0 {
		return r3.Vector{}, r3.Vector{}, false
	}

	prevF, prevValid := 0.0, false
	prevT := tNear

	for t := tNear; t <= tFar; t += step {
		p := origin.Add(dirWorld.Mul(t))
		f, w, ok := trilinearSampleF(vol, p)
		if !ok || w <= 0 {
			prevValid = false
			prevT = t
			continue
		}
		if prevValid && prevF > 0 && f < 0 {
			// Zero crossing between prevT and t; linearly interpolate.
			alpha := prevF / (prevF - f)
			tHit := prevT + alpha*(t-prevT)
			hitPoint := origin.Add(dirWorld.Mul(tHit))
			normal, ok := centralDifferenceGradient(vol, hitPoint)
			if !ok {
				return r3.Vector{}, r3.Vector{}, false
			}
			return hitPoint, normal, true
		}
		prevF = f
		prevValid = true
		prevT = t
	}
	return r3.Vector{}, r3.Vector{}, false
}

// trilinearSampleF samples the normalized TSDF value at an arbitrary world
// point via trilinear interpolation of the 8 enclosing voxel centers. ok is
// false if any of the 8 voxels is out of bounds; w is the minimum weight
// among the 8 corners (>0 required by callers to treat the sample as valid).
func trilinearSampleF(vol *Volume, p r3.Vector) (f float64, w uint16, ok bool) {
	cell := vol.cfg.CellSize()
	fx := p.X/cell.X - 0.5
	fy := p.Y/cell.Y - 0.5
	fz := p.Z/cell.Z - 0.5

	i0, j0, k0 := int(math.Floor(fx)), int(math.Floor(fy)), int(math.Floor(fz))
	tx, ty, tz := fx-float64(i0), fy-float64(j0), fz-float64(k0)

	var minW uint16 = math.MaxUint16
	var acc float64
	for dz := 0; dz <= 1; dz++ {
		for dy := 0; dy <= 1; dy++ {
			for dx := 0; dx <= 1; dx++ {
				i, j, k := i0+dx, j0+dy, k0+dz
				if !vol.InBounds(i, j, k) {
					return 0, 0, false
				}
				cf, cw := vol.At(i, j, k)
				if cw < minW {
					minW = cw
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
				acc += cf * wx * wy * wz
			}
		}
	}
	return acc, minW, true
}

// centralDifferenceGradient computes the unit-length gradient of the
// trilinearly sampled TSDF at p via central differences, shared identically
// by the raycaster and the extractor per spec.md §9.
func centralDifferenceGradient(vol *Volume, p r3.Vector) (r3.Vector, bool) {
	cell := vol.cfg.CellSize()
	h := cell.X
	if cell.Y < h {
		h = cell.Y
	}
	if cell.Z < h {
		h = cell.Z
	}

	sample := func(off r3.Vector) (float64, bool) {
		f, w, ok := trilinearSampleF(vol, p.Add(off))
		return f, ok && w > 0
	}

	fx1, ok1 := sample(r3.Vector{X: h})
	fx0, ok2 := sample(r3.Vector{X: -h})
	fy1, ok3 := sample(r3.Vector{Y: h})
	fy0, ok4 := sample(r3.Vector{Y: -h})
	fz1, ok5 := sample(r3.Vector{Z: h})
	fz0, ok6 := sample(r3.Vector{Z: -h})
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
		return r3.Vector{}, false
	}

	grad := r3.Vector{
		X: (fx1 - fx0) / (2 * h),
		Y: (fy1 - fy0) / (2 * h),
		Z: (fz1 - fz0) / (2 * h),
	}
	if grad.Norm() < 1e-12 {
		return r3.Vector{}, false
	}
	return grad.Normalize(), true
}
