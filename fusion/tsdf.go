package fusion

import (
	"context"
	"math"

	"github.com/golang/geo/r3"

	"golang.org/x/sync/errgroup"
)

// Volume is the packed TSDF (+ optional color) voxel grid. Each TSDF voxel
// packs F (signed, scaled by Divisor, sentinel=Divisor for empty) and W
// (unsigned weight) into a single 32-bit word, per the on-accelerator
// contract in spec.md §9 ("Volume on-accelerator"): a flat buffer of 32-bit
// words laid out (z*Y+y, x).
type Volume struct {
	cfg    VolumeConfig
	words  []uint32 // len Dims[0]*Dims[1]*Dims[2]

	colorEnabled bool
	colorCfg     ColorConfig
	colorWords   []uint32 // packed R,G,B,W byte fields; see packColor
}

// NewVolume allocates an empty (all-sentinel, zero-weight) volume.
func NewVolume(cfg VolumeConfig) *Volume {
	n := cfg.Dims[0] * cfg.Dims[1] * cfg.Dims[2]
	v := &Volume{cfg: cfg, words: make([]uint32, n)}
	v.Reset()
	return v
}

// EnableColor allocates the color volume with an independent weight cap.
func (v *Volume) EnableColor(cfg ColorConfig) {
	n := v.cfg.Dims[0] * v.cfg.Dims[1] * v.cfg.Dims[2]
	v.colorWords = make([]uint32, n)
	v.colorEnabled = true
	v.colorCfg = cfg
}

// ColorEnabled reports whether InitColorIntegration has been called.
func (v *Volume) ColorEnabled() bool {
	return v.colorEnabled
}

// Reset clears the TSDF volume to the empty sentinel / zero weight, and the
// color volume (if enabled) to zero.
func (v *Volume) Reset() {
	empty := packVoxel(Divisor, 0)
	for i := range v.words {
		v.words[i] = empty
	}
	for i := range v.colorWords {
		v.colorWords[i] = 0
	}
}

func packVoxel(f int16, w uint16) uint32 {
	return uint32(uint16(f))<<16 | uint32(w)
}

func unpackVoxel(word uint32) (f int16, w uint16) {
	return int16(word >> 16), uint16(word & 0xFFFF)
}

// packColor packs an RGB triple and a weight (capped at 255, sufficient for
// any realistic max_weight_ configuration) into one 32-bit word: RGBW bytes.
func packColor(r, g, b uint8, w uint16) uint32 {
	if w > 255 {
		w = 255
	}
	return uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(w)
}

func unpackColor(word uint32) (r, g, b uint8, w uint16) {
	r = uint8(word >> 24)
	g = uint8(word >> 16)
	b = uint8(word >> 8)
	w = uint16(word & 0xFF)
	return
}

// index converts voxel coordinates to a flat word index using the (z*Y+y, x)
// layout named in spec.md §9.
func (v *Volume) index(i, j, k int) int {
	return (k*v.cfg.Dims[1]+j)*v.cfg.Dims[0] + i
}

// InBounds reports whether (i,j,k) is a valid voxel index.
func (v *Volume) InBounds(i, j, k int) bool {
	return i >= 0 && i < v.cfg.Dims[0] && j >= 0 && j < v.cfg.Dims[1] && k >= 0 && k < v.cfg.Dims[2]
}

// At returns the normalized [-1,1] TSDF value and weight at (i,j,k).
func (v *Volume) At(i, j, k int) (f float64, w uint16) {
	fi, wi := unpackVoxel(v.words[v.index(i, j, k)])
	return float64(fi) / Divisor, wi
}

// ColorAt returns the fused RGB and weight at (i,j,k); zero if color is disabled.
func (v *Volume) ColorAt(i, j, k int) (r, g, b uint8, w uint16) {
	if !v.colorEnabled {
		return 0, 0, 0, 0
	}
	return unpackColor(v.colorWords[v.index(i, j, k)])
}

// VoxelCenter returns the world-space center of voxel (i,j,k).
func (v *Volume) VoxelCenter(i, j, k int) r3.Vector {
	cell := v.cfg.CellSize()
	return r3.Vector{
		X: (float64(i) + 0.5) * cell.X,
		Y: (float64(j) + 0.5) * cell.Y,
		Z: (float64(k) + 0.5) * cell.Z,
	}
}

// Dims returns the voxel grid resolution.
func (v *Volume) Dims() [3]int { return v.cfg.Dims }

// SizeMeters returns the world-space cube edge lengths.
func (v *Volume) SizeMeters() r3.Vector { return v.cfg.SizeMeters }

// Config returns the volume's geometry configuration.
func (v *Volume) Config() VolumeConfig { return v.cfg }

// Integrate fuses raw (unfiltered, scaled to mm) depth into the volume from
// the given pose, per spec.md §4.4. depthScaled must be the raw unfiltered
// depth reading, not the bilateral-filtered pyramid level 0.
func Integrate(ctx context.Context, vol *Volume, depthScaled *DepthFrame, pose Pose, intr Intrinsics) error {
	return integrateSlices(ctx, vol, func(i, j, k int) {
		integrateVoxel(vol, depthScaled, pose, intr, i, j, k)
	})
}

// IntegrateColor fuses depth and color simultaneously; color updates only
// occur for voxels whose |F| after the TSDF update falls within a narrow
// band of the surface.
func IntegrateColor(ctx context.Context, vol *Volume, depthScaled *DepthFrame, color *ColorFrame, pose Pose, intr Intrinsics) error {
	if !vol.colorEnabled {
		return ErrColorNotEnabled
	}
	const surfaceBand = 0.2 // fraction of Divisor within which color updates apply
	return integrateSlices(ctx, vol, func(i, j, k int) {
		updated := integrateVoxel(vol, depthScaled, pose, intr, i, j, k)
		if !updated {
			return
		}
		f, w := vol.At(i, j, k)
		if w == 0 || math.Abs(f) > surfaceBand {
			return
		}
		integrateColorVoxel(vol, color, pose, intr, i, j, k)
	})
}

func integrateSlices(ctx context.Context, vol *Volume, fn func(i, j, k int)) error {
	dims := vol.cfg.Dims
	g, gctx := errgroup.WithContext(ctx)
	for worker := 0; worker < workerCount(); worker++ {
		w := worker
		g.Go(func() error {
			for k := w; k < dims[2]; k += workerCount() {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				for j := 0; j < dims[1]; j++ {
					for i := 0; i < dims[0]; i++ {
						fn(i, j, k)
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// integrateVoxel fuses one voxel's TSDF observation and reports whether it
// was updated (projected inside the image with a valid depth reading).
func integrateVoxel(vol *Volume, depth *DepthFrame, pose Pose, intr Intrinsics, i, j, k int) bool {
	center := vol.VoxelCenter(i, j, k)
	cam := pose.ToCameraFromWorld(center)
	if cam.Z <= 0 {
		return false
	}

	u := int(math.Round(cam.X*intr.FX/cam.Z + intr.CX))
	v := int(math.Round(cam.Y*intr.FY/cam.Z + intr.CY))
	if u < 0 || u >= depth.Cols || v < 0 || v >= depth.Rows {
		return false
	}

	dMM := depth.At(v, u)
	if dMM == 0 {
		return false
	}
	d := float64(dMM) / 1000

	eta := d - cam.Z
	mu := vol.cfg.TruncationDistanceMeters
	if eta < -mu {
		return false
	}

	fNew := eta / mu
	if fNew > 1 {
		fNew = 1
	}
	const wNew = 1.0

	idx := vol.index(i, j, k)
	fOld, wOld := unpackVoxel(vol.words[idx])
	var fOldNorm float64
	if wOld == 0 {
		fOldNorm = 0
	} else {
		fOldNorm = float64(fOld) / Divisor
	}

	fUpdated := (float64(wOld)*fOldNorm + wNew*fNew) / (float64(wOld) + wNew)
	wUpdated := uint16(math.Min(float64(wOld)+wNew, float64(vol.cfg.MaxWeight)))

	vol.words[idx] = packVoxel(int16(math.Round(fUpdated*Divisor)), wUpdated)
	return true
}

func integrateColorVoxel(vol *Volume, color *ColorFrame, pose Pose, intr Intrinsics, i, j, k int) {
	center := vol.VoxelCenter(i, j, k)
	cam := pose.ToCameraFromWorld(center)
	if cam.Z <= 0 {
		return
	}
	u := int(math.Round(cam.X*intr.FX/cam.Z + intr.CX))
	v := int(math.Round(cam.Y*intr.FY/cam.Z + intr.CY))
	if u < 0 || u >= color.Cols || v < 0 || v >= color.Rows {
		return
	}
	r, g, b := color.At(v, u)

	idx := vol.index(i, j, k)
	oldR, oldG, oldB, oldW := unpackColor(vol.colorWords[idx])
	newW := oldW + 1
	if newW > vol.colorCfg.MaxWeight {
		newW = vol.colorCfg.MaxWeight
	}
	blend := func(oldC, newC uint8) uint8 {
		return uint8((float64(oldW)*float64(oldC) + float64(newC)) / (float64(oldW) + 1))
	}
	vol.colorWords[idx] = packColor(blend(oldR, r), blend(oldG, g), blend(oldB, b), newW)
}
