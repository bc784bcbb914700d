package fusion

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
)

// BuildDepthPyramid denoises the raw depth frame, optionally clips far
// pixels, and produces L-level 2x-downsampled depth images. Level 0 is the
// bilateral-filtered (and optionally clipped) frame; levels 1..L-1 are
// Gaussian-weighted 2x downsamples of the previous level.
func BuildDepthPyramid(ctx context.Context, raw *DepthFrame, maxICPDistanceMeters float64) ([MaxLevels][]float32, error) {
	var levels [MaxLevels][]float32

	filtered, err := bilateralFilter(ctx, raw)
	if err != nil {
		return levels, err
	}
	if maxICPDistanceMeters > 0 {
		clipDepthFarPlane(filtered, raw.Rows, raw.Cols, maxICPDistanceMeters)
	}
	levels[0] = filtered

	rows, cols := raw.Rows, raw.Cols
	prev := filtered
	for i := 1; i < MaxLevels; i++ {
		nextRows, nextCols := rows/2, cols/2
		down, err := pyramidDownsample(ctx, prev, rows, cols, nextRows, nextCols)
		if err != nil {
			return levels, err
		}
		levels[i] = down
		prev = down
		rows, cols = nextRows, nextCols
	}
	return levels, nil
}

// clipDepthFarPlane zeroes any pixel whose depth exceeds maxMeters, level 0 only.
func clipDepthFarPlane(depth []float32, rows, cols int, maxMeters float64) {
	maxMM := float32(maxMeters * 1000)
	for i := range depth {
		if depth[i] > maxMM {
			depth[i] = 0
		}
	}
	_ = rows
	_ = cols
}

// bilateralFilter applies a domain-and-range Gaussian denoise to raw depth,
// parameters per the KinectFusion paper: spatial sigma ~4.5px, range sigma
// ~30mm, 7x7 window. Zero pixels remain zero. Rows are processed by a pool
// of goroutines synchronized with errgroup, the accelerator-kernel-batch
// substitution described in SPEC_FULL.md.
func bilateralFilter(ctx context.Context, raw *DepthFrame) ([]float32, error) {
	rows, cols := raw.Rows, raw.Cols
	out := make([]float32, rows*cols)

	spatialWeights := make([]float64, (2*bilateralWindowRadius+1)*(2*bilateralWindowRadius+1))
	idx := 0
	for dy := -bilateralWindowRadius; dy <= bilateralWindowRadius; dy++ {
		for dx := -bilateralWindowRadius; dx <= bilateralWindowRadius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			spatialWeights[idx] = math.Exp(-d2 / (2 * bilateralSpatialSigmaPixels * bilateralSpatialSigmaPixels))
			idx++
		}
	}

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
					out[row*cols+col] = bilateralPixel(raw, row, col, spatialWeights)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func bilateralPixel(raw *DepthFrame, row, col int, spatialWeights []float64) float32 {
	center := raw.At(row, col)
	if center == 0 {
		return 0
	}
	centerD := float64(center)

	var sumWeighted, sumWeight float64
	idx := 0
	for dy := -bilateralWindowRadius; dy <= bilateralWindowRadius; dy++ {
		for dx := -bilateralWindowRadius; dx <= bilateralWindowRadius; dx++ {
			sample := raw.At(row+dy, col+dx)
			w := spatialWeights[idx]
			idx++
			if sample == 0 {
				continue
			}
			rangeDiff := float64(sample) - centerD
			rangeWeight := math.Exp(-(rangeDiff * rangeDiff) / (2 * bilateralRangeSigmaMM * bilateralRangeSigmaMM))
			weight := w * rangeWeight
			sumWeighted += weight * float64(sample)
			sumWeight += weight
		}
	}
	if sumWeight <= 0 {
		return float32(centerD)
	}
	return float32(sumWeighted / sumWeight)
}

// pyramidDownsample computes a 5x5 Gaussian-weighted average of valid (non-zero)
// depth pixels at 2x the resolution of dst, using the separable binomial
// kernel {1,4,6,4,1}; if every neighbor is invalid the output pixel is zero.
func pyramidDownsample(ctx context.Context, src []float32, srcRows, srcCols, dstRows, dstCols int) ([]float32, error) {
	out := make([]float32, dstRows*dstCols)
	kernel := [2*pyramidDownRadius + 1]float64{1, 4, 6, 4, 1}

	at := func(r, c int) float32 {
		if r < 0 || r >= srcRows || c < 0 || c >= srcCols {
			return 0
		}
		return src[r*srcCols+c]
	}

	g, gctx := errgroup.WithContext(ctx)
	for worker := 0; worker < workerCount(); worker++ {
		w := worker
		g.Go(func() error {
			for row := w; row < dstRows; row += workerCount() {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				srcRow := row * 2
				for col := 0; col < dstCols; col++ {
					srcCol := col * 2
					var sum, weightSum float64
					for dy := -pyramidDownRadius; dy <= pyramidDownRadius; dy++ {
						for dx := -pyramidDownRadius; dx <= pyramidDownRadius; dx++ {
							v := at(srcRow+dy, srcCol+dx)
							if v == 0 {
								continue
							}
							wgt := kernel[dy+pyramidDownRadius] * kernel[dx+pyramidDownRadius]
							sum += wgt * float64(v)
							weightSum += wgt
						}
					}
					if weightSum == 0 {
						out[row*dstCols+col] = 0
						continue
					}
					out[row*dstCols+col] = float32(sum / weightSum)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
