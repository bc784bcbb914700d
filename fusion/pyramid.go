package fusion

import (
	"context"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"golang.org/x/sync/errgroup"
)

// BuildPyramid constructs the vertex and normal maps for every pyramid level
// from the already-denoised/downsampled depth levels, in camera-frame
// coordinates.
func BuildPyramid(ctx context.Context, depthLevels [MaxLevels][]float32, rows, cols int, intr Intrinsics) (Pyramid, error) {
	pyr := newPyramid(rows, cols)
	r, c := rows, cols
	for i := 0; i < MaxLevels; i++ {
		pyr.Levels[i].Depth = depthLevels[i]
		levelIntr := intr.AtLevel(i)
		if err := buildVertexMap(ctx, &pyr.Levels[i], levelIntr); err != nil {
			return pyr, err
		}
		if err := buildNormalMap(ctx, &pyr.Levels[i]); err != nil {
			return pyr, err
		}
		r /= 2
		c /= 2
	}
	return pyr, nil
}

// buildVertexMap back-projects each valid depth pixel to a camera-frame 3D
// point: (d*(u-cx)/fx, d*(v-cy)/fy, d), depth converted from mm to meters.
// Invalid pixels (depth == 0) emit NaN.
func buildVertexMap(ctx context.Context, level *PyramidLevel, intr Intrinsics) error {
	rows, cols := level.Rows, level.Cols
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
					d := level.Depth[idx]
					if d == 0 {
						level.Vertices[idx] = nanVector()
						continue
					}
					dm := float64(d) / 1000
					level.Vertices[idx] = r3.Vector{
						X: dm * (float64(col) - intr.CX) / intr.FX,
						Y: dm * (float64(row) - intr.CY) / intr.FY,
						Z: dm,
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// buildNormalMap estimates a unit surface normal per pixel from the 3x3
// eigen-decomposition of the local covariance of its vertex-map neighbors,
// generalizing apple_pose/curvature.go's PCA-neighborhood approach to a
// fixed image-grid neighborhood. NaN where undefined.
func buildNormalMap(ctx context.Context, level *PyramidLevel) error {
	rows, cols := level.Rows, level.Cols
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
					n, ok := estimatePixelNormal(level, row, col)
					if !ok {
						level.Normals[idx] = nanVector()
						continue
					}
					level.Normals[idx] = n
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// estimatePixelNormal builds the covariance of the 3x3 pixel neighborhood's
// vertices and returns the eigenvector of the smallest eigenvalue, oriented
// to face the camera (negative Z hemisphere in camera space is "outward").
func estimatePixelNormal(level *PyramidLevel, row, col int) (r3.Vector, bool) {
	center := level.Vertices[row*level.Cols+col]
	if isNaNVector(center) {
		return r3.Vector{}, false
	}

	var neighbors []r3.Vector
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nr, nc := row+dy, col+dx
			if nr < 0 || nr >= level.Rows || nc < 0 || nc >= level.Cols {
				continue
			}
			v := level.Vertices[nr*level.Cols+nc]
			if isNaNVector(v) {
				continue
			}
			neighbors = append(neighbors, v)
		}
	}
	if len(neighbors) < 3 {
		return r3.Vector{}, false
	}

	var cx, cy, cz float64
	for _, v := range neighbors {
		cx += v.X
		cy += v.Y
		cz += v.Z
	}
	n := float64(len(neighbors))
	cx /= n
	cy /= n
	cz /= n

	var cov [9]float64
	for _, v := range neighbors {
		dx := v.X - cx
		dy := v.Y - cy
		dz := v.Z - cz
		cov[0] += dx * dx
		cov[1] += dx * dy
		cov[2] += dx * dz
		cov[3] += dy * dx
		cov[4] += dy * dy
		cov[5] += dy * dz
		cov[6] += dz * dx
		cov[7] += dz * dy
		cov[8] += dz * dz
	}
	for i := range cov {
		cov[i] /= n
	}

	covMat := mat.NewSymDense(3, []float64{
		cov[0], cov[1], cov[2],
		cov[3], cov[4], cov[5],
		cov[6], cov[7], cov[8],
	})

	var eigen mat.EigenSym
	if !eigen.Factorize(covMat, true) {
		return r3.Vector{}, false
	}

	var vecs mat.Dense
	eigen.VectorsTo(&vecs)
	normal := r3.Vector{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	if normal.Dot(center) > 0 {
		normal = normal.Mul(-1) // orient toward the camera
	}
	return normal.Normalize(), true
}

// downsamplePredictedLevel 2x-subsamples a level-0 predicted vertex/normal
// map (rather than re-raycasting) to build levels 1..L-1 of the predicted
// pyramid, preserving NaN.
func downsamplePredictedLevel(prev *PyramidLevel) PyramidLevel {
	dstRows, dstCols := prev.Rows/2, prev.Cols/2
	out := newPyramidLevel(dstRows, dstCols)
	for row := 0; row < dstRows; row++ {
		for col := 0; col < dstCols; col++ {
			srcIdx := (row*2)*prev.Cols + col*2
			dstIdx := row*dstCols + col
			out.Vertices[dstIdx] = prev.Vertices[srcIdx]
			out.Normals[dstIdx] = prev.Normals[srcIdx]
			out.Depth[dstIdx] = prev.Depth[srcIdx]
		}
	}
	return out
}
