package fusion

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"golang.org/x/sync/errgroup"
)

// icpReduction is one worker's partial accumulation of the 6x6 normal matrix
// (upper triangle, 21 entries) and 6-vector b, plus the accepted-correspondence
// count, mirroring the 28-float reduction-buffer layout named in spec.md §9
// (implementers may choose any equivalent layout; this one is host-only,
// so it stores the full A/b directly rather than the packed upper triangle).
type icpReduction struct {
	a       [6][6]float64
	b       [6]float64
	accepted int
}

func (r *icpReduction) add(j [6]float64, residual float64) {
	for row := 0; row < 6; row++ {
		for col := 0; col < 6; col++ {
			r.a[row][col] += j[row] * j[col]
		}
		r.b[row] += j[row] * residual
	}
	r.accepted++
}

func mergeReductions(reductions []icpReduction) icpReduction {
	var out icpReduction
	for _, red := range reductions {
		for row := 0; row < 6; row++ {
			for col := 0; col < 6; col++ {
				out.a[row][col] += red.a[row][col]
			}
			out.b[row] += red.b[row]
		}
		out.accepted += red.accepted
	}
	return out
}

// icpStepResult is the outcome of one Track call's coarse-to-fine ICP.
type icpStepResult struct {
	Pose     Pose
	Singular bool
}

// RunICP refines prevPose against the predicted pyramid predPyr using the
// current-frame pyramid curPyr, coarse-to-fine from level L-1 down to 0.
// Frame 0 must not call this; the caller is responsible for the frame-0
// special case (spec.md §4.3 edge case).
func RunICP(ctx context.Context, curPyr, predPyr *Pyramid, prevPose Pose, intr Intrinsics, cfg ICPConfig) (icpStepResult, error) {
	curPose := prevPose

	for level := MaxLevels - 1; level >= 0; level-- {
		iterations := cfg.IterationsPerLevel[level]
		levelIntr := intr.AtLevel(level)
		curLevel := &curPyr.Levels[level]
		predLevel := &predPyr.Levels[level]

		for iter := 0; iter < iterations; iter++ {
			red, err := accumulateICPReduction(ctx, curLevel, predLevel, curPose, prevPose, levelIntr, cfg)
			if err != nil {
				return icpStepResult{}, err
			}

			if red.accepted == 0 {
				return icpStepResult{Pose: curPose, Singular: true}, nil
			}

			a := mat.NewSymDense(6, nil)
			for row := 0; row < 6; row++ {
				for col := row; col < 6; col++ {
					a.SetSym(row, col, red.a[row][col])
				}
			}
			bVec := mat.NewVecDense(6, red.b[:])

			if !isFiniteSym(a) || !isFiniteVec(bVec) {
				return icpStepResult{Pose: curPose, Singular: true}, nil
			}

			det := mat.Det(a)
			if math.Abs(det) < 1e-15 {
				return icpStepResult{Pose: curPose, Singular: true}, nil
			}

			var chol mat.Cholesky
			if ok := chol.Factorize(a); !ok {
				return icpStepResult{Pose: curPose, Singular: true}, nil
			}
			var xi mat.VecDense
			if err := chol.SolveVecTo(&xi, bVec); err != nil {
				return icpStepResult{Pose: curPose, Singular: true}, nil
			}

			curPose = composeIncrement(curPose,
				xi.AtVec(0), xi.AtVec(1), xi.AtVec(2),
				xi.AtVec(3), xi.AtVec(4), xi.AtVec(5))
		}
	}

	return icpStepResult{Pose: curPose}, nil
}

func isFiniteSym(a *mat.SymDense) bool {
	n, _ := a.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func isFiniteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// accumulateICPReduction performs projective data association for every
// pixel in curLevel against predLevel and sums the point-to-plane
// normal-equation contributions, partitioned across goroutine workers (the
// accelerator-reduction-kernel substitution) then merged on the host.
func accumulateICPReduction(ctx context.Context, curLevel, predLevel *PyramidLevel, curPose, prevPose Pose, intr Intrinsics, cfg ICPConfig) (icpReduction, error) {
	rows, cols := curLevel.Rows, curLevel.Cols
	reductions := make([]icpReduction, workerCount())

	g, gctx := errgroup.WithContext(ctx)
	for worker := 0; worker < workerCount(); worker++ {
		w := worker
		g.Go(func() error {
			local := &reductions[w]
			for row := w; row < rows; row += workerCount() {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				for col := 0; col < cols; col++ {
					idx := row*cols + col
					vCam := curLevel.Vertices[idx]
					nCam := curLevel.Normals[idx]
					if isNaNVector(vCam) || isNaNVector(nCam) {
						continue
					}

					vWorld := curPose.Apply(vCam)
					nWorld := curPose.ApplyRotation(nCam)

					vPrevCam := prevPose.ToCameraFromWorld(vWorld)
					if vPrevCam.Z <= 0 {
						continue
					}
					u := int(math.Round(vPrevCam.X*intr.FX/vPrevCam.Z + intr.CX))
					v := int(math.Round(vPrevCam.Y*intr.FY/vPrevCam.Z + intr.CY))
					if u < 0 || u >= cols || v < 0 || v >= rows {
						continue
					}

					predIdx := v*cols + u
					vHat := predLevel.Vertices[predIdx]
					nHat := predLevel.Normals[predIdx]
					if isNaNVector(vHat) || isNaNVector(nHat) {
						continue
					}

					diff := vWorld.Sub(vHat)
					if diff.Norm() > cfg.DistThresholdMeters {
						continue
					}
					if nWorld.Cross(nHat).Norm() > cfg.SinAngleThreshold {
						continue
					}

					cross := vWorld.Cross(nHat)
					j := [6]float64{cross.X, cross.Y, cross.Z, nHat.X, nHat.Y, nHat.Z}
					residual := nHat.Dot(vHat.Sub(vWorld))
					local.add(j, residual)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return icpReduction{}, err
	}
	return mergeReductions(reductions), nil
}
