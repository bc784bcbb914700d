package fusion

import "github.com/golang/geo/r3"

func nonZeroTranslation() r3.Vector {
	return r3.Vector{X: 0.1, Y: -0.2, Z: 0.3}
}

// syntheticPlaneDepth generates a fronto-parallel-plane depth frame at
// planeZMeters, matching scenario S1 in spec.md §8.
func syntheticPlaneDepth(rows, cols int, intr Intrinsics, planeZMeters float64) *DepthFrame {
	data := make([]uint16, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			data[row*cols+col] = uint16(planeZMeters * 1000)
		}
	}
	_ = intr
	return &DepthFrame{Rows: rows, Cols: cols, Data: data}
}

// syntheticEmptyDepth generates an all-zero (all-invalid) depth frame.
func syntheticEmptyDepth(rows, cols int) *DepthFrame {
	return &DepthFrame{Rows: rows, Cols: cols, Data: make([]uint16, rows*cols)}
}

// syntheticBowlDepth generates a paraboloid depth surface curving away from
// the camera at its edges. Unlike a fronto-parallel plane, the surface
// normal varies with pixel position, giving ICP a well-conditioned,
// full-rank correspondence set (a single infinite plane leaves translation
// within the plane unconstrained).
func syntheticBowlDepth(rows, cols int, baseMeters, curvature float64) *DepthFrame {
	data := make([]uint16, rows*cols)
	cx, cy := float64(cols)/2, float64(rows)/2
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			dx := (float64(col) - cx) / float64(cols)
			dy := (float64(row) - cy) / float64(rows)
			meters := baseMeters + curvature*(dx*dx+dy*dy)
			data[row*cols+col] = uint16(meters * 1000)
		}
	}
	return &DepthFrame{Rows: rows, Cols: cols, Data: data}
}
