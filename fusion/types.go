package fusion

import "github.com/golang/geo/r3"

// DepthFrame is a 2D array of 16-bit depth values in millimeters. Zero marks
// an invalid pixel. Row-major, length Rows*Cols.
type DepthFrame struct {
	Rows, Cols int
	Data       []uint16
}

// At returns the depth at (row, col) or zero if out of range.
func (d *DepthFrame) At(row, col int) uint16 {
	if row < 0 || row >= d.Rows || col < 0 || col >= d.Cols {
		return 0
	}
	return d.Data[row*d.Cols+col]
}

// ColorFrame is a 2D array of RGB triples, row-major, length Rows*Cols*3.
type ColorFrame struct {
	Rows, Cols int
	Data       []uint8
}

// At returns the RGB triple at (row, col), or zeros if out of range.
func (c *ColorFrame) At(row, col int) (r, g, b uint8) {
	if row < 0 || row >= c.Rows || col < 0 || col >= c.Cols {
		return 0, 0, 0
	}
	i := (row*c.Cols + col) * 3
	return c.Data[i], c.Data[i+1], c.Data[i+2]
}

// PyramidLevel holds a depth image plus its back-projected vertex and normal
// maps at one pyramid resolution. Invalid pixels carry NaN vertices/normals.
type PyramidLevel struct {
	Rows, Cols int
	Depth      []float32   // millimeters, 0 = invalid
	Vertices   []r3.Vector // camera- or world-frame, one per pixel
	Normals    []r3.Vector // unit length, or NaN where undefined
}

// newPyramidLevel allocates a level's buffers, all initially zero/NaN-free;
// callers must fill Vertices/Normals with NaN for invalid pixels.
func newPyramidLevel(rows, cols int) PyramidLevel {
	return PyramidLevel{
		Rows:     rows,
		Cols:     cols,
		Depth:    make([]float32, rows*cols),
		Vertices: make([]r3.Vector, rows*cols),
		Normals:  make([]r3.Vector, rows*cols),
	}
}

func nanVector() r3.Vector {
	return r3.Vector{X: nan, Y: nan, Z: nan}
}

func isNaNVector(v r3.Vector) bool {
	return v.X != v.X || v.Y != v.Y || v.Z != v.Z
}

// Pyramid is the full L-level depth/vertex/normal stack for one frame.
type Pyramid struct {
	Levels [MaxLevels]PyramidLevel
}

func newPyramid(rows, cols int) Pyramid {
	var p Pyramid
	r, c := rows, cols
	for i := 0; i < MaxLevels; i++ {
		p.Levels[i] = newPyramidLevel(r, c)
		r /= 2
		c /= 2
	}
	return p
}
