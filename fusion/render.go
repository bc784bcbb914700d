package fusion

import (
	"image"
	"image/color"
	"math"

	"github.com/golang/geo/r3"
)

// RenderLambertian shades a predicted vertex/normal map under a single point
// light, per spec.md §6's getImage/getImageFromPose contract. Pixels with no
// surface (NaN vertex/normal) render black.
func RenderLambertian(level *PyramidLevel, lightPos r3.Vector) image.Image {
	img := image.NewGray(image.Rect(0, 0, level.Cols, level.Rows))
	for row := 0; row < level.Rows; row++ {
		for col := 0; col < level.Cols; col++ {
			idx := row*level.Cols + col
			v := level.Vertices[idx]
			n := level.Normals[idx]
			if isNaNVector(v) || isNaNVector(n) {
				img.SetGray(col, row, color.Gray{Y: 0})
				continue
			}
			toLight := lightPos.Sub(v).Normalize()
			intensity := math.Max(0, n.Dot(toLight))
			img.SetGray(col, row, color.Gray{Y: uint8(intensity * 255)})
		}
	}
	return img
}

// DefaultLightPos returns the default point-light position, -3*volume_size
// along each axis per spec.md §6.
func DefaultLightPos(volumeSize r3.Vector) r3.Vector {
	return volumeSize.Mul(-3)
}
