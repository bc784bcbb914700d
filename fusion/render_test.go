package fusion

import (
	"image/color"
	"testing"

	"github.com/golang/geo/r3"
)

func TestRenderLambertian_BlackWhereSurfaceIsMissing(t *testing.T) {
	lvl := newPyramidLevel(2, 2)
	for i := range lvl.Vertices {
		lvl.Vertices[i] = nanVector()
		lvl.Normals[i] = nanVector()
	}
	lvl.Vertices[0] = r3.Vector{X: 0, Y: 0, Z: 1}
	lvl.Normals[0] = r3.Vector{X: 0, Y: 0, Z: -1}

	img := RenderLambertian(&lvl, DefaultLightPos(r3.Vector{X: 1, Y: 1, Z: 1}))

	if got := img.At(1, 0); got != (color.Gray{Y: 0}) {
		t.Errorf("expected a missing-surface pixel to render black, got %v", got)
	}
}

func TestDefaultLightPos_ScalesWithVolume(t *testing.T) {
	got := DefaultLightPos(r3.Vector{X: 2, Y: 2, Z: 2})
	want := r3.Vector{X: -6, Y: -6, Z: -6}
	if got.Sub(want).Norm() > 1e-9 {
		t.Errorf("DefaultLightPos = %v, want %v", got, want)
	}
}
