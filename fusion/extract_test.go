package fusion

import (
	"testing"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/pointcloud"
)

func twoVoxelVolume(t *testing.T) *Volume {
	t.Helper()
	cfg := VolumeConfig{
		Dims:       [3]int{4, 4, 4},
		SizeMeters: r3.Vector{X: 4, Y: 4, Z: 4},
		MaxWeight:  DefaultMaxWeight,
	}
	vol := NewVolume(cfg)
	var negHalf, posHalf float64 = -0.5, 0.5
	vol.words[vol.index(0, 0, 0)] = packVoxel(int16(negHalf*Divisor), 10)
	vol.words[vol.index(1, 0, 0)] = packVoxel(int16(posHalf*Divisor), 10)
	return vol
}

func TestExtractPointCloudHost_SingleSignFlip(t *testing.T) {
	vol := twoVoxelVolume(t)

	cloud, err := ExtractPointCloudHost(vol, false)
	if err != nil {
		t.Fatalf("ExtractPointCloudHost: %v", err)
	}
	if cloud.Size() != 1 {
		t.Fatalf("expected exactly 1 extracted point, got %d", cloud.Size())
	}

	var got r3.Vector
	cloud.Iterate(0, 0, func(p r3.Vector, _ pointcloud.Data) bool {
		got = p
		return true
	})
	want := r3.Vector{X: 1.0, Y: 0.5, Z: 0.5}
	if got.Sub(want).Norm() > 1e-9 {
		t.Errorf("extracted point = %v, want %v", got, want)
	}
}

func TestExtractPointCloudHost_EmptyVolumeYieldsNoPoints(t *testing.T) {
	cfg := VolumeConfig{
		Dims:       [3]int{4, 4, 4},
		SizeMeters: r3.Vector{X: 4, Y: 4, Z: 4},
		MaxWeight:  DefaultMaxWeight,
	}
	vol := NewVolume(cfg)

	cloud, err := ExtractPointCloudHost(vol, true)
	if err != nil {
		t.Fatalf("ExtractPointCloudHost: %v", err)
	}
	if cloud.Size() != 0 {
		t.Errorf("expected no points from an all-sentinel volume, got %d", cloud.Size())
	}
}

func TestExtractNormalsHost_LengthMatchesCloud(t *testing.T) {
	vol := twoVoxelVolume(t)
	cloud, err := ExtractPointCloudHost(vol, false)
	if err != nil {
		t.Fatalf("ExtractPointCloudHost: %v", err)
	}
	normals := ExtractNormalsHost(vol, cloud)
	if len(normals) != cloud.Size() {
		t.Errorf("got %d normals, want %d matching cloud size", len(normals), cloud.Size())
	}
}

func TestExtractColorsHost_NilWhenColorDisabled(t *testing.T) {
	vol := twoVoxelVolume(t)
	cloud, err := ExtractPointCloudHost(vol, false)
	if err != nil {
		t.Fatalf("ExtractPointCloudHost: %v", err)
	}
	if colors := ExtractColorsHost(vol, cloud); colors != nil {
		t.Errorf("expected nil colors when color integration was never enabled, got %v", colors)
	}
}

func TestTrilinearSampleColor_BlendsTwoNeighboringVoxels(t *testing.T) {
	cfg := VolumeConfig{
		Dims:       [3]int{4, 4, 4},
		SizeMeters: r3.Vector{X: 4, Y: 4, Z: 4},
		MaxWeight:  DefaultMaxWeight,
	}
	vol := NewVolume(cfg)
	vol.EnableColor(ColorConfig{Enabled: true, MaxWeight: DefaultMaxColorWeight})
	vol.colorWords[vol.index(0, 0, 0)] = packColor(0, 0, 0, 10)
	vol.colorWords[vol.index(1, 0, 0)] = packColor(100, 150, 200, 10)

	// (1.0, 0.5, 0.5) sits exactly midway between voxel (0,0,0)'s center
	// (0.5,0.5,0.5) and voxel (1,0,0)'s center (1.5,0.5,0.5); the other 6
	// enclosing corners have no color set and must contribute 0 weight, not
	// drag the average toward black.
	got := trilinearSampleColor(vol, r3.Vector{X: 1.0, Y: 0.5, Z: 0.5})
	want := [3]uint8{50, 75, 100}
	if got != want {
		t.Errorf("trilinearSampleColor = %v, want %v", got, want)
	}
}

func TestIsSentinel(t *testing.T) {
	if !isSentinel(1.0) {
		t.Errorf("expected 1.0 to be the empty sentinel")
	}
	if isSentinel(0.999) {
		t.Errorf("expected 0.999 not to be treated as the sentinel")
	}
}
