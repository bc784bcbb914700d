// Package config loads tracker run parameters from a JSON file
// (os.ReadFile + json.Unmarshal, errors wrapped with %w).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang/geo/r3"
)

// RunConfig holds the CLI/service-level parameters for a tracking run. It is
// a thin JSON front-end over the subset of fusion.Config an operator may
// reasonably want to override without recompiling.
type RunConfig struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`

	FX float64 `json:"fx"`
	FY float64 `json:"fy"`
	CX float64 `json:"cx"`
	CY float64 `json:"cy"`

	VolumeSizeMeters      r3.Vector `json:"volume_size_meters"`
	TruncationDistance    float64   `json:"truncation_distance_meters"`
	MaxICPDistanceMeters  float64   `json:"max_icp_distance_meters"`
	ColorMaxWeight        int       `json:"color_max_weight"`
	EnableColor           bool      `json:"enable_color"`

	DepthFramesDir string `json:"depth_frames_dir"`
	ColorFramesDir string `json:"color_frames_dir"`
}

// Load reads and parses a run configuration from a JSON file.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var c RunConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &c, nil
}
