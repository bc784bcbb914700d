// Package depthio loads raw depth and color frames from disk for the CLI
// and service entrypoints. Real sensor acquisition is explicitly out of
// scope for this module (spec.md §1); this package exists only so the
// entrypoints have something to feed the Tracker with.
package depthio

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/biotinker/densefusion/fusion"
)

// ListFrames returns the depth frame file paths in dir, sorted by name, so
// callers can iterate a recorded sequence in order.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading frame directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadDepthFrame reads a raw little-endian uint16 depth frame (millimeters,
// zero = invalid) of the given size from path.
func LoadDepthFrame(path string, rows, cols int) (*fusion.DepthFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading depth frame: %w", err)
	}
	want := rows * cols * 2
	if len(data) != want {
		return nil, fmt.Errorf("depth frame %s: expected %d bytes, got %d", path, want, len(data))
	}
	out := make([]uint16, rows*cols)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(data[i*2 : i*2+2])
	}
	return &fusion.DepthFrame{Rows: rows, Cols: cols, Data: out}, nil
}

// LoadColorFrame reads a raw interleaved RGB888 color frame of the given size from path.
func LoadColorFrame(path string, rows, cols int) (*fusion.ColorFrame, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading color frame: %w", err)
	}
	want := rows * cols * 3
	if len(data) != want {
		return nil, fmt.Errorf("color frame %s: expected %d bytes, got %d", path, want, len(data))
	}
	out := make([]uint8, want)
	copy(out, data)
	return &fusion.ColorFrame{Rows: rows, Cols: cols, Data: out}, nil
}
