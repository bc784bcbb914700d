package densefusion

import "github.com/biotinker/densefusion/fusion"

// Re-exported so callers of the public Tracker API never need to import the
// internal fusion package just to compare errors with errors.Is.
var (
	ErrNilDepthFrame     = fusion.ErrNilDepthFrame
	ErrNilColorFrame     = fusion.ErrNilColorFrame
	ErrDimensionMismatch = fusion.ErrDimensionMismatch
	ErrColorNotEnabled   = fusion.ErrColorNotEnabled
	ErrEmptyVolume       = fusion.ErrEmptyVolume
)
