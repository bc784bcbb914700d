package fusion

import "errors"

var (
	// ErrNilDepthFrame is returned when a nil depth frame is passed to Track or TrackWithColor.
	ErrNilDepthFrame = errors.New("depth frame is nil")

	// ErrNilColorFrame is returned when color integration is requested without a color frame.
	ErrNilColorFrame = errors.New("color frame is nil")

	// ErrDimensionMismatch is returned when a frame's dimensions do not match the tracker's configured size.
	ErrDimensionMismatch = errors.New("frame dimensions do not match tracker configuration")

	// ErrColorNotEnabled is returned when color fusion is used before InitColorIntegration.
	ErrColorNotEnabled = errors.New("color integration not enabled")

	// ErrSingularNormalMatrix names the case of an ICP normal matrix that cannot
	// be solved. RunICP does not return it; it reports that case through
	// icpStepResult.Singular.
	ErrSingularNormalMatrix = errors.New("singular normal matrix in ICP")

	// ErrEmptyVolume names the case of reading a volume into which no frame has
	// been integrated. No reader in this module returns it; an unintegrated
	// volume reads as all-sentinel, zero-weight voxels.
	ErrEmptyVolume = errors.New("tsdf volume has never been integrated")
)
