package signs

import (
	"errors"

	"github.com/teslashibe/reachy-signs/pkg/frame"
)

// Sentinel errors for common conditions.
var (
	// ErrNoFrameSource is returned by NewDetector when no frame source is given.
	// The detector cannot operate without one.
	ErrNoFrameSource = errors.New("signs: frame source required")

	// ErrInvalidParams is wrapped by Params.Validate.
	ErrInvalidParams = errors.New("signs: invalid calibration parameters")

	// ErrDetectorBusy is returned by DetectSign when another detection or a
	// calibration session held the buffer until the deadline.
	ErrDetectorBusy = errors.New("signs: detector busy")

	// ErrInvalidFrame is returned when a frame cannot be handed to OpenCV.
	ErrInvalidFrame = frame.ErrInvalidFrame
)
