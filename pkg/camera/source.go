package camera

import (
	"context"
	"fmt"
	"io"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/reachy-signs/pkg/frame"
)

// Source delivers camera frames to a callback.
type Source interface {
	// Start begins capture. onFrame is called from the source's own
	// goroutine for every frame until ctx is cancelled or Close is called.
	// It must return quickly.
	Start(ctx context.Context, onFrame func(*frame.Frame)) error

	// Name returns the backend name (e.g., "robot", "webcam", "mock").
	Name() string

	// Stats returns capture counters.
	Stats() SourceStats

	// Close releases all resources.
	// After Close, the source cannot be restarted.
	io.Closer
}

// SourceStats contains statistics about a frame source.
type SourceStats struct {
	// FramesCaptured is the number of frames handed to the callback.
	FramesCaptured int64 `json:"frames_captured"`

	// Errors counts frames that could not be read or decoded.
	Errors int64 `json:"errors"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the frame source backend.
	Backend string `json:"backend"`
}

// matToFrame converts a captured BGR Mat into a frame, flipping it first
// when requested.
func matToFrame(m gocv.Mat, flipVertical bool, ts time.Time) (*frame.Frame, error) {
	if !flipVertical {
		return frame.FromMat(m, ts)
	}

	flipped := gocv.NewMat()
	defer flipped.Close()
	gocv.Flip(m, &flipped, 0)
	return frame.FromMat(flipped, ts)
}

// jpegToFrame decodes an encoded image into a frame.
func jpegToFrame(data []byte, flipVertical bool, ts time.Time) (*frame.Frame, error) {
	m, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	defer m.Close()

	return matToFrame(m, flipVertical, ts)
}
