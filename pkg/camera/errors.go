package camera

import "errors"

// Sentinel errors for common conditions.
var (
	// ErrNoSource is returned by NewSource when neither a robot address nor a
	// local device is configured.
	ErrNoSource = errors.New("camera: no robot address or capture device configured")

	// ErrClosed is returned when starting a source that was closed.
	ErrClosed = errors.New("camera: source closed")

	// ErrUnsupportedBackend is returned for unknown backend names.
	ErrUnsupportedBackend = errors.New("camera: unsupported backend")

	// ErrOpenDevice is returned when a capture device cannot be opened.
	ErrOpenDevice = errors.New("camera: cannot open capture device")
)
