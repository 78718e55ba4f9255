// Package camera provides the frame sources that feed the sign detector.
//
// This package supports multiple backends:
//   - robot  - Reachy Mini camera over WebRTC (see pkg/video)
//   - webcam - a local capture device through OpenCV
//   - mock   - synthetic frames or a still image, for CI and demos
//
// The backend is selected from the configuration; "auto" prefers the robot
// when an address is set and falls back to a local device.
package camera

import (
	"fmt"
	"strconv"
)

// Backend represents the frame source type.
type Backend string

const (
	// BackendAuto picks robot when RobotAddress is set, else webcam when Device is set.
	BackendAuto Backend = "auto"
	// BackendRobot streams the robot's head camera over WebRTC.
	BackendRobot Backend = "robot"
	// BackendWebcam reads a local capture device.
	BackendWebcam Backend = "webcam"
	// BackendMock generates frames without hardware.
	BackendMock Backend = "mock"
)

// ParseBackend maps a name to a Backend. Empty means auto.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendRobot, BackendWebcam, BackendMock:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedBackend, s)
	}
}

// Config holds frame source configuration.
type Config struct {
	// Backend specifies which frame source to use.
	// Default: "auto"
	Backend Backend `json:"backend"`

	// RobotAddress is the robot's IP or host name (robot backend).
	RobotAddress string `json:"robot_address"`

	// Device identifies the local capture device (webcam backend).
	// Examples: "0", "1", "/dev/video2"
	Device string `json:"device"`

	// ImagePath makes the mock backend replay a still image instead of
	// generated frames.
	ImagePath string `json:"image_path"`

	// === Capture ===
	Width     int `json:"width"`     // Requested frame width in pixels
	Height    int `json:"height"`    // Requested frame height in pixels
	Framerate int `json:"framerate"` // Target FPS

	// FlipVertical mirrors frames top-to-bottom, for cameras mounted upside down.
	FlipVertical bool `json:"flip_vertical"`
}

// DefaultConfig returns the recommended configuration: 640x480 at 15 FPS is
// plenty for hand-held signs and keeps the per-frame pipeline cheap.
func DefaultConfig() Config {
	return Config{
		Backend:   BackendAuto,
		Width:     640,
		Height:    480,
		Framerate: 15,
	}
}

// LegacyConfig returns a 320x240 configuration for slow hosts.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	return cfg
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if _, err := ParseBackend(string(c.Backend)); err != nil {
		errors = append(errors, "backend must be auto, robot, webcam, or mock")
	}

	// Resolution
	if c.Width < 160 || c.Width > 3840 {
		errors = append(errors, "width must be between 160 and 3840")
	}
	if c.Height < 120 || c.Height > 2160 {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > 120 {
		errors = append(errors, "framerate must be between 1 and 120")
	}

	switch c.Backend {
	case BackendRobot:
		if c.RobotAddress == "" {
			errors = append(errors, "robot backend requires robot_address")
		}
	case BackendWebcam:
		if c.Device == "" {
			errors = append(errors, "webcam backend requires device")
		}
	}

	return errors
}

// captureDevice converts Device to what OpenCV expects: an index for
// numeric names, the path otherwise.
func (c *Config) captureDevice() interface{} {
	if id, err := strconv.Atoi(c.Device); err == nil {
		return id
	}
	return c.Device
}
