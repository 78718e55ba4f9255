package camera

import (
	"fmt"
	"log/slog"
)

// NewSource creates a frame source with the given configuration.
// If cfg.Backend is BackendAuto, the robot is preferred when an address is
// set, then a local device; with neither, ErrNoSource is returned.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := ParseBackend(string(cfg.Backend))
	if err != nil {
		return nil, err
	}
	if backend == BackendAuto {
		backend, err = detectBackend(cfg)
		if err != nil {
			return nil, err
		}
	}
	cfg.Backend = backend

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid camera config: %v", problems)
	}

	logger.Info("creating frame source",
		"backend", backend,
		"width", cfg.Width,
		"height", cfg.Height,
		"framerate", cfg.Framerate,
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendRobot:
		return NewRobotSource(cfg, logger), nil
	case BackendWebcam:
		return NewWebcamSource(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, backend)
	}
}

// detectBackend resolves BackendAuto.
func detectBackend(cfg Config) (Backend, error) {
	switch {
	case cfg.RobotAddress != "":
		return BackendRobot, nil
	case cfg.Device != "":
		return BackendWebcam, nil
	case cfg.ImagePath != "":
		return BackendMock, nil
	default:
		return "", ErrNoSource
	}
}

// AvailableBackends returns the list of selectable backends.
func AvailableBackends() []Backend {
	return []Backend{BackendRobot, BackendWebcam, BackendMock}
}
