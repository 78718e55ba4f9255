// reachy-signs - colored sign detection for game-playing robots
// Shows a red, green or blue card to the robot's camera; the detected
// color is mapped to a rock-paper-scissors move.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/reachy-signs/internal/config"
	"github.com/teslashibe/reachy-signs/internal/log"
	"github.com/teslashibe/reachy-signs/pkg/camera"
	"github.com/teslashibe/reachy-signs/pkg/debug"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:], config.Load())
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(2)
	}

	if cfg.Debug {
		cfg.Env.LogLevel = "debug"
		debug.Enabled = true
	}
	log.Init(cfg.Env.LogLevel)
	logger := log.With("mode", cfg.Mode)

	if err := run(cfg, logger); err != nil {
		logger.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

// run builds the app and runs it until it finishes or a signal arrives.
// The app is shut down before run returns.
func run(cfg Options, logger *slog.Logger) error {
	app, err := New(cfg, logger)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return app.Run(ctx)
}

// Options are the resolved command line settings.
type Options struct {
	Env *config.Config

	Mode     string // detect or calibrate
	Camera   camera.Config
	Timeout  time.Duration
	Rounds   int
	NoWindow bool
	Debug    bool
}

// parseFlags applies command line flags over the environment settings.
func parseFlags(fs *flag.FlagSet, args []string, env *config.Config) (Options, error) {
	opts := Options{Env: env}

	debugFlag := fs.Bool("debug", false, "Enable verbose debug logging")
	vision := fs.Bool("vision-debug", false, "Print per-blob classifier diagnostics")
	mode := fs.String("mode", "detect", "Mode: detect or calibrate")
	robotIP := fs.String("robot-ip", "", "Robot IP address (overrides ROBOT_IP env var)")
	backendName := fs.String("backend", env.CameraBackend, fmt.Sprintf("Frame source: auto or one of %v", camera.AvailableBackends()))
	webcam := fs.Bool("webcam", false, "Use a local capture device instead of the robot")
	device := fs.String("device", "", "Capture device index or path (overrides CAMERA_DEVICE)")
	image := fs.String("image", "", "Replay a still image instead of a camera")
	preset := fs.String("preset", "", "Camera preset: "+fmt.Sprint(camera.PresetNames()))
	flip := fs.Bool("flip", env.CameraFlip, "Flip frames vertically (overrides CAMERA_FLIP)")
	timeout := fs.Duration("timeout", env.Timeout, "Bound for one detection attempt")
	rounds := fs.Int("rounds", 1, "Detection rounds in detect mode (0 = until interrupted)")
	webPort := fs.Int("web-port", env.WebPort, "Dashboard port in calibrate mode (0 = disabled)")
	noWindow := fs.Bool("no-window", false, "Do not open the OpenCV calibration window")
	gestures := fs.String("gestures", env.GestureTable, "Color to gesture table")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	switch *mode {
	case "detect", "calibrate":
		opts.Mode = *mode
	default:
		return opts, fmt.Errorf("unknown mode %q (want detect or calibrate)", *mode)
	}
	if *timeout <= 0 {
		return opts, fmt.Errorf("timeout must be positive")
	}
	if *rounds < 0 {
		return opts, fmt.Errorf("rounds must not be negative")
	}

	opts.Debug, opts.NoWindow = *debugFlag, *noWindow
	opts.Timeout, opts.Rounds = *timeout, *rounds
	debug.Vision = *vision

	env.WebPort = *webPort
	env.GestureTable = *gestures
	if *robotIP != "" {
		env.RobotIP = *robotIP
	}
	if *device != "" {
		env.CameraDevice = *device
	}
	if *preset != "" {
		env.CameraPreset = *preset
	}

	cam := camera.DefaultConfig()
	if !camera.ApplyPreset(&cam, env.CameraPreset) {
		return opts, fmt.Errorf("unknown camera preset %q", env.CameraPreset)
	}
	env.CameraBackend = *backendName
	backend, err := camera.ParseBackend(env.CameraBackend)
	if err != nil {
		return opts, err
	}
	cam.Backend = backend
	cam.RobotAddress = env.RobotIP
	cam.Device = env.CameraDevice
	cam.FlipVertical = *flip

	switch {
	case *image != "":
		cam.Backend = camera.BackendMock
		cam.ImagePath = *image
	case *webcam:
		cam.Backend = camera.BackendWebcam
		if cam.Device == "" {
			cam.Device = "0"
		}
	}
	opts.Camera = cam

	return opts, nil
}
