package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/reachy-signs/pkg/calibration"
	"github.com/teslashibe/reachy-signs/pkg/camera"
	"github.com/teslashibe/reachy-signs/pkg/gesture"
	"github.com/teslashibe/reachy-signs/pkg/signs"
	"github.com/teslashibe/reachy-signs/pkg/web"
)

// App wires a frame source, the detector and the operator surfaces.
type App struct {
	opts     Options
	logger   *slog.Logger
	gestures gesture.Table

	source   camera.Source
	detector *signs.Detector
	server   *web.Server
	window   *calibration.Window
}

// New creates the frame source and detector. Nothing is started yet.
func New(opts Options, logger *slog.Logger) (*App, error) {
	if err := opts.Env.Validate(); err != nil {
		return nil, err
	}

	gestures, err := gesture.ParseTable(opts.Env.GestureTable)
	if err != nil {
		return nil, err
	}

	source, err := camera.NewSource(opts.Camera, logger)
	if err != nil {
		return nil, err
	}

	detCfg := signs.DefaultConfig()
	detCfg.PollInterval = opts.Env.PollInterval
	detector, err := signs.NewDetector(detCfg, source, logger)
	if err != nil {
		source.Close()
		return nil, err
	}

	return &App{
		opts:     opts,
		logger:   logger,
		gestures: gestures,
		source:   source,
		detector: detector,
	}, nil
}

// Run starts the source and runs the selected mode until it finishes or ctx
// is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.detector.Start(ctx); err != nil {
		return fmt.Errorf("start %s source: %w", a.source.Name(), err)
	}

	switch a.opts.Mode {
	case "calibrate":
		return a.calibrate(ctx)
	default:
		return a.detect(ctx)
	}
}

func (a *App) detect(ctx context.Context) error {
	var wins, losses, draws int

	for round := 1; a.opts.Rounds == 0 || round <= a.opts.Rounds; round++ {
		attempt, move, err := recognize(ctx, a.detector.Detect, a.gestures, a.opts.Timeout, a.logger.With("round", round))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}

		robot := robotMove(round)
		switch gesture.Winner(move, robot) {
		case 1:
			wins++
		case -1:
			losses++
		default:
			draws++
		}
		a.logger.Info("sign detected",
			"round", round,
			"color", attempt.Result,
			"gesture", move,
			"robot", robot,
			"elapsed", attempt.Elapsed.Round(time.Millisecond),
			"score", fmt.Sprintf("%d-%d-%d", wins, losses, draws))
	}
	return nil
}

// detectFunc runs one bounded detection attempt.
type detectFunc func(ctx context.Context, maxDuration time.Duration) (signs.Attempt, error)

// recognize repeats detection attempts until one yields a playable move.
// Only an error, including ctx cancellation, ends it early.
func recognize(ctx context.Context, detect detectFunc, gestures gesture.Table, timeout time.Duration, logger *slog.Logger) (signs.Attempt, gesture.Gesture, error) {
	for tries := 1; ; tries++ {
		logger.Info("show a sign", "try", tries, "timeout", timeout)

		attempt, err := detect(ctx, timeout)
		if err != nil {
			return attempt, gesture.None, err
		}
		if move := gestures.Lookup(attempt.Result); move != gesture.None {
			return attempt, move, nil
		}
		logger.Info("no sign seen, try again", "try", tries, "elapsed", attempt.Elapsed.Round(time.Millisecond))
	}
}

// robotMove cycles through the three moves.
func robotMove(round int) gesture.Gesture {
	moves := []gesture.Gesture{gesture.Rock, gesture.Paper, gesture.Scissors}
	return moves[round%len(moves)]
}

func (a *App) calibrate(ctx context.Context) error {
	var displays signs.Displays

	a.detector.Params().SetOnChange(func(p signs.Params) {
		a.logger.Info("parameters changed",
			"min_area", p.MinArea,
			"max_area", p.MaxArea,
			"min_circularity", p.MinCircularity,
			"min_convexity", p.MinConvexity)
	})

	if a.opts.Env.WebPort > 0 {
		webCfg := web.DefaultConfig()
		webCfg.Port = a.opts.Env.WebPort
		webCfg.DefaultTimeout = a.opts.Timeout
		webCfg.Gestures = a.gestures
		a.server = web.NewServer(webCfg, a.detector, a.source, a.logger)
		a.server.StartAsync(ctx)
		displays = append(displays, a.server)
	}

	if !a.opts.NoWindow {
		a.window = calibration.NewWindow("Sign calibration", a.detector.Params(), a.logger)
		displays = append(displays, a.window)

		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-a.window.Quit():
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	var display signs.Display
	if len(displays) > 0 {
		display = displays
	}

	// HighGUI wants the window driven from this goroutine
	err := a.detector.Calibrate(ctx, display)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown releases the window, the web server and the frame source.
func (a *App) Shutdown() {
	if a.window != nil {
		a.window.Close()
	}
	if a.server != nil {
		if err := a.server.Shutdown(); err != nil {
			a.logger.Warn("web shutdown failed", "error", err)
		}
	}
	if err := a.source.Close(); err != nil {
		a.logger.Warn("source close failed", "error", err)
	}
	a.logger.Info("stats", "detector", a.detector.Stats(), "source", a.source.Stats())
}
