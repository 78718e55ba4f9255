package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/teslashibe/reachy-signs/internal/config"
	"github.com/teslashibe/reachy-signs/pkg/camera"
	"github.com/teslashibe/reachy-signs/pkg/gesture"
	"github.com/teslashibe/reachy-signs/pkg/signs"
)

func testEnv() *config.Config {
	return &config.Config{
		CameraBackend: "auto",
		CameraPreset:  "default",
		Timeout:       config.DefaultTimeout,
		PollInterval:  config.DefaultPollInterval,
		WebPort:       config.DefaultWebPort,
		LogLevel:      "info",
		GestureTable:  config.DefaultGestureTable,
	}
}

func parse(t *testing.T, args ...string) (Options, error) {
	t.Helper()
	fs := flag.NewFlagSet("signs", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return parseFlags(fs, args, testEnv())
}

func TestParseFlags_Defaults(t *testing.T) {
	opts, err := parse(t)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Mode != "detect" || opts.Rounds != 1 || opts.Timeout != config.DefaultTimeout {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Camera.Backend != camera.BackendAuto || opts.Camera.Width != 640 {
		t.Errorf("camera = %+v", opts.Camera)
	}
}

func TestParseFlags_Overrides(t *testing.T) {
	opts, err := parse(t,
		"-mode", "calibrate",
		"-robot-ip", "10.0.0.5",
		"-timeout", "2s",
		"-rounds", "0",
		"-web-port", "9000",
		"-preset", "legacy",
		"-no-window",
		"-flip",
	)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Mode != "calibrate" || opts.Timeout != 2*time.Second || opts.Rounds != 0 || !opts.NoWindow {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Env.WebPort != 9000 {
		t.Errorf("web port = %d", opts.Env.WebPort)
	}
	if opts.Camera.RobotAddress != "10.0.0.5" || opts.Camera.Width != 320 || !opts.Camera.FlipVertical {
		t.Errorf("camera = %+v", opts.Camera)
	}
}

func TestParseFlags_SourceSelection(t *testing.T) {
	opts, err := parse(t, "-webcam")
	if err != nil {
		t.Fatal(err)
	}
	if opts.Camera.Backend != camera.BackendWebcam || opts.Camera.Device != "0" {
		t.Errorf("webcam camera = %+v", opts.Camera)
	}

	opts, err = parse(t, "-webcam", "-image", "card.png")
	if err != nil {
		t.Fatal(err)
	}
	if opts.Camera.Backend != camera.BackendMock || opts.Camera.ImagePath != "card.png" {
		t.Errorf("image camera = %+v", opts.Camera)
	}
}

func TestParseFlags_Backend(t *testing.T) {
	opts, err := parse(t, "-backend", "mock")
	if err != nil {
		t.Fatal(err)
	}
	if opts.Camera.Backend != camera.BackendMock {
		t.Errorf("backend = %q, want mock", opts.Camera.Backend)
	}
}

func TestParseFlags_Errors(t *testing.T) {
	for _, args := range [][]string{
		{"-mode", "play"},
		{"-timeout", "0s"},
		{"-rounds", "-2"},
		{"-preset", "4k"},
		{"-backend", "kinect"},
		{"-bogus"},
	} {
		if _, err := parse(t, args...); err == nil {
			t.Errorf("parseFlags(%v) should fail", args)
		}
	}
}

func TestRobotMove(t *testing.T) {
	seen := map[gesture.Gesture]bool{}
	for round := 1; round <= 3; round++ {
		seen[robotMove(round)] = true
	}
	if len(seen) != 3 {
		t.Errorf("robot moves over three rounds = %v", seen)
	}
}

// scripted returns a detectFunc that answers with results in order.
func scripted(results []signs.Result, final error) (detectFunc, *int) {
	calls := 0
	return func(ctx context.Context, _ time.Duration) (signs.Attempt, error) {
		calls++
		if calls > len(results) {
			return signs.Attempt{Result: signs.NoSignal}, final
		}
		return signs.Attempt{Result: results[calls-1]}, nil
	}, &calls
}

func TestRecognize(t *testing.T) {
	tests := []struct {
		name      string
		results   []signs.Result
		final     error
		wantMove  gesture.Gesture
		wantErr   error
		wantCalls int
	}{
		{"first try", []signs.Result{signs.Red}, nil, gesture.Rock, nil, 1},
		{"retries until a sign", []signs.Result{signs.NoSignal, signs.NoSignal, signs.Blue}, nil, gesture.Paper, nil, 3},
		{"cancelled while retrying", []signs.Result{signs.NoSignal}, context.Canceled, gesture.None, context.Canceled, 2},
		{"busy detector", nil, signs.ErrDetectorBusy, gesture.None, signs.ErrDetectorBusy, 1},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detect, calls := scripted(tt.results, tt.final)

			_, move, err := recognize(context.Background(), detect, gesture.DefaultTable(), time.Second, logger)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if move != tt.wantMove {
				t.Errorf("move = %q, want %q", move, tt.wantMove)
			}
			if *calls != tt.wantCalls {
				t.Errorf("detect called %d times, want %d", *calls, tt.wantCalls)
			}
		})
	}
}
