package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/reachy-signs/pkg/frame"
	"github.com/teslashibe/reachy-signs/pkg/video"
)

// RobotSource streams the robot's head camera over WebRTC.
type RobotSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	client  *video.Client
	running bool
	closed  bool

	framesCaptured atomic.Int64
	errors         atomic.Int64
}

// NewRobotSource creates a robot camera source. The connection is made by Start.
func NewRobotSource(cfg Config, logger *slog.Logger) *RobotSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotSource{
		cfg:    cfg,
		logger: logger,
	}
}

// Name implements Source.
func (r *RobotSource) Name() string {
	return string(BackendRobot)
}

// Start connects to the robot and blocks until the first video frame arrives
// or the connection fails.
func (r *RobotSource) Start(ctx context.Context, onFrame func(*frame.Frame)) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.running {
		r.mu.Unlock()
		return nil
	}
	vcfg := video.DefaultConfig(r.cfg.RobotAddress)
	vcfg.DecodeInterval = time.Second / time.Duration(max(r.cfg.Framerate, 1))
	client := video.NewClient(vcfg, r.logger)
	r.client = client
	r.running = true
	r.mu.Unlock()

	client.OnFrame(func(data []byte) {
		f, err := jpegToFrame(data, r.cfg.FlipVertical, time.Now())
		if err != nil {
			r.errors.Add(1)
			r.logger.Debug("robot frame dropped", "error", err)
			return
		}
		r.framesCaptured.Add(1)
		onFrame(f)
	})

	if err := client.Connect(ctx); err != nil {
		client.Close()
		r.mu.Lock()
		r.running = false
		r.client = nil
		r.mu.Unlock()
		return fmt.Errorf("connect to robot %s: %w", r.cfg.RobotAddress, err)
	}

	go func() {
		<-ctx.Done()
		r.Close()
	}()

	return nil
}

// Stats returns source statistics.
func (r *RobotSource) Stats() SourceStats {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()

	return SourceStats{
		FramesCaptured: r.framesCaptured.Load(),
		Errors:         r.errors.Load(),
		Running:        running,
		Backend:        r.Name(),
	}
}

// Close tears down the WebRTC session.
func (r *RobotSource) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.running = false
	client := r.client
	r.mu.Unlock()

	if client != nil {
		return client.Close()
	}
	return nil
}
