package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/reachy-signs/pkg/frame"
)

// WebcamSource reads frames from a local capture device through OpenCV.
type WebcamSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	capture *gocv.VideoCapture
	running bool
	closed  bool
	stopCh  chan struct{}
	done    chan struct{}

	framesCaptured atomic.Int64
	errors         atomic.Int64
}

// NewWebcamSource creates a webcam source. The device is opened by Start.
func NewWebcamSource(cfg Config, logger *slog.Logger) *WebcamSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebcamSource{
		cfg:    cfg,
		logger: logger,
	}
}

// Name implements Source.
func (w *WebcamSource) Name() string {
	return string(BackendWebcam)
}

// Start opens the device and starts the read loop.
func (w *WebcamSource) Start(ctx context.Context, onFrame func(*frame.Frame)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.running {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(w.cfg.captureDevice())
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrOpenDevice, w.cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w %q", ErrOpenDevice, w.cfg.Device)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(w.cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(w.cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(w.cfg.Framerate))

	w.capture = vc
	w.running = true
	w.stopCh = make(chan struct{})
	w.done = make(chan struct{})

	go w.readLoop(ctx, onFrame, vc, w.stopCh, w.done)

	w.logger.Info("webcam started",
		"device", w.cfg.Device,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
	)
	return nil
}

func (w *WebcamSource) readLoop(ctx context.Context, onFrame func(*frame.Frame), vc *gocv.VideoCapture, stopCh, done chan struct{}) {
	defer close(done)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	img := gocv.NewMat()
	defer img.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		if ok := vc.Read(&img); !ok || img.Empty() {
			w.errors.Add(1)
			// Device hiccup or end of a video file; back off briefly
			time.Sleep(10 * time.Millisecond)
			continue
		}

		f, err := matToFrame(img, w.cfg.FlipVertical, time.Now())
		if err != nil {
			w.errors.Add(1)
			w.logger.Debug("webcam frame dropped", "error", err)
			continue
		}
		w.framesCaptured.Add(1)
		onFrame(f)
	}
}

// Stats returns source statistics.
func (w *WebcamSource) Stats() SourceStats {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	return SourceStats{
		FramesCaptured: w.framesCaptured.Load(),
		Errors:         w.errors.Load(),
		Running:        running,
		Backend:        w.Name(),
	}
}

// Close stops the read loop and releases the device.
func (w *WebcamSource) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	stopCh, done, vc := w.stopCh, w.done, w.capture
	w.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}
	if vc != nil {
		return vc.Close()
	}
	return nil
}
