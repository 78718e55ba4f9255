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

// Generator produces the n-th synthetic frame.
type Generator func(n uint64, width, height int) *frame.Frame

// MockSource is a frame source for testing and demos.
// It emits generated frames, a fixed frame, or a still image at the
// configured framerate.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	stopCh  chan struct{}

	generator Generator
	still     *frame.Frame

	// Stats
	framesCaptured atomic.Int64
	errors         atomic.Int64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithGenerator sets the function that draws each frame.
func WithGenerator(g Generator) MockSourceOption {
	return func(m *MockSource) {
		m.generator = g
	}
}

// WithFrame makes the mock emit the same frame content over and over.
func WithFrame(f *frame.Frame) MockSourceOption {
	return func(m *MockSource) {
		m.still = f
	}
}

// NewMockSource creates a new mock frame source. By default it shows a
// colored disk that cycles through red, green, blue and nothing.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Framerate <= 0 {
		cfg.Framerate = DefaultConfig().Framerate
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
		generator: CyclingSigns(uint64(2 * cfg.Framerate)),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Name implements Source.
func (m *MockSource) Name() string {
	return string(BackendMock)
}

// Start begins emitting frames.
func (m *MockSource) Start(ctx context.Context, onFrame func(*frame.Frame)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.running {
		return nil
	}

	if m.cfg.ImagePath != "" && m.still == nil {
		still, err := loadImage(m.cfg.ImagePath, m.cfg.FlipVertical)
		if err != nil {
			return err
		}
		m.still = still
	}

	m.running = true
	m.stopCh = make(chan struct{})

	go m.generateLoop(ctx, onFrame, m.stopCh)

	m.logger.Info("mock frame source started",
		"framerate", m.cfg.Framerate,
		"still", m.still != nil,
	)

	return nil
}

func (m *MockSource) generateLoop(ctx context.Context, onFrame func(*frame.Frame), stopCh chan struct{}) {
	ticker := time.NewTicker(time.Second / time.Duration(m.cfg.Framerate))
	defer ticker.Stop()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	var n uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			f := m.nextFrame(n)
			n++
			if f == nil {
				m.errors.Add(1)
				continue
			}
			m.framesCaptured.Add(1)
			onFrame(f)
		}
	}
}

func (m *MockSource) nextFrame(n uint64) *frame.Frame {
	if m.still != nil {
		// Frames are immutable, so the pixels can be shared
		return &frame.Frame{
			Pix:       m.still.Pix,
			Width:     m.still.Width,
			Height:    m.still.Height,
			Timestamp: time.Now(),
		}
	}
	if m.generator == nil {
		return nil
	}
	f := m.generator(n, m.cfg.Width, m.cfg.Height)
	if f != nil {
		f.Timestamp = time.Now()
	}
	return f
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		FramesCaptured: m.framesCaptured.Load(),
		Errors:         m.errors.Load(),
		Running:        running,
		Backend:        m.Name(),
	}
}

// Close stops the source. It is safe to call Close multiple times.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.stopCh)
	return nil
}

// loadImage reads a still image from disk.
func loadImage(path string, flipVertical bool) (*frame.Frame, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("read image %s: empty or unreadable", path)
	}
	return matToFrame(img, flipVertical, time.Now())
}

// CyclingSigns returns a generator showing a disk in the middle of a neutral
// gray frame whose color changes every framesPerColor frames: red, green,
// blue, then an empty frame.
func CyclingSigns(framesPerColor uint64) Generator {
	p := framesPerColor
	if p == 0 {
		p = 1
	}
	colors := [][3]uint8{
		{220, 20, 20},
		{20, 200, 20},
		{20, 20, 220},
		{200, 200, 200},
	}

	return func(n uint64, width, height int) *frame.Frame {
		c := colors[(n/p)%uint64(len(colors))]
		return DiskFrame(width, height, c)
	}
}

// DiskFrame draws a disk of color c on a neutral gray background. The disk
// radius is an eighth of the shorter side.
func DiskFrame(width, height int, c [3]uint8) *frame.Frame {
	f := frame.New(width, height)
	cx, cy := width/2, height/2
	r := min(width, height) / 8

	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			px := [3]uint8{200, 200, 200}
			if dx, dy := x-cx, y-cy; dx*dx+dy*dy <= r*r {
				px = c
			}
			f.Pix[i], f.Pix[i+1], f.Pix[i+2] = px[0], px[1], px[2]
			i += frame.Channels
		}
	}
	return f
}
