package signs

import (
	"context"
	"sync"
	"time"

	"github.com/teslashibe/reachy-signs/pkg/frame"
)

type rgb [3]uint8

var (
	neutral = rgb{200, 200, 200}
	red     = rgb{220, 20, 20}
	green   = rgb{20, 200, 20}
	blue    = rgb{20, 20, 220}
)

const (
	testWidth  = 320
	testHeight = 240
)

// canvas returns a frame filled with one color.
func canvas(w, h int, bg rgb) *frame.Frame {
	f := frame.New(w, h)
	for i := 0; i < len(f.Pix); i += frame.Channels {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = bg[0], bg[1], bg[2]
	}
	return f
}

func setPixel(f *frame.Frame, x, y int, c rgb) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	i := (y*f.Width + x) * frame.Channels
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = c[0], c[1], c[2]
}

func drawDisk(f *frame.Frame, cx, cy, r int, c rgb) {
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				setPixel(f, x, y, c)
			}
		}
	}
}

func drawRect(f *frame.Frame, x0, y0, w, h int, c rgb) {
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			setPixel(f, x, y, c)
		}
	}
}

// signFrame is a neutral frame with one disk of color c in the middle.
func signFrame(c rgb) *frame.Frame {
	f := canvas(testWidth, testHeight, neutral)
	drawDisk(f, testWidth/2, testHeight/2, 30, c)
	return f
}

// twoSignFrame shows two disks of different colors side by side.
func twoSignFrame(left, right rgb) *frame.Frame {
	f := canvas(testWidth, testHeight, neutral)
	drawDisk(f, 90, testHeight/2, 30, left)
	drawDisk(f, 230, testHeight/2, 30, right)
	return f
}

// fakeSource pushes copies of a template frame at a fixed interval.
type fakeSource struct {
	interval time.Duration

	mu       sync.Mutex
	template *frame.Frame
	started  bool
}

func newFakeSource(template *frame.Frame, interval time.Duration) *fakeSource {
	return &fakeSource{template: template, interval: interval}
}

func (s *fakeSource) SetTemplate(f *frame.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.template = f
}

func (s *fakeSource) Start(ctx context.Context, onFrame func(*frame.Frame)) error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				tpl := s.template
				s.mu.Unlock()
				if tpl == nil {
					continue
				}
				f := &frame.Frame{
					Pix:       tpl.Pix,
					Width:     tpl.Width,
					Height:    tpl.Height,
					Timestamp: time.Now(),
				}
				onFrame(f)
			}
		}
	}()
	return nil
}
