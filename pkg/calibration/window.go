// Package calibration shows the detector's calibration view in an OpenCV
// window with trackbars bound to the live parameters.
package calibration

import (
	"log/slog"
	"math"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/reachy-signs/pkg/signs"
)

// slider binds one trackbar to a numeric parameter. The parameter value is
// the trackbar position divided by div.
type slider struct {
	label string
	field string
	max   int
	div   float64
	get   func(signs.Params) float64
}

var sliders = []slider{
	{"Min Area", "min_area", 1000, 1, func(p signs.Params) float64 { return p.MinArea }},
	{"Max Area", "max_area", 10000, 1, func(p signs.Params) float64 { return p.MaxArea }},
	{"Min Circularity", "min_circularity", 100, 100, func(p signs.Params) float64 { return p.MinCircularity }},
	{"Min Convexity", "min_convexity", 100, 100, func(p signs.Params) float64 { return p.MinConvexity }},
}

// pos returns the trackbar position for p, clamped to the trackbar range.
func (s slider) pos(p signs.Params) int {
	v := int(math.Round(s.get(p) * s.div))
	return max(0, min(v, s.max))
}

func (s slider) value(pos int) float64 {
	return float64(pos) / s.div
}

// changedFields returns the fields of the trackbars whose position differs
// from last. A value outside a trackbar's range survives until that
// trackbar is moved.
func changedFields(positions, last []int) map[string]interface{} {
	fields := map[string]interface{}{}
	for i, s := range sliders {
		if positions[i] != last[i] {
			fields[s.field] = s.value(positions[i])
		}
	}
	return fields
}

// isQuitKey reports q, Q and Esc.
func isQuitKey(key int) bool {
	return key == 'q' || key == 'Q' || key == 27
}

// Window is a signs.Display backed by an OpenCV HighGUI window.
// Show must be called from a single goroutine.
type Window struct {
	win    *gocv.Window
	store  *signs.ParamStore
	logger *slog.Logger

	trackbars []*gocv.Trackbar
	last      []int

	quit     chan struct{}
	quitOnce sync.Once
}

// NewWindow opens a window named name with trackbars initialized from store.
func NewWindow(name string, store *signs.ParamStore, logger *slog.Logger) *Window {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Window{
		win:    gocv.NewWindow(name),
		store:  store,
		logger: logger.With("component", "calibration"),
		last:   make([]int, len(sliders)),
		quit:   make(chan struct{}),
	}

	p := store.Get()
	for i, s := range sliders {
		tb := w.win.CreateTrackbar(s.label, s.max)
		w.last[i] = s.pos(p)
		tb.SetPos(w.last[i])
		w.trackbars = append(w.trackbars, tb)
	}
	return w
}

// Show implements signs.Display: moved trackbars are written to the store,
// the view is shown and pending key presses are handled.
func (w *Window) Show(view gocv.Mat, _ signs.Analysis) error {
	w.syncTrackbars()

	w.win.IMShow(view)
	if key := w.win.WaitKey(1); isQuitKey(key) {
		w.quitOnce.Do(func() { close(w.quit) })
	}
	return nil
}

func (w *Window) syncTrackbars() {
	positions := make([]int, len(w.trackbars))
	for i, tb := range w.trackbars {
		positions[i] = tb.GetPos()
	}

	if fields := changedFields(positions, w.last); len(fields) > 0 {
		if err := w.store.UpdateFields(fields); err != nil {
			// Max below min and similar: keep the old values
			w.logger.Warn("rejected trackbar values", "error", err)
		} else {
			w.logger.Debug("parameters updated", "fields", fields)
		}
	}

	// Follow changes made elsewhere, such as the web API
	p := w.store.Get()
	for i, s := range sliders {
		want := s.pos(p)
		if want != positions[i] {
			w.trackbars[i].SetPos(want)
		}
		w.last[i] = want
	}
}

// Quit is closed when the operator presses q or Esc in the window.
func (w *Window) Quit() <-chan struct{} {
	return w.quit
}

// Close closes the window.
func (w *Window) Close() error {
	return w.win.Close()
}
