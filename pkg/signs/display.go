package signs

import (
	"errors"

	"gocv.io/x/gocv"
)

// Display receives the calibration view for every analyzed frame.
//
// view is a BGR image showing the raw frame next to the annotated one. It is
// only valid for the duration of the call; implementations that keep it must
// clone it.
type Display interface {
	Show(view gocv.Mat, analysis Analysis) error
}

// DisplayFunc adapts a function to the Display interface.
type DisplayFunc func(view gocv.Mat, analysis Analysis) error

// Show calls fn.
func (fn DisplayFunc) Show(view gocv.Mat, analysis Analysis) error {
	return fn(view, analysis)
}

// Displays fans a view out to several displays. Every display is called even
// when an earlier one fails; the errors are joined.
type Displays []Display

// Show implements Display.
func (ds Displays) Show(view gocv.Mat, analysis Analysis) error {
	var errs []error
	for _, d := range ds {
		if d == nil {
			continue
		}
		if err := d.Show(view, analysis); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
