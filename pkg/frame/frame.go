// Package frame holds camera frames and the buffer that hands them from a
// frame source to the sign detector.
//
// A Frame is immutable once published: producers fill Pix before calling
// Buffer.Push and nobody writes to it afterwards. Frames are shared by
// pointer, never copied.
package frame

import (
	"errors"
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"
)

// Channels is the number of interleaved samples per pixel (R, G, B).
const Channels = 3

// ErrInvalidFrame is returned when a frame's pixel buffer does not match its size.
var ErrInvalidFrame = errors.New("frame: invalid frame")

// Frame is a captured RGB image.
type Frame struct {
	// Pix holds RGB samples, row-major, Width*Height*3 bytes.
	Pix []uint8

	Width  int
	Height int

	// Timestamp is the capture time reported by the source.
	Timestamp time.Time

	// Seq is assigned by Buffer.Push when zero. Monotonically increasing per buffer.
	Seq uint64
}

// New allocates a black frame. Producers fill Pix before publishing it.
func New(width, height int) *Frame {
	return &Frame{
		Pix:       make([]uint8, width*height*Channels),
		Width:     width,
		Height:    height,
		Timestamp: time.Now(),
	}
}

// FromRGB wraps an existing RGB buffer without copying it.
func FromRGB(pix []uint8, width, height int, ts time.Time) (*Frame, error) {
	f := &Frame{Pix: pix, Width: width, Height: height, Timestamp: ts}
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %dx%d with %d bytes", ErrInvalidFrame, width, height, len(pix))
	}
	return f, nil
}

// FromImage converts any Go image to a frame.
func FromImage(img image.Image, ts time.Time) *Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy())
	f.Timestamp = ts

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			f.Pix[i] = uint8(r >> 8)
			f.Pix[i+1] = uint8(g >> 8)
			f.Pix[i+2] = uint8(bl >> 8)
			i += Channels
		}
	}
	return f
}

// FromMat converts an OpenCV BGR image (8UC3) to a frame. The Mat is not retained.
func FromMat(m gocv.Mat, ts time.Time) (*Frame, error) {
	if m.Empty() {
		return nil, fmt.Errorf("%w: empty mat", ErrInvalidFrame)
	}
	if m.Type() != gocv.MatTypeCV8UC3 {
		return nil, fmt.Errorf("%w: unsupported mat type %v", ErrInvalidFrame, m.Type())
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(m, &rgb, gocv.ColorBGRToRGB)

	return FromRGB(rgb.ToBytes(), rgb.Cols(), rgb.Rows(), ts)
}

// FromJPEG decodes a JPEG (or any format OpenCV reads) into a frame.
func FromJPEG(data []byte, ts time.Time) (*Frame, error) {
	m, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer m.Close()

	return FromMat(m, ts)
}

// Valid reports whether the pixel buffer matches the frame size.
func (f *Frame) Valid() bool {
	return f != nil && f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height*Channels
}

// Bounds returns the frame rectangle.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// At returns the RGB sample at (x, y). The point must lie inside Bounds.
func (f *Frame) At(x, y int) (r, g, b uint8) {
	i := (y*f.Width + x) * Channels
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Mat returns an RGB 8UC3 Mat over a copy of the pixels. Caller closes it.
func (f *Frame) Mat() (gocv.Mat, error) {
	if !f.Valid() {
		return gocv.Mat{}, ErrInvalidFrame
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, append([]uint8(nil), f.Pix...))
}

// BGRMat returns a BGR 8UC3 Mat suitable for OpenCV display and encoding.
// Caller closes it.
func (f *Frame) BGRMat() (gocv.Mat, error) {
	rgb, err := f.Mat()
	if err != nil {
		return gocv.Mat{}, err
	}
	defer rgb.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR)
	return bgr, nil
}

// Age returns how long ago the frame was captured.
func (f *Frame) Age() time.Duration {
	return time.Since(f.Timestamp)
}
