package frame

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func TestFromRGB_SizeMismatch(t *testing.T) {
	_, err := FromRGB(make([]uint8, 10), 4, 4, time.Now())
	if !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("expected ErrInvalidFrame, got %v", err)
	}
}

func TestFromImage_ChannelOrder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(2, 1, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	f := FromImage(img, time.Now())

	if f.Width != 3 || f.Height != 2 {
		t.Fatalf("size = %dx%d, want 3x2", f.Width, f.Height)
	}
	r, g, b := f.At(2, 1)
	if r != 200 || g != 100 || b != 50 {
		t.Errorf("At(2,1) = (%d,%d,%d), want (200,100,50)", r, g, b)
	}
	if !f.Valid() {
		t.Error("frame should be valid")
	}
}

func TestFromMat_ConvertsBGRToRGB(t *testing.T) {
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 4, 5, gocv.MatTypeCV8UC3)
	defer m.Close()

	f, err := FromMat(m, time.Now())
	if err != nil {
		t.Fatalf("FromMat: %v", err)
	}
	r, g, b := f.At(0, 0)
	if r != 30 || g != 20 || b != 10 {
		t.Errorf("At(0,0) = (%d,%d,%d), want (30,20,10)", r, g, b)
	}
}

func TestFromJPEG_Invalid(t *testing.T) {
	if _, err := FromJPEG([]byte("not an image"), time.Now()); err == nil {
		t.Error("expected error for undecodable data")
	}
}

func TestFromJPEG_PNGInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 0, G: 0, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}

	f, err := FromJPEG(buf.Bytes(), time.Now())
	if err != nil {
		t.Fatalf("FromJPEG: %v", err)
	}
	if f.Width != 8 || f.Height != 6 {
		t.Fatalf("size = %dx%d, want 8x6", f.Width, f.Height)
	}
	if r, g, b := f.At(4, 3); r != 0 || g != 0 || b != 255 {
		t.Errorf("At(4,3) = (%d,%d,%d), want pure blue", r, g, b)
	}
}

func TestMat_InvalidFrame(t *testing.T) {
	for _, f := range []*Frame{nil, {Width: 2, Height: 2, Pix: make([]uint8, 5)}} {
		_, err := f.Mat()
		if !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("Mat() error = %v, want ErrInvalidFrame", err)
		}

		_, err = f.BGRMat()
		if !errors.Is(err, ErrInvalidFrame) {
			t.Errorf("BGRMat() error = %v, want ErrInvalidFrame", err)
		}
	}
}
