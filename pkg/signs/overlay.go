package signs

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/reachy-signs/pkg/frame"
)

var (
	blobColor      = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	referenceColor = color.RGBA{R: 0, G: 0, B: 255, A: 0}
	confidentColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}
)

// VoteLabel is the diagnostic text drawn next to a blob.
func VoteLabel(v Vote) string {
	s := v.Sample
	label := fmt.Sprintf("R:%.2f S:%.0f RGB:(%.0f,%.0f,%.0f)", s.Ratio, s.Saturation, s.R, s.G, s.B)
	if v.Confident {
		label += " Dom:" + v.Color.String()
	}
	return label
}

// Render draws the calibration view: the raw frame on the left and the
// annotated frame on the right. The returned BGR Mat must be closed by the caller.
func Render(f *frame.Frame, analysis Analysis) (gocv.Mat, error) {
	raw, err := f.BGRMat()
	if err != nil {
		return gocv.Mat{}, err
	}
	defer raw.Close()

	annotated := raw.Clone()
	defer annotated.Close()
	Annotate(&annotated, analysis.Votes)

	view := gocv.NewMat()
	gocv.Hconcat(raw, annotated, &view)
	return view, nil
}

// Annotate draws blob outlines, reference patches, confident-vote markers
// and the per-blob label onto a BGR image.
func Annotate(img *gocv.Mat, votes []Vote) {
	width := img.Cols()
	for _, v := range votes {
		center := v.Blob.Center

		gocv.Circle(img, center, v.Blob.Radius, blobColor, 2)
		gocv.Rectangle(img, v.Reference, referenceColor, 1)

		if v.Confident {
			gocv.Circle(img, center, 5, confidentColor, -1)
		}

		// Keep the label inside the image
		pos := image.Pt(center.X+25, center.Y)
		if pos.X >= width {
			pos.X = center.X - 25
		}
		textColor := color.RGBA{R: uint8(v.Sample.R), G: uint8(v.Sample.G), B: uint8(v.Sample.B), A: 0}
		gocv.PutTextWithParams(img, VoteLabel(v), pos, gocv.FontHersheySimplex, 0.7, textColor, 1, gocv.LineAA, false)
	}
}
