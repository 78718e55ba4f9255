package signs

import (
	"image"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/reachy-signs/pkg/debug"
	"github.com/teslashibe/reachy-signs/pkg/frame"
)

// ColorSample is the averaged color of a blob's interior after white balance.
type ColorSample struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`

	// Ratio is the brightest channel divided by the sum of the other two.
	Ratio float64 `json:"ratio"`

	// Saturation is the mean HSV saturation of the region, 0-255.
	Saturation float64 `json:"saturation"`
}

// Vote is the classifier's opinion about one blob.
type Vote struct {
	Blob      Blob            `json:"blob"`
	Interior  image.Rectangle `json:"interior"`
	Reference image.Rectangle `json:"reference"`

	// Scale holds the per-channel white-balance factors in R, G, B order.
	Scale [3]float64 `json:"scale"`

	Sample ColorSample `json:"sample"`

	// Color is the dominant channel. It only counts when Confident is set.
	Color     Result `json:"color"`
	Confident bool   `json:"confident"`
}

// Classifier decides whether a blob shows a dominant red, green or blue.
// It holds no state and is safe for concurrent use.
type Classifier struct{}

// NewClassifier creates a color classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// dominantOrder lists channel colors in the order used to break ties.
var dominantOrder = [3]Result{Blue, Green, Red}

// Classify samples the blob's interior, corrects it against the reference
// patch and votes when both the dominance ratio and the saturation exceed
// their thresholds. Classifying the same blob twice gives the same vote.
func (c *Classifier) Classify(f *frame.Frame, b Blob, p Params) Vote {
	bounds := f.Bounds()
	v := Vote{
		Blob:      b,
		Interior:  b.Interior(bounds),
		Reference: b.Reference(bounds),
		Scale:     [3]float64{1, 1, 1},
		Color:     NoSignal,
	}

	if p.WhiteBalance {
		v.Scale = WhiteBalanceScale(f, v.Reference)
	}

	v.Sample = sampleRegion(f, v.Interior, v.Scale)

	bgr := []float64{v.Sample.B, v.Sample.G, v.Sample.R}
	if floats.Max(bgr) > 0 {
		v.Color = dominantOrder[floats.MaxIdx(bgr)]
	}
	v.Confident = v.Color != NoSignal &&
		v.Sample.Ratio > p.RatioThreshold &&
		v.Sample.Saturation > p.SaturationThreshold

	debug.VisionLog("blob at (%d,%d) r=%d: ratio=%.2f sat=%.0f rgb=(%.0f,%.0f,%.0f) color=%s confident=%v\n",
		b.Center.X, b.Center.Y, b.Radius, v.Sample.Ratio, v.Sample.Saturation,
		v.Sample.R, v.Sample.G, v.Sample.B, v.Color, v.Confident)

	return v
}

// WhiteBalanceScale returns per-channel factors (R, G, B) that map the mean
// color of ref onto a neutral gray at its brightest channel. A channel whose
// reference mean is zero gets factor 0. An empty ref yields all zeros.
func WhiteBalanceScale(f *frame.Frame, ref image.Rectangle) [3]float64 {
	mean := regionMean(f, ref)
	maxRef := floats.Max(mean[:])

	var scale [3]float64
	for i, m := range mean {
		if m > 0 {
			scale[i] = maxRef / m
		}
	}
	return scale
}

// regionMean returns the mean R, G, B of the pixels in r.
func regionMean(f *frame.Frame, r image.Rectangle) [3]float64 {
	r = r.Intersect(f.Bounds())
	if r.Empty() {
		return [3]float64{}
	}

	n := r.Dx() * r.Dy()
	ch := [3][]float64{make([]float64, 0, n), make([]float64, 0, n), make([]float64, 0, n)}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			red, green, blue := f.At(x, y)
			ch[0] = append(ch[0], float64(red))
			ch[1] = append(ch[1], float64(green))
			ch[2] = append(ch[2], float64(blue))
		}
	}
	return [3]float64{stat.Mean(ch[0], nil), stat.Mean(ch[1], nil), stat.Mean(ch[2], nil)}
}

// sampleRegion applies scale to every pixel in r, clamping to 8-bit, and
// returns the mean color with its dominance ratio and saturation.
func sampleRegion(f *frame.Frame, r image.Rectangle, scale [3]float64) ColorSample {
	r = r.Intersect(f.Bounds())
	if r.Empty() {
		return ColorSample{}
	}

	n := r.Dx() * r.Dy()
	reds := make([]float64, 0, n)
	greens := make([]float64, 0, n)
	blues := make([]float64, 0, n)
	corrected := make([]uint8, 0, n*frame.Channels)

	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			red, green, blue := f.At(x, y)
			cr := correct(red, scale[0])
			cg := correct(green, scale[1])
			cb := correct(blue, scale[2])

			reds = append(reds, cr)
			greens = append(greens, cg)
			blues = append(blues, cb)
			corrected = append(corrected, uint8(cr), uint8(cg), uint8(cb))
		}
	}

	// Channel means are truncated to whole levels before the ratio
	s := ColorSample{
		R:          math.Floor(stat.Mean(reds, nil)),
		G:          math.Floor(stat.Mean(greens, nil)),
		B:          math.Floor(stat.Mean(blues, nil)),
		Saturation: meanSaturation(corrected, r.Dx(), r.Dy()),
	}
	s.Ratio = DominanceRatio(s.R, s.G, s.B)
	return s
}

// DominanceRatio returns max/(sum-max), or 0 when the other two channels are both zero.
func DominanceRatio(r, g, b float64) float64 {
	maxC := math.Max(r, math.Max(g, b))
	rest := r + g + b - maxC
	if rest <= 0 {
		return 0
	}
	return maxC / rest
}

// correct scales an 8-bit sample and truncates it back to 8 bits.
func correct(v uint8, scale float64) float64 {
	c := float64(v) * scale
	if c < 0 {
		c = 0
	}
	if c > 255 {
		c = 255
	}
	return math.Floor(c)
}

// meanSaturation returns the mean HSV saturation (0-255) of a packed RGB
// region.
func meanSaturation(pix []uint8, w, h int) float64 {
	rgb, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, pix)
	if err != nil {
		return 0
	}
	defer rgb.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(rgb, &hsv, gocv.ColorRGBToHSV)
	return hsv.Mean().Val2
}
