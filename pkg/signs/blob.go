package signs

import (
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/reachy-signs/pkg/debug"
	"github.com/teslashibe/reachy-signs/pkg/frame"
)

// Blob is a disk-shaped region that passed the shape filters.
type Blob struct {
	Center image.Point `json:"center"`
	Radius int         `json:"radius"`

	Area        float64 `json:"area"`
	Circularity float64 `json:"circularity"`
	Convexity   float64 `json:"convexity"`
}

// Interior returns the square sampled for the blob's color: half-size
// Radius/2 around the center, clipped to bounds.
func (b Blob) Interior(bounds image.Rectangle) image.Rectangle {
	half := b.Radius / 2
	r := image.Rect(b.Center.X-half, b.Center.Y-half, b.Center.X+half, b.Center.Y+half)
	return r.Intersect(bounds)
}

// Reference returns the small patch near the blob's upper-left edge that is
// assumed to show the neutral background. It is used as the white-balance
// reference.
func (b Blob) Reference(bounds image.Rectangle) image.Rectangle {
	inset := int(0.1 * float64(b.Radius))
	x := b.Center.X - b.Radius + inset
	y := b.Center.Y - b.Radius + inset
	if x < bounds.Min.X {
		x = bounds.Min.X
	}
	if y < bounds.Min.Y {
		y = bounds.Min.Y
	}
	size := b.Radius / 6
	if size < 1 {
		size = 1
	}
	return image.Rect(x, y, x+size, y+size).Intersect(bounds)
}

// candidate is one contour that passed the filters at a single threshold.
type candidate struct {
	center      [2]float64
	radius      float64
	area        float64
	circularity float64
	convexity   float64
}

// Extractor finds disk-shaped blobs in a frame.
//
// The frame is converted to gray, blurred, and binarized at a sweep of
// thresholds. Contours that pass the area, circularity and convexity filters
// at enough thresholds in the same place become blobs. An Extractor holds no
// state and is safe for concurrent use.
type Extractor struct{}

// NewExtractor creates a blob extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the blobs in f. An empty result is normal. The only error
// is a frame that cannot be handed to OpenCV.
func (e *Extractor) Extract(f *frame.Frame, p Params) ([]Blob, error) {
	rgb, err := f.Mat()
	if err != nil {
		return nil, err
	}
	defer rgb.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(rgb, &gray, gocv.ColorRGBToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(p.BlurKernel, p.BlurKernel), 0, 0, gocv.BorderDefault)

	thresholdType := gocv.ThresholdBinaryInv
	if p.Polarity == BrightBlobs {
		thresholdType = gocv.ThresholdBinary
	}

	binary := gocv.NewMat()
	defer binary.Close()

	var groups [][]candidate
	for t := p.MinThreshold; t < p.MaxThreshold; t += p.ThresholdStep {
		gocv.Threshold(blurred, &binary, float32(t), 255, thresholdType)

		groups = mergeCandidates(groups, findCandidates(binary, p), p.MinDistBetweenBlobs)
	}

	blobs := make([]Blob, 0, len(groups))
	for _, g := range groups {
		if len(g) < p.MinRepeatability {
			continue
		}
		blobs = append(blobs, summarize(g))
	}
	debug.Log("blobs: %d groups, %d repeatable\n", len(groups), len(blobs))

	// Stable output order: top-to-bottom, then left-to-right
	sort.Slice(blobs, func(i, j int) bool {
		if blobs[i].Center.Y != blobs[j].Center.Y {
			return blobs[i].Center.Y < blobs[j].Center.Y
		}
		return blobs[i].Center.X < blobs[j].Center.X
	})
	return blobs, nil
}

// findCandidates measures every contour in a binarized image and keeps the
// ones passing the shape filters.
func findCandidates(binary gocv.Mat, p Params) []candidate {
	contours := gocv.FindContours(binary, gocv.RetrievalList, gocv.ChainApproxNone)
	defer contours.Close()

	var out []candidate
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		if contour.Size() < 3 {
			continue
		}

		area := gocv.ContourArea(contour)
		if area < p.MinArea || area > p.MaxArea {
			continue
		}

		perimeter := gocv.ArcLength(contour, true)
		if perimeter <= 0 {
			continue
		}
		circularity := 4 * math.Pi * area / (perimeter * perimeter)
		if circularity < p.MinCircularity {
			continue
		}

		hull := hullArea(contour)
		if hull <= 0 {
			continue
		}
		convexity := area / hull
		if convexity < p.MinConvexity {
			continue
		}

		cx, cy, ok := centroid(contour)
		if !ok {
			continue
		}
		px, py := int(math.Round(cx)), int(math.Round(cy))
		if px < 0 || py < 0 || px >= binary.Cols() || py >= binary.Rows() {
			continue
		}
		// Rings and other shapes whose center lies outside the region
		if binary.GetUCharAt(py, px) == 0 {
			continue
		}

		out = append(out, candidate{
			center:      [2]float64{cx, cy},
			radius:      medianDistance(contour.ToPoints(), cx, cy),
			area:        area,
			circularity: circularity,
			convexity:   convexity,
		})
	}
	return out
}

// mergeCandidates adds the candidates found at one threshold to the groups
// built so far. A candidate joins a group when it is closer than minDist to
// the group's first center or falls inside either blob.
func mergeCandidates(groups [][]candidate, found []candidate, minDist float64) [][]candidate {
	for _, c := range found {
		joined := false
		for gi, g := range groups {
			ref := g[len(g)/2]
			d := math.Hypot(c.center[0]-ref.center[0], c.center[1]-ref.center[1])
			if d < minDist || d < ref.radius || d < c.radius {
				groups[gi] = append(g, c)
				joined = true
				break
			}
		}
		if !joined {
			groups = append(groups, []candidate{c})
		}
	}
	return groups
}

// summarize combines a group into a blob: mean center and shape measures,
// median radius.
func summarize(g []candidate) Blob {
	xs := make([]float64, len(g))
	ys := make([]float64, len(g))
	radii := make([]float64, len(g))
	areas := make([]float64, len(g))
	circ := make([]float64, len(g))
	conv := make([]float64, len(g))
	for i, c := range g {
		xs[i], ys[i] = c.center[0], c.center[1]
		radii[i] = c.radius
		areas[i] = c.area
		circ[i] = c.circularity
		conv[i] = c.convexity
	}
	sort.Float64s(radii)

	return Blob{
		Center:      image.Pt(int(stat.Mean(xs, nil)), int(stat.Mean(ys, nil))),
		Radius:      int(stat.Quantile(0.5, stat.Empirical, radii, nil)),
		Area:        stat.Mean(areas, nil),
		Circularity: stat.Mean(circ, nil),
		Convexity:   stat.Mean(conv, nil),
	}
}

// centroid returns the area centroid of a closed contour from its moments.
func centroid(contour gocv.PointVector) (x, y float64, ok bool) {
	pts := gocv.NewMatFromPointVector(contour, true)
	defer pts.Close()

	m := gocv.Moments(pts, false)
	if math.Abs(m["m00"]) < 1e-9 {
		return 0, 0, false
	}
	return m["m10"] / m["m00"], m["m01"] / m["m00"], true
}

func medianDistance(pts []image.Point, cx, cy float64) float64 {
	d := make([]float64, len(pts))
	for i, p := range pts {
		d[i] = math.Hypot(float64(p.X)-cx, float64(p.Y)-cy)
	}
	sort.Float64s(d)
	return stat.Quantile(0.5, stat.Empirical, d, nil)
}

// hullArea returns the area of the contour's convex hull.
func hullArea(contour gocv.PointVector) float64 {
	hull := gocv.NewMat()
	defer hull.Close()
	gocv.ConvexHull(contour, &hull, true, true)

	pts := gocv.NewPointVectorFromMat(hull)
	defer pts.Close()
	return gocv.ContourArea(pts)
}
