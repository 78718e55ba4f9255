package video

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Decoder turns buffered H264 into JPEG using an ffmpeg subprocess with
// pipe I/O (no temp files).
type Decoder struct {
	// Binary is the ffmpeg executable. Default: "ffmpeg"
	Binary string

	// Timeout bounds a single decode.
	Timeout time.Duration

	// Decode rate limiting
	mu          sync.Mutex
	lastDecode  time.Time
	minInterval time.Duration

	// Frame buffer
	frameMu     sync.RWMutex
	latestFrame []byte
}

// NewDecoder creates a decoder. decodeInterval controls how often we decode
// (e.g., 66ms = 15 FPS max).
func NewDecoder(decodeInterval time.Duration) *Decoder {
	return &Decoder{
		Binary:      "ffmpeg",
		Timeout:     200 * time.Millisecond,
		minInterval: decodeInterval,
	}
}

// Ready reports whether enough time has passed since the last decode.
func (d *Decoder) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Since(d.lastDecode) >= d.minInterval
}

// Decode decodes the first frame of an Annex-B H264 stream to JPEG.
// A nil result with a nil error means the data held no complete picture.
func (d *Decoder) Decode(ctx context.Context, h264 []byte) ([]byte, error) {
	if len(h264) < 100 {
		return nil, nil
	}

	d.mu.Lock()
	d.lastDecode = time.Now()
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Binary,
		"-loglevel", "error",
		"-f", "h264", // Input format
		"-i", "pipe:0", // Read from stdin
		"-frames:v", "1", // Just one frame
		"-f", "image2pipe", // Output as pipe
		"-vcodec", "mjpeg", // Output as JPEG
		"-q:v", "3", // Quality (1-31, lower is better)
		"pipe:1", // Write to stdout
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(h264)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		// ffmpeg exits non-zero when there is not enough data for a frame
		if stdout.Len() == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	jpegData := stdout.Bytes()
	if isBlankJPEG(jpegData) {
		return nil, nil
	}

	d.frameMu.Lock()
	d.latestFrame = jpegData
	d.frameMu.Unlock()
	return jpegData, nil
}

// LatestFrame returns a copy of the most recently decoded frame, or nil.
func (d *Decoder) LatestFrame() []byte {
	d.frameMu.RLock()
	defer d.frameMu.RUnlock()

	if d.latestFrame == nil {
		return nil
	}
	return append([]byte(nil), d.latestFrame...)
}

// isBlankJPEG reports frames that are too small, undecodable, or the flat
// gray/black pictures a decoder emits before the first keyframe.
func isBlankJPEG(jpegData []byte) bool {
	if len(jpegData) < 1000 {
		return true
	}

	img, err := gocv.IMDecode(jpegData, gocv.IMReadColor)
	if err != nil {
		return true
	}
	defer img.Close()

	if img.Empty() || img.Cols() < 100 || img.Rows() < 100 {
		return true
	}

	mean, stddev := gocv.NewMat(), gocv.NewMat()
	defer mean.Close()
	defer stddev.Close()
	gocv.MeanStdDev(img, &mean, &stddev)

	var avg, spread float64
	for i := 0; i < 3; i++ {
		avg += mean.GetDoubleAt(i, 0)
		spread += stddev.GetDoubleAt(i, 0)
	}
	avg /= 3
	spread /= 3

	// Black, or a featureless mid-gray picture
	if avg < 30 {
		return true
	}
	return spread < 2 && avg > 100 && avg < 150
}
