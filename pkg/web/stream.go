package web

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/reachy-signs/pkg/signs"
)

// Diagnostic is the per-frame message on /ws/diagnostics.
type Diagnostic struct {
	Seq     uint64        `json:"seq"`
	Time    time.Time     `json:"time"`
	Result  signs.Result  `json:"result"`
	Votes   []signs.Vote  `json:"votes"`
	Params  signs.Params  `json:"params"`
	Latency time.Duration `json:"latency_ns"`
}

// Show implements signs.Display. The view goes to /ws/camera as JPEG and the
// votes to /ws/diagnostics. Nothing is encoded while nobody is watching.
func (s *Server) Show(view gocv.Mat, analysis signs.Analysis) error {
	if s.cameraHub.ClientCount() > 0 {
		data, err := encodeJPEG(view, s.cfg.JPEGQuality)
		if err != nil {
			return err
		}
		s.cameraHub.BroadcastBinary(data)
	}

	if s.diagnosticsHub.ClientCount() > 0 {
		d := Diagnostic{
			Seq:    analysis.Seq,
			Time:   time.Now(),
			Result: analysis.Result,
			Votes:  analysis.Votes,
			Params: s.detector.Params().Get(),
		}
		if analysis.Frame != nil && !analysis.Frame.Timestamp.IsZero() {
			d.Latency = time.Since(analysis.Frame.Timestamp)
		}
		if err := s.diagnosticsHub.BroadcastJSON(d); err != nil {
			return fmt.Errorf("encode diagnostics: %w", err)
		}
	}
	return nil
}

func encodeJPEG(view gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, view, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
