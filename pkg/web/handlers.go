package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/reachy-signs/pkg/camera"
	"github.com/teslashibe/reachy-signs/pkg/frame"
	"github.com/teslashibe/reachy-signs/pkg/gesture"
	"github.com/teslashibe/reachy-signs/pkg/hub"
	"github.com/teslashibe/reachy-signs/pkg/signs"
)

// Status is the response of GET /api/status.
type Status struct {
	Detector signs.Stats          `json:"detector"`
	Buffer   frame.BufferStats    `json:"buffer"`
	Source   *camera.SourceStats  `json:"source,omitempty"`
	Hubs     map[string]hub.Stats `json:"hubs"`
	Gestures string               `json:"gestures"`
}

// DetectResponse is the response of POST /api/detect.
type DetectResponse struct {
	ID        string          `json:"id"`
	Result    signs.Result    `json:"result"`
	Gesture   gesture.Gesture `json:"gesture,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms"`
	Frames    int             `json:"frames"`
}

// handleStatus returns detector, buffer and stream counters
func (s *Server) handleStatus(c *fiber.Ctx) error {
	status := Status{
		Detector: s.detector.Stats(),
		Buffer:   s.detector.Buffer().Stats(),
		Hubs: map[string]hub.Stats{
			"camera":      s.cameraHub.Stats(),
			"diagnostics": s.diagnosticsHub.Stats(),
		},
		Gestures: s.cfg.Gestures.String(),
	}
	if s.source != nil {
		stats := s.source.Stats()
		status.Source = &stats
	}
	return c.JSON(status)
}

// handleGetParams returns the live calibration parameters
func (s *Server) handleGetParams(c *fiber.Ctx) error {
	return c.JSON(s.detector.Params().Get())
}

// handlePutParams applies a partial update, keyed by JSON field name
func (s *Server) handlePutParams(c *fiber.Ctx) error {
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON body: " + err.Error(),
		})
	}

	if err := s.detector.Params().UpdateFields(fields); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.logger.Info("parameters updated", "fields", len(fields))
	return c.JSON(s.detector.Params().Get())
}

// handleDetect runs one bounded detection attempt
func (s *Server) handleDetect(c *fiber.Ctx) error {
	timeout := s.cfg.DefaultTimeout
	if raw := c.Query("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "timeout must be a duration such as 5s",
			})
		}
		timeout = d
	}
	if timeout > s.cfg.MaxTimeout {
		timeout = s.cfg.MaxTimeout
	}

	attempt, err := s.detector.Detect(c.UserContext(), timeout)
	switch {
	case errors.Is(err, signs.ErrDetectorBusy):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errors.Is(err, context.Canceled):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(DetectResponse{
		ID:        attempt.ID,
		Result:    attempt.Result,
		Gesture:   s.cfg.Gestures.Lookup(attempt.Result),
		ElapsedMS: attempt.Elapsed.Milliseconds(),
		Frames:    attempt.Frames,
	})
}
