// Package signs turns camera frames into colored-sign readings.
//
// The pipeline has three stages, run once per frame:
//
//	Extractor   finds disk-shaped blobs (area, circularity, convexity filters)
//	Classifier  white-balances each blob's interior against a nearby reference
//	            patch and votes for red, green or blue when the color is dominant
//	Detector    owns the frame buffer, collects votes, and answers DetectSign
//	            queries within a deadline; Calibrate runs the same pipeline with
//	            diagnostics for an operator.
//
// A frame with exactly one confident vote resolves to that color. Zero votes
// or several votes are normal outcomes and never errors.
package signs

import (
	"fmt"
	"strings"
)

// Result is the outcome of classifying a frame or a detection attempt.
type Result int

const (
	// NoSignal means no blob voted confidently, or no frame resolved before the deadline.
	NoSignal Result = iota
	Red
	Green
	Blue
	// Ambiguous means more than one blob voted confidently in the same frame.
	Ambiguous
)

var resultNames = map[Result]string{
	NoSignal:  "none",
	Red:       "red",
	Green:     "green",
	Blue:      "blue",
	Ambiguous: "ambiguous",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// IsColor reports whether r names a single color.
func (r Result) IsColor() bool {
	return r == Red || r == Green || r == Blue
}

// MarshalText implements encoding.TextMarshaler.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Result) UnmarshalText(text []byte) error {
	parsed, err := ParseResult(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseResult parses a result name ("red", "green", "blue", "ambiguous", "none").
func ParseResult(s string) (Result, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range resultNames {
		if name == s {
			return r, nil
		}
	}
	return NoSignal, fmt.Errorf("signs: unknown result %q", s)
}
