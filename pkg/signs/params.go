package signs

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
)

// Polarity selects which side of the brightness threshold counts as a blob.
type Polarity int

const (
	// DarkBlobs finds regions darker than their surroundings. A saturated
	// sign held against a light background is darker in the gray channel.
	DarkBlobs Polarity = iota
	// BrightBlobs finds regions brighter than their surroundings.
	BrightBlobs
)

func (p Polarity) String() string {
	if p == BrightBlobs {
		return "bright"
	}
	return "dark"
}

// MarshalText implements encoding.TextMarshaler.
func (p Polarity) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Polarity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "dark":
		*p = DarkBlobs
	case "bright":
		*p = BrightBlobs
	default:
		return fmt.Errorf("%w: polarity must be dark or bright, got %q", ErrInvalidParams, text)
	}
	return nil
}

// Params holds the calibration parameters for blob extraction and color
// classification. Values are read as a snapshot at the start of each frame.
type Params struct {
	// === Shape filters ===
	MinArea        float64 `json:"min_area"`        // Minimum blob area in pixels
	MaxArea        float64 `json:"max_area"`        // Maximum blob area in pixels
	MinCircularity float64 `json:"min_circularity"` // 4π·area/perimeter², 0-1
	MinConvexity   float64 `json:"min_convexity"`   // area/hull area, 0-1

	// === Color decision ===
	RatioThreshold      float64 `json:"ratio_threshold"`      // brightest / sum of the other two
	SaturationThreshold float64 `json:"saturation_threshold"` // mean HSV saturation, 0-255
	WhiteBalance        bool    `json:"white_balance"`        // correct against the reference patch

	// === Blob search ===
	Polarity            Polarity `json:"polarity"`
	MinThreshold        int      `json:"min_threshold"`  // first binarization level (0-255)
	MaxThreshold        int      `json:"max_threshold"`  // last level, exclusive
	ThresholdStep       int      `json:"threshold_step"` // level increment
	MinRepeatability    int      `json:"min_repeatability"`
	MinDistBetweenBlobs float64  `json:"min_dist_between_blobs"`
	BlurKernel          int      `json:"blur_kernel"` // odd Gaussian kernel size
}

// DefaultParams returns the parameters that work for hand-held paper signs
// at arm's length from a 640x480 camera.
func DefaultParams() Params {
	return Params{
		MinArea:        220,
		MaxArea:        100000,
		MinCircularity: 0.8,
		MinConvexity:   0.8,

		RatioThreshold:      0.6,
		SaturationThreshold: 120,
		WhiteBalance:        true,

		Polarity:            DarkBlobs,
		MinThreshold:        50,
		MaxThreshold:        220,
		ThresholdStep:       10,
		MinRepeatability:    2,
		MinDistBetweenBlobs: 10,
		BlurKernel:          7,
	}
}

// Validate checks that every value is within its valid range.
func (p Params) Validate() error {
	var problems []string

	if p.MinArea < 0 {
		problems = append(problems, "min_area must be >= 0")
	}
	if p.MaxArea < p.MinArea {
		problems = append(problems, "max_area must be >= min_area")
	}
	if p.MinCircularity < 0 || p.MinCircularity > 1 {
		problems = append(problems, "min_circularity must be between 0 and 1")
	}
	if p.MinConvexity < 0 || p.MinConvexity > 1 {
		problems = append(problems, "min_convexity must be between 0 and 1")
	}
	if p.RatioThreshold < 0 {
		problems = append(problems, "ratio_threshold must be >= 0")
	}
	if p.SaturationThreshold < 0 || p.SaturationThreshold > 255 {
		problems = append(problems, "saturation_threshold must be between 0 and 255")
	}
	if p.Polarity != DarkBlobs && p.Polarity != BrightBlobs {
		problems = append(problems, "polarity must be dark or bright")
	}
	if p.MinThreshold < 0 || p.MaxThreshold > 256 || p.MinThreshold >= p.MaxThreshold {
		problems = append(problems, "thresholds must satisfy 0 <= min_threshold < max_threshold <= 256")
	}
	if p.ThresholdStep < 1 {
		problems = append(problems, "threshold_step must be >= 1")
	}
	if p.MinRepeatability < 1 {
		problems = append(problems, "min_repeatability must be >= 1")
	}
	if p.MinDistBetweenBlobs < 0 {
		problems = append(problems, "min_dist_between_blobs must be >= 0")
	}
	if p.BlurKernel < 1 || p.BlurKernel%2 == 0 {
		problems = append(problems, "blur_kernel must be a positive odd number")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidParams, problems)
	}
	return nil
}

// ParamStore guards the live calibration parameters. Operator controls write
// through it while the detection loop reads a snapshot per frame.
type ParamStore struct {
	mu       sync.RWMutex
	params   Params
	onChange func(p Params)
}

// NewParamStore creates a store holding p. Invalid p falls back to defaults.
func NewParamStore(p Params) *ParamStore {
	if err := p.Validate(); err != nil {
		p = DefaultParams()
	}
	return &ParamStore{params: p}
}

// Get returns a snapshot of the current parameters.
func (s *ParamStore) Get() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// SetOnChange registers fn to be called with the new parameters after every
// successful update. fn runs outside the lock; nil removes the callback.
func (s *ParamStore) SetOnChange(fn func(p Params)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Set replaces the parameters after validating them.
func (s *ParamStore) Set(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.params = p
	callback := s.onChange
	s.mu.Unlock()

	if callback != nil {
		callback(p)
	}
	return nil
}

// Update applies fn to a copy of the current parameters and stores the
// result if it validates. The read-modify-write is atomic.
func (s *ParamStore) Update(fn func(p *Params)) error {
	return s.update(func(p *Params) error {
		fn(p)
		return nil
	})
}

func (s *ParamStore) update(fn func(p *Params) error) error {
	s.mu.Lock()
	p := s.params
	if err := fn(&p); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := p.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.params = p
	callback := s.onChange
	s.mu.Unlock()

	if callback != nil {
		callback(p)
	}
	return nil
}

// UpdateFields updates specific fields by their JSON name.
// Unknown names and values of the wrong type reject the whole update.
func (s *ParamStore) UpdateFields(fields map[string]interface{}) error {
	return s.update(func(p *Params) error {
		var errs []error
		for key, value := range fields {
			if err := applyField(p, key, value); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("%w: %w", ErrInvalidParams, errors.Join(errs...))
		}
		return nil
	})
}

// applyField sets one named field.
func applyField(p *Params, key string, value interface{}) error {
	switch key {
	case "min_area":
		return setFloat(&p.MinArea, key, value)
	case "max_area":
		return setFloat(&p.MaxArea, key, value)
	case "min_circularity":
		return setFloat(&p.MinCircularity, key, value)
	case "min_convexity":
		return setFloat(&p.MinConvexity, key, value)
	case "ratio_threshold":
		return setFloat(&p.RatioThreshold, key, value)
	case "saturation_threshold":
		return setFloat(&p.SaturationThreshold, key, value)
	case "min_dist_between_blobs":
		return setFloat(&p.MinDistBetweenBlobs, key, value)
	case "white_balance":
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%s: want bool, got %T", key, value)
		}
		p.WhiteBalance = v
		return nil
	case "polarity":
		text, _ := value.(string)
		if err := p.Polarity.UnmarshalText([]byte(text)); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	case "min_threshold":
		return setInt(&p.MinThreshold, key, value)
	case "max_threshold":
		return setInt(&p.MaxThreshold, key, value)
	case "threshold_step":
		return setInt(&p.ThresholdStep, key, value)
	case "min_repeatability":
		return setInt(&p.MinRepeatability, key, value)
	case "blur_kernel":
		return setInt(&p.BlurKernel, key, value)
	default:
		return fmt.Errorf("unknown field %q", key)
	}
}

func setFloat(dst *float64, key string, value interface{}) error {
	v, ok := toFloat(value)
	if !ok {
		return fmt.Errorf("%s: want number, got %T", key, value)
	}
	*dst = v
	return nil
}

func setInt(dst *int, key string, value interface{}) error {
	v, ok := toFloat(value)
	if !ok {
		return fmt.Errorf("%s: want number, got %T", key, value)
	}
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return fmt.Errorf("%s: want integer, got %v", key, v)
	}
	*dst = int(v)
	return nil
}

// JSON returns the current parameters as a generic map.
func (s *ParamStore) JSON() map[string]interface{} {
	// Convert via JSON for consistent field names
	data, _ := json.Marshal(s.Get())
	var result map[string]interface{}
	_ = json.Unmarshal(data, &result)
	return result
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		if err == nil {
			return f, true
		}
	}
	return 0, false
}
