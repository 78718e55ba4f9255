package camera

import (
	"errors"
	"testing"
)

func TestNewSource_BackendSelection(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		want    string
		wantErr error
	}{
		{"auto prefers robot", func(c *Config) { c.RobotAddress = "10.0.0.91"; c.Device = "0" }, "robot", nil},
		{"auto falls back to webcam", func(c *Config) { c.Device = "0" }, "webcam", nil},
		{"auto with image uses mock", func(c *Config) { c.ImagePath = "sign.png" }, "mock", nil},
		{"auto with nothing", func(c *Config) {}, "", ErrNoSource},
		{"explicit mock", func(c *Config) { c.Backend = BackendMock }, "mock", nil},
		{"unknown backend", func(c *Config) { c.Backend = "gst" }, "", ErrUnsupportedBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			src, err := NewSource(cfg, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSource: %v", err)
			}
			defer src.Close()

			if src.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", src.Name(), tt.want)
			}
		})
	}
}

func TestNewSource_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.Width = 1

	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("expected validation error")
	}
}
