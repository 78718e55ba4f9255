// Package config loads reachy-signs settings from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults used when the environment does not say otherwise.
const (
	DefaultWebPort      = 8181
	DefaultTimeout      = 5 * time.Second
	DefaultPollInterval = 10 * time.Millisecond
	DefaultGestureTable = "red=rock,blue=paper,green=scissors"
)

// Config holds process-wide settings. Flag parsing is done in cmd/signs;
// this struct is data only.
type Config struct {
	RobotIP       string
	CameraBackend string // auto, robot, webcam, mock
	CameraDevice  string // device index or path for the webcam backend
	CameraPreset  string
	CameraFlip    bool          // camera mounted upside down
	Timeout       time.Duration // default bound for one detection attempt
	PollInterval  time.Duration
	WebPort       int
	LogLevel      string
	GestureTable  string
}

// Load reads .env (if any) and then the process environment.
func Load() *Config {
	// A missing .env is normal; real env vars always win over it.
	_ = godotenv.Load()

	return &Config{
		RobotIP:       getEnv("ROBOT_IP", ""),
		CameraBackend: getEnv("CAMERA_BACKEND", "auto"),
		CameraDevice:  getEnv("CAMERA_DEVICE", ""),
		CameraPreset:  getEnv("CAMERA_PRESET", "default"),
		CameraFlip:    getEnvAsBool("CAMERA_FLIP", false),
		Timeout:       getEnvAsDuration("SIGN_TIMEOUT", DefaultTimeout),
		PollInterval:  getEnvAsDuration("SIGN_POLL_INTERVAL", DefaultPollInterval),
		WebPort:       getEnvAsInt("WEB_PORT", DefaultWebPort),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		GestureTable:  getEnv("GESTURE_TABLE", DefaultGestureTable),
	}
}

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return &ConfigError{Field: "Timeout", Message: "SIGN_TIMEOUT must be positive"}
	}
	if c.PollInterval <= 0 {
		return &ConfigError{Field: "PollInterval", Message: "SIGN_POLL_INTERVAL must be positive"}
	}
	if c.WebPort <= 0 || c.WebPort > 65535 {
		return &ConfigError{Field: "WebPort", Message: "WEB_PORT must be between 1 and 65535"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Bare numbers are seconds, matching how callers talk about timeouts
		if secs, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
