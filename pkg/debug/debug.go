// Package debug provides global debug logging flags
package debug

import "fmt"

// Enabled controls whether debug logging is active
var Enabled bool

// Vision controls whether per-blob diagnostics are printed
// (dominance ratio, saturation, color votes). Very verbose at camera rate.
var Vision bool

// Log prints a message only if debug mode is enabled
func Log(format string, args ...interface{}) {
	if Enabled {
		fmt.Printf(format, args...)
	}
}

// VisionLog prints a message only if vision diagnostics are enabled
func VisionLog(format string, args ...interface{}) {
	if Vision {
		fmt.Printf(format, args...)
	}
}
