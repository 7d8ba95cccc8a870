package serial

import (
	"fmt"
	"io"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - go.bug.st/serial, with explicit line settings and DTR control
// - In-memory loopback (for testing and the simulator)
//
// Read returns (0, nil) when nothing arrived within the read timeout.
// Any error means the link is gone.
type Port interface {
	io.ReadWriteCloser

	// Flush discards any received but unread data
	Flush() error
}

// Backend drivers
const (
	DriverTarm  = "tarm"
	DriverBugst = "bugst"
)

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this, UART bridges do not)
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int

	// Driver selects the backend: "tarm" (default) or "bugst"
	Driver string

	// ResetOnOpen pulses DTR after opening, restarting boards that
	// reset on DTR (bugst driver only)
	ResetOnOpen bool
}

// DefaultConfig returns the default configuration for the turntable controller
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200, // Controller firmware baud rate
		ReadTimeout: 100,    // 100ms read timeout
		Driver:      DriverTarm,
	}
}

// Open opens a serial port with the configured driver
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.Driver {
	case "", DriverTarm:
		return openTarm(cfg)
	case DriverBugst:
		return openBugst(cfg)
	default:
		return nil, fmt.Errorf("unknown serial driver %q", cfg.Driver)
	}
}
