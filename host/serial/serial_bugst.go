package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// BugstPort wraps a go.bug.st/serial port
type BugstPort struct {
	port serial.Port
	cfg  *Config
}

// openBugst opens a port at 8N1 with the configured read timeout
func openBugst(cfg *Config) (Port, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(time.Duration(cfg.ReadTimeout) * time.Millisecond); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Device, err)
		}
	}

	if cfg.ResetOnOpen {
		// Low then high restarts Arduino-style boards
		if err := port.SetDTR(false); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to reset %s: %w", cfg.Device, err)
		}
		time.Sleep(50 * time.Millisecond)
		if err := port.SetDTR(true); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to reset %s: %w", cfg.Device, err)
		}
	}

	return &BugstPort{
		port: port,
		cfg:  cfg,
	}, nil
}

// Read reads data from the serial port
// With a read timeout, (0, nil) means nothing arrived in time
func (p *BugstPort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

// Write writes data to the serial port
func (p *BugstPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close closes the serial port
func (p *BugstPort) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Flush discards unread input
func (p *BugstPort) Flush() error {
	return p.port.ResetInputBuffer()
}

// ListPorts returns the serial ports present on the system
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
