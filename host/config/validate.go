package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"turnscan/host/serial"
	"turnscan/protocol"
)

// Validate checks configuration correctness.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	switch cfg.Serial.Driver {
	case "", serial.DriverTarm, serial.DriverBugst:
	default:
		return fmt.Errorf("serial.driver %q: must be %q or %q",
			cfg.Serial.Driver, serial.DriverTarm, serial.DriverBugst)
	}

	if cfg.Serial.Baud < 0 || cfg.Serial.ReadTimeoutMs < 0 {
		return fmt.Errorf("serial: baud and read_timeout_ms must not be negative")
	}

	if len(cfg.Protocol.EndOfFrame) > 1 {
		return fmt.Errorf("protocol.end_of_frame %q: must be a single byte", cfg.Protocol.EndOfFrame)
	}
	if eof := cfg.EndOfFrame(); protocol.IsCommandLetter(eof) || protocol.IsDigit(eof) {
		return fmt.Errorf("protocol.end_of_frame %q: collides with frame content", cfg.Protocol.EndOfFrame)
	}
	if cfg.Protocol.QueueCapacity < 0 {
		return fmt.Errorf("protocol.queue_capacity must not be negative")
	}

	if cfg.Handshake.BootDelayMs < 0 || cfg.Handshake.TimeoutMs < 0 {
		return fmt.Errorf("handshake: delays must not be negative")
	}

	s := cfg.Scanner
	if s.RPM > 24 {
		return fmt.Errorf("scanner.rpm %d: must be 1-24", s.RPM)
	}
	switch s.Direction {
	case "", "cw", "ccw":
	default:
		return fmt.Errorf("scanner.direction %q: must be cw or ccw", s.Direction)
	}
	if s.TotalSteps != 0 && s.TurnsPerCircle > s.TotalSteps {
		return fmt.Errorf("scanner.turns_per_circle %d exceeds total_steps %d", s.TurnsPerCircle, s.TotalSteps)
	}

	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log.level %q: %w", cfg.Log.Level, err)
		}
	}

	return nil
}
