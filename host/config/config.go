// Package config loads the host configuration file
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"turnscan/host/serial"
	"turnscan/protocol"
)

// Config is the host configuration file
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Handshake HandshakeConfig `yaml:"handshake"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Log       LogConfig       `yaml:"log"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Device        string `yaml:"device"`
	Baud          int    `yaml:"baud"`
	Driver        string `yaml:"driver"` // tarm | bugst
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
	ResetOnOpen   bool   `yaml:"reset_on_open"`
}

// ---- PROTOCOL ----

type ProtocolConfig struct {
	EndOfFrame    string `yaml:"end_of_frame"` // "\n" or "\x00"
	QueueCapacity int    `yaml:"queue_capacity"`
}

// ---- HANDSHAKE ----

type HandshakeConfig struct {
	BootDelayMs int `yaml:"boot_delay_ms"`
	TimeoutMs   int `yaml:"timeout_ms"`
}

// ---- SCANNER ----

// ScannerConfig holds settings pushed to the device after connecting.
// Zero leaves the device value unchanged.
type ScannerConfig struct {
	RPM              uint32 `yaml:"rpm"`
	TurnsPerCircle   uint32 `yaml:"turns_per_circle"`
	Direction        string `yaml:"direction"` // cw | ccw
	WaitAfterPhotoMs uint32 `yaml:"wait_after_photo_ms"`
	TotalSteps       uint32 `yaml:"total_steps"`
}

// ---- LOG ----

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, defaults and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(cfg *Config) {
	def := serial.DefaultConfig("")

	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = def.Baud
	}
	if cfg.Serial.Driver == "" {
		cfg.Serial.Driver = def.Driver
	}
	if cfg.Serial.ReadTimeoutMs == 0 {
		cfg.Serial.ReadTimeoutMs = def.ReadTimeout
	}

	if cfg.Protocol.EndOfFrame == "" {
		cfg.Protocol.EndOfFrame = string(rune(protocol.EndOfFrame))
	}
	if cfg.Protocol.QueueCapacity == 0 {
		cfg.Protocol.QueueCapacity = protocol.QueueCapacity
	}

	// Boards that reset on open need a moment before they listen
	if cfg.Handshake.BootDelayMs == 0 {
		cfg.Handshake.BootDelayMs = 2000
	}
	if cfg.Handshake.TimeoutMs == 0 {
		cfg.Handshake.TimeoutMs = 1000
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// SerialPort converts the serial section to a port configuration
func (c *Config) SerialPort() *serial.Config {
	return &serial.Config{
		Device:      c.Serial.Device,
		Baud:        c.Serial.Baud,
		ReadTimeout: c.Serial.ReadTimeoutMs,
		Driver:      c.Serial.Driver,
		ResetOnOpen: c.Serial.ResetOnOpen,
	}
}

// EndOfFrame returns the frame terminator byte
func (c *Config) EndOfFrame() byte {
	if c.Protocol.EndOfFrame == "" {
		return protocol.EndOfFrame
	}
	return c.Protocol.EndOfFrame[0]
}

// BootDelay returns the wait between opening the port and the handshake
func (c *Config) BootDelay() time.Duration {
	return time.Duration(c.Handshake.BootDelayMs) * time.Millisecond
}

// HandshakeTimeout returns how long to wait for the handshake reply
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Handshake.TimeoutMs) * time.Millisecond
}
