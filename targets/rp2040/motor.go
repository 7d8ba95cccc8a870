//go:build rp2040

package main

import (
	"machine"

	"tinygo.org/x/drivers/easystepper"

	"turnscan/core"
)

// MotorBackend drives a 28BYJ-48 through a ULN2003 board, one half step
// per call. Pacing is left to core.SoftStepper, so easystepper runs at
// the top speed and only adds its coil hold time to each step.
type MotorBackend struct {
	pins [4]machine.Pin
	dev  *easystepper.Device
}

// NewMotorBackend creates a backend on four coil pins
func NewMotorBackend(pin1, pin2, pin3, pin4 machine.Pin) *MotorBackend {
	return &MotorBackend{pins: [4]machine.Pin{pin1, pin2, pin3, pin4}}
}

// Init configures the coil pins
func (b *MotorBackend) Init() error {
	dev, err := easystepper.New(easystepper.DeviceConfig{
		Pin1:      b.pins[0],
		Pin2:      b.pins[1],
		Pin3:      b.pins[2],
		Pin4:      b.pins[3],
		StepCount: core.MotorStepsPerRev,
		RPM:       core.MaxRPM,
		Mode:      easystepper.ModeEight,
	})
	if err != nil {
		return err
	}
	dev.Configure()
	b.dev = dev
	return nil
}

// Step moves one half step
func (b *MotorBackend) Step(clockwise bool) {
	if clockwise {
		b.dev.Move(1)
	} else {
		b.dev.Move(-1)
	}
}

// Release de-energizes the coils so the motor stays cool between moves
func (b *MotorBackend) Release() {
	b.dev.Off()
}

// GetName returns the backend name
func (b *MotorBackend) GetName() string {
	return "easystepper"
}
