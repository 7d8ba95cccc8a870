package core

// Software stepper: paces single steps on a StepBackend from the main loop

import (
	"errors"
	"time"
)

const (
	// MotorStepsPerRev is the half-step count of one 28BYJ-48 output shaft revolution
	MotorStepsPerRev = 4096

	// MaxRPM is the fastest the motor reliably turns
	MaxRPM = 24
)

// ErrNoBackend is returned when a stepper is created without hardware
var ErrNoBackend = errors.New("stepper backend is nil")

// SoftStepper implements Motor on top of a StepBackend.
// Each Run issues at most one step, once the step interval has passed.
type SoftStepper struct {
	backend StepBackend

	rpm      uint32
	interval time.Duration // Time between steps at rpm
	total    uint32        // Steps per turntable rotation

	// Move state
	position  uint32
	remaining uint32
	clockwise bool
	nextStep  time.Duration

	// Total steps issued since creation
	stepCount uint64
}

// NewSoftStepper creates a stepper and initializes its backend
func NewSoftStepper(backend StepBackend, rpm, stepsPerRotation uint32) (*SoftStepper, error) {
	if backend == nil {
		return nil, ErrNoBackend
	}
	if err := backend.Init(); err != nil {
		return nil, err
	}

	s := &SoftStepper{backend: backend}
	s.SetRPM(rpm)
	s.SetStepsPerRotation(stepsPerRotation)
	return s, nil
}

// StepInterval returns the time between steps at rpm
func StepInterval(rpm uint32) time.Duration {
	if rpm == 0 {
		rpm = 1
	}
	return time.Minute / time.Duration(rpm*MotorStepsPerRev)
}

// SetRPM sets the motor speed, clamped to 1..MaxRPM
func (s *SoftStepper) SetRPM(rpm uint32) {
	if rpm < 1 {
		rpm = 1
	}
	if rpm > MaxRPM {
		rpm = MaxRPM
	}
	s.rpm = rpm
	s.interval = StepInterval(rpm)
}

// RPM returns the motor speed
func (s *SoftStepper) RPM() uint32 {
	return s.rpm
}

// Interval returns the current step interval
func (s *SoftStepper) Interval() time.Duration {
	return s.interval
}

// SetStepsPerRotation sets the turntable gear ratio in motor steps
func (s *SoftStepper) SetStepsPerRotation(steps uint32) {
	if steps == 0 {
		steps = MotorStepsPerRev
	}
	s.total = steps
	s.position %= steps
}

// StartMove begins a new move, replacing the current one
func (s *SoftStepper) StartMove(clockwise bool, steps uint32) {
	s.clockwise = clockwise
	s.remaining = steps
}

// Run issues the next step if it is due
func (s *SoftStepper) Run(now time.Duration) {
	if s.remaining == 0 || now < s.nextStep {
		return
	}

	s.backend.Step(s.clockwise)
	s.stepCount++
	s.remaining--

	if s.clockwise {
		s.position++
		if s.position >= s.total {
			s.position = 0
		}
	} else {
		if s.position == 0 {
			s.position = s.total
		}
		s.position--
	}

	// Measured from the start of this step, so a backend that blocks for
	// part of the interval does not slow the move down
	s.nextStep = now + s.interval

	if s.remaining == 0 {
		s.backend.Release()
	}
}

// StepsRemaining returns the steps left in the current move
func (s *SoftStepper) StepsRemaining() uint32 {
	return s.remaining
}

// Stop cancels the current move
func (s *SoftStepper) Stop() {
	if s.remaining > 0 {
		s.remaining = 0
		s.backend.Release()
	}
}

// Position returns the step within one turntable rotation
func (s *SoftStepper) Position() uint32 {
	return s.position
}

// StepCount returns the number of steps issued since creation
func (s *SoftStepper) StepCount() uint64 {
	return s.stepCount
}

// Backend returns the hardware backend
func (s *SoftStepper) Backend() StepBackend {
	return s.backend
}

// NullBackend is a StepBackend without hardware, used by the simulator
type NullBackend struct{}

func (NullBackend) Init() error     { return nil }
func (NullBackend) Step(bool)       {}
func (NullBackend) Release()        {}
func (NullBackend) GetName() string { return "null" }
