package core

import "time"

// Motor is the turntable motion primitive as the scanner sees it.
// Moves are started and then advanced by calling Run every tick; a
// Motor never blocks waiting for its own steps.
type Motor interface {
	// StartMove begins a move of steps in the given direction,
	// replacing any move in progress
	StartMove(clockwise bool, steps uint32)

	// Run advances the current move by at most one increment
	Run(now time.Duration)

	// StepsRemaining returns the steps left in the current move
	StepsRemaining() uint32

	// Stop cancels the current move at the next step boundary
	Stop()

	// Position returns the step position within one turntable rotation
	Position() uint32

	// SetRPM sets the motor speed
	SetRPM(rpm uint32)

	// SetStepsPerRotation sets the number of steps in a full turntable
	// rotation, which wraps Position
	SetStepsPerRotation(steps uint32)
}

// StepBackend defines the hardware abstraction for a single motor step.
// Implementations can drive coils over GPIO, a driver chip, or nothing
// at all for simulation.
type StepBackend interface {
	// Init prepares the hardware
	Init() error

	// Step moves the motor one step
	// Should be fast (called from the main loop)
	Step(clockwise bool)

	// Release de-energizes the coils
	Release()

	// GetName returns backend implementation name
	GetName() string
}
