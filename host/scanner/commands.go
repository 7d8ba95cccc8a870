package scanner

import (
	"fmt"
	"time"

	"turnscan/protocol"
)

// maxRPM mirrors the controller's motor limit
const maxRPM = 24

// SetRPM sets the motor speed
func (s *Scanner) SetRPM(rpm uint32) error {
	if rpm == 0 || rpm > maxRPM {
		return fmt.Errorf("rpm %d: %w", rpm, protocol.ErrInvalidValue)
	}
	return s.Send(protocol.CmdRPM, rpm)
}

// SetTurnsPerCircle sets how many stops an autoscan makes per revolution
func (s *Scanner) SetTurnsPerCircle(turns uint32) error {
	if turns == 0 {
		return fmt.Errorf("turns per circle 0: %w", protocol.ErrInvalidValue)
	}
	return s.Send(protocol.CmdTurns, turns)
}

// SetClockwise sets the rotation direction
func (s *Scanner) SetClockwise(cw bool) error {
	if cw {
		return s.Send(protocol.CmdDirection, protocol.DirectionCW)
	}
	return s.Send(protocol.CmdDirection, protocol.DirectionCCW)
}

// Autoscan starts or stops an autoscan
func (s *Scanner) Autoscan(start bool) error {
	if start {
		return s.Send(protocol.CmdAutoscan, protocol.AutoscanRun)
	}
	return s.Send(protocol.CmdAutoscan, protocol.AutoscanStop)
}

// TakePhoto triggers the camera
func (s *Scanner) TakePhoto() error {
	return s.Send(protocol.CmdPhoto, 1)
}

// Turn moves the turntable by one autoscan step
func (s *Scanner) Turn() error {
	return s.Send(protocol.CmdMove, 1)
}

// Rotate moves the turntable by the rotate increment
func (s *Scanner) Rotate() error {
	return s.Send(protocol.CmdRotate, protocol.RotateOnce)
}

// RotateBy sets the rotate increment to steps and rotates once
func (s *Scanner) RotateBy(steps uint32) error {
	if steps <= protocol.RotateOnce {
		return s.Rotate()
	}
	return s.Send(protocol.CmdRotate, steps)
}

// RotateTo moves the turntable to an absolute angle in degrees
func (s *Scanner) RotateTo(degree uint32) error {
	if degree >= 360 {
		return fmt.Errorf("degree %d: %w", degree, protocol.ErrInvalidValue)
	}
	return s.Send(protocol.CmdMoveToAngle, degree)
}

// MoveToStep moves the turntable to an absolute step
func (s *Scanner) MoveToStep(step uint32) error {
	return s.Send(protocol.CmdMoveToStep, step)
}

// SetTotalSteps sets the steps per turntable revolution.
// The controller refuses changes once the table has moved.
func (s *Scanner) SetTotalSteps(steps uint32) error {
	if steps == 0 {
		return fmt.Errorf("total steps 0: %w", protocol.ErrInvalidValue)
	}
	return s.Send(protocol.CmdTotalSteps, steps)
}

// SetWaitAfterPhoto sets the pause after each autoscan photo
func (s *Scanner) SetWaitAfterPhoto(d time.Duration) error {
	ms := d / time.Millisecond
	if ms <= 0 || ms > protocol.MaxValue {
		return fmt.Errorf("wait %v: %w", d, protocol.ErrInvalidValue)
	}
	return s.Send(protocol.CmdWait, uint32(ms))
}

// RequestPosition asks the controller for its step position
func (s *Scanner) RequestPosition() error {
	return s.Send(protocol.CmdPosition, 0)
}

// QueryDeviceQueue asks for the controller's inbound queue depth
func (s *Scanner) QueryDeviceQueue() error {
	return s.Send(protocol.CmdQueue, 0)
}

// FlushDeviceQueue discards the controller's pending commands
func (s *Scanner) FlushDeviceQueue() error {
	return s.Send(protocol.CmdQueue, 1)
}
