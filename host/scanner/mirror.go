package scanner

import (
	"time"

	"turnscan/protocol"
)

// Mirror is the host's copy of the device settings and status, kept up
// to date from the records the device sends
type Mirror struct {
	RPM             uint32
	TurnsPerCircle  uint32
	Clockwise       bool
	WaitAfterPhoto  time.Duration
	TotalSteps      uint32
	RotateIncrement uint32
	CurrentStep     uint32
	MovesLeft       uint32
	Moving          bool
	Shooting        bool

	// Inbound queue depth last reported by the device
	DeviceQueue uint32

	// Target of the last acknowledged S/D command
	TargetStep uint32

	LastError    protocol.ErrorCode
	ErrorCount   int
	LastReceived protocol.Record
}

// StepsPerTurn returns the autoscan step size
func (m Mirror) StepsPerTurn() uint32 {
	if m.TurnsPerCircle == 0 {
		return 0
	}
	return m.TotalSteps / m.TurnsPerCircle
}

// Degree returns the turntable angle of CurrentStep
func (m Mirror) Degree() float64 {
	if m.TotalSteps == 0 {
		return 0
	}
	return float64(m.CurrentStep) * 360 / float64(m.TotalSteps)
}

// IsAutoscanning reports whether the device is running an autoscan
func (m Mirror) IsAutoscanning() bool {
	return m.MovesLeft > 0
}

// IsCameraReady reports whether the device is idle
func (m Mirror) IsCameraReady() bool {
	return !m.Moving && !m.Shooting
}

// newMirrorRegistry builds the host command table: every record the
// device can send updates the mirror, none produces a reply
func newMirrorRegistry() *protocol.Registry[Mirror] {
	r := protocol.NewRegistry[Mirror]()

	set := func(letter byte, fn func(m *Mirror, v uint32)) {
		r.Register(letter, protocol.CommandName(letter), func(m *Mirror, v uint32) (protocol.Record, error) {
			fn(m, v)
			return protocol.Record{}, nil
		})
	}

	set(protocol.CmdHandshake, func(m *Mirror, v uint32) {})
	set(protocol.CmdRPM, func(m *Mirror, v uint32) { m.RPM = v })
	set(protocol.CmdMove, func(m *Mirror, v uint32) { m.Moving = v != 0 })
	set(protocol.CmdPhoto, func(m *Mirror, v uint32) { m.Shooting = v != 0 })
	set(protocol.CmdRotate, func(m *Mirror, v uint32) { m.RotateIncrement = v })
	set(protocol.CmdTurns, func(m *Mirror, v uint32) { m.TurnsPerCircle = v })
	set(protocol.CmdDirection, func(m *Mirror, v uint32) { m.Clockwise = v != protocol.DirectionCCW })
	set(protocol.CmdAutoscan, func(m *Mirror, v uint32) { m.MovesLeft = v })
	set(protocol.CmdWait, func(m *Mirror, v uint32) { m.WaitAfterPhoto = time.Duration(v) * time.Millisecond })
	set(protocol.CmdTotalSteps, func(m *Mirror, v uint32) { m.TotalSteps = v })
	set(protocol.CmdPosition, func(m *Mirror, v uint32) { m.CurrentStep = v })
	set(protocol.CmdMoveToStep, func(m *Mirror, v uint32) { m.TargetStep = v })
	set(protocol.CmdMoveToAngle, func(m *Mirror, v uint32) {
		if m.TotalSteps != 0 {
			m.TargetStep = uint32(uint64(v) * uint64(m.TotalSteps) / 360)
		}
	})
	set(protocol.CmdQueue, func(m *Mirror, v uint32) { m.DeviceQueue = v })
	set(protocol.CommandError, func(m *Mirror, v uint32) {
		m.LastError = protocol.ErrorCode(v)
		m.ErrorCount++
	})

	return r
}
