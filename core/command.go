package core

import (
	"turnscan/protocol"
)

// DeviceHandler handles one command letter on the device
type DeviceHandler = protocol.Handler[Device]

// NewDeviceRegistry builds the device command table.
// Every successful command replies with its own letter and the
// resulting value; value 0 means "report" unless noted.
func NewDeviceRegistry() *protocol.Registry[Device] {
	r := protocol.NewRegistry[Device]()

	handlers := map[byte]DeviceHandler{
		protocol.CmdHandshake:   handleHandshake,
		protocol.CmdRPM:         handleRPM,
		protocol.CmdMove:        handleMove,
		protocol.CmdPhoto:       handlePhoto,
		protocol.CmdRotate:      handleRotate,
		protocol.CmdTurns:       handleTurns,
		protocol.CmdDirection:   handleDirection,
		protocol.CmdAutoscan:    handleAutoscan,
		protocol.CmdWait:        handleWait,
		protocol.CmdTotalSteps:  handleTotalSteps,
		protocol.CmdPosition:    handlePosition,
		protocol.CmdMoveToStep:  handleMoveToStep,
		protocol.CmdMoveToAngle: handleMoveToAngle,
		protocol.CmdQueue:       handleQueue,
	}

	for _, c := range protocol.DeviceCommands {
		r.Register(c.Letter, c.Name, handlers[c.Letter])
	}
	return r
}

func reply(cmd byte, val uint32) (protocol.Record, error) {
	return protocol.NewRecord(cmd, val), nil
}

func boolValue(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func invalid() (protocol.Record, error) {
	return protocol.Record{}, protocol.ErrInvalidValue
}

// H1 -> H1
func handleHandshake(d *Device, v uint32) (protocol.Record, error) {
	if v != protocol.HandshakeValue {
		return invalid()
	}
	return reply(protocol.CmdHandshake, protocol.HandshakeValue)
}

func handleRPM(d *Device, v uint32) (protocol.Record, error) {
	if v > MaxRPM {
		return invalid()
	}
	if v != 0 {
		d.Scanner.SetRPM(v)
	}
	return reply(protocol.CmdRPM, d.Scanner.Config().RPM)
}

func handleMove(d *Device, v uint32) (protocol.Record, error) {
	if v == 0 {
		return reply(protocol.CmdMove, boolValue(d.Scanner.IsMoving()))
	}
	d.Scanner.Turn()
	return reply(protocol.CmdMove, 1)
}

func handlePhoto(d *Device, v uint32) (protocol.Record, error) {
	if v == 0 {
		return reply(protocol.CmdPhoto, boolValue(d.Scanner.IsShooting()))
	}
	d.Scanner.TakePhoto()
	return reply(protocol.CmdPhoto, 1)
}

// T0 reports the rotate increment, T1 rotates, Tn sets the increment and rotates
func handleRotate(d *Device, v uint32) (protocol.Record, error) {
	cfg := d.Scanner.Config()
	switch {
	case v == 0:
	case v == protocol.RotateOnce:
		d.Scanner.Rotate()
	case v <= cfg.TotalSteps:
		d.Scanner.SetRotateIncrement(v)
		d.Scanner.Rotate()
	default:
		return invalid()
	}
	return reply(protocol.CmdRotate, d.Scanner.Config().RotateIncrement)
}

func handleTurns(d *Device, v uint32) (protocol.Record, error) {
	if v > d.Scanner.Config().TotalSteps {
		return invalid()
	}
	if v != 0 {
		d.Scanner.SetTurnsPerCircle(v)
	}
	return reply(protocol.CmdTurns, d.Scanner.Config().TurnsPerCircle)
}

func handleDirection(d *Device, v uint32) (protocol.Record, error) {
	switch v {
	case protocol.DirectionReport:
	case protocol.DirectionCW:
		d.Scanner.SetClockwise(true)
	case protocol.DirectionCCW:
		d.Scanner.SetClockwise(false)
	default:
		return invalid()
	}
	if d.Scanner.Config().Clockwise {
		return reply(protocol.CmdDirection, protocol.DirectionCW)
	}
	return reply(protocol.CmdDirection, protocol.DirectionCCW)
}

// A1 replies with the moves the new autoscan will run
func handleAutoscan(d *Device, v uint32) (protocol.Record, error) {
	switch v {
	case protocol.AutoscanReport:
		return reply(protocol.CmdAutoscan, d.Scanner.AutoscanMovesLeft())
	case protocol.AutoscanRun:
		if d.Scanner.IsAutoscanning() {
			return reply(protocol.CmdAutoscan, d.Scanner.AutoscanMovesLeft())
		}
		d.Scanner.StartAutoscan()
		return reply(protocol.CmdAutoscan, d.Scanner.Config().TurnsPerCircle)
	case protocol.AutoscanStop:
		d.Scanner.StopAutoscan()
		return reply(protocol.CmdAutoscan, 0)
	}
	return invalid()
}

func handleWait(d *Device, v uint32) (protocol.Record, error) {
	if v != 0 {
		d.Scanner.SetWaitAfterPhoto(Millis(v))
	}
	return reply(protocol.CmdWait, ToMillis(d.Scanner.Config().WaitAfterPhoto))
}

// Gn changes the gear ratio; refused once the motor has moved, since
// positions already reported would no longer line up
func handleTotalSteps(d *Device, v uint32) (protocol.Record, error) {
	cfg := d.Scanner.Config()
	if v != 0 && v != cfg.TotalSteps {
		if d.Scanner.HasMoved() || v < cfg.TurnsPerCircle {
			return invalid()
		}
		d.Scanner.SetTotalSteps(v)
	}
	return reply(protocol.CmdTotalSteps, d.Scanner.Config().TotalSteps)
}

func handlePosition(d *Device, v uint32) (protocol.Record, error) {
	return reply(protocol.CmdPosition, d.Scanner.Position())
}

func handleMoveToStep(d *Device, v uint32) (protocol.Record, error) {
	if v >= d.Scanner.Config().TotalSteps {
		return invalid()
	}
	d.Scanner.MoveToStep(v)
	return reply(protocol.CmdMoveToStep, v)
}

func handleMoveToAngle(d *Device, v uint32) (protocol.Record, error) {
	if v >= 360 {
		return invalid()
	}
	d.Scanner.MoveToDegree(v)
	return reply(protocol.CmdMoveToAngle, v)
}

// Q0 reports the inbound depth, Qn drops everything still queued
func handleQueue(d *Device, v uint32) (protocol.Record, error) {
	if v == 0 {
		return reply(protocol.CmdQueue, uint32(d.endpoint.Pending()))
	}
	d.endpoint.FlushInbound()
	return reply(protocol.CmdQueue, 0)
}
