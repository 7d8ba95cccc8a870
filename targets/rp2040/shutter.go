//go:build rp2040

package main

// PIO infrared shutter release using tinygo-org/pio.
// The PIO generates the carrier so the main loop never waits on it.

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// Each FIFO word is one segment:
//
//	Bits 0-15:  carrier pulses minus one
//	Bits 16-31: silent cycles after the burst minus one
//
// At 200 kHz (125 MHz / 625) a pulse is 4 cycles, 20us.
func buildShutterProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),        // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(), // 1: out x, 16 (pulses)
		// carrier:
		asm.Set(rp2pio.SetDestPins, 1).Delay(1).Encode(), // 2: set pins, 1 [1]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // 3: set pins, 0
		asm.Jmp(2, rp2pio.JmpXNZeroDec).Encode(),         // 4: jmp x--, 2
		asm.Out(rp2pio.OutDestY, 16).Encode(),            // 5: out y, 16 (gap)
		// gap:
		asm.Jmp(6, rp2pio.JmpYNZeroDec).Encode(), // 6: jmp y--, 6
		// .wrap
	}
}

const (
	shutterPIOOrigin = 0 // Load at offset 0 for correct jump addresses
	shutterClkDiv    = 625

	// Two 16 pulse bursts 7.33ms apart
	shutterBurst = 15
	shutterGap   = 1466
)

// Shutter fires the camera over IR and shows readiness on an LED
type Shutter struct {
	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	irPin  machine.Pin
	ledPin machine.Pin
}

// NewShutter creates a shutter on PIO0 state machine 0
func NewShutter(irPin, ledPin machine.Pin) *Shutter {
	return &Shutter{
		pio:    rp2pio.PIO0,
		sm:     rp2pio.PIO0.StateMachine(0),
		irPin:  irPin,
		ledPin: ledPin,
	}
}

// Init loads the program and starts the state machine
func (s *Shutter) Init() error {
	s.ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s.ledPin.Low()

	s.sm.TryClaim()

	program := buildShutterProgram()
	offset, err := s.pio.AddProgram(program, shutterPIOOrigin)
	if err != nil {
		return err
	}

	s.irPin.Configure(machine.PinConfig{Mode: s.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(s.irPin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(shutterClkDiv, 0)

	s.sm.Init(offset, cfg)

	// Pin directions must be set after Init
	s.sm.SetPindirsConsecutive(s.irPin, 1, true)
	s.sm.SetEnabled(true)
	return nil
}

// Trigger queues the shutter code; a code already in flight is not repeated
func (s *Shutter) Trigger() {
	if s.sm.IsTxFIFOFull() {
		return
	}
	s.sm.TxPut(shutterBurst | shutterGap<<16)
	s.sm.TxPut(shutterBurst)
}

// SetReady drives the ready LED
func (s *Shutter) SetReady(ready bool) {
	s.ledPin.Set(ready)
}
