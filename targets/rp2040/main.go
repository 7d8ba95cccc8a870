//go:build rp2040

package main

import (
	"machine"
	"time"

	"turnscan/core"
)

// Board wiring
const (
	// ULN2003 inputs of the 28BYJ-48 turntable motor
	motorPin1 = machine.GP2
	motorPin2 = machine.GP3
	motorPin3 = machine.GP4
	motorPin4 = machine.GP5

	// IR LED aimed at the camera's remote receiver
	shutterPin = machine.GP15

	// "Camera ready" indicator
	readyPin = machine.LED
)

var (
	// Debug counters
	bytesReceived uint32
	usbErrors     uint32
	panics        uint32
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()

	backend := NewMotorBackend(motorPin1, motorPin2, motorPin3, motorPin4)
	cfg := core.DefaultConfig()
	motor, err := core.NewSoftStepper(backend, cfg.RPM, cfg.TotalSteps)
	if err != nil {
		halt()
	}

	camera := NewShutter(shutterPin, readyPin)
	if err := camera.Init(); err != nil {
		halt()
	}

	device := core.NewDevice(cfg, motor, camera, core.NewWallClock())

	buf := make([]byte, 64)
	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					panics++
					device.Endpoint().Reset()
				}
			}()

			if n := USBRead(buf); n > 0 {
				bytesReceived += uint32(n)
				device.Receive(buf[:n])
			}

			device.Tick()

			if _, err := device.Flush(usbWriter{}); err != nil {
				usbErrors++
			}
		}()

		// Yield to other goroutines
		time.Sleep(10 * time.Microsecond)
	}
}

// halt blinks the ready LED forever
func halt() {
	readyPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		readyPin.Set(!readyPin.Get())
		time.Sleep(200 * time.Millisecond)
	}
}
