//go:build rp2040

package main

import (
	"machine"
)

// InitUSB initializes USB serial communication
// TinyGo sets up USB CDC-ACM on RP2040; machine.Serial is the CDC port
func InitUSB() {
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}
}

// USBRead copies whatever is buffered into buf without blocking
func USBRead(buf []byte) int {
	n := 0
	for n < len(buf) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			usbErrors++
			break
		}
		buf[n] = b
		n++
	}
	return n
}

// usbWriter writes to the CDC port
type usbWriter struct{}

func (usbWriter) Write(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
