package core

import (
	"io"
	"strconv"

	"turnscan/protocol"
)

// Device ties the protocol endpoint, the command table and the scanner
// together. The firmware main loop (or the simulator) calls Receive with
// whatever bytes arrived, then Tick, then Flush.
type Device struct {
	Scanner *Scanner

	endpoint *protocol.Endpoint
	registry *protocol.Registry[Device]
	clock    Clock

	// Records dispatched since boot
	dispatched uint32
}

// NewDevice creates a device with the canonical command table
func NewDevice(cfg Config, motor Motor, camera Camera, clock Clock) *Device {
	d := &Device{
		Scanner:  NewScanner(cfg, motor, camera, clock),
		registry: NewDeviceRegistry(),
		clock:    clock,
	}

	opts := protocol.DefaultOptions()
	opts.EchoErrors = true
	opts.Accepts = d.registry.Accepts
	d.endpoint = protocol.NewEndpoint(opts)
	d.endpoint.SetErrorHandler(func(code protocol.ErrorCode) {
		DebugPrintln("[device] E" + strconv.Itoa(int(code)) + " " + code.String())
	})

	d.Scanner.SetReporter(d.endpoint.Queue)
	return d
}

// Receive feeds raw serial bytes into the inbound queue
func (d *Device) Receive(data []byte) {
	d.endpoint.Receive(data)
}

// Tick dispatches at most one inbound command, then advances the scanner
func (d *Device) Tick() {
	if rec, ok := d.endpoint.Next(); ok {
		d.Dispatch(rec)
	}
	d.Scanner.Tick()
}

// Dispatch runs one command and queues its reply or error
func (d *Device) Dispatch(rec protocol.Record) {
	d.dispatched++
	reply, err := d.registry.Dispatch(d, rec)
	if err != nil {
		DebugPrintln("[device] rejected " + rec.String())
		d.endpoint.Report(protocol.CodeOf(err))
		return
	}
	if !reply.IsZero() {
		d.endpoint.Queue(reply)
	}
}

// Flush writes all queued replies and reports to w
func (d *Device) Flush(w io.Writer) (int, error) {
	return d.endpoint.Drain(w)
}

// Endpoint returns the device protocol endpoint
func (d *Device) Endpoint() *protocol.Endpoint {
	return d.endpoint
}

// Registry returns the device command table
func (d *Device) Registry() *protocol.Registry[Device] {
	return d.registry
}

// Clock returns the device time base
func (d *Device) Clock() Clock {
	return d.clock
}

// Dispatched returns the number of commands handled since boot
func (d *Device) Dispatched() uint32 {
	return d.dispatched
}
