package core

import (
	"testing"
	"time"

	"turnscan/protocol"
)

func newTestDevice() (*Device, *fakeMotor, *fakeCamera, *ManualClock) {
	motor := &fakeMotor{}
	camera := &fakeCamera{}
	clock := &ManualClock{}
	cfg := DefaultConfig()
	cfg.WaitAfterPhoto = 50 * time.Millisecond
	cfg.Settle = 10 * time.Millisecond
	return NewDevice(cfg, motor, camera, clock), motor, camera, clock
}

func TestDeviceRegistry(t *testing.T) {
	registry := NewDeviceRegistry()

	if registry.Count() != len(protocol.DeviceCommands) {
		t.Errorf("Expected %d commands, got %d", len(protocol.DeviceCommands), registry.Count())
	}

	for _, c := range protocol.DeviceCommands {
		cmd, ok := registry.Lookup(c.Letter)
		if !ok || cmd.Handler == nil {
			t.Errorf("Command %c has no handler", c.Letter)
			continue
		}
		if cmd.Name != c.Name {
			t.Errorf("Command %c: expected name %q, got %q", c.Letter, c.Name, cmd.Name)
		}
	}

	if registry.Accepts('E') || registry.Accepts('F') {
		t.Error("Device must not accept letters outside its profile")
	}
}

func TestDeviceCommands(t *testing.T) {
	tests := []struct {
		name  string
		in    protocol.Record
		reply protocol.Record
		code  protocol.ErrorCode // checked when reply is zero
	}{
		{"handshake", protocol.NewRecord('H', 1), protocol.NewRecord('H', 1), 0},
		{"bad handshake", protocol.NewRecord('H', 2), protocol.Record{}, protocol.InvalidVal},
		{"report rpm", protocol.NewRecord('R', 0), protocol.NewRecord('R', 10), 0},
		{"set rpm", protocol.NewRecord('R', 12), protocol.NewRecord('R', 12), 0},
		{"rpm too fast", protocol.NewRecord('R', 25), protocol.Record{}, protocol.InvalidVal},
		{"report turns", protocol.NewRecord('C', 0), protocol.NewRecord('C', 64), 0},
		{"set turns", protocol.NewRecord('C', 24), protocol.NewRecord('C', 24), 0},
		{"turns above steps", protocol.NewRecord('C', 5000), protocol.Record{}, protocol.InvalidVal},
		{"report direction", protocol.NewRecord('K', 0), protocol.NewRecord('K', 1), 0},
		{"set ccw", protocol.NewRecord('K', 2), protocol.NewRecord('K', 2), 0},
		{"bad direction", protocol.NewRecord('K', 3), protocol.Record{}, protocol.InvalidVal},
		{"report wait", protocol.NewRecord('W', 0), protocol.NewRecord('W', 50), 0},
		{"set wait", protocol.NewRecord('W', 1500), protocol.NewRecord('W', 1500), 0},
		{"report total steps", protocol.NewRecord('G', 0), protocol.NewRecord('G', 4096), 0},
		{"set total steps", protocol.NewRecord('G', 2048), protocol.NewRecord('G', 2048), 0},
		{"total below turns", protocol.NewRecord('G', 10), protocol.Record{}, protocol.InvalidVal},
		{"report increment", protocol.NewRecord('T', 0), protocol.NewRecord('T', 64), 0},
		{"increment above steps", protocol.NewRecord('T', 5000), protocol.Record{}, protocol.InvalidVal},
		{"report autoscan", protocol.NewRecord('A', 0), protocol.NewRecord('A', 0), 0},
		{"bad autoscan", protocol.NewRecord('A', 3), protocol.Record{}, protocol.InvalidVal},
		{"position", protocol.NewRecord('I', 0), protocol.NewRecord('I', 0), 0},
		{"report moving", protocol.NewRecord('M', 0), protocol.NewRecord('M', 0), 0},
		{"report shooting", protocol.NewRecord('P', 0), protocol.NewRecord('P', 0), 0},
		{"step out of range", protocol.NewRecord('S', 4096), protocol.Record{}, protocol.InvalidVal},
		{"degree out of range", protocol.NewRecord('D', 360), protocol.Record{}, protocol.InvalidVal},
		{"queue depth", protocol.NewRecord('Q', 0), protocol.NewRecord('Q', 0), 0},
		{"unknown", protocol.NewRecord('Z', 1), protocol.Record{}, protocol.InvalidCmd},
	}

	for _, test := range tests {
		// Fresh device per case so earlier sets do not leak
		d, _, _, _ := newTestDevice()
		before := d.Scanner.Config()

		reply, err := d.Registry().Dispatch(d, test.in)
		if !test.reply.IsZero() {
			if err != nil {
				t.Errorf("%s: unexpected error %v", test.name, err)
			} else if reply != test.reply {
				t.Errorf("%s: expected %s, got %s", test.name, test.reply, reply)
			}
			continue
		}

		if err == nil {
			t.Errorf("%s: expected E%d, got reply %s", test.name, test.code, reply)
			continue
		}
		if protocol.CodeOf(err) != test.code {
			t.Errorf("%s: expected E%d, got E%d", test.name, test.code, protocol.CodeOf(err))
		}
		if d.Scanner.Config() != before {
			t.Errorf("%s: rejected command changed settings", test.name)
		}
	}
}

func TestTotalStepsLockedAfterMove(t *testing.T) {
	d, _, _, _ := newTestDevice()
	reg := d.Registry()

	if _, err := reg.Dispatch(d, protocol.NewRecord('M', 1)); err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	if !d.Scanner.HasMoved() {
		t.Fatal("Scanner should have moved")
	}

	_, err := reg.Dispatch(d, protocol.NewRecord('G', 2048))
	if protocol.CodeOf(err) != protocol.InvalidVal {
		t.Errorf("Changing total steps after a move should be E3, got %v", err)
	}

	// Restating the current value is still fine
	reply, err := reg.Dispatch(d, protocol.NewRecord('G', 4096))
	if err != nil || reply != protocol.NewRecord('G', 4096) {
		t.Errorf("Expected G4096, got %s, %v", reply, err)
	}
}

func TestRotateSetsIncrement(t *testing.T) {
	d, motor, _, _ := newTestDevice()

	reply, err := d.Registry().Dispatch(d, protocol.NewRecord('T', 200))
	if err != nil || reply != protocol.NewRecord('T', 200) {
		t.Fatalf("Expected T200, got %s, %v", reply, err)
	}
	if motor.remaining != 200 {
		t.Errorf("Expected a 200 step rotate, got %d", motor.remaining)
	}
}

func TestAutoscanCommand(t *testing.T) {
	d, _, camera, _ := newTestDevice()
	reg := d.Registry()

	reply, _ := reg.Dispatch(d, protocol.NewRecord('A', protocol.AutoscanRun))
	if reply != protocol.NewRecord('A', 64) {
		t.Errorf("Expected A64, got %s", reply)
	}

	d.Scanner.Tick()
	if camera.triggers != 1 {
		t.Errorf("Autoscan should start with a photo, got %d", camera.triggers)
	}

	reply, _ = reg.Dispatch(d, protocol.NewRecord('A', protocol.AutoscanRun))
	if reply != protocol.NewRecord('A', 64) {
		t.Errorf("Run while running should report moves left, got %s", reply)
	}

	reply, _ = reg.Dispatch(d, protocol.NewRecord('A', protocol.AutoscanStop))
	if reply != protocol.NewRecord('A', 0) || d.Scanner.IsAutoscanning() {
		t.Errorf("Expected A0 and autoscan stopped, got %s", reply)
	}
}

func TestQueueCommand(t *testing.T) {
	d, _, _, _ := newTestDevice()
	d.Receive([]byte("I0\nI0\nI0\n"))

	reply, _ := d.Registry().Dispatch(d, protocol.NewRecord('Q', 0))
	if reply != protocol.NewRecord('Q', 3) {
		t.Errorf("Expected Q3, got %s", reply)
	}

	reply, _ = d.Registry().Dispatch(d, protocol.NewRecord('Q', 1))
	if reply != protocol.NewRecord('Q', 0) || d.Endpoint().Pending() != 0 {
		t.Errorf("Expected Q0 and an empty queue, got %s with %d pending", reply, d.Endpoint().Pending())
	}
}
