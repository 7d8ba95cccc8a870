package scanner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"turnscan/core"
	"turnscan/host/serial"
	"turnscan/host/sim"
	"turnscan/protocol"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.BootDelay = 0
	opts.HandshakeTimeout = 200 * time.Millisecond
	return opts
}

func newSimScanner(t *testing.T, opts Options) (*Scanner, *sim.Sim) {
	t.Helper()
	rig, err := sim.New(sim.DefaultOptions())
	if err != nil {
		t.Fatalf("sim.New failed: %v", err)
	}
	s := New(rig.Open, opts, zerolog.Nop())
	t.Cleanup(func() {
		s.Close()
		rig.Close()
	})
	return s, rig
}

// updateUntil polls Update until cond holds on the mirror
func updateUntil(t *testing.T, s *Scanner, cond func(Mirror) bool) Mirror {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.Update()
		if m := s.Mirror(); cond(m) {
			return m
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Condition not met, mirror: %+v", s.Mirror())
	return Mirror{}
}

func TestConnect(t *testing.T) {
	s, _ := newSimScanner(t, testOptions())

	if s.State() != Disconnected {
		t.Fatalf("Expected disconnected, got %v", s.State())
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !s.IsConnected() {
		t.Fatalf("Expected connected, got %v", s.State())
	}

	// Connecting twice is a no-op
	if err := s.Connect(context.Background()); err != nil {
		t.Errorf("Second Connect failed: %v", err)
	}

	m := updateUntil(t, s, func(m Mirror) bool {
		return m.LastReceived.Command == protocol.CmdAutoscan
	})
	if m.RPM != 10 || m.TurnsPerCircle != 64 || !m.Clockwise || m.TotalSteps != 4096 {
		t.Errorf("Mirror not synced: %+v", m)
	}
	if m.WaitAfterPhoto != 3*time.Second || m.RotateIncrement != 64 {
		t.Errorf("Mirror not synced: %+v", m)
	}
	if m.StepsPerTurn() != 64 || !m.IsCameraReady() || m.IsAutoscanning() {
		t.Errorf("Unexpected derived state: %+v", m)
	}
}

func TestConnectPushesSettings(t *testing.T) {
	opts := testOptions()
	opts.Initial = Settings{
		RPM:            20,
		TurnsPerCircle: 32,
		Direction:      protocol.DirectionCCW,
		WaitAfterPhoto: 500 * time.Millisecond,
		TotalSteps:     2048,
	}
	s, rig := newSimScanner(t, opts)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	m := updateUntil(t, s, func(m Mirror) bool {
		return m.LastReceived.Command == protocol.CmdWait && m.WaitAfterPhoto == 500*time.Millisecond
	})
	if m.RPM != 20 || m.TurnsPerCircle != 32 || m.Clockwise || m.TotalSteps != 2048 {
		t.Errorf("Settings not applied: %+v", m)
	}

	var cfg core.Config
	rig.Do(func(d *core.Device) { cfg = d.Scanner.Config() })
	if cfg.RPM != 20 || cfg.TurnsPerCircle != 32 || cfg.Clockwise || cfg.TotalSteps != 2048 {
		t.Errorf("Device config not updated: %+v", cfg)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	var peer *serial.LoopbackPort
	open := func() (serial.Port, error) {
		host, dev := serial.NewLoopback()
		peer = dev
		return host, nil
	}

	s := New(open, testOptions(), zerolog.Nop())
	err := s.Connect(context.Background())
	if !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("Expected ErrHandshakeTimeout, got %v", err)
	}
	if s.State() != Disconnected {
		t.Errorf("Expected disconnected, got %v", s.State())
	}

	// The port is closed on failure
	if _, err := peer.Write([]byte("H1\n")); err == nil {
		t.Error("Expected closed link after failed handshake")
	}
}

// echoPeer answers every frame with reply
func echoPeer(reply string) Opener {
	return func() (serial.Port, error) {
		host, dev := serial.NewLoopback()
		go func() {
			buf := make([]byte, 64)
			for {
				n, err := dev.Read(buf)
				if err != nil {
					return
				}
				for _, b := range buf[:n] {
					if b == '\n' {
						dev.Write([]byte(reply))
					}
				}
			}
		}()
		return host, nil
	}
}

func TestHandshakeWrongReply(t *testing.T) {
	s := New(echoPeer("H2\n"), testOptions(), zerolog.Nop())

	err := s.Connect(context.Background())
	if !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("Expected ErrHandshakeTimeout, got %v", err)
	}
	if s.IsConnected() {
		t.Error("H2 must not establish a session")
	}
}

func TestHandshakeCancelled(t *testing.T) {
	opts := testOptions()
	opts.BootDelay = time.Minute

	s := New(echoPeer("H1\n"), opts, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Connect(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if s.State() != Disconnected {
		t.Errorf("Expected disconnected, got %v", s.State())
	}
}

func TestOpenError(t *testing.T) {
	boom := errors.New("no such port")
	s := New(func() (serial.Port, error) { return nil, boom }, testOptions(), zerolog.Nop())

	if err := s.Connect(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped open error, got %v", err)
	}
}

func TestSendRequiresConnection(t *testing.T) {
	s := New(echoPeer("H1\n"), testOptions(), zerolog.Nop())

	if err := s.Send(protocol.CmdRPM, 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if err := s.SendRaw("R0"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
	if err := s.Send('r', 1); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord, got %v", err)
	}
	if err := s.Send(protocol.CmdRPM, protocol.MaxValue+1); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord, got %v", err)
	}
	if recs := s.Update(); recs != nil {
		t.Errorf("Update while disconnected returned %v", recs)
	}
}

func TestLocalValidation(t *testing.T) {
	s := New(echoPeer("H1\n"), testOptions(), zerolog.Nop())

	checks := []error{
		s.SetRPM(0),
		s.SetRPM(25),
		s.SetTurnsPerCircle(0),
		s.RotateTo(360),
		s.SetTotalSteps(0),
		s.SetWaitAfterPhoto(0),
	}
	for i, err := range checks {
		if !errors.Is(err, protocol.ErrInvalidValue) {
			t.Errorf("check %d: expected ErrInvalidValue, got %v", i, err)
		}
	}
}

func TestDeviceErrors(t *testing.T) {
	s, _ := newSimScanner(t, testOptions())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := s.SendRaw("Z1"); err != nil {
		t.Fatalf("SendRaw failed: %v", err)
	}
	m := updateUntil(t, s, func(m Mirror) bool { return m.ErrorCount > 0 })
	if m.LastError != protocol.InvalidCmd {
		t.Errorf("Expected E2, got E%d", m.LastError)
	}
}

func TestTurnUpdatesPosition(t *testing.T) {
	s, _ := newSimScanner(t, testOptions())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	updateUntil(t, s, func(m Mirror) bool { return m.LastReceived.Command == protocol.CmdAutoscan })

	if err := s.SetRPM(24); err != nil {
		t.Fatalf("SetRPM failed: %v", err)
	}
	if err := s.Turn(); err != nil {
		t.Fatalf("Turn failed: %v", err)
	}

	m := updateUntil(t, s, func(m Mirror) bool { return m.CurrentStep == 64 && !m.Moving })
	if m.Degree() != 5.625 {
		t.Errorf("Expected 5.625 degrees, got %v", m.Degree())
	}
}

func TestDisconnect(t *testing.T) {
	s, rig := newSimScanner(t, testOptions())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	updateUntil(t, s, func(m Mirror) bool { return m.RPM != 0 })

	s.Disconnect()
	if s.IsConnected() {
		t.Fatal("Expected disconnected")
	}
	if m := s.Mirror(); m.RPM != 0 {
		t.Errorf("Mirror should reset on disconnect: %+v", m)
	}
	if err := s.TakePhoto(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}

	// A new session handshakes again
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	updateUntil(t, s, func(m Mirror) bool { return m.RPM != 0 })

	// Closing the device side is noticed on the next Update
	rig.Close()
	deadline := time.Now().Add(2 * time.Second)
	for s.IsConnected() && time.Now().Before(deadline) {
		s.Update()
		time.Sleep(2 * time.Millisecond)
	}
	if s.IsConnected() {
		t.Fatal("Expected link loss to disconnect")
	}
	if m := s.Mirror(); m.RPM != 0 || m.LastReceived != (protocol.Record{}) {
		t.Errorf("Mirror should reset on link loss: %+v", m)
	}
}

// idleEOFPort behaves like a tty read as a plain file: an idle read
// returns (0, io.EOF) once the read timeout expires
type idleEOFPort struct {
	mu     sync.Mutex
	rx     bytes.Buffer
	closed bool
}

func (p *idleEOFPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, os.ErrClosed
	}
	if p.rx.Len() > 0 {
		defer p.mu.Unlock()
		return p.rx.Read(b)
	}
	p.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	return 0, io.EOF
}

func (p *idleEOFPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, os.ErrClosed
	}
	if bytes.Contains(b, []byte("H1\n")) {
		p.rx.WriteString("H1\n")
	}
	return len(b), nil
}

func (p *idleEOFPort) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rx.Reset()
	return nil
}

func (p *idleEOFPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestIdleTimeoutKeepsSession(t *testing.T) {
	port := &idleEOFPort{}
	opts := testOptions()
	opts.BootDelay = 50 * time.Millisecond

	s := New(func() (serial.Port, error) { return port, nil }, opts, zerolog.Nop())
	defer s.Close()

	// The boot delay spans several idle reads
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	s.Update()
	if !s.IsConnected() {
		t.Fatalf("Idle reads dropped the session: %v", s.State())
	}
	if err := s.Send(protocol.CmdRPM, 0); err != nil {
		t.Errorf("Send after idle period failed: %v", err)
	}

	// Closing the port is still noticed
	port.Close()
	deadline := time.Now().Add(2 * time.Second)
	for s.IsConnected() && time.Now().Before(deadline) {
		s.Update()
		time.Sleep(2 * time.Millisecond)
	}
	if s.IsConnected() {
		t.Error("Expected closed port to end the session")
	}
}

func TestHandshakingIsObservable(t *testing.T) {
	opts := testOptions()
	opts.BootDelay = time.Minute
	s := New(echoPeer("H1\n"), opts, zerolog.Nop())

	result := make(chan error, 1)
	go func() { result <- s.Connect(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != Handshaking && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.State() != Handshaking {
		t.Fatalf("Expected handshaking, got %v", s.State())
	}
	if err := s.Connect(context.Background()); !errors.Is(err, ErrHandshakeInProgress) {
		t.Errorf("Expected ErrHandshakeInProgress, got %v", err)
	}
	if err := s.Send(protocol.CmdRPM, 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected while handshaking, got %v", err)
	}

	// Disconnect aborts the handshake
	s.Disconnect()
	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after Disconnect")
	}
	if s.State() != Disconnected {
		t.Errorf("Expected disconnected, got %v", s.State())
	}

	// A later attempt can still succeed
	s.opts.BootDelay = 0
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect after abort failed: %v", err)
	}
	s.Close()
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		Disconnected: "disconnected",
		Handshaking:  "handshaking",
		Connected:    "connected",
	} {
		if state.String() != want {
			t.Errorf("Expected %q, got %q", want, state.String())
		}
	}
}
