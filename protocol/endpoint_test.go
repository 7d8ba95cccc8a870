package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func deviceOptions(accept string) Options {
	opts := DefaultOptions()
	opts.EchoErrors = true
	opts.Accepts = func(letter byte) bool {
		return bytes.IndexByte([]byte(accept), letter) >= 0
	}
	return opts
}

func TestEndpointReceive(t *testing.T) {
	e := NewEndpoint(DefaultOptions())

	// Split across calls at awkward places
	n := e.Receive([]byte("R1"))
	n += e.Receive([]byte("2\nC"))
	n += e.Receive([]byte("24\n"))
	if n != 2 {
		t.Errorf("Expected 2 records queued, got %d", n)
	}

	rec, ok := e.Next()
	if !ok || rec != NewRecord('R', 12) {
		t.Errorf("Expected R12, got %s", rec)
	}
	rec, ok = e.Next()
	if !ok || rec != NewRecord('C', 24) {
		t.Errorf("Expected C24, got %s", rec)
	}
	if _, ok := e.Next(); ok {
		t.Error("Expected no more records")
	}
}

func TestEndpointErrorEcho(t *testing.T) {
	e := NewEndpoint(deviceOptions("RC"))

	var codes []ErrorCode
	e.SetErrorHandler(func(code ErrorCode) {
		codes = append(codes, code)
	})

	e.Receive([]byte("X5\nR\n" + "R12345678901\n" + "C7\n"))

	want := []ErrorCode{InvalidCmd, InvalidBuffer, BufferOverflow}
	if len(codes) != len(want) {
		t.Fatalf("Expected codes %v, got %v", want, codes)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("Code %d: expected %d, got %d", i, want[i], codes[i])
		}
	}

	if e.Pending() != 1 {
		t.Errorf("Only C7 should be queued, got %d", e.Pending())
	}

	var out bytes.Buffer
	sent, err := e.Drain(&out)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if sent != 3 || out.String() != "E2\nE0\nE1\n" {
		t.Errorf("Expected E2 E0 E1 on the wire, got %d records %q", sent, out.String())
	}
}

func TestEndpointNoEchoOnHost(t *testing.T) {
	e := NewEndpoint(DefaultOptions())
	reported := 0
	e.SetErrorHandler(func(ErrorCode) { reported++ })

	e.Receive([]byte("7\n"))
	if reported != 1 {
		t.Errorf("Expected 1 report, got %d", reported)
	}
	if e.Outgoing() != 0 {
		t.Errorf("Host role should not queue error records, got %d", e.Outgoing())
	}
}

func TestEndpointInboundOverflow(t *testing.T) {
	e := NewEndpoint(deviceOptions("R"))
	var codes []ErrorCode
	e.SetErrorHandler(func(code ErrorCode) { codes = append(codes, code) })

	var frames []byte
	for i := 0; i < QueueCapacity+1; i++ {
		frames = AppendRecord(frames, NewRecord('R', uint32(i+1)), EndOfFrame)
	}
	n := e.Receive(frames)

	if n != 0 {
		t.Errorf("Receive should count nothing queued after the flush, got %d", n)
	}
	if e.Pending() != 0 {
		t.Errorf("Inbound queue should be empty after overflow, got %d", e.Pending())
	}
	if len(codes) != 1 || codes[0] != CmdQueueOverflow {
		t.Errorf("Expected a single E4, got %v", codes)
	}

	var out bytes.Buffer
	e.Drain(&out)
	if out.String() != "E4\n" {
		t.Errorf("Expected E4 on the wire, got %q", out.String())
	}

	// Processing continues normally afterwards
	e.Receive([]byte("R5\n"))
	if rec, ok := e.Next(); !ok || rec.Value != 5 {
		t.Errorf("Expected R5 after overflow, got %s", rec)
	}
}

func TestEndpointOutboundOverflow(t *testing.T) {
	e := NewEndpoint(deviceOptions(""))
	var codes []ErrorCode
	e.SetErrorHandler(func(code ErrorCode) { codes = append(codes, code) })

	for i := 0; i < QueueCapacity; i++ {
		e.Queue(NewRecord('A', uint32(i)))
	}
	if e.Outgoing() != QueueCapacity {
		t.Fatalf("Expected %d outgoing, got %d", QueueCapacity, e.Outgoing())
	}

	e.Queue(NewRecord('A', 99))

	if len(codes) != 1 || codes[0] != OutQueueOverflow {
		t.Errorf("Expected a single E5, got %v", codes)
	}

	var out bytes.Buffer
	e.Drain(&out)
	if out.String() != "E5\n" {
		t.Errorf("Only E5 should survive the flush, got %q", out.String())
	}
}

func TestEndpointReportIntoFullOutbound(t *testing.T) {
	e := NewEndpoint(deviceOptions("R"))
	var codes []ErrorCode
	e.SetErrorHandler(func(code ErrorCode) { codes = append(codes, code) })

	for i := 0; i < QueueCapacity; i++ {
		e.Queue(NewRecord('I', uint32(i)))
	}
	e.Receive([]byte("Z1\n"))

	if len(codes) != 2 || codes[0] != InvalidCmd || codes[1] != OutQueueOverflow {
		t.Errorf("Expected E2 then E5, got %v", codes)
	}

	var out bytes.Buffer
	e.Drain(&out)
	if out.String() != "E5\n" {
		t.Errorf("Expected E5 on the wire, got %q", out.String())
	}
}

func TestEndpointTake(t *testing.T) {
	e := NewEndpoint(DefaultOptions())
	e.Receive([]byte("A3\nH1\nI40\n"))

	rec, ok := e.Take(func(r Record) bool { return r.Command == CmdHandshake })
	if !ok || rec != NewRecord('H', 1) {
		t.Errorf("Expected H1, got %s", rec)
	}
	if e.Pending() != 2 {
		t.Errorf("Expected 2 left, got %d", e.Pending())
	}
	if rec, _ := e.Next(); rec.Command != 'A' {
		t.Errorf("Order not preserved, got %s first", rec)
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("link down") }

type trickleWriter struct{ bytes.Buffer }

// Write accepts at most two bytes per call
func (w *trickleWriter) Write(p []byte) (int, error) {
	if len(p) > 2 {
		p = p[:2]
	}
	return w.Buffer.Write(p)
}

func TestEndpointDrain(t *testing.T) {
	e := NewEndpoint(DefaultOptions())
	e.Queue(NewRecord('M', 1))
	e.Queue(NewRecord('I', 2048))

	var w trickleWriter
	sent, err := e.Drain(&w)
	if err != nil || sent != 2 {
		t.Fatalf("Drain = %d, %v", sent, err)
	}
	if w.String() != "M1\nI2048\n" {
		t.Errorf("Partial writes mangled output: %q", w.String())
	}

	if sent, err := e.Drain(&w); sent != 0 || err != nil {
		t.Errorf("Empty drain should be a no-op, got %d, %v", sent, err)
	}

	e.Queue(NewRecord('P', 1))
	if _, err := e.Drain(failWriter{}); err == nil {
		t.Error("Expected write error")
	}
	if e.Outgoing() != 0 {
		t.Error("Records should be dropped even when the write fails")
	}
}

func TestEndpointWriteText(t *testing.T) {
	e := NewEndpoint(DefaultOptions())
	var out bytes.Buffer
	if err := e.WriteText(&out, "hello"); err != nil {
		t.Fatal(err)
	}
	if err := e.WriteRecord(&out, NewRecord('H', 1)); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hello\nH1\n" {
		t.Errorf("Unexpected output %q", out.String())
	}
}
