// Package scanner is the host side of the turntable link: it opens the
// serial port, performs the handshake and keeps a mirror of the device
// state up to date from the records the device sends.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"turnscan/host/serial"
	"turnscan/protocol"
)

var (
	// ErrNotConnected is returned by operations that need a session
	ErrNotConnected = errors.New("not connected to scanner")

	// ErrHandshakeTimeout is returned when no H1 reply arrived in time
	ErrHandshakeTimeout = errors.New("handshake timed out")

	// ErrLinkClosed is returned when the port closed during the handshake
	ErrLinkClosed = errors.New("serial link closed")

	// ErrHandshakeInProgress is returned by Connect while another Connect runs
	ErrHandshakeInProgress = errors.New("handshake in progress")

	// ErrInvalidRecord is returned for records that cannot be framed
	ErrInvalidRecord = errors.New("invalid record")
)

// State is the connection state
type State int

const (
	Disconnected State = iota
	Handshaking
	Connected
)

func (s State) String() string {
	switch s {
	case Handshaking:
		return "handshaking"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Opener opens the serial port for a new session
type Opener func() (serial.Port, error)

// Settings are pushed to the device after connecting; zero values are skipped
type Settings struct {
	RPM            uint32
	TurnsPerCircle uint32
	Direction      uint32 // protocol.DirectionCW or DirectionCCW
	WaitAfterPhoto time.Duration
	TotalSteps     uint32
}

// Options configures a Scanner
type Options struct {
	EndOfFrame       byte
	QueueCapacity    int
	BootDelay        time.Duration // Wait after opening the port
	HandshakeTimeout time.Duration // Wait for the H1 reply
	Initial          Settings
}

// DefaultOptions returns the standard link settings
func DefaultOptions() Options {
	return Options{
		EndOfFrame:       protocol.EndOfFrame,
		QueueCapacity:    protocol.QueueCapacity,
		BootDelay:        2 * time.Second,
		HandshakeTimeout: time.Second,
	}
}

var handshake = protocol.NewRecord(protocol.CmdHandshake, protocol.HandshakeValue)

func isHandshake(r protocol.Record) bool {
	return r == handshake
}

// Scanner represents a connection to the turntable controller.
// All methods are safe for concurrent use; received data is only
// processed inside Connect and Update.
type Scanner struct {
	mu   sync.Mutex
	log  zerolog.Logger
	opts Options
	open Opener

	endpoint *protocol.Endpoint
	registry *protocol.Registry[Mirror]

	// Session resources, nil while disconnected
	port       serial.Port
	incoming   chan []byte
	stop       chan struct{}
	readerDone chan struct{}

	state  State
	mirror Mirror

	// Aborts the running handshake
	cancel context.CancelFunc
}

// New creates a scanner (not yet connected)
func New(open Opener, opts Options, logger zerolog.Logger) *Scanner {
	s := &Scanner{
		log:      logger,
		opts:     opts,
		open:     open,
		registry: newMirrorRegistry(),
	}

	epOpts := protocol.DefaultOptions()
	epOpts.EndOfFrame = opts.EndOfFrame
	epOpts.Capacity = opts.QueueCapacity
	epOpts.Accepts = s.registry.Accepts
	s.endpoint = protocol.NewEndpoint(epOpts)
	s.endpoint.SetErrorHandler(func(code protocol.ErrorCode) {
		s.log.Warn().Uint32("code", uint32(code)).Str("error", code.String()).Msg("dropped inbound data")
	})

	return s
}

// Connect opens the port and performs the handshake: both queues are
// cleared, H1 is sent, and the session is established only if the device
// answers H1 within the timeout. There is no retry; call Connect again.
//
// The lock is released while handshaking, so State reports Handshaking
// and Disconnect aborts the attempt.
func (s *Scanner) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Connected:
		s.mu.Unlock()
		return nil
	case Handshaking:
		s.mu.Unlock()
		return ErrHandshakeInProgress
	}

	port, err := s.open()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	s.attach(port)
	s.state = Handshaking

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel
	s.mu.Unlock()

	// Only this goroutine touches the port and endpoint while handshaking
	err = s.handshake(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = nil

	if err != nil {
		s.teardown()
		s.log.Warn().Err(err).Msg("handshake failed")
		return err
	}

	s.state = Connected
	s.log.Info().Msg("scanner connected")

	if err := s.syncDevice(); err != nil {
		s.log.Warn().Err(err).Msg("failed to query device settings")
	}
	return nil
}

func (s *Scanner) handshake(ctx context.Context) error {
	if s.opts.BootDelay > 0 {
		s.log.Debug().Dur("delay", s.opts.BootDelay).Msg("waiting for controller boot")
		timer := time.NewTimer(s.opts.BootDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	// Whatever arrived while the board booted is noise
	if err := s.port.Flush(); err != nil {
		return fmt.Errorf("failed to flush port: %w", err)
	}
	s.discardIncoming()
	s.endpoint.Reset()

	if err := s.endpoint.WriteRecord(s.port, handshake); err != nil {
		return fmt.Errorf("failed to send handshake: %w", err)
	}

	timeout := time.NewTimer(s.opts.HandshakeTimeout)
	defer timeout.Stop()

	for {
		if _, ok := s.endpoint.Take(isHandshake); ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return ErrHandshakeTimeout
		case chunk := <-s.incoming:
			s.endpoint.Receive(chunk)
		case <-s.readerDone:
			s.pump()
			if _, ok := s.endpoint.Take(isHandshake); ok {
				return nil
			}
			return ErrLinkClosed
		}
	}
}

// syncDevice asks for every setting, then pushes configured overrides
func (s *Scanner) syncDevice() error {
	for _, letter := range []byte("RCKWGTIA") {
		if err := s.send(protocol.NewRecord(letter, 0)); err != nil {
			return err
		}
	}

	in := s.opts.Initial
	overrides := []protocol.Record{
		{Command: protocol.CmdTotalSteps, Value: in.TotalSteps},
		{Command: protocol.CmdTurns, Value: in.TurnsPerCircle},
		{Command: protocol.CmdRPM, Value: in.RPM},
		{Command: protocol.CmdDirection, Value: in.Direction},
		{Command: protocol.CmdWait, Value: uint32(in.WaitAfterPhoto / time.Millisecond)},
	}
	for _, rec := range overrides {
		if rec.Value == 0 {
			continue
		}
		if err := s.send(rec); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect closes the session and forgets the mirrored state.
// The device is not told; the wire has no goodbye. A handshake in
// progress is aborted and its Connect returns context.Canceled.
func (s *Scanner) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Handshaking {
		s.cancel()
		return
	}

	if s.port != nil {
		s.log.Info().Msg("scanner disconnected")
	}
	s.teardown()
}

// Close is Disconnect, for io.Closer
func (s *Scanner) Close() error {
	s.Disconnect()
	return nil
}

// teardown ends the session and resets everything it left behind
func (s *Scanner) teardown() {
	if s.port != nil {
		s.detach()
	}
	s.state = Disconnected
	s.mirror = Mirror{}
	s.endpoint.Reset()
}

// Update processes everything received since the last call and
// returns the decoded records in arrival order
func (s *Scanner) Update() []protocol.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Connected {
		return nil
	}

	// Apply per chunk; a burst can be larger than the inbound queue
	recs := s.applyPending(nil)
	for more := true; more; {
		select {
		case chunk := <-s.incoming:
			s.endpoint.Receive(chunk)
			recs = s.applyPending(recs)
		default:
			more = false
		}
	}

	select {
	case <-s.readerDone:
		if len(s.incoming) == 0 {
			s.log.Warn().Msg("serial link lost")
			s.teardown()
		}
	default:
	}

	return recs
}

// applyPending applies every queued record, appending them to recs
func (s *Scanner) applyPending(recs []protocol.Record) []protocol.Record {
	for {
		rec, ok := s.endpoint.Next()
		if !ok {
			return recs
		}
		s.apply(rec)
		recs = append(recs, rec)
	}
}

// apply updates the mirror from one received record
func (s *Scanner) apply(rec protocol.Record) {
	s.mirror.LastReceived = rec

	if rec.IsError() {
		s.log.Warn().
			Uint32("code", rec.Value).
			Str("error", protocol.ErrorCode(rec.Value).String()).
			Msg("device reported error")
	} else {
		s.log.Debug().
			Str("cmd", string(rec.Command)).
			Uint32("val", rec.Value).
			Msg("received")
	}

	if _, err := s.registry.Dispatch(&s.mirror, rec); err != nil {
		s.log.Warn().Err(err).Str("record", rec.String()).Msg("unhandled record")
	}
}

// Send queues one record and writes it to the device
func (s *Scanner) Send(cmd byte, val uint32) error {
	if !protocol.IsCommandLetter(cmd) || val > protocol.MaxValue {
		return fmt.Errorf("%w: %q %d", ErrInvalidRecord, cmd, val)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Connected {
		return ErrNotConnected
	}
	return s.send(protocol.NewRecord(cmd, val))
}

func (s *Scanner) send(rec protocol.Record) error {
	s.endpoint.Queue(rec)
	if _, err := s.endpoint.Drain(s.port); err != nil {
		return fmt.Errorf("failed to send %s: %w", rec, err)
	}
	s.log.Debug().Str("cmd", string(rec.Command)).Uint32("val", rec.Value).Msg("sent")
	return nil
}

// SendRaw writes text followed by the frame terminator, unvalidated
func (s *Scanner) SendRaw(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Connected {
		return ErrNotConnected
	}
	if err := s.endpoint.WriteText(s.port, text); err != nil {
		return fmt.Errorf("failed to send %q: %w", text, err)
	}
	s.log.Debug().Str("text", text).Msg("sent raw")
	return nil
}

// State returns the connection state
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected returns whether a session is established
func (s *Scanner) IsConnected() bool {
	return s.State() == Connected
}

// Mirror returns a copy of the mirrored device state
func (s *Scanner) Mirror() Mirror {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirror
}

// LastReceived returns the most recent record from the device
func (s *Scanner) LastReceived() protocol.Record {
	return s.Mirror().LastReceived
}

// attach starts reading from port in the background
func (s *Scanner) attach(port serial.Port) {
	s.port = port
	s.incoming = make(chan []byte, 64)
	s.stop = make(chan struct{})
	s.readerDone = make(chan struct{})
	go readLoop(port, s.incoming, s.stop, s.readerDone, s.log)
}

// detach closes the port and waits for the reader to exit
func (s *Scanner) detach() {
	close(s.stop)
	if err := s.port.Close(); err != nil {
		s.log.Warn().Err(err).Msg("failed to close serial port")
	}
	<-s.readerDone
	s.discardIncoming()
	s.port = nil
}

// pump moves received bytes into the endpoint without blocking
func (s *Scanner) pump() {
	for {
		select {
		case chunk := <-s.incoming:
			s.endpoint.Receive(chunk)
		default:
			return
		}
	}
}

func (s *Scanner) discardIncoming() {
	for {
		select {
		case <-s.incoming:
		default:
			return
		}
	}
}

// idleBackoff paces drivers whose idle reads return immediately
const idleBackoff = 10 * time.Millisecond

// readLoop continuously reads from the port (runs in background).
// It exits on stop or on a read error other than an idle timeout.
func readLoop(port serial.Port, out chan<- []byte, stop <-chan struct{}, done chan<- struct{}, log zerolog.Logger) {
	defer close(done)

	// Small reads keep each chunk well under the inbound queue depth
	buf := make([]byte, 32)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-stop:
				return
			}
		}

		// Ports read as plain files report an expired timeout as io.EOF
		if n == 0 && errors.Is(err, io.EOF) {
			err = nil
			select {
			case <-stop:
				return
			case <-time.After(idleBackoff):
			}
		}

		if err != nil {
			select {
			case <-stop:
			default:
				if !errors.Is(err, io.ErrClosedPipe) {
					log.Warn().Err(err).Msg("serial read failed")
				}
			}
			return
		}

		select {
		case <-stop:
			return
		default:
		}
	}
}
