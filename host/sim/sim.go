// Package sim runs the turntable controller firmware in-process behind a
// loopback serial port, so the host can be exercised without hardware.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"turnscan/core"
	"turnscan/host/serial"
)

// Options configures a simulated controller
type Options struct {
	Config core.Config

	// Tick is the firmware main loop period
	Tick time.Duration

	Logger zerolog.Logger
}

// DefaultOptions returns a freshly booted rig ticking every millisecond
func DefaultOptions() Options {
	return Options{
		Config: core.DefaultConfig(),
		Tick:   time.Millisecond,
		Logger: zerolog.Nop(),
	}
}

// Sim is a simulated controller. The device keeps its state across
// sessions the way a board does when the host reopens its port.
type Sim struct {
	mu     sync.Mutex
	log    zerolog.Logger
	tick   time.Duration
	device *core.Device
	motor  *core.SoftStepper

	// Current session
	port *serial.LoopbackPort
	done chan struct{}
}

// logCamera records shutter activity in the log
type logCamera struct {
	log zerolog.Logger
}

func (c logCamera) Trigger() {
	c.log.Info().Msg("shutter")
}

func (c logCamera) SetReady(ready bool) {
	c.log.Debug().Bool("ready", ready).Msg("ready led")
}

// New creates a simulated controller. Device debug output is routed to
// the logger; the debug writer is process-wide.
func New(opts Options) (*Sim, error) {
	if opts.Tick <= 0 {
		opts.Tick = time.Millisecond
	}

	motor, err := core.NewSoftStepper(core.NullBackend{}, opts.Config.RPM, opts.Config.TotalSteps)
	if err != nil {
		return nil, fmt.Errorf("failed to create motor: %w", err)
	}

	log := opts.Logger.With().Str("component", "sim").Logger()
	core.SetDebugWriter(func(msg string) {
		log.Debug().Msg(msg)
	})
	core.SetDebugEnabled(log.GetLevel() <= zerolog.DebugLevel)

	clock := core.NewWallClock()
	return &Sim{
		log:    log,
		tick:   opts.Tick,
		device: core.NewDevice(opts.Config, motor, logCamera{log: log}, clock),
		motor:  motor,
	}, nil
}

// Open starts a new session and returns the host end of the link.
// Any previous session is closed first.
func (s *Sim) Open() (serial.Port, error) {
	s.closeSession()

	host, dev := serial.NewLoopback()
	done := make(chan struct{})

	s.mu.Lock()
	s.port = dev
	s.done = done
	s.device.Endpoint().Reset()
	s.mu.Unlock()

	go s.run(dev, done)
	s.log.Debug().Msg("session opened")
	return host, nil
}

// Close ends the current session
func (s *Sim) Close() error {
	s.closeSession()
	return nil
}

func (s *Sim) closeSession() {
	s.mu.Lock()
	port, done := s.port, s.done
	s.port, s.done = nil, nil
	s.mu.Unlock()

	if port == nil {
		return
	}
	port.Close()
	<-done
}

// Do runs fn with exclusive access to the device
func (s *Sim) Do(fn func(d *core.Device)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.device)
}

// Steps returns the number of motor steps taken since creation
func (s *Sim) Steps() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motor.StepCount()
}

// run is the firmware main loop for one session
func (s *Sim) run(port *serial.LoopbackPort, done chan<- struct{}) {
	defer close(done)

	incoming := make(chan []byte, 64)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		buf := make([]byte, 64)
		for {
			n, err := port.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				incoming <- chunk
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-readerDone:
			// Drain whatever the reader handed over before it stopped
			for len(incoming) > 0 {
				<-incoming
			}
			s.log.Debug().Msg("session closed")
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		for pending := true; pending; {
			select {
			case chunk := <-incoming:
				s.device.Receive(chunk)
			default:
				pending = false
			}
		}
		s.device.Tick()
		_, err := s.device.Flush(port)
		s.mu.Unlock()

		if err != nil {
			s.log.Debug().Err(err).Msg("write failed")
		}
	}
}
