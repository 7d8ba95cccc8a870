package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"

	"turnscan/host/config"
	"turnscan/host/scanner"
	"turnscan/host/serial"
	"turnscan/host/sim"
	"turnscan/protocol"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	device     = flag.String("port", "", "Serial device path (overrides config)")
	driver     = flag.String("driver", "", "Serial driver: tarm or bugst")
	baud       = flag.Int("baud", 0, "Baud rate (ignored for USB CDC)")
	simulate   = flag.Bool("sim", false, "Connect to a simulated controller")
	listPorts  = flag.Bool("list", false, "List serial ports and exit")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
)

// updateInterval is how often received records are processed
const updateInterval = 20 * time.Millisecond

func main() {
	flag.Parse()

	if *listPorts {
		ports, err := serial.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg)

	h := &host{log: log}
	open, closeSim, err := h.newOpener(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up link")
	}
	defer closeSim()

	sc := scanner.New(open, scannerOptions(cfg), log)
	defer sc.Close()
	h.sc = sc

	fmt.Printf("turnscan host (protocol %s)\n", protocol.Version)

	if *simulate || cfg.Serial.Device != "" {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		err := sc.Connect(ctx)
		stop()
		if err != nil {
			log.Error().Err(err).Msg("connect failed; use 'connect' to retry")
		}
	}

	done := make(chan struct{})
	defer close(done)
	go pollLoop(sc, done)

	editor, err := NewLineEditor()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start line editor")
	}
	defer editor.Close()

	h.repl(editor)
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *driver != "" {
		cfg.Serial.Driver = *driver
	}
	if *baud != 0 {
		cfg.Serial.Baud = *baud
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// host is the interactive session state
type host struct {
	sc  *scanner.Scanner
	log zerolog.Logger

	// Port settings used by the next connect, nil when simulating
	port *serial.Config
}

// newOpener returns the port opener and a cleanup function
func (h *host) newOpener(cfg *config.Config) (scanner.Opener, func(), error) {
	if *simulate {
		opts := sim.DefaultOptions()
		opts.Logger = h.log
		rig, err := sim.New(opts)
		if err != nil {
			return nil, nil, err
		}
		return rig.Open, func() { rig.Close() }, nil
	}

	h.port = cfg.SerialPort()
	open := func() (serial.Port, error) {
		if h.port.Device == "" {
			return nil, fmt.Errorf("no serial device configured (use -port or 'connect <device>')")
		}
		h.log.Info().Str("device", h.port.Device).Str("driver", h.port.Driver).Msg("opening serial port")
		return serial.Open(h.port)
	}
	return open, func() {}, nil
}

func scannerOptions(cfg *config.Config) scanner.Options {
	opts := scanner.DefaultOptions()
	opts.EndOfFrame = cfg.EndOfFrame()
	opts.QueueCapacity = cfg.Protocol.QueueCapacity
	opts.BootDelay = cfg.BootDelay()
	opts.HandshakeTimeout = cfg.HandshakeTimeout()

	// The simulator is up as soon as it is opened and frames with newlines
	if *simulate {
		opts.BootDelay = 0
		opts.EndOfFrame = protocol.EndOfFrame
	}

	s := cfg.Scanner
	opts.Initial = scanner.Settings{
		RPM:            s.RPM,
		TurnsPerCircle: s.TurnsPerCircle,
		WaitAfterPhoto: time.Duration(s.WaitAfterPhotoMs) * time.Millisecond,
		TotalSteps:     s.TotalSteps,
	}
	switch s.Direction {
	case "cw":
		opts.Initial.Direction = protocol.DirectionCW
	case "ccw":
		opts.Initial.Direction = protocol.DirectionCCW
	}
	return opts
}

// pollLoop processes received records in the background
func pollLoop(sc *scanner.Scanner, done <-chan struct{}) {
	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			sc.Update()
		}
	}
}
