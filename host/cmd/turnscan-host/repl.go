package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"turnscan/host/scanner"
	"turnscan/protocol"
)

// errQuit ends the REPL
var errQuit = errors.New("quit")

type command struct {
	usage string
	help  string
	run   func(h *host, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":       {"help", "Show this help message", cmdHelp},
		"quit":       {"quit", "Exit the program", func(*host, []string) error { return errQuit }},
		"connect":    {"connect [device]", "Open the port and handshake", cmdConnect},
		"disconnect": {"disconnect", "Close the session", cmdDisconnect},
		"status":     {"status", "Show the mirrored device state", cmdStatus},
		"send":       {"send <letter> <value>", "Send one record", cmdSend},
		"raw":        {"raw <text>", "Send text followed by the frame terminator", cmdRaw},
		"rpm":        {"rpm <1-24>", "Set motor speed", uintCmd((*scanner.Scanner).SetRPM)},
		"turns":      {"turns <n>", "Set stops per revolution", uintCmd((*scanner.Scanner).SetTurnsPerCircle)},
		"cw":         {"cw", "Rotate clockwise", func(h *host, _ []string) error { return h.sc.SetClockwise(true) }},
		"ccw":        {"ccw", "Rotate counter-clockwise", func(h *host, _ []string) error { return h.sc.SetClockwise(false) }},
		"autoscan":   {"autoscan start|stop", "Run or stop an autoscan", cmdAutoscan},
		"photo":      {"photo", "Trigger the camera", func(h *host, _ []string) error { return h.sc.TakePhoto() }},
		"turn":       {"turn", "Advance one autoscan step", func(h *host, _ []string) error { return h.sc.Turn() }},
		"rotate":     {"rotate [steps]", "Rotate by the increment, or set it first", cmdRotate},
		"goto":       {"goto <degree>", "Move to an absolute angle", uintCmd((*scanner.Scanner).RotateTo)},
		"step":       {"step <n>", "Move to an absolute step", uintCmd((*scanner.Scanner).MoveToStep)},
		"steps":      {"steps <n>", "Set steps per revolution (before first move)", uintCmd((*scanner.Scanner).SetTotalSteps)},
		"wait":       {"wait <ms>", "Set pause after each photo", cmdWait},
		"position":   {"position", "Request the step position", func(h *host, _ []string) error { return h.sc.RequestPosition() }},
		"queue":      {"queue [flush]", "Query or flush the device command queue", cmdQueue},
	}
	commands["exit"] = commands["quit"]
	commands["q"] = commands["quit"]
}

// repl runs the interactive command loop until quit or end of input
func (h *host) repl(editor *LineEditor) {
	if editor.IsInteractive() {
		fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	}

	for {
		line, err := editor.GetLine(h.prompt())
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
			}
			return
		}

		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		cmd, ok := commands[strings.ToLower(args[0])]
		if !ok {
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", args[0])
			continue
		}

		if err := cmd.run(h, args[1:]); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Println("Goodbye!")
				return
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

func (h *host) prompt() string {
	if h.sc.IsConnected() {
		return "turnscan> "
	}
	return "turnscan (offline)> "
}

func cmdHelp(*host, []string) error {
	names := make([]string, 0, len(commands))
	for name, cmd := range commands {
		if strings.HasPrefix(cmd.usage, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	fmt.Println("\nAvailable commands:")
	for _, name := range names {
		cmd := commands[name]
		fmt.Printf("  %-22s - %s\n", cmd.usage, cmd.help)
	}
	fmt.Println()
	return nil
}

func cmdConnect(h *host, args []string) error {
	if len(args) > 0 {
		if h.port == nil {
			return fmt.Errorf("the simulator has no device path")
		}
		if h.sc.IsConnected() {
			h.sc.Disconnect()
		}
		h.port.Device = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := h.sc.Connect(ctx); err != nil {
		return err
	}
	fmt.Println("Connected successfully!")
	return nil
}

func cmdDisconnect(h *host, _ []string) error {
	h.sc.Disconnect()
	return nil
}

func cmdStatus(h *host, _ []string) error {
	m := h.sc.Mirror()

	fmt.Printf("State:            %s\n", h.sc.State())
	fmt.Printf("RPM:              %d\n", m.RPM)
	fmt.Printf("Turns per circle: %d (%d steps each)\n", m.TurnsPerCircle, m.StepsPerTurn())
	fmt.Printf("Direction:        %s\n", direction(m.Clockwise))
	fmt.Printf("Wait after photo: %v\n", m.WaitAfterPhoto)
	fmt.Printf("Total steps:      %d\n", m.TotalSteps)
	fmt.Printf("Rotate increment: %d\n", m.RotateIncrement)
	fmt.Printf("Position:         %d (%.2f deg)\n", m.CurrentStep, m.Degree())
	fmt.Printf("Moving/shooting:  %t/%t\n", m.Moving, m.Shooting)
	fmt.Printf("Autoscan left:    %d\n", m.MovesLeft)
	if m.ErrorCount > 0 {
		fmt.Printf("Errors:           %d (last E%d %s)\n", m.ErrorCount, uint32(m.LastError), m.LastError)
	}
	if !m.LastReceived.IsZero() {
		fmt.Printf("Last received:    %s\n", m.LastReceived)
	}
	return nil
}

func direction(cw bool) string {
	if cw {
		return "clockwise"
	}
	return "counter-clockwise"
}

// cmdSend accepts "send R 12" or "send R12"
func cmdSend(h *host, args []string) error {
	text := strings.Join(args, "")
	rec, err := protocol.ParseFrame([]byte(strings.ToUpper(text)))
	if err != nil {
		return fmt.Errorf("usage: send <letter> <value>: %w", err)
	}
	return h.sc.Send(rec.Command, rec.Value)
}

func cmdRaw(h *host, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: raw <text>")
	}
	return h.sc.SendRaw(strings.Join(args, " "))
}

func cmdAutoscan(h *host, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: autoscan start|stop")
	}
	switch args[0] {
	case "start":
		return h.sc.Autoscan(true)
	case "stop":
		return h.sc.Autoscan(false)
	}
	return fmt.Errorf("usage: autoscan start|stop")
}

func cmdRotate(h *host, args []string) error {
	if len(args) == 0 {
		return h.sc.Rotate()
	}
	steps, err := parseValue(args[0])
	if err != nil {
		return err
	}
	return h.sc.RotateBy(steps)
}

func cmdWait(h *host, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: wait <ms>")
	}
	ms, err := parseValue(args[0])
	if err != nil {
		return err
	}
	return h.sc.SetWaitAfterPhoto(time.Duration(ms) * time.Millisecond)
}

func cmdQueue(h *host, args []string) error {
	if len(args) > 0 && args[0] == "flush" {
		return h.sc.FlushDeviceQueue()
	}
	return h.sc.QueryDeviceQueue()
}

// uintCmd adapts a single-value scanner operation
func uintCmd(fn func(*scanner.Scanner, uint32) error) func(*host, []string) error {
	return func(h *host, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("expected one value")
		}
		v, err := parseValue(args[0])
		if err != nil {
			return err
		}
		return fn(h.sc, v)
	}
}

func parseValue(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || v > protocol.MaxValue {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return uint32(v), nil
}
