package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

const (
	historyFileName = ".turnscan_history"
	historySize     = 500
)

// LineEditor reads console lines with readline on a terminal and
// falls back to plain line reads when stdin is piped
type LineEditor struct {
	rl          *readline.Instance
	scanner     *bufio.Scanner
	interactive bool
}

// NewLineEditor creates a line editor for stdin
func NewLineEditor() (*LineEditor, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return &LineEditor{scanner: bufio.NewScanner(os.Stdin)}, nil
	}

	historyPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyPath = filepath.Join(home, historyFileName)
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:                 "",
		HistoryFile:            historyPath,
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize readline: %w", err)
	}

	return &LineEditor{rl: rl, interactive: true}, nil
}

// GetLine reads one line; io.EOF on end of input or Ctrl-C
func (le *LineEditor) GetLine(prompt string) (string, error) {
	if !le.interactive {
		fmt.Print(prompt)
		if !le.scanner.Scan() {
			if err := le.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return le.scanner.Text(), nil
	}

	le.rl.SetPrompt(prompt)
	line, err := le.rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt {
			return "", io.EOF
		}
		return "", err
	}

	if trimmed := strings.TrimSpace(line); trimmed != "" {
		le.rl.SaveToHistory(trimmed)
	}
	return line, nil
}

// Close saves history and releases the terminal
func (le *LineEditor) Close() {
	if le.rl != nil {
		le.rl.Close()
		le.rl = nil
	}
}

// IsInteractive reports whether stdin is a terminal
func (le *LineEditor) IsInteractive() bool {
	return le.interactive
}
