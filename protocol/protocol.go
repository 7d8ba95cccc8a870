// Package protocol implements the turntable serial command protocol
package protocol

import "strconv"

// Version represents the turnscan protocol/firmware version
const Version = "0.3.0"

// Protocol constants
const (
	EndOfFrame    = '\n' // Default frame terminator
	MaxFrameLen   = 10   // 1 command letter + up to 9 digits (fits uint32)
	QueueCapacity = 20   // Default inbound/outbound queue depth

	// MaxValue is the largest value that fits in a frame
	MaxValue = 999999999

	// CommandError is the command letter used to report error codes on the wire
	CommandError = 'E'
)

// ErrorCode is the value carried by an E record
type ErrorCode uint32

// Error codes sent as E<code>
const (
	InvalidBuffer    ErrorCode = 0 // Frame could not be parsed to a command/value pair
	BufferOverflow   ErrorCode = 1 // Too many bytes without an end-of-frame byte
	InvalidCmd       ErrorCode = 2 // Unrecognized command letter
	InvalidVal       ErrorCode = 3 // Value out of range for the command
	CmdQueueOverflow ErrorCode = 4 // Inbound queue overflowed and was flushed
	OutQueueOverflow ErrorCode = 5 // Outbound queue overflowed and was flushed
)

var errorCodeNames = map[ErrorCode]string{
	InvalidBuffer:    "invalid buffer",
	BufferOverflow:   "buffer overflow",
	InvalidCmd:       "invalid command",
	InvalidVal:       "invalid value",
	CmdQueueOverflow: "command queue overflow",
	OutQueueOverflow: "output queue overflow",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return "error " + strconv.FormatUint(uint64(c), 10)
}

// Record is one decoded command/value pair
type Record struct {
	Command byte
	Value   uint32
}

// NewRecord builds a record
func NewRecord(cmd byte, val uint32) Record {
	return Record{Command: cmd, Value: val}
}

// ErrorRecord builds the E<code> record for an error code
func ErrorRecord(code ErrorCode) Record {
	return Record{Command: CommandError, Value: uint32(code)}
}

// IsZero reports whether r carries no command (used for "no reply")
func (r Record) IsZero() bool {
	return r.Command == 0
}

// IsError reports whether r is an E<code> record
func (r Record) IsError() bool {
	return r.Command == CommandError
}

// String renders the record the way it appears on the wire, minus the terminator
func (r Record) String() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Command) + strconv.FormatUint(uint64(r.Value), 10)
}

// IsCommandLetter reports whether b is a valid command byte ('A'-'Z')
func IsCommandLetter(b byte) bool {
	return b >= 'A' && b <= 'Z'
}

// IsDigit reports whether b is an ASCII decimal digit
func IsDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
