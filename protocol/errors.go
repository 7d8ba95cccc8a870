package protocol

import "errors"

var (
	// ErrQueueOverflow indicates a push into a full queue (the queue was flushed)
	ErrQueueOverflow = errors.New("queue overflow")

	// ErrUnknownCommand indicates a command letter with no registered handler
	ErrUnknownCommand = &CodeError{Code: InvalidCmd}

	// ErrInvalidValue indicates a value the command does not accept
	ErrInvalidValue = &CodeError{Code: InvalidVal}
)

// CodeError is an error that maps onto a wire error code
type CodeError struct {
	Code ErrorCode
}

func (e *CodeError) Error() string {
	return e.Code.String()
}

// Is matches any CodeError carrying the same code
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	return ok && t.Code == e.Code
}

// QueueRole identifies which side of an endpoint a queue serves
type QueueRole uint8

const (
	RoleInbound  QueueRole = iota // Decoded records waiting for dispatch
	RoleOutbound                  // Records waiting to be written to the wire
)

func (r QueueRole) String() string {
	if r == RoleOutbound {
		return "outbound"
	}
	return "inbound"
}

// OverflowError reports a flushed queue and the role it served
type OverflowError struct {
	Role    QueueRole
	Dropped int // Records discarded by the flush, including the rejected push
}

func (e *OverflowError) Error() string {
	return e.Role.String() + " " + ErrQueueOverflow.Error()
}

func (e *OverflowError) Unwrap() error {
	return ErrQueueOverflow
}

// Code returns the wire error code for this overflow
func (e *OverflowError) Code() ErrorCode {
	if e.Role == RoleOutbound {
		return OutQueueOverflow
	}
	return CmdQueueOverflow
}

// CodeOf maps an error to the wire code that reports it.
// Errors that carry no code report InvalidVal.
func CodeOf(err error) ErrorCode {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var oe *OverflowError
	if errors.As(err, &oe) {
		return oe.Code()
	}
	return InvalidVal
}
