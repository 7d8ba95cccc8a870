package protocol

import "io"

// ErrorHandler is told about every error the endpoint detects locally
type ErrorHandler func(code ErrorCode)

// Options configures an Endpoint. Both ends of the link run the same
// Endpoint; they differ only in the accepted letters and whether local
// errors are echoed to the peer.
type Options struct {
	// EndOfFrame terminates every frame; both ends must agree
	EndOfFrame byte

	// Capacity of the inbound and outbound queues
	Capacity int

	// EchoErrors queues an E<code> record for every local error (device role)
	EchoErrors bool

	// Accepts reports whether an inbound letter is legal locally; nil accepts all
	Accepts func(letter byte) bool
}

// DefaultOptions returns the canonical framing with all letters accepted
func DefaultOptions() Options {
	return Options{
		EndOfFrame: EndOfFrame,
		Capacity:   QueueCapacity,
	}
}

// Endpoint owns one decoder plus an inbound and an outbound queue
type Endpoint struct {
	decoder  *Decoder
	inbound  *Queue[Record]
	outbound *Queue[Record]
	opts     Options
	onError  ErrorHandler

	// Encoded outbound bytes, reused across drains
	wire []byte
}

// NewEndpoint creates an endpoint
func NewEndpoint(opts Options) *Endpoint {
	if opts.Capacity <= 0 {
		opts.Capacity = QueueCapacity
	}
	return &Endpoint{
		decoder:  NewDecoder(opts.EndOfFrame),
		inbound:  NewQueue[Record](opts.Capacity, RoleInbound),
		outbound: NewQueue[Record](opts.Capacity, RoleOutbound),
		opts:     opts,
		wire:     make([]byte, 0, opts.Capacity*(MaxFrameLen+1)),
	}
}

// SetErrorHandler sets a callback for locally detected errors
func (e *Endpoint) SetErrorHandler(h ErrorHandler) {
	e.onError = h
}

// EndOfFrame returns the frame terminator
func (e *Endpoint) EndOfFrame() byte {
	return e.opts.EndOfFrame
}

// Receive feeds raw bytes through the decoder and queues every decoded
// record. It returns the number of records queued. Any amount of data,
// including none or a fraction of a frame, is valid input.
func (e *Endpoint) Receive(data []byte) int {
	queued := 0
	for _, b := range data {
		rec, ok, err := e.decoder.Feed(b)
		if err != nil {
			e.Report(CodeOf(err))
			continue
		}
		if !ok {
			continue
		}
		if e.opts.Accepts != nil && !e.opts.Accepts(rec.Command) {
			e.Report(InvalidCmd)
			continue
		}
		if err := e.inbound.Push(rec); err != nil {
			e.Report(CodeOf(err))
			// Everything counted so far was flushed with the queue
			queued = 0
			continue
		}
		queued++
	}
	return queued
}

// Next pops the oldest decoded record
func (e *Endpoint) Next() (Record, bool) {
	return e.inbound.Pop()
}

// Take removes the oldest inbound record matching fn, keeping the rest in order
func (e *Endpoint) Take(fn func(Record) bool) (Record, bool) {
	return e.inbound.RemoveFirst(fn)
}

// Pending returns the number of decoded records not yet consumed
func (e *Endpoint) Pending() int {
	return e.inbound.Len()
}

// Queue appends a record to the outbound queue.
// On overflow the queue is flushed and OUTQUEUE_OVERFLOW is reported.
func (e *Endpoint) Queue(r Record) {
	if err := e.outbound.Push(r); err != nil {
		e.Report(CodeOf(err))
	}
}

// Outgoing returns the number of records waiting to be written
func (e *Endpoint) Outgoing() int {
	return e.outbound.Len()
}

// Report surfaces a local error: the handler is called and, in the
// device role, an E<code> record is queued for the peer.
func (e *Endpoint) Report(code ErrorCode) {
	if e.onError != nil {
		e.onError(code)
	}
	if !e.opts.EchoErrors {
		return
	}
	if err := e.outbound.Push(ErrorRecord(code)); err != nil {
		// The flush made room; the overflow itself is what the peer hears about
		if e.onError != nil {
			e.onError(OutQueueOverflow)
		}
		_ = e.outbound.Push(ErrorRecord(OutQueueOverflow))
	}
}

// Drain encodes every outbound record and writes them in one go.
// Records are removed from the queue whether or not the write succeeds.
func (e *Endpoint) Drain(w io.Writer) (int, error) {
	if e.outbound.IsEmpty() {
		return 0, nil
	}

	e.wire = e.wire[:0]
	sent := 0
	for {
		rec, ok := e.outbound.Pop()
		if !ok {
			break
		}
		e.wire = AppendRecord(e.wire, rec, e.opts.EndOfFrame)
		sent++
	}

	if err := writeAll(w, e.wire); err != nil {
		return 0, err
	}
	return sent, nil
}

// WriteRecord sends one record immediately, bypassing the outbound queue
func (e *Endpoint) WriteRecord(w io.Writer, r Record) error {
	return writeAll(w, Encode(r, e.opts.EndOfFrame))
}

// WriteText sends raw text followed by the terminator, unvalidated
func (e *Endpoint) WriteText(w io.Writer, text string) error {
	buf := make([]byte, 0, len(text)+1)
	buf = append(buf, text...)
	buf = append(buf, e.opts.EndOfFrame)
	return writeAll(w, buf)
}

// FlushInbound drops all decoded records
func (e *Endpoint) FlushInbound() {
	e.inbound.Flush()
}

// FlushOutbound drops all unsent records
func (e *Endpoint) FlushOutbound() {
	e.outbound.Flush()
}

// Reset clears both queues and any partial frame
func (e *Endpoint) Reset() {
	e.decoder.Reset()
	e.inbound.Flush()
	e.outbound.Flush()
}

// writeAll writes buf, handling partial writes
func writeAll(w io.Writer, buf []byte) error {
	written := 0
	for written < len(buf) {
		n, err := w.Write(buf[written:])
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		written += n
	}
	return nil
}
