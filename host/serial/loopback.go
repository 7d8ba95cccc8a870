package serial

import (
	"bytes"
	"io"
	"sync"
)

// pipe is one direction of a loopback link.
// Writes never block; reads block until data arrives or the pipe closes,
// then fail with io.ErrClosedPipe once the buffer is drained.
type pipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	closed bool
}

func newPipe() *pipe {
	p := &pipe{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pipe) write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	n, _ := p.buf.Write(b)
	p.cond.Broadcast()
	return n, nil
}

func (p *pipe) read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.buf.Len() == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.buf.Len() == 0 {
		return 0, io.ErrClosedPipe
	}
	return p.buf.Read(b)
}

func (p *pipe) reset() {
	p.mu.Lock()
	p.buf.Reset()
	p.mu.Unlock()
}

func (p *pipe) close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// LoopbackPort is one end of an in-memory serial link
type LoopbackPort struct {
	in  *pipe
	out *pipe
}

// NewLoopback returns two connected ports: bytes written to one are
// read from the other. Closing either end closes the link.
func NewLoopback() (*LoopbackPort, *LoopbackPort) {
	a2b := newPipe()
	b2a := newPipe()
	return &LoopbackPort{in: b2a, out: a2b}, &LoopbackPort{in: a2b, out: b2a}
}

// Read reads bytes written by the other end
func (p *LoopbackPort) Read(b []byte) (int, error) {
	return p.in.read(b)
}

// Write sends bytes to the other end
func (p *LoopbackPort) Write(b []byte) (int, error) {
	return p.out.write(b)
}

// Close closes both directions
func (p *LoopbackPort) Close() error {
	p.in.close()
	p.out.close()
	return nil
}

// Flush discards unread input
func (p *LoopbackPort) Flush() error {
	p.in.reset()
	return nil
}
