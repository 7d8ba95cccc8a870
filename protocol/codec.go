package protocol

import "strconv"

var (
	// ErrInvalidBuffer reports a terminated frame that is not <letter><digits>
	ErrInvalidBuffer = &CodeError{Code: InvalidBuffer}

	// ErrBufferOverflow reports MaxFrameLen bytes without a terminator
	ErrBufferOverflow = &CodeError{Code: BufferOverflow}
)

// Decoder turns a byte stream into records, one byte at a time.
// It keeps no state beyond the current partial frame, so it can be fed
// any number of bytes per call, split at any position.
type Decoder struct {
	buf    [MaxFrameLen]byte
	bufLen int
	eof    byte

	// After an overflow every byte up to the next terminator is junk
	resync bool
}

// NewDecoder creates a decoder for the given end-of-frame byte
func NewDecoder(eof byte) *Decoder {
	return &Decoder{eof: eof}
}

// EndOfFrame returns the terminator byte
func (d *Decoder) EndOfFrame() byte {
	return d.eof
}

// Feed consumes one byte.
// It returns ok=true with a record when b completes a valid frame, or a
// non-nil error (ErrInvalidBuffer / ErrBufferOverflow) when framing fails.
// Both zero means the byte was buffered or discarded.
func (d *Decoder) Feed(b byte) (rec Record, ok bool, err error) {
	if b == d.eof {
		if d.resync {
			// Junk after an overflow ends here; the next byte starts a fresh frame
			d.resync = false
			return Record{}, false, nil
		}
		if d.bufLen == 0 {
			return Record{}, false, nil
		}

		rec, err = ParseFrame(d.buf[:d.bufLen])
		d.bufLen = 0
		if err != nil {
			return Record{}, false, err
		}
		return rec, true, nil
	}

	if d.resync {
		return Record{}, false, nil
	}

	if d.bufLen == MaxFrameLen {
		d.bufLen = 0
		d.resync = true
		return Record{}, false, ErrBufferOverflow
	}

	d.buf[d.bufLen] = b
	d.bufLen++
	return Record{}, false, nil
}

// Buffered returns the number of bytes held for the current frame
func (d *Decoder) Buffered() int {
	return d.bufLen
}

// Resyncing reports whether the decoder is discarding bytes after an overflow
func (d *Decoder) Resyncing() bool {
	return d.resync
}

// Reset drops any partial frame and leaves resync mode
func (d *Decoder) Reset() {
	d.bufLen = 0
	d.resync = false
}

// ParseFrame converts an unterminated frame to a record.
// A valid frame is one uppercase letter followed by at least one digit.
func ParseFrame(frame []byte) (Record, error) {
	if len(frame) < 2 || len(frame) > MaxFrameLen || !IsCommandLetter(frame[0]) {
		return Record{}, ErrInvalidBuffer
	}

	var val uint32
	for _, c := range frame[1:] {
		if !IsDigit(c) {
			return Record{}, ErrInvalidBuffer
		}
		val = val*10 + uint32(c-'0')
	}

	return Record{Command: frame[0], Value: val}, nil
}

// AppendRecord appends the encoded frame for r to dst.
// Values above MaxValue encode to frames the peer rejects as overflowed.
func AppendRecord(dst []byte, r Record, eof byte) []byte {
	dst = append(dst, r.Command)
	dst = strconv.AppendUint(dst, uint64(r.Value), 10)
	return append(dst, eof)
}

// Encode returns the encoded frame for r
func Encode(r Record, eof byte) []byte {
	return AppendRecord(make([]byte, 0, MaxFrameLen+1), r, eof)
}
