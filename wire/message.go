package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
)

// Token syntax.
//
// An integer field is rendered as "i<decimal>s" (optional leading minus).
// A boolean is an integer restricted to 0 or 1. A string field is rendered
// as "<decimal byte length>:<raw bytes>"; the length prefix means the raw
// bytes may contain any value, including token delimiters.
const (
	intPrefix    = 'i'
	intSuffix    = 's'
	stringSep    = ':'
	frameLenSize = 2

	// MaxFrameSize is the largest payload a single frame can carry,
	// bounded by the 2-byte big-endian length prefix.
	MaxFrameSize = 0xFFFF
)

// Message is an ordered sequence of typed fields with a read cursor.
//
// The zero value is an empty message ready for appending. Appending and
// consuming may be mixed, but fields are always consumed in append order.
// Message is not safe for concurrent use.
type Message struct {
	buf []byte
	pos int
}

// New returns an empty message ready for appending fields.
func New() *Message {
	return &Message{}
}

// Parse wraps a received payload in a message whose cursor sits at the
// first field. The payload is not copied; the caller must not mutate it
// while the message is in use.
func Parse(payload []byte) *Message {
	return &Message{buf: payload}
}

// AddInt appends a signed integer field.
func (m *Message) AddInt(v int) *Message {
	m.buf = append(m.buf, intPrefix)
	m.buf = strconv.AppendInt(m.buf, int64(v), 10)
	m.buf = append(m.buf, intSuffix)
	return m
}

// AddBool appends a boolean field, encoded as the integer 0 or 1.
func (m *Message) AddBool(v bool) *Message {
	if v {
		return m.AddInt(1)
	}
	return m.AddInt(0)
}

// AddString appends a string field. Any byte sequence round-trips,
// delimiters included, because the field carries its own length prefix.
func (m *Message) AddString(s string) *Message {
	m.buf = strconv.AppendInt(m.buf, int64(len(s)), 10)
	m.buf = append(m.buf, stringSep)
	m.buf = append(m.buf, s...)
	return m
}

// Bytes returns the encoded payload. The slice aliases the message buffer.
func (m *Message) Bytes() []byte {
	return m.buf
}

// Empty reports whether the cursor has consumed every field.
func (m *Message) Empty() bool {
	return m.pos >= len(m.buf)
}

// NextIsInt reports whether the next unconsumed field is an integer.
// It never advances the cursor.
func (m *Message) NextIsInt() bool {
	return m.pos < len(m.buf) && m.buf[m.pos] == intPrefix
}

// NextIsString reports whether the next unconsumed field is a string.
// It never advances the cursor.
func (m *Message) NextIsString() bool {
	return m.pos < len(m.buf) && m.buf[m.pos] >= '0' && m.buf[m.pos] <= '9'
}

// TakeInt consumes the next field as an integer.
//
// Returns ErrMalformedMessage if the next field is not an integer, the
// token is not numeric, or the message is exhausted.
func (m *Message) TakeInt() (int, error) {
	if !m.NextIsInt() {
		return 0, fmt.Errorf("%w: expected integer at offset %d", ErrMalformedMessage, m.pos)
	}

	end := m.pos + 1
	for end < len(m.buf) && m.buf[end] != intSuffix {
		end++
	}
	if end >= len(m.buf) {
		return 0, fmt.Errorf("%w: unterminated integer at offset %d", ErrMalformedMessage, m.pos)
	}

	v, err := strconv.Atoi(string(m.buf[m.pos+1 : end]))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid integer token at offset %d", ErrMalformedMessage, m.pos)
	}

	m.pos = end + 1
	return v, nil
}

// TakeBool consumes the next field as a boolean. Only the integer values
// 0 and 1 are accepted.
func (m *Message) TakeBool() (bool, error) {
	start := m.pos
	v, err := m.TakeInt()
	if err != nil {
		return false, err
	}
	if v != 0 && v != 1 {
		m.pos = start
		return false, fmt.Errorf("%w: boolean out of range at offset %d", ErrMalformedMessage, start)
	}
	return v == 1, nil
}

// TakeString consumes the next field as a string.
func (m *Message) TakeString() (string, error) {
	if !m.NextIsString() {
		return "", fmt.Errorf("%w: expected string at offset %d", ErrMalformedMessage, m.pos)
	}

	sep := m.pos
	for sep < len(m.buf) && m.buf[sep] != stringSep {
		if m.buf[sep] < '0' || m.buf[sep] > '9' {
			return "", fmt.Errorf("%w: invalid string length at offset %d", ErrMalformedMessage, m.pos)
		}
		sep++
	}
	if sep >= len(m.buf) {
		return "", fmt.Errorf("%w: unterminated string length at offset %d", ErrMalformedMessage, m.pos)
	}

	n, err := strconv.Atoi(string(m.buf[m.pos:sep]))
	if err != nil {
		return "", fmt.Errorf("%w: invalid string length at offset %d", ErrMalformedMessage, m.pos)
	}

	start := sep + 1
	if start+n > len(m.buf) {
		return "", fmt.Errorf("%w: truncated string at offset %d", ErrMalformedMessage, m.pos)
	}

	m.pos = start + n
	return string(m.buf[start : start+n]), nil
}

// Frame wraps a payload in the socket frame format: a 2-byte big-endian
// payload length followed by the payload itself.
//
// Returns ErrOversizedFrame if the payload exceeds MaxFrameSize.
func Frame(payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrOversizedFrame, len(payload))
	}

	buf := make([]byte, frameLenSize+len(payload))
	binary.BigEndian.PutUint16(buf[:frameLenSize], uint16(len(payload)))
	copy(buf[frameLenSize:], payload)
	return buf, nil
}

// ReadFrame reads one complete frame from r and returns its payload.
//
// A short read of the length prefix or the body surfaces the underlying
// I/O error (io.EOF, io.ErrUnexpectedEOF, or a net timeout) unwrapped, so
// callers can classify disconnects.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [frameLenSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}

	size := binary.BigEndian.Uint16(lenBuf[:])
	if size == 0 {
		return nil, nil
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return payload, nil
}

// WriteFrame frames payload and writes it to w in a single call.
func WriteFrame(w io.Writer, payload []byte) error {
	frame, err := Frame(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
