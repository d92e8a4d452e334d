package packet

import (
	"encoding/binary"
	"unicode/utf8"
)

// cursor walks a packet payload with explicit bounds checks.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) readByte() (byte, error) {
	if c.remaining() < 1 {
		return 0, ErrTruncated
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

func (c *cursor) readUint16() (uint16, error) {
	if c.remaining() < 2 {
		return 0, ErrTruncated
	}
	v := binary.BigEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) skip(n int) error {
	if c.remaining() < n {
		return ErrTruncated
	}
	c.pos += n
	return nil
}

// readBinary returns a length-prefixed field. The result aliases the payload.
func (c *cursor) readBinary() ([]byte, error) {
	n, err := c.readUint16()
	if err != nil {
		return nil, err
	}
	if c.remaining() < int(n) {
		return nil, ErrTruncated
	}
	b := c.buf[c.pos : c.pos+int(n)]
	c.pos += int(n)
	return b, nil
}

// readString returns a length-prefixed UTF-8 string.
func (c *cursor) readString() (string, error) {
	b, err := c.readBinary()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// rest returns a copy of every byte not yet consumed.
func (c *cursor) rest() []byte {
	out := make([]byte, c.remaining())
	copy(out, c.buf[c.pos:])
	c.pos = len(c.buf)
	return out
}
