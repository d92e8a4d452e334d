package packet

import (
	"encoding/binary"
	"errors"
	"io"
)

// EncodeVarInt encodes a remaining length into buf and returns the number of bytes written.
// Returns 0 if the value is too large or the buffer is too small.
// MQTT 3.1.1 Section 2.2.3
func EncodeVarInt(buf []byte, value uint32) int {
	if value > MaxRemainingLength {
		return 0
	}

	i := 0
	for {
		if i >= len(buf) {
			return 0
		}
		b := byte(value & 0x7F)
		value >>= 7
		if value > 0 {
			b |= 0x80
		}
		buf[i] = b
		i++
		if value == 0 {
			return i
		}
	}
}

// DecodeVarInt decodes a remaining length from buf.
// Returns the value, number of bytes consumed, and success flag.
// Returns (0, 0, false) when the field is incomplete or longer than four bytes.
func DecodeVarInt(buf []byte) (value uint32, n int, ok bool) {
	var shift uint
	for i := 0; i < len(buf) && i < 4; i++ {
		value |= uint32(buf[i]&0x7F) << shift
		if buf[i]&0x80 == 0 {
			return value, i + 1, true
		}
		shift += 7
	}
	return 0, 0, false
}

// ReadVarInt reads a remaining length from a byte stream.
// An EOF before the first byte is returned unchanged; an EOF after it
// becomes io.ErrUnexpectedEOF.
func ReadVarInt(r io.ByteReader) (uint32, error) {
	var (
		value uint32
		shift uint
	)
	for i := 0; i < 4; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if i > 0 && errors.Is(err, io.EOF) {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		value |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return value, nil
		}
		shift += 7
	}
	return 0, ErrMalformedRemainingLength
}

// VarIntSize returns the number of bytes needed to encode a remaining length.
func VarIntSize(value uint32) int {
	switch {
	case value < 128:
		return 1
	case value < 16384:
		return 2
	case value < 2097152:
		return 3
	default:
		return 4
	}
}

// EncodeUint16 encodes a 16-bit unsigned integer in big-endian order.
// Returns 2 on success, 0 if buffer is too small.
func EncodeUint16(buf []byte, value uint16) int {
	if len(buf) < 2 {
		return 0
	}
	binary.BigEndian.PutUint16(buf, value)
	return 2
}

// EncodeString encodes a string with a 2-byte length prefix.
// Returns the number of bytes written, or 0 on error.
func EncodeString(buf []byte, s string) int {
	if len(s) > 65535 || len(buf) < 2+len(s) {
		return 0
	}
	binary.BigEndian.PutUint16(buf, uint16(len(s)))
	copy(buf[2:], s)
	return 2 + len(s)
}

// FixedHeaderSize calculates the size of the fixed header for a given remaining length.
func FixedHeaderSize(remainingLength uint32) int {
	return 1 + VarIntSize(remainingLength)
}

// EncodeFixedHeader encodes the fixed header into buf.
// Returns the number of bytes written, or 0 on error.
func EncodeFixedHeader(buf []byte, packetType Type, flags byte, remainingLength uint32) int {
	if len(buf) < 1 {
		return 0
	}
	buf[0] = byte(packetType)<<4 | (flags & 0x0F)
	n := EncodeVarInt(buf[1:], remainingLength)
	if n == 0 {
		return 0
	}
	return 1 + n
}

// Marshal encodes p into a freshly allocated slice.
// Returns nil if the packet cannot be encoded.
func Marshal(p Packet) []byte {
	buf := make([]byte, p.EncodedSize())
	n := p.Encode(buf)
	if n == 0 {
		return nil
	}
	return buf[:n]
}
