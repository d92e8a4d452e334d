package packet

import (
	"errors"
	"fmt"
)

// Sentinel errors for packet parsing and encoding.
var (
	// ErrMalformedRemainingLength indicates the remaining length uses more than four bytes.
	ErrMalformedRemainingLength = errors.New("malformed remaining length")

	// ErrPacketTooLarge indicates the remaining length exceeds the reader's limit.
	ErrPacketTooLarge = errors.New("packet too large")

	// ErrTruncated indicates a field runs past the end of the packet payload.
	ErrTruncated = errors.New("truncated payload")

	// ErrInvalidUTF8 indicates a string field is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("invalid UTF-8 string")

	// ErrMalformedPacket indicates the payload structure is invalid.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrStringTooLong indicates a string cannot be length-prefixed in two bytes.
	ErrStringTooLong = errors.New("string exceeds 65535 bytes")
)

// ProtocolError reports a broken fixed header: a malformed remaining length,
// an oversized packet or a stream that ends mid-packet. It is fatal to the connection.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DecodeError reports a malformed CONNECT, PUBLISH or SUBSCRIBE payload.
// It is fatal to the connection and no response is sent.
type DecodeError struct {
	Type Type
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
