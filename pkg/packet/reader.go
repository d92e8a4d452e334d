package packet

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// initialBodySize caps the buffer reserved for a payload before its bytes
// arrive. Larger bodies grow as they are read.
const initialBodySize = 64 << 10

// Reader reads MQTT packets from an io.Reader.
type Reader struct {
	r       *bufio.Reader
	maxSize uint32
}

// NewReader creates a new packet reader.
func NewReader(r io.Reader, bufSize int) *Reader {
	if bufSize < 1024 {
		bufSize = 1024
	}
	return &Reader{
		r:       bufio.NewReaderSize(r, bufSize),
		maxSize: MaxRemainingLength,
	}
}

// SetMaxPacketSize limits the remaining length the reader accepts.
func (r *Reader) SetMaxPacketSize(n uint32) {
	if n == 0 || n > MaxRemainingLength {
		n = MaxRemainingLength
	}
	r.maxSize = n
}

// ReadHeader reads the fixed header: one type/flags byte and the remaining length.
// An EOF before the first byte is returned as io.EOF. Any failure after it is a
// *ProtocolError.
func ReadHeader(r io.ByteReader) (FixedHeader, error) {
	b, err := r.ReadByte()
	if err != nil {
		return FixedHeader{}, err
	}

	rl, err := ReadVarInt(r)
	if err != nil {
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return FixedHeader{}, &ProtocolError{Op: "read remaining length", Err: io.ErrUnexpectedEOF}
		case errors.Is(err, ErrMalformedRemainingLength):
			return FixedHeader{}, &ProtocolError{Op: "read remaining length", Err: err}
		}
		return FixedHeader{}, err
	}

	return FixedHeader{
		Type:            Type(b >> 4),
		Flags:           b & 0x0F,
		RemainingLength: rl,
	}, nil
}

// ReadPacket reads the next packet from the reader.
// Packets of types the broker does not handle are returned as *Unknown
// after their payload has been consumed.
func (r *Reader) ReadPacket() (Packet, error) {
	h, err := ReadHeader(r.r)
	if err != nil {
		return nil, err
	}

	if h.RemainingLength > r.maxSize {
		return nil, &ProtocolError{Op: "read " + h.Type.String(), Err: ErrPacketTooLarge}
	}

	n := int64(h.RemainingLength)
	body := bytes.NewBuffer(make([]byte, 0, min(n, initialBodySize)))
	if _, err := io.CopyN(body, r.r, n); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &ProtocolError{Op: "read " + h.Type.String(), Err: io.ErrUnexpectedEOF}
		}
		return nil, err
	}

	return Decode(h, body.Bytes())
}

// Decode decodes a packet given its fixed header and payload.
func Decode(h FixedHeader, payload []byte) (Packet, error) {
	switch h.Type {
	case TypeConnect:
		return DecodeConnect(payload)
	case TypeConnack:
		return DecodeConnack(payload)
	case TypePublish:
		return DecodePublish(h.Flags, payload)
	case TypeSubscribe:
		return DecodeSubscribe(payload)
	case TypeSuback:
		return DecodeSuback(payload)
	case TypeDisconnect:
		return &Disconnect{}, nil
	default:
		return &Unknown{Header: h, Payload: payload}, nil
	}
}
