package packet

// Packet is the interface implemented by all MQTT control packets.
type Packet interface {
	// Type returns the packet type.
	Type() Type

	// Encode encodes the packet into buf.
	// Returns the number of bytes written, or 0 on error.
	Encode(buf []byte) int

	// EncodedSize returns the total size of the encoded packet.
	EncodedSize() int
}

// FixedHeader is the decoded first part of every control packet.
type FixedHeader struct {
	Type            Type
	Flags           byte
	RemainingLength uint32
}

// Unknown is a packet whose type the broker does not handle.
// Its payload has been consumed from the stream.
type Unknown struct {
	Header  FixedHeader
	Payload []byte
}

// Type returns the type carried in the fixed header.
func (u *Unknown) Type() Type { return u.Header.Type }

// EncodedSize returns the size of the packet as it was read.
func (u *Unknown) EncodedSize() int {
	return FixedHeaderSize(uint32(len(u.Payload))) + len(u.Payload)
}

// Encode re-encodes the packet as it was read.
func (u *Unknown) Encode(buf []byte) int {
	if len(buf) < u.EncodedSize() {
		return 0
	}
	pos := EncodeFixedHeader(buf, u.Header.Type, u.Header.Flags, uint32(len(u.Payload)))
	if pos == 0 {
		return 0
	}
	return pos + copy(buf[pos:], u.Payload)
}
