package packet

// Connack represents an MQTT CONNACK packet.
// MQTT 3.1.1 Section 3.2
type Connack struct {
	SessionPresent bool
	ReturnCode     byte
}

// Type returns TypeConnack.
func (c *Connack) Type() Type {
	return TypeConnack
}

// EncodedSize returns the total size of the encoded CONNACK packet, always 4.
func (c *Connack) EncodedSize() int {
	return 4
}

// Encode encodes the CONNACK packet into buf.
// Returns the number of bytes written, or 0 on error.
func (c *Connack) Encode(buf []byte) int {
	if len(buf) < 4 {
		return 0
	}
	buf[0] = byte(TypeConnack) << 4
	buf[1] = 2
	buf[2] = 0
	if c.SessionPresent {
		buf[2] = 1
	}
	buf[3] = c.ReturnCode
	return 4
}

// DecodeConnack decodes a CONNACK packet from the bytes following the fixed header.
func DecodeConnack(buf []byte) (*Connack, error) {
	if len(buf) != 2 {
		return nil, &DecodeError{Type: TypeConnack, Err: ErrMalformedPacket}
	}
	return &Connack{SessionPresent: buf[0]&0x01 != 0, ReturnCode: buf[1]}, nil
}

// EncodeConnack returns the 4-byte CONNACK carrying code.
func EncodeConnack(code byte) []byte {
	return Marshal(&Connack{ReturnCode: code})
}

// ConnackText describes a CONNACK return code.
func ConnackText(code byte) string {
	switch code {
	case ConnAccepted:
		return "accepted"
	case ConnRefusedProtocolVersion:
		return "unacceptable protocol version"
	case ConnRefusedIdentifier:
		return "identifier rejected"
	case ConnRefusedServerUnavailable:
		return "server unavailable"
	case ConnRefusedBadCredentials:
		return "bad user name or password"
	case ConnRefusedNotAuthorized:
		return "not authorized"
	}
	return "unknown return code"
}

// IsAuthFailure reports whether code refuses a connection for its credentials.
func IsAuthFailure(code byte) bool {
	return code == ConnRefusedBadCredentials || code == ConnRefusedNotAuthorized
}
