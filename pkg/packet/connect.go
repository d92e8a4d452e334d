package packet

// Connect represents an MQTT CONNECT packet.
// MQTT 3.1.1 Section 3.1
type Connect struct {
	// Protocol identification
	ProtocolName  string // "MQTT" for 3.1.1, "MQIsdp" for 3.1
	ProtocolLevel byte

	// Connect flags
	CleanSession bool
	WillFlag     bool
	UsernameFlag bool
	PasswordFlag bool

	// Keep alive (seconds); read but not enforced
	KeepAlive uint16

	// Payload fields
	ClientID    string
	WillTopic   string
	WillPayload []byte
	Username    string
	Password    string
}

// Type returns TypeConnect.
func (c *Connect) Type() Type {
	return TypeConnect
}

const (
	connectFlagCleanSession = 1 << 1
	connectFlagWill         = 1 << 2
	connectFlagPassword     = 1 << 6
	connectFlagUsername     = 1 << 7
)

func (c *Connect) flags() byte {
	var f byte
	if c.CleanSession {
		f |= connectFlagCleanSession
	}
	if c.WillFlag {
		f |= connectFlagWill
	}
	if c.UsernameFlag {
		f |= connectFlagUsername
		if c.PasswordFlag {
			f |= connectFlagPassword
		}
	}
	return f
}

func (c *Connect) remainingLength() int {
	n := 2 + len(c.ProtocolName) + 1 + 1 + 2 + 2 + len(c.ClientID)
	if c.WillFlag {
		n += 2 + len(c.WillTopic) + 2 + len(c.WillPayload)
	}
	if c.UsernameFlag {
		n += 2 + len(c.Username)
		if c.PasswordFlag {
			n += 2 + len(c.Password)
		}
	}
	return n
}

// EncodedSize returns the total size of the encoded CONNECT packet.
func (c *Connect) EncodedSize() int {
	rl := c.remainingLength()
	return FixedHeaderSize(uint32(rl)) + rl
}

// Encode encodes the CONNECT packet into buf.
// Returns the number of bytes written, or 0 on error.
func (c *Connect) Encode(buf []byte) int {
	if len(buf) < c.EncodedSize() || len(c.WillPayload) > 65535 {
		return 0
	}

	pos := EncodeFixedHeader(buf, TypeConnect, 0, uint32(c.remainingLength()))
	if pos == 0 {
		return 0
	}

	pos += EncodeString(buf[pos:], c.ProtocolName)
	buf[pos] = c.ProtocolLevel
	buf[pos+1] = c.flags()
	pos += 2
	pos += EncodeUint16(buf[pos:], c.KeepAlive)

	pos += EncodeString(buf[pos:], c.ClientID)
	if c.WillFlag {
		pos += EncodeString(buf[pos:], c.WillTopic)
		pos += EncodeString(buf[pos:], string(c.WillPayload))
	}
	if c.UsernameFlag {
		pos += EncodeString(buf[pos:], c.Username)
		if c.PasswordFlag {
			pos += EncodeString(buf[pos:], c.Password)
		}
	}
	return pos
}

// DecodeConnect decodes a CONNECT packet from the bytes following the fixed header.
// The password is only read when both the username and password flags are set.
func DecodeConnect(buf []byte) (*Connect, error) {
	c, err := decodeConnect(newCursor(buf))
	if err != nil {
		return nil, &DecodeError{Type: TypeConnect, Err: err}
	}
	return c, nil
}

func decodeConnect(cur *cursor) (*Connect, error) {
	c := &Connect{}

	name, err := cur.readBinary()
	if err != nil {
		return nil, err
	}
	c.ProtocolName = string(name)

	if c.ProtocolLevel, err = cur.readByte(); err != nil {
		return nil, err
	}

	flags, err := cur.readByte()
	if err != nil {
		return nil, err
	}
	c.CleanSession = flags&connectFlagCleanSession != 0
	c.WillFlag = flags&connectFlagWill != 0
	c.UsernameFlag = flags&connectFlagUsername != 0
	c.PasswordFlag = c.UsernameFlag && flags&connectFlagPassword != 0

	if c.KeepAlive, err = cur.readUint16(); err != nil {
		return nil, err
	}

	if c.ClientID, err = cur.readString(); err != nil {
		return nil, err
	}

	// Will messages are not delivered, but the fields precede the credentials.
	if c.WillFlag {
		if c.WillTopic, err = cur.readString(); err != nil {
			return nil, err
		}
		payload, err := cur.readBinary()
		if err != nil {
			return nil, err
		}
		c.WillPayload = append([]byte(nil), payload...)
	}

	if c.UsernameFlag {
		if c.Username, err = cur.readString(); err != nil {
			return nil, err
		}
		if c.PasswordFlag {
			if c.Password, err = cur.readString(); err != nil {
				return nil, err
			}
		}
	}

	return c, nil
}
