package packet

// Publish represents an MQTT PUBLISH packet.
// MQTT 3.1.1 Section 3.3
type Publish struct {
	// Fixed header flags
	Dup    bool
	QoS    QoS
	Retain bool

	// Variable header
	TopicName string
	PacketID  uint16 // Present on the wire only when QoS > 0

	// Payload runs to the end of the packet and is not length-prefixed.
	Payload []byte
}

// Type returns TypePublish.
func (p *Publish) Type() Type {
	return TypePublish
}

func (p *Publish) flags() byte {
	var flags byte
	if p.Retain {
		flags |= PublishFlagRetain
	}
	flags |= byte(p.QoS&0x03) << 1
	if p.Dup {
		flags |= PublishFlagDup
	}
	return flags
}

func (p *Publish) remainingLength() int {
	n := 2 + len(p.TopicName) + len(p.Payload)
	if p.QoS > QoS0 {
		n += 2
	}
	return n
}

// EncodedSize returns the total size of the encoded PUBLISH packet.
func (p *Publish) EncodedSize() int {
	rl := p.remainingLength()
	return FixedHeaderSize(uint32(rl)) + rl
}

// Encode encodes the PUBLISH packet into buf.
// Returns the number of bytes written, or 0 on error.
func (p *Publish) Encode(buf []byte) int {
	if len(buf) < p.EncodedSize() {
		return 0
	}

	pos := EncodeFixedHeader(buf, TypePublish, p.flags(), uint32(p.remainingLength()))
	if pos == 0 {
		return 0
	}

	n := EncodeString(buf[pos:], p.TopicName)
	if n == 0 {
		return 0
	}
	pos += n

	if p.QoS > QoS0 {
		pos += EncodeUint16(buf[pos:], p.PacketID)
	}

	pos += copy(buf[pos:], p.Payload)
	return pos
}

// DecodePublish decodes a PUBLISH packet.
// flags are the fixed header flags (lower 4 bits of first byte).
// buf should contain the packet data starting after the fixed header.
func DecodePublish(flags byte, buf []byte) (*Publish, error) {
	p := &Publish{
		Retain: flags&PublishFlagRetain != 0,
		QoS:    QoS((flags & PublishFlagQoS) >> 1),
		Dup:    flags&PublishFlagDup != 0,
	}

	cur := newCursor(buf)

	topic, err := cur.readString()
	if err != nil {
		return nil, &DecodeError{Type: TypePublish, Err: err}
	}
	p.TopicName = topic

	// The identifier is read but never acknowledged.
	if p.QoS > QoS0 {
		if p.PacketID, err = cur.readUint16(); err != nil {
			return nil, &DecodeError{Type: TypePublish, Err: err}
		}
	}

	p.Payload = cur.rest()
	return p, nil
}

// EncodePublish returns a QoS 0 PUBLISH for topic carrying payload.
func EncodePublish(topic string, payload []byte) []byte {
	return Marshal(&Publish{TopicName: topic, Payload: payload})
}
