package packet

// Subscription is one requested topic filter of a SUBSCRIBE packet.
type Subscription struct {
	TopicFilter string
	QoS         QoS
}

// Subscribe represents an MQTT SUBSCRIBE packet.
// MQTT 3.1.1 Section 3.8
type Subscribe struct {
	PacketID      uint16
	Subscriptions []Subscription
}

// Type returns TypeSubscribe.
func (s *Subscribe) Type() Type {
	return TypeSubscribe
}

func (s *Subscribe) remainingLength() int {
	n := 2
	for _, sub := range s.Subscriptions {
		n += 2 + len(sub.TopicFilter) + 1
	}
	return n
}

// EncodedSize returns the total size of the encoded SUBSCRIBE packet.
func (s *Subscribe) EncodedSize() int {
	rl := s.remainingLength()
	return FixedHeaderSize(uint32(rl)) + rl
}

// Encode encodes the SUBSCRIBE packet into buf.
func (s *Subscribe) Encode(buf []byte) int {
	if len(buf) < s.EncodedSize() {
		return 0
	}

	pos := EncodeFixedHeader(buf, TypeSubscribe, SubscribeFlags, uint32(s.remainingLength()))
	if pos == 0 {
		return 0
	}
	pos += EncodeUint16(buf[pos:], s.PacketID)

	for _, sub := range s.Subscriptions {
		n := EncodeString(buf[pos:], sub.TopicFilter)
		if n == 0 {
			return 0
		}
		pos += n
		buf[pos] = byte(sub.QoS)
		pos++
	}
	return pos
}

// DecodeSubscribe decodes a SUBSCRIBE packet from the bytes following the fixed header.
// Filters are read until the payload is exhausted.
func DecodeSubscribe(buf []byte) (*Subscribe, error) {
	cur := newCursor(buf)
	s := &Subscribe{}

	var err error
	if s.PacketID, err = cur.readUint16(); err != nil {
		return nil, &DecodeError{Type: TypeSubscribe, Err: err}
	}

	for cur.remaining() > 0 {
		filter, err := cur.readString()
		if err != nil {
			return nil, &DecodeError{Type: TypeSubscribe, Err: err}
		}
		qos, err := cur.readByte()
		if err != nil {
			return nil, &DecodeError{Type: TypeSubscribe, Err: err}
		}
		s.Subscriptions = append(s.Subscriptions, Subscription{TopicFilter: filter, QoS: QoS(qos)})
	}

	return s, nil
}

// Suback represents an MQTT SUBACK packet.
// MQTT 3.1.1 Section 3.9
type Suback struct {
	PacketID    uint16
	ReturnCodes []byte
}

// Type returns TypeSuback.
func (s *Suback) Type() Type {
	return TypeSuback
}

// EncodedSize returns the total size of the encoded SUBACK packet.
func (s *Suback) EncodedSize() int {
	rl := 2 + len(s.ReturnCodes)
	return FixedHeaderSize(uint32(rl)) + rl
}

// Encode encodes the SUBACK packet into buf.
func (s *Suback) Encode(buf []byte) int {
	if len(buf) < s.EncodedSize() {
		return 0
	}
	pos := EncodeFixedHeader(buf, TypeSuback, 0, uint32(2+len(s.ReturnCodes)))
	if pos == 0 {
		return 0
	}
	pos += EncodeUint16(buf[pos:], s.PacketID)
	pos += copy(buf[pos:], s.ReturnCodes)
	return pos
}

// DecodeSuback decodes a SUBACK packet from the bytes following the fixed header.
func DecodeSuback(buf []byte) (*Suback, error) {
	cur := newCursor(buf)
	id, err := cur.readUint16()
	if err != nil {
		return nil, &DecodeError{Type: TypeSuback, Err: err}
	}
	return &Suback{PacketID: id, ReturnCodes: cur.rest()}, nil
}

// EncodeSuback returns a SUBACK for packetID with one return code per filter.
func EncodeSuback(packetID uint16, codes []byte) []byte {
	return Marshal(&Suback{PacketID: packetID, ReturnCodes: codes})
}
