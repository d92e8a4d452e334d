// Package packet encodes and decodes the MQTT control packets the broker speaks:
// CONNECT, CONNACK, PUBLISH, SUBSCRIBE, SUBACK and DISCONNECT.
package packet

// Type represents an MQTT control packet type.
type Type byte

// MQTT control packet types (MQTT 3.1.1 Section 2.2.1).
const (
	TypeConnect     Type = 1
	TypeConnack     Type = 2
	TypePublish     Type = 3
	TypePuback      Type = 4
	TypePubrec      Type = 5
	TypePubrel      Type = 6
	TypePubcomp     Type = 7
	TypeSubscribe   Type = 8
	TypeSuback      Type = 9
	TypeUnsubscribe Type = 10
	TypeUnsuback    Type = 11
	TypePingreq     Type = 12
	TypePingresp    Type = 13
	TypeDisconnect  Type = 14
)

// String returns the string representation of the packet type.
func (t Type) String() string {
	switch t {
	case TypeConnect:
		return "CONNECT"
	case TypeConnack:
		return "CONNACK"
	case TypePublish:
		return "PUBLISH"
	case TypePuback:
		return "PUBACK"
	case TypePubrec:
		return "PUBREC"
	case TypePubrel:
		return "PUBREL"
	case TypePubcomp:
		return "PUBCOMP"
	case TypeSubscribe:
		return "SUBSCRIBE"
	case TypeSuback:
		return "SUBACK"
	case TypeUnsubscribe:
		return "UNSUBSCRIBE"
	case TypeUnsuback:
		return "UNSUBACK"
	case TypePingreq:
		return "PINGREQ"
	case TypePingresp:
		return "PINGRESP"
	case TypeDisconnect:
		return "DISCONNECT"
	default:
		return "RESERVED"
	}
}

// QoS represents an MQTT quality of service level.
type QoS byte

const (
	QoS0 QoS = 0 // At most once delivery
	QoS1 QoS = 1 // At least once delivery
	QoS2 QoS = 2 // Exactly once delivery
)

// Protocol levels accepted in CONNECT.
const (
	Level31  byte = 3 // MQTT 3.1
	Level311 byte = 4 // MQTT 3.1.1
)

// PUBLISH fixed header flag bits.
const (
	PublishFlagRetain = 1 << 0
	PublishFlagQoS    = 0x06
	PublishFlagDup    = 1 << 3
)

// SubscribeFlags are the reserved fixed header flags of a SUBSCRIBE packet.
const SubscribeFlags = 0x02

// CONNACK return codes (MQTT 3.1.1 Section 3.2.2.3).
const (
	ConnAccepted                 byte = 0x00
	ConnRefusedProtocolVersion   byte = 0x01
	ConnRefusedIdentifier        byte = 0x02
	ConnRefusedServerUnavailable byte = 0x03
	ConnRefusedBadCredentials    byte = 0x04
	ConnRefusedNotAuthorized     byte = 0x05
)

// SUBACK return codes.
const (
	SubackGranted byte = 0x00
	SubackFailure byte = 0x80
)

// MaxRemainingLength is the largest value a remaining length field can carry.
const MaxRemainingLength = 268435455
