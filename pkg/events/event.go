// Package events publishes a structured stream of broker activity for external
// observers: an in-memory bus, a WebSocket stream, a Redis sink and a gRPC
// observer service.
package events

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind identifies what happened.
type Kind string

const (
	ClientConnected    Kind = "client.connected"
	ClientDisconnected Kind = "client.disconnected"
	AuthFailed         Kind = "auth.failed"
	ConnectRefused     Kind = "client.refused"
	MessagePublished   Kind = "message.published"
	TopicSubscribed    Kind = "topic.subscribed"
	PermissionDenied   Kind = "permission.denied"
)

// Event is one observable broker action.
type Event struct {
	Kind       Kind      `json:"kind" msgpack:"kind"`
	Time       time.Time `json:"time" msgpack:"time"`
	ClientID   string    `json:"client_id,omitempty" msgpack:"client_id,omitempty"`
	Username   string    `json:"username,omitempty" msgpack:"username,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty" msgpack:"remote_addr,omitempty"`
	Topic      string    `json:"topic,omitempty" msgpack:"topic,omitempty"`
	Filter     string    `json:"filter,omitempty" msgpack:"filter,omitempty"`
	Payload    string    `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Deliveries int       `json:"deliveries,omitempty" msgpack:"deliveries,omitempty"`

	// Reason is the CONNACK code, the denied permission or the disconnect error.
	Reason string `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

// Emitter accepts events. Implementations must not block.
type Emitter interface {
	Emit(Event)
}

// Encode serializes an event with msgpack.
func Encode(ev Event) ([]byte, error) {
	return msgpack.Marshal(&ev)
}

// Decode parses an event produced by Encode.
func Decode(data []byte) (Event, error) {
	var ev Event
	err := msgpack.Unmarshal(data, &ev)
	return ev, err
}

// Matches reports whether the event kind is in kinds. An empty set matches all.
func (ev Event) Matches(kinds []Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == ev.Kind {
			return true
		}
	}
	return false
}
