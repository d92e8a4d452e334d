package hooks

import (
	"context"
	"strconv"

	"github.com/bromq-dev/minibroker/pkg/auth"
	"github.com/bromq-dev/minibroker/pkg/broker"
	"github.com/bromq-dev/minibroker/pkg/events"
	"github.com/bromq-dev/minibroker/pkg/packet"
)

// EventsHook turns broker callbacks into structured events.
type EventsHook struct {
	emitter events.Emitter
}

// NewEventsHook creates a hook that emits to emitter.
func NewEventsHook(emitter events.Emitter) *EventsHook {
	return &EventsHook{emitter: emitter}
}

func (h *EventsHook) ID() string { return "events" }

func clientEvent(kind events.Kind, client broker.ClientInfo) events.Event {
	return events.Event{
		Kind:       kind,
		ClientID:   client.ClientID(),
		Username:   client.Username(),
		RemoteAddr: client.RemoteAddr(),
	}
}

func (h *EventsHook) OnConnected(ctx context.Context, client broker.ClientInfo) {
	h.emitter.Emit(clientEvent(events.ClientConnected, client))
}

func (h *EventsHook) OnDisconnect(ctx context.Context, client broker.ClientInfo, err error) {
	ev := clientEvent(events.ClientDisconnected, client)
	if err != nil {
		ev.Reason = err.Error()
	}
	h.emitter.Emit(ev)
}

func (h *EventsHook) OnConnectRejected(ctx context.Context, client broker.ClientInfo, code byte) {
	kind := events.ConnectRefused
	if packet.IsAuthFailure(code) {
		kind = events.AuthFailed
	}
	ev := clientEvent(kind, client)
	ev.Reason = strconv.Itoa(int(code))
	h.emitter.Emit(ev)
}

func (h *EventsHook) OnPermissionDenied(ctx context.Context, client broker.ClientInfo, action auth.Permission, topic string) {
	ev := clientEvent(events.PermissionDenied, client)
	ev.Topic = topic
	ev.Reason = string(action)
	h.emitter.Emit(ev)
}

func (h *EventsHook) OnPublished(ctx context.Context, client broker.ClientInfo, pkt *packet.Publish, deliveries int) {
	ev := clientEvent(events.MessagePublished, client)
	ev.Topic = pkt.TopicName
	ev.Payload = string(pkt.Payload)
	ev.Deliveries = deliveries
	h.emitter.Emit(ev)
}

func (h *EventsHook) OnSubscribed(ctx context.Context, client broker.ClientInfo, filter string) {
	ev := clientEvent(events.TopicSubscribed, client)
	ev.Filter = filter
	h.emitter.Emit(ev)
}

var (
	_ broker.ConnectionHook = (*EventsHook)(nil)
	_ broker.RejectHook     = (*EventsHook)(nil)
	_ broker.MessageHook    = (*EventsHook)(nil)
	_ broker.SubscribeHook  = (*EventsHook)(nil)
)
