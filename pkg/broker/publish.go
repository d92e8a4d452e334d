package broker

import (
	"github.com/bromq-dev/minibroker/pkg/auth"
	"github.com/bromq-dev/minibroker/pkg/packet"
	"github.com/bromq-dev/minibroker/pkg/topic"
)

func (b *Broker) handlePublish(s *Session, pkt *packet.Publish) error {
	if !b.auth.HasPermission(s.username, auth.Write) {
		b.hooks.OnPermissionDenied(s.ctx, s, auth.Write, pkt.TopicName)
		return nil
	}

	if err := topic.ValidateName(pkt.TopicName); err != nil {
		s.logger.Warn("dropping publish to invalid topic",
			"client_id", s.clientID,
			"topic", pkt.TopicName,
			"error", err,
		)
		return nil
	}

	if b.clients.Get(s.clientID) != s {
		return ErrSessionReplaced
	}

	n := b.Publish(s.clientID, pkt.TopicName, pkt.Payload)
	b.hooks.OnPublished(s.ctx, s, pkt, n)
	return nil
}

// Publish delivers payload as a QoS 0 PUBLISH to every session subscribed to a
// filter matching topicName, except senderID and subscribers without read
// permission. A session subscribed through several matching filters receives
// one copy per filter. A failed delivery is logged and skipped.
// Returns the number of copies queued.
func (b *Broker) Publish(senderID, topicName string, payload []byte) int {
	data := packet.EncodePublish(topicName, payload)
	if data == nil {
		b.logger.Warn("cannot encode publish", "topic", topicName, "size", len(payload))
		return 0
	}

	delivered := 0
	for _, m := range b.subscriptions.Match(topicName) {
		for _, id := range m.ClientIDs {
			if id == senderID {
				continue
			}
			sub := b.clients.Get(id)
			if sub == nil {
				continue
			}
			if !b.auth.HasPermission(sub.username, auth.Read) {
				continue
			}
			if err := sub.deliver(data); err != nil {
				b.logger.Warn("delivery failed",
					"topic", topicName,
					"filter", m.Filter,
					"error", &DeliveryError{ClientID: id, Err: err},
				)
				continue
			}
			delivered++
		}
	}
	return delivered
}
