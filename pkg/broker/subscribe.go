package broker

import (
	"github.com/bromq-dev/minibroker/pkg/auth"
	"github.com/bromq-dev/minibroker/pkg/packet"
	"github.com/bromq-dev/minibroker/pkg/topic"
)

func (b *Broker) handleSubscribe(s *Session, pkt *packet.Subscribe) error {
	codes := make([]byte, len(pkt.Subscriptions))

	// Without read permission every requested filter is refused.
	if !b.auth.HasPermission(s.username, auth.Read) {
		for i, sub := range pkt.Subscriptions {
			codes[i] = packet.SubackFailure
			b.hooks.OnPermissionDenied(s.ctx, s, auth.Read, sub.TopicFilter)
		}
		return s.send(packet.EncodeSuback(pkt.PacketID, codes))
	}

	granted := make([]string, 0, len(pkt.Subscriptions))
	for i, sub := range pkt.Subscriptions {
		if err := topic.ValidateFilter(sub.TopicFilter); err != nil {
			s.logger.Warn("invalid topic filter",
				"client_id", s.clientID,
				"filter", sub.TopicFilter,
				"error", err,
			)
			codes[i] = packet.SubackFailure
			continue
		}
		codes[i] = packet.SubackGranted
		granted = append(granted, sub.TopicFilter)
	}

	// A takeover clears the id's subscriptions under the same lock, so
	// nothing registered here can outlive this session's ownership.
	owned := b.clients.WithOwner(s, func() {
		for _, f := range granted {
			b.subscriptions.Subscribe(s.clientID, f)
		}
	})
	if !owned {
		return ErrSessionReplaced
	}

	for _, f := range granted {
		b.hooks.OnSubscribed(s.ctx, s, f)
	}
	return s.send(packet.EncodeSuback(pkt.PacketID, codes))
}
