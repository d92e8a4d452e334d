package broker

import (
	"github.com/bromq-dev/minibroker/pkg/packet"
)

// handlePacket dispatches a decoded packet according to the session state.
// A non-nil error ends the session.
func (b *Broker) handlePacket(s *Session, pkt packet.Packet) error {
	if s.getState() == stateReplaced {
		return ErrSessionReplaced
	}

	switch p := pkt.(type) {
	case *packet.Connect:
		if s.authenticated() {
			return ErrUnexpectedConnect
		}
		return b.handleConnect(s, p)

	case *packet.Publish:
		if !s.authenticated() {
			s.logger.Warn("ignoring packet before CONNECT", "type", "PUBLISH", "topic", p.TopicName)
			return nil
		}
		return b.handlePublish(s, p)

	case *packet.Subscribe:
		if !s.authenticated() {
			s.logger.Warn("ignoring packet before CONNECT", "type", "SUBSCRIBE")
			return nil
		}
		return b.handleSubscribe(s, p)

	case *packet.Disconnect:
		return ErrClientDisconnected

	default:
		s.logger.Debug("ignoring unsupported packet",
			"client_id", s.clientID,
			"type", pkt.Type().String(),
		)
		return nil
	}
}

// teardown removes the session from both registries, notifies hooks and
// closes the connection once queued packets are flushed.
func (b *Broker) teardown(s *Session, err error) {
	st := sessionState(s.state.Swap(int32(stateClosed)))
	wasAuthenticated := st == stateAuthenticated || st == stateReplaced

	// A replaced session no longer owns the registry entry or the id's
	// subscriptions; Release leaves both to its successor.
	if st == stateAuthenticated {
		b.clients.Release(s, func() {
			b.subscriptions.UnsubscribeAll(s.clientID)
		})
	}

	if isCleanClose(err) {
		err = nil
	} else {
		s.logger.Debug("closing connection", "client_id", s.clientID, "error", err)
	}

	if wasAuthenticated {
		b.hooks.OnDisconnect(s.ctx, s, err)
	}

	s.closeOutbound()

	b.mu.Lock()
	delete(b.live, s)
	b.mu.Unlock()
}
