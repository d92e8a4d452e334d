package broker

import (
	"time"

	"github.com/bromq-dev/minibroker/pkg/packet"
)

// handleConnect authenticates the client and registers the session.
func (b *Broker) handleConnect(s *Session, pkt *packet.Connect) error {
	if pkt.ProtocolLevel != packet.Level31 && pkt.ProtocolLevel != packet.Level311 {
		return b.refuseConnect(s, packet.ConnRefusedProtocolVersion)
	}

	clientID := pkt.ClientID
	if clientID == "" {
		if !pkt.CleanSession {
			return b.refuseConnect(s, packet.ConnRefusedIdentifier)
		}
		clientID = generateClientID()
	}

	s.clientID = clientID
	if pkt.UsernameFlag {
		s.username = pkt.Username
	}

	if !b.auth.Authenticate(clientID, pkt.Username, pkt.Password) {
		return b.refuseConnect(s, packet.ConnRefusedNotAuthorized)
	}

	s.connectedAt = time.Now()

	// Session takeover: the newest connection owns the id. The previous
	// session stops acting on the id before its subscriptions are cleared.
	prev, err := b.clients.Admit(s, b.config.MaxClients, func(prev *Session) {
		if !prev.transition(stateAuthenticated, stateReplaced) {
			prev.transition(stateUnauthenticated, stateReplaced)
		}
		b.subscriptions.UnsubscribeAll(clientID)
	})
	if err != nil {
		s.logger.Warn("refusing connection", "client_id", clientID, "error", err)
		return b.refuseConnect(s, packet.ConnRefusedServerUnavailable)
	}
	if prev != nil {
		prev.Close()
		s.logger.Info("session taken over", "client_id", clientID, "previous_addr", prev.RemoteAddr())
	}

	// A takeover racing this CONNECT may already have replaced s.
	if !s.transition(stateUnauthenticated, stateAuthenticated) {
		return ErrSessionReplaced
	}

	if err := s.send(packet.EncodeConnack(packet.ConnAccepted)); err != nil {
		return err
	}

	b.hooks.OnConnected(s.ctx, s)
	return nil
}

// refuseConnect queues a refusing CONNACK. The returned error closes the
// session, which flushes the CONNACK first.
func (b *Broker) refuseConnect(s *Session, code byte) error {
	b.hooks.OnConnectRejected(s.ctx, s, code)
	if err := s.send(packet.EncodeConnack(code)); err != nil {
		return err
	}
	return &ConnectError{Code: code}
}
