package broker

import "time"

// Stats holds broker statistics.
type Stats struct {
	Clients       int `json:"clients"`
	Subscriptions int `json:"subscriptions"`
	Filters       int `json:"filters"`
}

// ClientSnapshot describes one connected client.
type ClientSnapshot struct {
	ClientID     string    `json:"client_id"`
	Username     string    `json:"username,omitempty"`
	RemoteAddr   string    `json:"remote_addr"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Stats returns broker statistics.
func (b *Broker) Stats() Stats {
	return Stats{
		Clients:       b.clients.Len(),
		Subscriptions: b.subscriptions.Count(),
		Filters:       b.subscriptions.FilterCount(),
	}
}

// Clients returns a snapshot of the connected clients ordered by id.
func (b *Broker) Clients() []ClientSnapshot {
	sessions := b.clients.Sessions()
	out := make([]ClientSnapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, ClientSnapshot{
			ClientID:     s.ClientID(),
			Username:     s.Username(),
			RemoteAddr:   s.RemoteAddr(),
			ConnectedAt:  s.ConnectedAt(),
			LastActivity: s.LastActivity(),
		})
	}
	return out
}

// Subscriptions returns every registered filter with its subscribers.
func (b *Broker) Subscriptions() map[string][]string {
	return b.subscriptions.Snapshot()
}
