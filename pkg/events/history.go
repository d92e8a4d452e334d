package events

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// DefaultHistoryLimit is the number of messages kept per topic.
const DefaultHistoryLimit = 100

// History keeps the most recent published messages per topic.
type History struct {
	mu     sync.RWMutex
	limit  int
	topics map[string][]Event
}

// NewHistory creates a history keeping limit messages per topic.
func NewHistory(limit int) *History {
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit, topics: make(map[string][]Event)}
}

// Emit records message.published events and ignores the rest.
func (h *History) Emit(ev Event) {
	if ev.Kind != MessagePublished || ev.Topic == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := append(h.topics[ev.Topic], ev)
	if len(msgs) > h.limit {
		msgs = slices.Delete(msgs, 0, len(msgs)-h.limit)
	}
	h.topics[ev.Topic] = msgs
}

// Messages returns the recorded messages for topic, oldest first.
func (h *History) Messages(topic string) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.topics[topic])
}

// Topics returns every topic with recorded messages, sorted.
func (h *History) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Sorted(maps.Keys(h.topics))
}

// Run records events from sub until it closes or ctx is done.
func (h *History) Run(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			h.Emit(ev)
		}
	}
}

var _ Emitter = (*History)(nil)
