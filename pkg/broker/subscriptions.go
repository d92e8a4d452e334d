package broker

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/bromq-dev/minibroker/pkg/topic"
)

// SubscriptionRegistry maps topic filters to the ids of subscribed clients.
// Filters stay registered after their last subscriber leaves.
type SubscriptionRegistry struct {
	mu      sync.RWMutex
	filters map[string]map[string]struct{} // filter -> client ids
}

// FilterMatch is one registered filter matching a topic, with its subscribers.
type FilterMatch struct {
	Filter    string
	ClientIDs []string
}

// NewSubscriptionRegistry creates an empty registry.
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		filters: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds clientID to filter. Returns false if it was already present.
func (r *SubscriptionRegistry) Subscribe(clientID, filter string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.filters[filter]
	if !ok {
		subs = make(map[string]struct{})
		r.filters[filter] = subs
	}
	if _, ok := subs[clientID]; ok {
		return false
	}
	subs[clientID] = struct{}{}
	return true
}

// UnsubscribeAll removes clientID from every filter and returns how many
// subscriptions were removed.
func (r *SubscriptionRegistry) UnsubscribeAll(clientID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, subs := range r.filters {
		if _, ok := subs[clientID]; ok {
			delete(subs, clientID)
			removed++
		}
	}
	return removed
}

// MatchingFilters returns every registered filter matching the topic, sorted.
func (r *SubscriptionRegistry) MatchingFilters(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for filter := range r.filters {
		if topic.Match(filter, name) {
			out = append(out, filter)
		}
	}
	slices.Sort(out)
	return out
}

// Match returns the matching filters together with a snapshot of their subscribers.
// A client subscribed through several matching filters appears once per filter.
func (r *SubscriptionRegistry) Match(name string) []FilterMatch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []FilterMatch
	for filter, subs := range r.filters {
		if len(subs) == 0 || !topic.Match(filter, name) {
			continue
		}
		out = append(out, FilterMatch{
			Filter:    filter,
			ClientIDs: slices.Sorted(maps.Keys(subs)),
		})
	}
	slices.SortFunc(out, func(a, b FilterMatch) int {
		return strings.Compare(a.Filter, b.Filter)
	})
	return out
}

// Subscribers returns the sorted client ids subscribed to filter.
func (r *SubscriptionRegistry) Subscribers(filter string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.filters[filter]))
}

// Snapshot returns every registered filter with its sorted subscribers,
// including filters that no longer have any.
func (r *SubscriptionRegistry) Snapshot() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.filters))
	for filter, subs := range r.filters {
		out[filter] = slices.Sorted(maps.Keys(subs))
	}
	return out
}

// Count returns the number of (filter, client) subscriptions.
func (r *SubscriptionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, subs := range r.filters {
		n += len(subs)
	}
	return n
}

// FilterCount returns the number of registered filters.
func (r *SubscriptionRegistry) FilterCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.filters)
}
