package broker

import (
	"maps"
	"slices"
	"strings"
	"sync"
)

// ClientRegistry maps client ids to their live, authenticated sessions.
type ClientRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{sessions: make(map[string]*Session)}
}

// Register stores s under its client id and returns the session it replaced, if any.
func (r *ClientRegistry) Register(s *Session) *Session {
	prev, _ := r.Admit(s, 0, nil)
	return prev
}

// Admit registers s under its client id. An id already held is taken over:
// evict runs with the previous session while the registry is still locked,
// and that session is returned. With limit > 0 a new id is refused with
// ErrClientLimit once limit ids are registered.
func (r *ClientRegistry) Admit(s *Session, limit int, evict func(prev *Session)) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, held := r.sessions[s.clientID]
	if !held && limit > 0 && len(r.sessions) >= limit {
		return nil, ErrClientLimit
	}
	r.sessions[s.clientID] = s
	if prev == nil || prev == s {
		return nil, nil
	}
	if evict != nil {
		evict(prev)
	}
	return prev, nil
}

// Remove deletes the entry for clientID only if it still points at s.
// Returns false when s has already been replaced or removed.
func (r *ClientRegistry) Remove(clientID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[clientID]; ok && cur == s {
		delete(r.sessions, clientID)
		return true
	}
	return false
}

// Release removes s if it still owns its client id and runs fn before the
// registry is unlocked, so an Admit for the same id cannot interleave with fn.
func (r *ClientRegistry) Release(s *Session, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.clientID] != s {
		return false
	}
	delete(r.sessions, s.clientID)
	if fn != nil {
		fn()
	}
	return true
}

// WithOwner runs fn while s is the registered owner of its client id and
// reports whether it did. Admit and Release wait for fn to return.
func (r *ClientRegistry) WithOwner(s *Session, fn func()) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.sessions[s.clientID] != s {
		return false
	}
	fn()
	return true
}

// Get returns the session registered for clientID, or nil.
func (r *ClientRegistry) Get(clientID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sessions[clientID]
}

// Len returns the number of registered sessions.
func (r *ClientRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// Sessions returns the registered sessions ordered by client id.
func (r *ClientRegistry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := slices.Collect(maps.Values(r.sessions))
	slices.SortFunc(out, func(a, b *Session) int {
		return strings.Compare(a.clientID, b.clientID)
	})
	return out
}
