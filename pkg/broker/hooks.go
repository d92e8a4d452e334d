package broker

import (
	"context"
	"sync"

	"github.com/bromq-dev/minibroker/pkg/auth"
	"github.com/bromq-dev/minibroker/pkg/packet"
)

// Hooks holds registered hooks grouped by the interfaces they implement.
// Registration may happen while sessions are running.
type Hooks struct {
	mu sync.RWMutex

	connection []ConnectionHook
	reject     []RejectHook
	message    []MessageHook
	subscribe  []SubscribeHook
}

// NewHooks creates an empty hook set.
func NewHooks() *Hooks {
	return &Hooks{}
}

// Register adds hook to every group whose interface it implements.
func (h *Hooks) Register(hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if v, ok := hook.(ConnectionHook); ok {
		h.connection = append(h.connection, v)
	}
	if v, ok := hook.(RejectHook); ok {
		h.reject = append(h.reject, v)
	}
	if v, ok := hook.(MessageHook); ok {
		h.message = append(h.message, v)
	}
	if v, ok := hook.(SubscribeHook); ok {
		h.subscribe = append(h.subscribe, v)
	}
}

// each calls fn for every hook in the group picked by sel. The group is
// read under the lock and the calls happen outside it.
func each[T any](h *Hooks, sel func(*Hooks) []T, fn func(T)) {
	h.mu.RLock()
	group := sel(h)
	h.mu.RUnlock()

	for _, hook := range group {
		fn(hook)
	}
}

func connectionHooks(h *Hooks) []ConnectionHook { return h.connection }
func rejectHooks(h *Hooks) []RejectHook         { return h.reject }
func messageHooks(h *Hooks) []MessageHook       { return h.message }
func subscribeHooks(h *Hooks) []SubscribeHook   { return h.subscribe }

func (h *Hooks) OnConnected(ctx context.Context, client ClientInfo) {
	each(h, connectionHooks, func(hook ConnectionHook) { hook.OnConnected(ctx, client) })
}

func (h *Hooks) OnDisconnect(ctx context.Context, client ClientInfo, err error) {
	each(h, connectionHooks, func(hook ConnectionHook) { hook.OnDisconnect(ctx, client, err) })
}

func (h *Hooks) OnConnectRejected(ctx context.Context, client ClientInfo, code byte) {
	each(h, rejectHooks, func(hook RejectHook) { hook.OnConnectRejected(ctx, client, code) })
}

func (h *Hooks) OnPermissionDenied(ctx context.Context, client ClientInfo, action auth.Permission, topic string) {
	each(h, rejectHooks, func(hook RejectHook) { hook.OnPermissionDenied(ctx, client, action, topic) })
}

func (h *Hooks) OnPublished(ctx context.Context, client ClientInfo, pkt *packet.Publish, deliveries int) {
	each(h, messageHooks, func(hook MessageHook) { hook.OnPublished(ctx, client, pkt, deliveries) })
}

func (h *Hooks) OnSubscribed(ctx context.Context, client ClientInfo, filter string) {
	each(h, subscribeHooks, func(hook SubscribeHook) { hook.OnSubscribed(ctx, client, filter) })
}
