// Package broker provides the core MQTT broker: session handling, the client and
// subscription registries, and message fan-out.
package broker

import (
	"context"
	"time"

	"github.com/bromq-dev/minibroker/pkg/auth"
	"github.com/bromq-dev/minibroker/pkg/packet"
)

// Hook provides extension points for observing broker activity.
// Hook methods are called synchronously on the session's goroutine.
// For long-running operations, implementations should spawn goroutines internally.
type Hook interface {
	// ID returns a unique identifier for this hook.
	ID() string
}

// ConnectionHook handles connection lifecycle events.
type ConnectionHook interface {
	Hook

	// OnConnected is called after CONNACK(0) has been queued.
	OnConnected(ctx context.Context, client ClientInfo)

	// OnDisconnect is called when an authenticated session ends.
	// err is nil for DISCONNECT, EOF and broker-initiated closes.
	OnDisconnect(ctx context.Context, client ClientInfo, err error)
}

// RejectHook is told about refused connections and denied actions.
type RejectHook interface {
	Hook

	// OnConnectRejected is called before a refusing CONNACK is sent.
	OnConnectRejected(ctx context.Context, client ClientInfo, code byte)

	// OnPermissionDenied is called when a publish or subscribe is dropped.
	OnPermissionDenied(ctx context.Context, client ClientInfo, action auth.Permission, topic string)
}

// MessageHook observes accepted publishes.
type MessageHook interface {
	Hook

	// OnPublished is called after fan-out with the number of subscribers reached.
	OnPublished(ctx context.Context, client ClientInfo, pkt *packet.Publish, deliveries int)
}

// SubscribeHook observes granted subscriptions.
type SubscribeHook interface {
	Hook

	// OnSubscribed is called once per granted filter.
	OnSubscribed(ctx context.Context, client ClientInfo, filter string)
}

// ClientInfo provides read-only information about a connected client.
type ClientInfo interface {
	// ClientID returns the client identifier.
	ClientID() string

	// Username returns the username if provided during connect.
	Username() string

	// RemoteAddr returns the remote address of the client.
	RemoteAddr() string

	// ConnectedAt returns when CONNECT was accepted.
	ConnectedAt() time.Time

	// LastActivity returns when the last packet was read.
	LastActivity() time.Time
}
