package broker

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/bromq-dev/minibroker/pkg/auth"
	"github.com/bromq-dev/minibroker/pkg/listeners"
)

// DefaultMaxPacketSize is the inbound remaining-length limit used when
// Config.MaxPacketSize is zero.
const DefaultMaxPacketSize = 1 << 20

// Config holds broker configuration.
type Config struct {
	// OutboundBuffer is the number of encoded packets queued per session.
	// Deliveries to a session with a full queue fail for that session only.
	OutboundBuffer int

	// MaxPacketSize limits the remaining length of inbound packets
	// (0 = DefaultMaxPacketSize, packet.MaxRemainingLength for no limit).
	MaxPacketSize uint32

	// ReadBufferSize is the size of each session's read buffer.
	ReadBufferSize int

	// MaxClients caps the number of registered client ids (0 = unlimited).
	// A CONNECT for a new id beyond the cap is refused with return code 3.
	MaxClients int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OutboundBuffer: 256,
		MaxPacketSize:  DefaultMaxPacketSize,
		ReadBufferSize: 4096,
	}
}

// Authorizer validates credentials and per-action permissions.
// *auth.Service implements it.
type Authorizer interface {
	Authenticate(clientID, username, password string) bool
	HasPermission(username string, p auth.Permission) bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithAuthorizer sets the credential and permission checker.
// Without one every CONNECT is refused.
func WithAuthorizer(a Authorizer) Option {
	return func(b *Broker) {
		b.auth = a
	}
}

// WithLogger sets the logger used for broker diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = l
	}
}

// Broker is the core MQTT broker.
type Broker struct {
	config *Config
	auth   Authorizer
	hooks  *Hooks
	logger *slog.Logger

	clients       *ClientRegistry
	subscriptions *SubscriptionRegistry

	mu        sync.Mutex
	closing   bool
	listeners []listeners.Listener
	live      map[*Session]struct{} // every open connection, authenticated or not

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new broker with the given configuration.
func New(config *Config, opts ...Option) *Broker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.OutboundBuffer <= 0 {
		config.OutboundBuffer = DefaultConfig().OutboundBuffer
	}
	if config.MaxPacketSize == 0 {
		config.MaxPacketSize = DefaultMaxPacketSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Broker{
		config:        config,
		auth:          auth.New(nil, false),
		hooks:         NewHooks(),
		logger:        slog.Default(),
		clients:       NewClientRegistry(),
		subscriptions: NewSubscriptionRegistry(),
		live:          make(map[*Session]struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterHook registers a hook for observing broker activity.
func (b *Broker) RegisterHook(hook Hook) {
	b.hooks.Register(hook)
}

// ClientRegistry returns the client registry.
func (b *Broker) ClientRegistry() *ClientRegistry {
	return b.clients
}

// SubscriptionRegistry returns the subscription registry.
func (b *Broker) SubscriptionRegistry() *SubscriptionRegistry {
	return b.subscriptions
}

// AddListener starts serving connections from l on its own goroutine.
// The listener is closed on Shutdown.
func (b *Broker) AddListener(l listeners.Listener) error {
	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()

	go func() {
		if err := l.Serve(b); err != nil {
			b.logger.Error("listener stopped", "listener", l.ID(), "error", err)
		}
	}()
	return nil
}

// HandleConnection handles a new client connection.
// This is called by the transport layer when a new connection is accepted.
func (b *Broker) HandleConnection(conn net.Conn) {
	s := newSession(conn, b)

	b.mu.Lock()
	if b.closing {
		b.mu.Unlock()
		s.Close()
		return
	}
	b.live[s] = struct{}{}
	b.wg.Add(2)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		s.writeLoop()
	}()
	go func() {
		defer b.wg.Done()
		s.serve()
	}()
}

// Shutdown closes all listeners and sessions and waits for their goroutines.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closing = true
	ls := b.listeners
	b.listeners = nil
	open := make([]*Session, 0, len(b.live))
	for s := range b.live {
		open = append(open, s)
	}
	b.mu.Unlock()

	var errs []error
	for _, l := range ls {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	b.cancel()
	for _, s := range open {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return errors.Join(errs...)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// generateClientID generates a client id for clients that sent an empty one.
func generateClientID() string {
	return "auto-" + uuid.NewString()
}
