package listeners

import (
	"log/slog"
	"time"
)

const maxAcceptBackoff = time.Second

// TCPConfig holds configuration for TCP listeners.
type TCPConfig struct {
	// MaxConnections caps concurrently open connections (0 = unlimited).
	MaxConnections int

	// Logger receives accept errors (default: slog.Default()).
	Logger *slog.Logger
}

// TCP accepts plain MQTT connections.
type TCP struct {
	socket
	logger *slog.Logger
}

// NewTCP creates a TCP listener. Nothing is bound until Listen or Serve.
func NewTCP(id, addr string, config *TCPConfig) *TCP {
	if config == nil {
		config = &TCPConfig{}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TCP{
		socket: socket{id: id, addr: addr, maxConns: config.MaxConnections, closed: make(chan struct{})},
		logger: logger,
	}
}

// Serve accepts connections until Close is called. Temporary accept
// failures are retried with exponential backoff.
func (t *TCP) Serve(handler ConnectionHandler) error {
	if err := t.Listen(); err != nil {
		return err
	}

	t.mu.Lock()
	ln := t.ln
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if t.isClosed() {
				return nil
			}
			backoff = max(5*time.Millisecond, min(backoff*2, maxAcceptBackoff))
			t.logger.Warn("accept failed", "listener", t.id, "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		handler.HandleConnection(conn)
	}
}

// Close stops accepting. Connections already handed off stay open.
func (t *TCP) Close() error {
	return t.shut(func() error {
		if t.ln == nil {
			return nil
		}
		return t.ln.Close()
	})
}

var _ Listener = (*TCP)(nil)
