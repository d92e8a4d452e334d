package broker

import (
	"context"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bromq-dev/minibroker/pkg/packet"
)

type sessionState int32

const (
	stateUnauthenticated sessionState = iota
	stateAuthenticated
	stateReplaced // a newer CONNECT took over the client id
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateUnauthenticated:
		return "unauthenticated"
	case stateAuthenticated:
		return "authenticated"
	case stateReplaced:
		return "replaced"
	default:
		return "closed"
	}
}

// Session is the per-connection state machine. It owns one connection, runs
// the read-decode-dispatch loop on its own goroutine and drains an outbound
// queue on a second one.
type Session struct {
	// Connection
	conn   net.Conn
	reader *packet.Reader

	// Client info, set once during CONNECT
	clientID    string
	username    string
	connectedAt time.Time

	state        atomic.Int32
	lastActivity atomic.Int64 // unix nanoseconds

	// Outbound queue of encoded packets
	sendMu   sync.RWMutex
	outbound chan []byte
	closed   bool
	done     chan struct{}

	closeOnce sync.Once

	broker *Broker
	logger *slog.Logger

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc
}

// newSession creates a session for a freshly accepted connection.
func newSession(conn net.Conn, b *Broker) *Session {
	ctx, cancel := context.WithCancel(b.ctx)

	reader := packet.NewReader(conn, b.config.ReadBufferSize)
	reader.SetMaxPacketSize(b.config.MaxPacketSize)

	s := &Session{
		conn:     conn,
		reader:   reader,
		outbound: make(chan []byte, b.config.OutboundBuffer),
		done:     make(chan struct{}),
		broker:   b,
		logger:   b.logger.With("remote_addr", remoteAddr(conn)),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.touch()
	return s
}

func remoteAddr(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}

// ClientID returns the client identifier.
func (s *Session) ClientID() string {
	return s.clientID
}

// Username returns the username if provided during connect.
func (s *Session) Username() string {
	return s.username
}

// RemoteAddr returns the remote address of the client.
func (s *Session) RemoteAddr() string {
	return remoteAddr(s.conn)
}

// ConnectedAt returns when CONNECT was accepted.
func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// LastActivity returns when the last packet was read.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Session) getState() sessionState {
	return sessionState(s.state.Load())
}

// transition moves the session from one state to another and reports whether
// it was in from.
func (s *Session) transition(from, to sessionState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *Session) authenticated() bool {
	return s.getState() == stateAuthenticated
}

// serve runs the read-decode-dispatch loop until the connection ends.
// Teardown runs on every exit path.
func (s *Session) serve() {
	var err error
	defer func() { s.broker.teardown(s, err) }()

	for {
		var pkt packet.Packet
		pkt, err = s.reader.ReadPacket()
		if err != nil {
			return
		}

		s.touch()

		if err = s.broker.handlePacket(s, pkt); err != nil {
			return
		}
	}
}

// deliver queues an encoded packet without blocking.
// Used for fan-out from other sessions' goroutines.
func (s *Session) deliver(data []byte) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	if s.closed {
		return ErrSessionClosed
	}

	select {
	case s.outbound <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// send queues a response to this session's own packets, waiting for room
// until the session is closed.
func (s *Session) send(data []byte) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	if s.closed {
		return ErrSessionClosed
	}

	select {
	case s.outbound <- data:
		return nil
	case <-s.ctx.Done():
		return ErrSessionClosed
	}
}

// Close forcibly closes the connection. The session's own goroutine then
// runs teardown. Safe to call from any goroutine.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.conn.Close()
	})
	return err
}

// closeOutbound stops accepting packets and lets the write loop drain what is
// queued before it closes the connection.
func (s *Session) closeOutbound() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.outbound)
}

// writeLoop sends queued packets to the connection.
func (s *Session) writeLoop() {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in write loop",
				"client_id", s.clientID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			s.Close()
		}
	}()

	failed := false
	for data := range s.outbound {
		if failed {
			continue
		}
		if _, err := s.conn.Write(data); err != nil {
			s.logger.Debug("write failed", "client_id", s.clientID, "error", err)
			failed = true
			s.Close()
		}
	}
	s.Close()
}
