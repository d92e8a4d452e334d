// Package listeners accepts client connections over TCP and WebSocket and
// hands each one to the broker.
package listeners

import (
	"errors"
	"net"
	"sync"

	"golang.org/x/net/netutil"
)

// ErrListenerClosed is returned when using a listener after Close.
var ErrListenerClosed = errors.New("listener closed")

// ConnectionHandler takes ownership of accepted connections.
type ConnectionHandler interface {
	HandleConnection(conn net.Conn)
}

// Listener is a transport the broker serves connections from.
type Listener interface {
	ID() string

	// Addr returns the bound address, or nil before Listen.
	Addr() net.Addr

	// Listen binds the socket. Serve calls it when needed; calling it first
	// surfaces bind errors and the port of ":0" addresses.
	Listen() error

	// Serve passes connections to handler until Close is called.
	Serve(handler ConnectionHandler) error

	Close() error
}

// socket is the bind/close state shared by the listeners.
type socket struct {
	id       string
	addr     string
	maxConns int

	mu     sync.Mutex
	ln     net.Listener
	closed chan struct{}
	wg     sync.WaitGroup
}

func (s *socket) ID() string { return s.id }

func (s *socket) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *socket) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isClosed() {
		return ErrListenerClosed
	}
	if s.ln != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	if s.maxConns > 0 {
		// Clients beyond the cap wait in the kernel accept queue.
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	s.ln = ln
	return nil
}

func (s *socket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// shut marks the socket closed and runs stop under the lock. It reports
// ErrListenerClosed on the second call.
func (s *socket) shut(stop func() error) error {
	s.mu.Lock()
	if s.isClosed() {
		s.mu.Unlock()
		return ErrListenerClosed
	}
	close(s.closed)
	err := stop()
	s.mu.Unlock()

	s.wg.Wait()
	return err
}
