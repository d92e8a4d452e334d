package listeners

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig holds configuration for WebSocket listeners.
type WebSocketConfig struct {
	// Path is the URL path clients upgrade on (default: "/mqtt").
	Path string

	// MaxConnections caps concurrently open connections (0 = unlimited).
	MaxConnections int

	// MaxMessageSize limits a single inbound frame (0 = unlimited).
	MaxMessageSize int64

	// CheckOrigin validates the Origin header. Nil allows all origins.
	CheckOrigin func(r *http.Request) bool

	// Logger receives upgrade failures (default: slog.Default()).
	Logger *slog.Logger
}

// WebSocket carries MQTT packets in binary WebSocket frames under the
// "mqtt" subprotocol.
type WebSocket struct {
	socket
	path       string
	maxMessage int64
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	handler ConnectionHandler
	server  *http.Server
}

// NewWebSocket creates a WebSocket listener. Nothing is bound until Listen or Serve.
func NewWebSocket(id, addr string, config *WebSocketConfig) *WebSocket {
	if config == nil {
		config = &WebSocketConfig{}
	}
	path := config.Path
	if path == "" {
		path = "/mqtt"
	}
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &WebSocket{
		socket:     socket{id: id, addr: addr, maxConns: config.MaxConnections, closed: make(chan struct{})},
		path:       path,
		maxMessage: config.MaxMessageSize,
		logger:     logger,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"mqtt"},
			CheckOrigin:  checkOrigin,
		},
	}
}

// Serve runs the HTTP server until Close is called.
func (w *WebSocket) Serve(handler ConnectionHandler) error {
	if err := w.Listen(); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc(w.path, w.upgrade)

	w.mu.Lock()
	if w.isClosed() {
		w.mu.Unlock()
		return nil
	}
	w.handler = handler
	w.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv, ln := w.server, w.ln
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) || w.isClosed() {
		return nil
	}
	return err
}

func (w *WebSocket) upgrade(rw http.ResponseWriter, r *http.Request) {
	if w.isClosed() {
		http.Error(rw, "server closing", http.StatusServiceUnavailable)
		return
	}

	ws, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Debug("websocket upgrade failed", "listener", w.id, "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	if w.maxMessage > 0 {
		ws.SetReadLimit(w.maxMessage)
	}

	w.handler.HandleConnection(&frameConn{Conn: ws, remote: r.RemoteAddr})
}

// Close stops the HTTP server. Upgraded connections are hijacked and are
// closed by the broker, not here.
func (w *WebSocket) Close() error {
	return w.shut(func() error {
		switch {
		case w.server != nil:
			return w.server.Close()
		case w.ln != nil:
			return w.ln.Close()
		}
		return nil
	})
}

// frameConn presents a WebSocket as a byte stream. Binary frames are
// concatenated; other frame types are discarded.
type frameConn struct {
	*websocket.Conn
	remote string

	readMu sync.Mutex
	frame  io.Reader
}

func (c *frameConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.frame == nil {
			kind, r, err := c.Conn.NextReader()
			if err != nil {
				return 0, err
			}
			if kind != websocket.BinaryMessage {
				continue
			}
			c.frame = r
		}

		n, err := c.frame.Read(p)
		if errors.Is(err, io.EOF) {
			c.frame = nil
			err = nil
		}
		if n > 0 || err != nil {
			return n, err
		}
	}
}

// Write sends p as one binary frame. The broker has a single writer per
// connection, which gorilla requires.
func (c *frameConn) Write(p []byte) (int, error) {
	if err := c.Conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal-closure frame before closing the socket.
func (c *frameConn) Close() error {
	_ = c.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.Conn.Close()
}

func (c *frameConn) RemoteAddr() net.Addr {
	return wsAddr(c.remote)
}

func (c *frameConn) SetDeadline(t time.Time) error {
	return errors.Join(c.Conn.SetReadDeadline(t), c.Conn.SetWriteDeadline(t))
}

// wsAddr is the client's address as reported by the HTTP server.
type wsAddr string

func (a wsAddr) Network() string { return "websocket" }
func (a wsAddr) String() string  { return string(a) }

var _ Listener = (*WebSocket)(nil)
