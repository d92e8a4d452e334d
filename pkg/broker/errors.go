package broker

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/bromq-dev/minibroker/pkg/packet"
)

// Sentinel errors reported on session teardown and delivery.
var (
	// ErrNotAuthorized is returned when CONNECT credentials are rejected.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrPermissionDenied marks an action dropped for lack of permission.
	// The connection stays open.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrClientDisconnected is returned when the client sends DISCONNECT.
	ErrClientDisconnected = errors.New("client disconnected")

	// ErrUnexpectedConnect is returned for a second CONNECT on one connection.
	ErrUnexpectedConnect = errors.New("unexpected CONNECT on established session")

	// ErrSessionReplaced ends a session whose client id was taken over by a
	// newer CONNECT.
	ErrSessionReplaced = errors.New("session taken over")

	// ErrClientLimit is returned when Config.MaxClients ids are registered.
	ErrClientLimit = errors.New("client limit reached")

	// ErrQueueFull is returned when a subscriber's outbound queue has no room.
	ErrQueueFull = errors.New("outbound queue full")

	// ErrSessionClosed is returned when delivering to a session that is shutting down.
	ErrSessionClosed = errors.New("session closed")

	// ErrBrokerClosed is returned once Shutdown has been called.
	ErrBrokerClosed = errors.New("broker closed")
)

// ConnectError is returned when CONNECT is refused with a non-zero return code.
// Refusals for bad credentials unwrap to ErrNotAuthorized, a full broker to
// ErrClientLimit.
type ConnectError struct {
	Code byte
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connection refused: return code %d", e.Code)
}

func (e *ConnectError) Unwrap() error {
	switch e.Code {
	case packet.ConnRefusedBadCredentials, packet.ConnRefusedNotAuthorized:
		return ErrNotAuthorized
	case packet.ConnRefusedServerUnavailable:
		return ErrClientLimit
	}
	return nil
}

// DeliveryError reports a failed send to one subscriber during fan-out.
type DeliveryError struct {
	ClientID string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.ClientID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsFatal reports whether err ends the connection it occurred on.
func IsFatal(err error) bool {
	if err == nil || errors.Is(err, ErrPermissionDenied) {
		return false
	}
	var de *DeliveryError
	return !errors.As(err, &de)
}

// isCleanClose reports whether err is an ordinary end of connection.
func isCleanClose(err error) bool {
	return err == nil ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, ErrClientDisconnected) ||
		errors.Is(err, ErrSessionReplaced)
}
