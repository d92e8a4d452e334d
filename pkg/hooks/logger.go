// Package hooks provides hook implementations for the broker: human-readable
// activity logs, the structured event bridge and the periodic status reporter.
package hooks

import (
	"context"
	"log/slog"

	"github.com/bromq-dev/minibroker/pkg/auth"
	"github.com/bromq-dev/minibroker/pkg/broker"
	"github.com/bromq-dev/minibroker/pkg/packet"
)

// LogLevel is a bit mask selecting which broker activity is logged.
type LogLevel int

const (
	LogLevelConnection LogLevel = 1 << iota // connect, disconnect, refused connect
	LogLevelSubscribe                       // granted filters
	LogLevelPublish                         // received publishes and their fan-out
	LogLevelDenied                          // dropped publishes and subscriptions

	LogLevelAll = LogLevelConnection | LogLevelSubscribe | LogLevelPublish | LogLevelDenied
)

// LoggerConfig configures NewLoggerHook. Zero fields fall back to
// slog.Default() and LogLevelAll.
type LoggerConfig struct {
	Logger *slog.Logger
	Level  LogLevel
}

// LoggerHook writes one line per broker activity selected by its mask.
type LoggerHook struct {
	logger *slog.Logger
	mask   LogLevel
}

// NewLoggerHook creates a LoggerHook from cfg.
func NewLoggerHook(cfg LoggerConfig) *LoggerHook {
	h := &LoggerHook{logger: cfg.Logger, mask: cfg.Level}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.mask == 0 {
		h.mask = LogLevelAll
	}
	return h
}

// ID returns "logger".
func (h *LoggerHook) ID() string { return "logger" }

func (h *LoggerHook) log(ctx context.Context, bit LogLevel, lvl slog.Level, msg string, attrs ...slog.Attr) {
	if h.mask&bit == 0 {
		return
	}
	h.logger.LogAttrs(ctx, lvl, msg, attrs...)
}

func clientID(c broker.ClientInfo) slog.Attr { return slog.String("client_id", c.ClientID()) }

func (h *LoggerHook) OnConnected(ctx context.Context, c broker.ClientInfo) {
	h.log(ctx, LogLevelConnection, slog.LevelInfo, "client connected",
		clientID(c), slog.String("username", c.Username()), slog.String("remote_addr", c.RemoteAddr()))
}

func (h *LoggerHook) OnDisconnect(ctx context.Context, c broker.ClientInfo, err error) {
	attrs := []slog.Attr{clientID(c)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	h.log(ctx, LogLevelConnection, slog.LevelInfo, "client disconnected", attrs...)
}

func (h *LoggerHook) OnConnectRejected(ctx context.Context, c broker.ClientInfo, code byte) {
	msg := "connection refused"
	if packet.IsAuthFailure(code) {
		msg = "authentication failed"
	}
	h.log(ctx, LogLevelConnection, slog.LevelWarn, msg,
		clientID(c), slog.String("username", c.Username()), slog.String("remote_addr", c.RemoteAddr()),
		slog.Int("code", int(code)), slog.String("reason", packet.ConnackText(code)))
}

func (h *LoggerHook) OnPermissionDenied(ctx context.Context, c broker.ClientInfo, action auth.Permission, topic string) {
	h.log(ctx, LogLevelDenied, slog.LevelWarn, "permission denied",
		clientID(c), slog.String("username", c.Username()),
		slog.String("action", string(action)), slog.String("topic", topic))
}

func (h *LoggerHook) OnPublished(ctx context.Context, c broker.ClientInfo, pkt *packet.Publish, deliveries int) {
	h.log(ctx, LogLevelPublish, slog.LevelInfo, "message received",
		clientID(c), slog.String("topic", pkt.TopicName), slog.String("message", string(pkt.Payload)))
	h.log(ctx, LogLevelPublish, slog.LevelInfo, "message broadcast",
		slog.String("topic", pkt.TopicName), slog.Int("delivered", deliveries))
}

func (h *LoggerHook) OnSubscribed(ctx context.Context, c broker.ClientInfo, filter string) {
	h.log(ctx, LogLevelSubscribe, slog.LevelInfo, "client subscribed", clientID(c), slog.String("filter", filter))
}

var (
	_ broker.ConnectionHook = (*LoggerHook)(nil)
	_ broker.RejectHook     = (*LoggerHook)(nil)
	_ broker.MessageHook    = (*LoggerHook)(nil)
	_ broker.SubscribeHook  = (*LoggerHook)(nil)
)
