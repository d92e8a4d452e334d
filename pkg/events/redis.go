package events

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisChannel is the pub/sub channel events are published on.
const DefaultRedisChannel = "minibroker:events"

// Publisher is the subset of a Redis client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSink forwards bus events to a Redis pub/sub channel, msgpack encoded.
type RedisSink struct {
	client  Publisher
	channel string
	logger  *slog.Logger
}

// RedisConfig configures a RedisSink.
type RedisConfig struct {
	// Addr is the Redis server address (default: "localhost:6379").
	Addr string

	// Password for Redis authentication (optional).
	Password string

	// DB is the Redis database number.
	DB int

	// Channel is the pub/sub channel (default: DefaultRedisChannel).
	Channel string

	// Client overrides Addr/Password/DB.
	Client Publisher

	Logger *slog.Logger
}

// NewRedisSink creates a sink. It does not contact the server.
func NewRedisSink(cfg RedisConfig) *RedisSink {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultRedisChannel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}
	return &RedisSink{client: client, channel: cfg.Channel, logger: cfg.Logger}
}

// Channel returns the channel events are published on.
func (s *RedisSink) Channel() string { return s.channel }

// Run publishes every event from sub until it closes or ctx is done.
// Publish failures are logged and the event is skipped.
func (s *RedisSink) Run(ctx context.Context, sub *Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			s.forward(ctx, ev)
		}
	}
}

func (s *RedisSink) forward(ctx context.Context, ev Event) {
	data, err := Encode(ev)
	if err != nil {
		s.logger.Warn("redis sink: encode event", "kind", ev.Kind, "error", err)
		return
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		s.logger.Warn("redis sink: publish", "channel", s.channel, "error", err)
	}
}

// Close releases the underlying client if the sink created it.
func (s *RedisSink) Close() error {
	if c, ok := s.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}
