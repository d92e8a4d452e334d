// Package config loads broker settings and the user store from JSON or YAML
// files, with environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MINIBROKER_"

var (
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
	ErrInvalidConfig     = errors.New("config: invalid value")
)

// Config is the full broker configuration.
type Config struct {
	Broker  BrokerConfig  `json:"broker" yaml:"broker" envPrefix:"BROKER_"`
	Logging LoggingConfig `json:"logging" yaml:"logging" envPrefix:"LOG_"`
	MQTT    MQTTConfig    `json:"mqtt" yaml:"mqtt" envPrefix:"MQTT_"`
	Admin   AdminConfig   `json:"admin" yaml:"admin" envPrefix:"ADMIN_"`
	Events  EventsConfig  `json:"events" yaml:"events" envPrefix:"EVENTS_"`
	Status  StatusConfig  `json:"status" yaml:"status" envPrefix:"STATUS_"`
}

// BrokerConfig holds the listener settings.
type BrokerConfig struct {
	Host string `json:"host" yaml:"host" env:"HOST"`
	Port int    `json:"port" yaml:"port" env:"PORT"`

	// MaxConnections is the pending-connection backlog of the config file
	// format. Go listeners take their backlog from the kernel, so it does not
	// limit concurrent clients; see MQTTConfig.MaxClients for that.
	MaxConnections int `json:"max_connections" yaml:"max_connections" env:"MAX_CONNECTIONS"`

	// WebSocketAddr enables MQTT over WebSocket when set.
	WebSocketAddr string `json:"websocket_addr" yaml:"websocket_addr" env:"WEBSOCKET_ADDR"`
}

// Addr returns host:port.
func (c BrokerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LoggingConfig selects the log level and output format ("text" or "json").
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"LEVEL"`
	Format string `json:"format" yaml:"format" env:"FORMAT"`
}

// MQTTConfig holds protocol behaviour settings.
type MQTTConfig struct {
	AllowAnonymous bool `json:"allow_anonymous" yaml:"allow_anonymous" env:"ALLOW_ANONYMOUS"`
	OutboundBuffer int  `json:"outbound_buffer" yaml:"outbound_buffer" env:"OUTBOUND_BUFFER"`
	MaxPacketSize  int  `json:"max_packet_size" yaml:"max_packet_size" env:"MAX_PACKET_SIZE"`

	// MaxClients caps connected client ids; 0 means unlimited. Further
	// CONNECTs are refused with return code 3.
	MaxClients int `json:"max_clients" yaml:"max_clients" env:"MAX_CLIENTS"`
}

// AdminConfig configures the HTTP admin API. Empty Addr disables it.
type AdminConfig struct {
	Addr string `json:"addr" yaml:"addr" env:"ADDR"`
}

// EventsConfig configures the optional event sinks. Empty addresses disable them.
type EventsConfig struct {
	RedisAddr    string `json:"redis_addr" yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisChannel string `json:"redis_channel" yaml:"redis_channel" env:"REDIS_CHANNEL"`
	GRPCAddr     string `json:"grpc_addr" yaml:"grpc_addr" env:"GRPC_ADDR"`
	BufferSize   int    `json:"buffer_size" yaml:"buffer_size" env:"BUFFER_SIZE"`
}

// StatusConfig configures the periodic status report. Zero disables it.
type StatusConfig struct {
	Interval Duration `json:"interval" yaml:"interval" env:"INTERVAL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:           "0.0.0.0",
			Port:           1883,
			MaxConnections: 5,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		MQTT: MQTTConfig{
			OutboundBuffer: 256,
			MaxPacketSize:  1 << 20,
		},
		Admin: AdminConfig{
			Addr: ":8080",
		},
		Events: EventsConfig{
			RedisChannel: "minibroker:events",
			BufferSize:   256,
		},
		Status: StatusConfig{
			Interval: Duration(30 * time.Second),
		},
	}
}

// Load reads path over the defaults. Sections and keys missing from the file
// keep their default values. The format is chosen by extension.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv loads an optional .env file and applies MINIBROKER_* overrides.
func ApplyEnv(cfg *Config, dotenv ...string) error {
	// A missing .env file is not an error.
	_ = godotenv.Load(dotenv...)
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: broker.port %d", ErrInvalidConfig, c.Broker.Port))
	}
	if c.Broker.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("%w: broker.max_connections %d", ErrInvalidConfig, c.Broker.MaxConnections))
	}
	if c.MQTT.OutboundBuffer < 1 {
		errs = append(errs, fmt.Errorf("%w: mqtt.outbound_buffer %d", ErrInvalidConfig, c.MQTT.OutboundBuffer))
	}
	if c.MQTT.MaxPacketSize < 0 {
		errs = append(errs, fmt.Errorf("%w: mqtt.max_packet_size %d", ErrInvalidConfig, c.MQTT.MaxPacketSize))
	}
	if c.MQTT.MaxClients < 0 {
		errs = append(errs, fmt.Errorf("%w: mqtt.max_clients %d", ErrInvalidConfig, c.MQTT.MaxClients))
	}
	if c.Events.BufferSize < 1 {
		errs = append(errs, fmt.Errorf("%w: events.buffer_size %d", ErrInvalidConfig, c.Events.BufferSize))
	}
	if c.Status.Interval < 0 {
		errs = append(errs, fmt.Errorf("%w: status.interval %s", ErrInvalidConfig, c.Status.Interval))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: logging.format %q", ErrInvalidConfig, c.Logging.Format))
	}
	return errors.Join(errs...)
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, v)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
