package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"google.golang.org/grpc"

	"github.com/bromq-dev/minibroker/pkg/admin"
	"github.com/bromq-dev/minibroker/pkg/auth"
	"github.com/bromq-dev/minibroker/pkg/broker"
	"github.com/bromq-dev/minibroker/pkg/config"
	"github.com/bromq-dev/minibroker/pkg/events"
	"github.com/bromq-dev/minibroker/pkg/hooks"
	"github.com/bromq-dev/minibroker/pkg/listeners"
	"github.com/bromq-dev/minibroker/pkg/metrics"
)

var (
	configFile = flag.String("config", "config.json", "Broker config file (.json, .yaml)")
	usersFile  = flag.String("users", "users.json", "User store file (.json, .yaml)")
	envFile    = flag.String("env", ".env", "Optional .env file with MINIBROKER_* overrides")
	addr       = flag.String("addr", "", "MQTT listen address (overrides broker.host/port)")
	wsAddr     = flag.String("ws-addr", "", "WebSocket listen address (overrides broker.websocket_addr)")
	adminAddr  = flag.String("admin-addr", "", "Admin HTTP address (overrides admin.addr)")
	anonymous  = flag.Bool("anonymous", false, "Allow anonymous access")
)

func main() {
	flag.Parse()

	cfg, users, warnings := loadSettings()

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	for _, w := range warnings {
		logger.Warn(w.msg, "error", w.err)
	}

	b := newBroker(cfg, users, logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	bus := events.NewBus(cfg.Events.BufferSize)
	history := events.NewHistory(events.DefaultHistoryLimit)
	recorder := metrics.NewRecorder(b)

	b.RegisterHook(hooks.NewLoggerHook(hooks.LoggerConfig{Logger: logger}))
	b.RegisterHook(hooks.NewEventsHook(bus))

	go history.Run(ctx, bus.Subscribe(ctx, events.MessagePublished))
	go recorder.Run(ctx, bus.Subscribe(ctx))

	if cfg.Events.RedisAddr != "" {
		sink := events.NewRedisSink(events.RedisConfig{
			Addr:    cfg.Events.RedisAddr,
			Channel: cfg.Events.RedisChannel,
			Logger:  logger,
		})
		defer sink.Close()
		go func() {
			if err := sink.Run(ctx, bus.Subscribe(ctx)); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("redis sink stopped", "error", err)
			}
		}()
		logger.Info("publishing events to redis", "addr", cfg.Events.RedisAddr, "channel", sink.Channel())
	}

	var grpcServer *grpc.Server
	if cfg.Events.GRPCAddr != "" {
		ln, err := net.Listen("tcp", cfg.Events.GRPCAddr)
		if err != nil {
			logger.Error("event observer: listen", "addr", cfg.Events.GRPCAddr, "error", err)
			os.Exit(1)
		}
		grpcServer = grpc.NewServer()
		events.RegisterObserverServer(grpcServer, events.NewBusObserver(bus))
		go func() {
			if err := grpcServer.Serve(ln); err != nil {
				logger.Error("event observer stopped", "error", err)
			}
		}()
		logger.Info("event observer listening", "addr", ln.Addr().String())
	}

	tcp := newTCPListener(cfg, logger)
	if err := tcp.Listen(); err != nil {
		logger.Error("failed to listen", "addr", cfg.Broker.Addr(), "error", err)
		os.Exit(1)
	}
	if err := b.AddListener(tcp); err != nil {
		logger.Error("failed to add listener", "error", err)
		os.Exit(1)
	}
	logger.Info("MQTT broker listening",
		"addr", tcp.Addr().String(),
		"max_clients", cfg.MQTT.MaxClients,
		"allow_anonymous", cfg.MQTT.AllowAnonymous,
		"users", len(users),
	)
	logInterfaces(logger, cfg.Broker.Port)

	if cfg.Broker.WebSocketAddr != "" {
		ws := listeners.NewWebSocket("ws", cfg.Broker.WebSocketAddr, nil)
		if err := ws.Listen(); err != nil {
			logger.Error("failed to listen", "addr", cfg.Broker.WebSocketAddr, "error", err)
			os.Exit(1)
		}
		if err := b.AddListener(ws); err != nil {
			logger.Error("failed to add WebSocket listener", "error", err)
			os.Exit(1)
		}
		logger.Info("WebSocket listening", "addr", cfg.Broker.WebSocketAddr, "path", "/mqtt")
	}

	var adminServer *http.Server
	if cfg.Admin.Addr != "" {
		router := admin.NewRouter(admin.Options{
			Broker:  b,
			History: history,
			Events:  events.NewStreamHandler(bus, logger),
			Metrics: recorder.Handler(),
			Logger:  logger,
		})
		adminServer = admin.NewServer(cfg.Admin.Addr, router)
		go func() {
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server stopped", "error", err)
			}
		}()
		logger.Info("admin API listening", "addr", cfg.Admin.Addr)
	}

	var reporter *hooks.StatusReporter
	if interval := cfg.Status.Interval.Std(); interval > 0 {
		reporter = hooks.NewStatusReporter(b, hooks.StatusConfig{Interval: interval, Logger: logger})
		reporter.Start()
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if reporter != nil {
		reporter.Stop()
	}
	if err := b.Shutdown(shutdownCtx); err != nil {
		logger.Warn("broker shutdown", "error", err)
	}
	if adminServer != nil {
		_ = adminServer.Shutdown(shutdownCtx)
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}
	stop()
	bus.Close()

	logger.Info("broker stopped")
}

func newBroker(cfg *config.Config, users []auth.User, logger *slog.Logger) *broker.Broker {
	return broker.New(&broker.Config{
		OutboundBuffer: cfg.MQTT.OutboundBuffer,
		MaxPacketSize:  uint32(cfg.MQTT.MaxPacketSize),
		ReadBufferSize: 4096,
		MaxClients:     cfg.MQTT.MaxClients,
	}, broker.WithAuthorizer(auth.New(users, cfg.MQTT.AllowAnonymous)), broker.WithLogger(logger))
}

// newTCPListener builds the MQTT listener. broker.max_connections is a
// backlog size and does not cap concurrent clients.
func newTCPListener(cfg *config.Config, logger *slog.Logger) *listeners.TCP {
	return listeners.NewTCP("tcp", cfg.Broker.Addr(), &listeners.TCPConfig{Logger: logger})
}

type warning struct {
	msg string
	err error
}

// loadSettings reads config and users, falling back to defaults on failure.
func loadSettings() (*config.Config, []auth.User, []warning) {
	var warnings []warning

	cfg, err := config.Load(*configFile)
	if err != nil {
		warnings = append(warnings, warning{"cannot load config, using defaults", err})
		cfg = config.Default()
	}
	if err := config.ApplyEnv(cfg, *envFile); err != nil {
		warnings = append(warnings, warning{"ignoring environment overrides", err})
	}

	if *addr != "" {
		host, port, err := net.SplitHostPort(*addr)
		if err == nil {
			cfg.Broker.Host = host
			if p, err := net.LookupPort("tcp", port); err == nil {
				cfg.Broker.Port = p
			}
		} else {
			warnings = append(warnings, warning{"ignoring -addr", err})
		}
	}
	if *wsAddr != "" {
		cfg.Broker.WebSocketAddr = *wsAddr
	}
	if *adminAddr != "" {
		cfg.Admin.Addr = *adminAddr
	}
	if *anonymous {
		cfg.MQTT.AllowAnonymous = true
	}

	if err := cfg.Validate(); err != nil {
		warnings = append(warnings, warning{"invalid config, using defaults", err})
		cfg = config.Default()
	}

	users, err := config.LoadUsers(*usersFile)
	if err != nil {
		warnings = append(warnings, warning{"cannot load users, using defaults", err})
		users = config.DefaultUsers()
	}
	return cfg, users, warnings
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	}))
}

// logInterfaces lists the host's non-loopback IPv4 addresses.
func logInterfaces(logger *slog.Logger, port int) {
	ifaces, err := net.Interfaces()
	if err != nil {
		logger.Warn("cannot list network interfaces", "error", err)
		return
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			logger.Info("reachable at",
				"interface", iface.Name,
				"addr", net.JoinHostPort(ipnet.IP.String(), strconv.Itoa(port)),
			)
		}
	}
}
