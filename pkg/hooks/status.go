package hooks

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/bromq-dev/minibroker/pkg/broker"
)

// StatusSource is what the status reporter reads on every tick.
type StatusSource interface {
	Stats() broker.Stats
	Clients() []broker.ClientSnapshot
	Subscriptions() map[string][]string
}

// StatusReporter periodically logs a snapshot of connected clients and
// subscriptions.
type StatusReporter struct {
	source   StatusSource
	logger   *slog.Logger
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// StatusConfig configures the status reporter.
type StatusConfig struct {
	// Interval is how often to log status (default: 30s).
	Interval time.Duration

	// Logger is the slog.Logger to use (default: slog.Default()).
	Logger *slog.Logger
}

// NewStatusReporter creates a reporter over source.
func NewStatusReporter(source StatusSource, cfg StatusConfig) *StatusReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &StatusReporter{
		source:   source,
		logger:   cfg.Logger,
		interval: cfg.Interval,
	}
}

// Start begins logging status. Calling Start twice has no effect.
func (r *StatusReporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.loop(ctx, r.done)
}

// Stop stops the reporter and waits for the loop to exit.
func (r *StatusReporter) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (r *StatusReporter) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report logs one status snapshot.
func (r *StatusReporter) Report() {
	stats := r.source.Stats()
	r.logger.Info("broker status",
		"clients", stats.Clients,
		"subscriptions", stats.Subscriptions,
		"filters", stats.Filters,
	)

	for _, c := range r.source.Clients() {
		r.logger.Info("client status",
			"client_id", c.ClientID,
			"username", c.Username,
			"remote_addr", c.RemoteAddr,
			"last_activity", c.LastActivity.Format(time.RFC3339),
		)
	}

	subs := r.source.Subscriptions()
	for _, filter := range slices.Sorted(maps.Keys(subs)) {
		r.logger.Info("topic status",
			"filter", filter,
			"subscribers", len(subs[filter]),
		)
	}
}
