// Package admin serves a read-only HTTP API over broker state for dashboards.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bromq-dev/minibroker/pkg/broker"
	"github.com/bromq-dev/minibroker/pkg/events"
)

// BrokerState is the broker view the API reads.
type BrokerState interface {
	Stats() broker.Stats
	Clients() []broker.ClientSnapshot
	Subscriptions() map[string][]string
}

// MessageLog is the recent-message view the API reads.
type MessageLog interface {
	Messages(topic string) []events.Event
	Topics() []string
}

// Options selects what the router mounts. Broker is required; nil handlers
// leave their routes unmounted.
type Options struct {
	Broker  BrokerState
	History MessageLog
	Events  http.Handler
	Metrics http.Handler
	Logger  *slog.Logger
}

// FilterInfo lists the subscribers of one topic filter.
type FilterInfo struct {
	Filter      string   `json:"filter"`
	Subscribers []string `json:"subscribers"`
}

// TopicsResponse is the body of GET /api/topics.
type TopicsResponse struct {
	Filters []FilterInfo `json:"filters"`
	Topics  []string     `json:"topics"`
}

// MessagesResponse is the body of GET /api/messages.
type MessagesResponse struct {
	Topic    string         `json:"topic"`
	Messages []events.Event `json:"messages"`
}

type api struct {
	broker  BrokerState
	history MessageLog
	logger  *slog.Logger
}

// NewRouter builds the admin router.
func NewRouter(opts Options) chi.Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	a := &api{broker: opts.Broker, history: opts.History, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(opts.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/stats", a.stats)
		api.Get("/clients", a.clients)
		api.Get("/topics", a.topics)
		if opts.History != nil {
			api.Get("/messages", a.messages)
		}
		if opts.Events != nil {
			api.Handle("/events", opts.Events)
		}
	})

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	return r
}

func (a *api) stats(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.broker.Stats())
}

func (a *api) clients(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.broker.Clients())
}

func (a *api) topics(w http.ResponseWriter, r *http.Request) {
	subs := a.broker.Subscriptions()
	resp := TopicsResponse{
		Filters: make([]FilterInfo, 0, len(subs)),
		Topics:  []string{},
	}
	for filter, ids := range subs {
		resp.Filters = append(resp.Filters, FilterInfo{Filter: filter, Subscribers: ids})
	}
	slices.SortFunc(resp.Filters, func(x, y FilterInfo) int {
		return strings.Compare(x.Filter, y.Filter)
	})
	if a.history != nil {
		resp.Topics = append(resp.Topics, a.history.Topics()...)
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *api) messages(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		a.writeError(w, http.StatusBadRequest, "missing topic parameter")
		return
	}
	msgs := a.history.Messages(topic)
	if msgs == nil {
		msgs = []events.Event{}
	}
	a.writeJSON(w, http.StatusOK, MessagesResponse{Topic: topic, Messages: msgs})
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("admin: encode response", "error", err)
	}
}

func (a *api) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("admin request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}

// NewServer wraps handler in an http.Server with conservative timeouts.
// WriteTimeout is left unset so the event stream can stay open.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
