// Package metrics exposes broker activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/bromq-dev/minibroker/pkg/broker"
	"github.com/bromq-dev/minibroker/pkg/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "minibroker"

// StatsProvider supplies the point-in-time gauges.
type StatsProvider interface {
	Stats() broker.Stats
}

// Recorder counts events from the event stream and reports broker gauges.
type Recorder struct {
	registry *prometheus.Registry

	connections      prometheus.Counter
	disconnections   prometheus.Counter
	authFailures     prometheus.Counter
	refused          prometheus.Counter
	published        prometheus.Counter
	delivered        prometheus.Counter
	subscriptions    prometheus.Counter
	permissionDenied *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry. stats may be nil.
func NewRecorder(stats StatsProvider) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Accepted client connections.",
		}),
		disconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnections_total",
			Help:      "Authenticated sessions that ended.",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "CONNECT packets refused for their credentials.",
		}),
		refused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_refused_total",
			Help:      "CONNECT packets refused for other reasons.",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "PUBLISH packets accepted from clients.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "PUBLISH packets queued to subscribers.",
		}),
		subscriptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_total",
			Help:      "Topic filters granted.",
		}),
		permissionDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_denied_total",
			Help:      "Publishes and subscribes dropped for missing permission.",
		}, []string{"action"}),
	}

	r.registry.MustRegister(
		r.connections,
		r.disconnections,
		r.authFailures,
		r.refused,
		r.published,
		r.delivered,
		r.subscriptions,
		r.permissionDenied,
		collectors.NewGoCollector(),
	)

	if stats != nil {
		r.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "clients_connected",
				Help:      "Currently registered clients.",
			}, func() float64 { return float64(stats.Stats().Clients) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscriptions_active",
				Help:      "Current (filter, client) subscription pairs.",
			}, func() float64 { return float64(stats.Stats().Subscriptions) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "topic_filters",
				Help:      "Registered topic filters.",
			}, func() float64 { return float64(stats.Stats().Filters) }),
		)
	}
	return r
}

// Registry returns the registry holding the recorder's collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Emit updates counters for ev.
func (r *Recorder) Emit(ev events.Event) {
	switch ev.Kind {
	case events.ClientConnected:
		r.connections.Inc()
	case events.ClientDisconnected:
		r.disconnections.Inc()
	case events.AuthFailed:
		r.authFailures.Inc()
	case events.ConnectRefused:
		r.refused.Inc()
	case events.MessagePublished:
		r.published.Inc()
		r.delivered.Add(float64(ev.Deliveries))
	case events.TopicSubscribed:
		r.subscriptions.Inc()
	case events.PermissionDenied:
		r.permissionDenied.WithLabelValues(ev.Reason).Inc()
	}
}

// Run records events from sub until it closes or ctx is done.
func (r *Recorder) Run(ctx context.Context, sub *events.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			r.Emit(ev)
		}
	}
}

var _ events.Emitter = (*Recorder)(nil)
