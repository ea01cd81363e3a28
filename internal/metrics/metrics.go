package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the realtime layer.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	UsersOnline       prometheus.Gauge
	MessagesSent      prometheus.Counter
	EventsDropped     prometheus.Counter
	NotificationsSent prometheus.Counter
}

// New creates a metrics set registered against its own registry, so
// tests can build isolated instances without double-registration panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_connections_active",
			Help: "Number of live WebSocket connections",
		}),
		UsersOnline: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pulse_users_online",
			Help: "Number of distinct users with at least one live connection",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "pulse_messages_sent_total",
			Help: "Total messages accepted and fanned out",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "pulse_events_dropped_total",
			Help: "Outbound events dropped because a connection was too slow",
		}),
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "pulse_notifications_sent_total",
			Help: "Out-of-band notifications delivered to live connections",
		}),
	}
}

// Registry exposes the underlying registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
