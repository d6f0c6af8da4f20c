package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/lanchat/internal/presence"
)

// Metrics are the hub's Prometheus collectors, kept on a private registry so
// several hubs can coexist in one process.
type Metrics struct {
	registry    *prometheus.Registry
	broadcasts  *prometheus.CounterVec
	inbound     *prometheus.CounterVec
	dropped     prometheus.Counter
	rateLimited prometheus.Counter
}

// NewMetrics registers the collectors, plus gauges read from h, on a fresh
// registry.
func NewMetrics(h *Hub) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lanchat_broadcasts_total",
			Help: "Events broadcast to a room, by event name.",
		}, []string{"event"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lanchat_inbound_events_total",
			Help: "Client events processed by the hub, by event name.",
		}, []string{"event"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanchat_clients_cut_off_total",
			Help: "Clients disconnected because their send buffer was full.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lanchat_rate_limited_total",
			Help: "Client events dropped by the per-connection rate limit.",
		}),
	}

	m.registry.MustRegister(
		m.broadcasts,
		m.inbound,
		m.dropped,
		m.rateLimited,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lanchat_connections",
			Help: "Open WebSocket connections, joined or not.",
		}, func() float64 { return float64(h.ClientCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "lanchat_room_members",
			Help: "Joined connections in the main room.",
		}, func() float64 { return float64(h.registry.Snapshot(presence.MainRoom).Count) }),
	)
	return m
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
