package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/crowdzone/internal/geofence"
)

// knownMessageTypes bounds the label values of the message counter.
var knownMessageTypes = map[string]struct{}{
	geofence.TypeLogin:          {},
	geofence.TypeLocationUpdate: {},
	geofence.TypePing:           {},
	geofence.TypeCreateZone:     {},
	geofence.TypeUpdateZone:     {},
	geofence.TypeDeleteZone:     {},
}

// Metrics exposes hub activity in Prometheus format. Each Server owns its
// own registry so several servers can coexist in one process (tests).
type Metrics struct {
	registry *prometheus.Registry

	sessions         prometheus.Gauge
	zones            prometheus.Gauge
	crowdedZones     prometheus.Gauge
	connections      prometheus.Counter
	messages         *prometheus.CounterVec
	malformed        prometheus.Counter
	rateLimited      prometheus.Counter
	broadcastRounds  prometheus.Counter
	deliveryFailures prometheus.Counter
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crowdzone_sessions",
			Help: "Currently connected sessions, logged in or not",
		}),
		zones: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crowdzone_zones",
			Help: "Configured zones",
		}),
		crowdedZones: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crowdzone_crowded_zones",
			Help: "Zones whose occupancy exceeds their threshold",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crowdzone_connections_total",
			Help: "Total WebSocket connections accepted",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crowdzone_messages_total",
			Help: "Inbound messages by type and outcome",
		}, []string{"type", "outcome"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crowdzone_malformed_messages_total",
			Help: "Inbound messages that could not be parsed",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crowdzone_rate_limited_messages_total",
			Help: "Inbound messages discarded by the per-connection rate limit",
		}),
		broadcastRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crowdzone_broadcast_rounds_total",
			Help: "State broadcast rounds",
		}),
		deliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crowdzone_delivery_failures_total",
			Help: "State updates that could not be queued for a recipient",
		}),
	}
	m.registry.MustRegister(
		m.sessions, m.zones, m.crowdedZones, m.connections, m.messages,
		m.malformed, m.rateLimited, m.broadcastRounds, m.deliveryFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MessageHandled implements geofence.Recorder.
func (m *Metrics) MessageHandled(msgType string, outcome geofence.Outcome) {
	if _, ok := knownMessageTypes[msgType]; !ok {
		msgType = "unknown"
	}
	label := "applied"
	if !outcome.Applied {
		label = string(outcome.Reason)
	}
	m.messages.WithLabelValues(msgType, label).Inc()
}

// BroadcastRound implements geofence.Recorder.
func (m *Metrics) BroadcastRound(_, failed int) {
	m.broadcastRounds.Inc()
	m.deliveryFailures.Add(float64(failed))
}

// StateChanged implements geofence.Recorder.
func (m *Metrics) StateChanged(sessions, zones, crowded int) {
	m.sessions.Set(float64(sessions))
	m.zones.Set(float64(zones))
	m.crowdedZones.Set(float64(crowded))
}
