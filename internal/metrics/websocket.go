package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics holds Prometheus metrics for live connections and fan-out.
type WebSocketMetrics struct {
	ActiveConnections    prometheus.Gauge
	ChannelSubscriptions prometheus.Gauge
	MessagesSent         prometheus.Counter
	SendFailures         prometheus.Counter
	Evictions            prometheus.Counter
	AuthFailures         prometheus.Counter
}

// NewWebSocketMetrics creates and registers WebSocket metrics on the given registry.
func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of authenticated WebSocket connections.",
		}),
		ChannelSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "channel_subscriptions",
			Help:      "Number of connection-to-channel subscriptions.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Total number of broadcast events handed to connections.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "send_failures_total",
			Help:      "Total number of broadcast events skipped for a recipient.",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "evictions_total",
			Help:      "Total number of connections evicted by the liveness monitor.",
		}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "auth_failures_total",
			Help:      "Total number of refused connection attempts.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.ChannelSubscriptions,
		m.MessagesSent,
		m.SendFailures,
		m.Evictions,
		m.AuthFailures,
	)
	return m
}
