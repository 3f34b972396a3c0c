package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics covers the per-connection writer and the group registry.
type WebSocketMetrics struct {
	ActiveConnections  prometheus.Gauge
	GroupMembers       prometheus.Gauge
	FramesSent         prometheus.Counter
	FrameSendDuration  prometheus.Histogram
	PingFailures       prometheus.Counter
	SlowClientsEvicted prometheus.Counter
}

func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	m := &WebSocketMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of joined WebSocket connections.",
		}),
		GroupMembers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "group_memberships",
			Help:      "Number of (group, connection) memberships across all groups.",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "frames_sent_total",
			Help:      "Total number of frames written to clients.",
		}),
		FrameSendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "frame_send_duration_seconds",
			Help:      "Time spent writing a single frame to a client.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		PingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "ping_failures_total",
			Help:      "Total number of keepalive pings that could not be written.",
		}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_clients_evicted_total",
			Help:      "Total number of connections closed because their send buffer was full.",
		}),
	}

	reg.MustRegister(m.ActiveConnections, m.GroupMembers, m.FramesSent, m.FrameSendDuration, m.PingFailures, m.SlowClientsEvicted)
	return m
}
