package metrics

import "github.com/prometheus/client_golang/prometheus"

// GatewayMetrics tracks handshakes and admission control.
type GatewayMetrics struct {
	Handshakes         *prometheus.CounterVec
	Rejections         *prometheus.CounterVec
	HandshakeDuration  prometheus.Histogram
	LimitedConnections *prometheus.CounterVec
	Disconnects        *prometheus.CounterVec
}

func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		Handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "handshakes_total",
			Help:      "Total number of handshakes, by result (joined or aborted).",
		}, []string{"result"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "handshake_rejections_total",
			Help:      "Total number of aborted handshakes, by reason.",
		}, []string{"reason"}),
		HandshakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "handshake_duration_seconds",
			Help:      "Duration of the handshake from upgrade to join or abort.",
			Buckets:   prometheus.DefBuckets,
		}),
		LimitedConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "limited_connections_total",
			Help:      "Total number of upgrade requests refused by admission control, by reason.",
		}, []string{"reason"}),
		Disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "disconnects_total",
			Help:      "Total number of disconnects of joined connections, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.Handshakes, m.Rejections, m.HandshakeDuration, m.LimitedConnections, m.Disconnects)
	return m
}
