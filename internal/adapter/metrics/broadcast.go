package metrics

import "github.com/prometheus/client_golang/prometheus"

type BroadcastMetrics struct {
	Events          *prometheus.CounterVec
	PublishDuration *prometheus.HistogramVec
}

func NewBroadcastMetrics(reg prometheus.Registerer) *BroadcastMetrics {
	m := &BroadcastMetrics{
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "events_total",
			Help:      "Total number of published events, by event, audience and status.",
		}, []string{"event", "audience", "status"}),
		PublishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "publish_duration_seconds",
			Help:      "Duration of a publish from encode to transport completion.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"audience"}),
	}

	reg.MustRegister(m.Events, m.PublishDuration)
	return m
}
