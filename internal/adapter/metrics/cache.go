package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CacheMetrics tracks the membership cache in front of the project membership table.
type CacheMetrics struct {
	Hits          prometheus.Counter
	Misses        prometheus.Counter
	Coalesced     prometheus.Counter
	Invalidations prometheus.Counter
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	counter := func(name, help string) prometheus.Counter {
		return promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership_cache",
			Name:      name,
			Help:      help,
		})
	}
	return &CacheMetrics{
		Hits:          counter("hits_total", "Membership lookups answered from cache."),
		Misses:        counter("misses_total", "Membership lookups that queried the database."),
		Coalesced:     counter("coalesced_total", "Membership lookups that joined a query already in flight."),
		Invalidations: counter("invalidations_total", "Cache entries dropped after a membership write."),
	}
}
