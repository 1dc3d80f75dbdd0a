package cache

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts cache outcomes per kind of cached value.
type Metrics struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	errors        *prometheus.CounterVec
	invalidations prometheus.Counter
}

// NewMetrics creates the cache counters and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "advocatedir",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache lookups served from the store.",
		}, []string{"kind"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "advocatedir",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache lookups that fell through to the database.",
		}, []string{"kind"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "advocatedir",
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Store or codec failures, by operation.",
		}, []string{"op"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "advocatedir",
			Subsystem: "cache",
			Name:      "invalidated_keys_total",
			Help:      "Keys removed by prefix invalidation.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.hits, m.misses, m.errors, m.invalidations} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}
