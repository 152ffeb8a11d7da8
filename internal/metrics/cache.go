package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics holds Prometheus metrics for the TTL cache.
type CacheMetrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions *prometheus.CounterVec
	Size      prometheus.Gauge
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses, expired reads included.",
		}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of evicted entries, by reason.",
		}, []string{"reason"}),
		Size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of entries held, expired-but-unswept included.",
		}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Evictions, m.Size)
	return m
}

func (m *CacheMetrics) Hit() {
	if m == nil {
		return
	}
	m.Hits.Inc()
}

func (m *CacheMetrics) Miss() {
	if m == nil {
		return
	}
	m.Misses.Inc()
}

func (m *CacheMetrics) Evicted(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Evictions.WithLabelValues(reason).Add(float64(n))
}

func (m *CacheMetrics) SetSize(n int) {
	if m == nil {
		return
	}
	m.Size.Set(float64(n))
}
