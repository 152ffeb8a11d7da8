package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics covers the background sync scheduler.
type SyncMetrics struct {
	Runs        *prometheus.CounterVec
	Duration    prometheus.Histogram
	LastSuccess prometheus.Gauge
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync attempts, by result (success, failure, skipped).",
		}, []string{"result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of sync runs in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful sync.",
		}),
	}

	reg.MustRegister(m.Runs, m.Duration, m.LastSuccess)
	return m
}

func (m *SyncMetrics) Skipped() {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues("skipped").Inc()
}

func (m *SyncMetrics) Finished(err error, took time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.Duration.Observe(took.Seconds())
	if err != nil {
		m.Runs.WithLabelValues("failure").Inc()
		return
	}
	m.Runs.WithLabelValues("success").Inc()
	m.LastSuccess.Set(float64(at.Unix()))
}
