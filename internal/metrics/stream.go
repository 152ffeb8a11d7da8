package metrics

import "github.com/prometheus/client_golang/prometheus"

// StreamMetrics covers the connection registry and event delivery.
type StreamMetrics struct {
	ActiveConnections prometheus.Gauge
	FramesSent        *prometheus.CounterVec
	WriteFailures     prometheus.Counter
	Rejected          *prometheus.CounterVec
}

func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	m := &StreamMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_connections",
			Help:      "Number of users with a registered event stream.",
		}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_sent_total",
			Help:      "Total number of event frames written, by event type.",
		}, []string{"type"}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "write_failures_total",
			Help:      "Total number of failed writes that evicted a stream.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "rejected_total",
			Help:      "Total number of stream connections rejected, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ActiveConnections, m.FramesSent, m.WriteFailures, m.Rejected)
	return m
}

func (m *StreamMetrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.ActiveConnections.Set(float64(n))
}

func (m *StreamMetrics) FrameSent(eventType string) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(eventType).Inc()
}

func (m *StreamMetrics) WriteFailed() {
	if m == nil {
		return
	}
	m.WriteFailures.Inc()
}

func (m *StreamMetrics) Reject(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}
