package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotificationMetrics covers the notification creation pipeline.
type NotificationMetrics struct {
	Created    *prometheus.CounterVec
	Suppressed *prometheus.CounterVec
	Delivered  *prometheus.CounterVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	m := &NotificationMetrics{
		Created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "created_total",
			Help:      "Total number of persisted notifications, by type.",
		}, []string{"type"}),
		Suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "suppressed_total",
			Help:      "Total number of notifications dropped before persistence, by reason.",
		}, []string{"reason"}),
		Delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "realtime_deliveries_total",
			Help:      "Total number of real-time delivery attempts, by outcome (delivered, offline).",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.Created, m.Suppressed, m.Delivered)
	return m
}

func (m *NotificationMetrics) RecordCreated(notificationType string) {
	if m == nil {
		return
	}
	m.Created.WithLabelValues(notificationType).Inc()
}

func (m *NotificationMetrics) RecordSuppressed(reason string) {
	if m == nil {
		return
	}
	m.Suppressed.WithLabelValues(reason).Inc()
}

func (m *NotificationMetrics) RecordDelivery(delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.Delivered.WithLabelValues("delivered").Inc()
		return
	}
	m.Delivered.WithLabelValues("offline").Inc()
}
