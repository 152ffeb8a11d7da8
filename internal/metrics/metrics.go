// Package metrics holds the Prometheus collectors, grouped per concern. Every struct is
// registered on an explicit registry, and every recording method tolerates a nil
// receiver so core packages run unchanged without metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "starpush"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// HandlerFor returns an http.Handler that serves the metrics gathered by g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Set bundles every metric group the service records.
type Set struct {
	HTTP         *HTTPMetrics
	Stream       *StreamMetrics
	Cache        *CacheMetrics
	Sync         *SyncMetrics
	Notification *NotificationMetrics
}

func NewSet(reg prometheus.Registerer) *Set {
	return &Set{
		HTTP:         NewHTTPMetrics(reg),
		Stream:       NewStreamMetrics(reg),
		Cache:        NewCacheMetrics(reg),
		Sync:         NewSyncMetrics(reg),
		Notification: NewNotificationMetrics(reg),
	}
}
