package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests no route matched, so probing random URLs cannot grow
// the label set.
const unmatchedRoute = "unmatched"

// HTTPMetrics covers the request/response API. Event streams are long-lived and are
// measured by StreamMetrics instead.
type HTTPMetrics struct {
	Requests  *prometheus.CounterVec
	Latency   *prometheus.HistogramVec
	InFlight  prometheus.Gauge
	Throttled *prometheus.CounterVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests, by route and status class.",
		}, []string{"method", "route", "class"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency in seconds, by route.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of API requests currently being served.",
		}),
		Throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "throttled_total",
			Help:      "Total number of API requests answered 429 or 503, by route.",
		}, []string{"route", "status_code"}),
	}

	reg.MustRegister(m.Requests, m.Latency, m.InFlight, m.Throttled)
	return m
}

// exempt reports routes that are not request/response traffic: scrapes, probes and the
// notification streams.
func exempt(route string) bool {
	switch route {
	case "/metrics", "/notifications/stream", "/notifications/ws":
		return true
	}
	return strings.HasPrefix(route, "/health/")
}

// statusClass folds a status code into "2xx", "4xx" and so on.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Middleware records API traffic. Errors that escape the handler chain as
// *echo.HTTPError are counted with the status echo will write for them.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if m == nil || exempt(route) {
				return next(c)
			}
			if route == "" {
				route = unmatchedRoute
			}

			m.InFlight.Inc()
			defer m.InFlight.Dec()

			method := c.Request().Method
			timer := prometheus.NewTimer(m.Latency.WithLabelValues(method, route))
			err := next(c)
			timer.ObserveDuration()

			code := c.Response().Status
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) && !c.Response().Committed {
				code = httpErr.Code
			}
			m.Requests.WithLabelValues(method, route, statusClass(code)).Inc()
			switch code {
			case http.StatusTooManyRequests, http.StatusServiceUnavailable:
				m.Throttled.WithLabelValues(route, strconv.Itoa(code)).Inc()
			}
			return err
		}
	}
}
