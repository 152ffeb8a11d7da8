package httpserver

import (
	"fmt"
	"time"

	"github.com/pscheid92/starpush/internal/cache"
	"github.com/pscheid92/starpush/internal/notify"
	"github.com/pscheid92/starpush/internal/syncer"
)

const (
	healthHealthy  = "healthy"
	healthDegraded = "degraded"
	healthCritical = "critical"

	indicatorWarning = "warning"
)

// Score deductions per indicator, and the bands the remaining score maps to.
const (
	warningPenalty  = 25
	criticalPenalty = 50

	healthyFloor  = 80
	degradedFloor = 50
)

const (
	capacityWarning  = 0.75
	capacityCritical = 0.90

	writeFailureWarning  = 0.05
	writeFailureCritical = 0.10
	// minWritesForRatio keeps a handful of early failures from flagging delivery.
	minWritesForRatio = 20
)

type breakerReporter interface {
	BreakerState() string
}

type sizer interface {
	Len() int
}

type indicator struct {
	Name   string  `json:"name"`
	Status string  `json:"status"`
	Value  float64 `json:"value"`
	Detail string  `json:"detail,omitempty"`
}

// healthInputs is everything the assessment looks at. Nil or empty parts are skipped.
type healthInputs struct {
	sync        *syncer.Status
	breaker     string
	connections int64
	maxConns    int64
	delivery    notify.DeliveryStats
}

type notificationHealth struct {
	Status     string               `json:"status"`
	Score      int                  `json:"score"`
	Indicators []indicator          `json:"indicators"`
	Timestamp  time.Time            `json:"timestamp"`
	Uptime     string               `json:"uptime"`
	Conns      int                  `json:"connections"`
	Slots      int64                `json:"stream_slots"`
	MaxConns   int64                `json:"max_connections"`
	Delivery   notify.DeliveryStats `json:"delivery"`
	Dedup      *int                 `json:"dedup_entries,omitempty"`
	Limiter    *int                 `json:"rate_limited_users,omitempty"`
	Cache      *cache.Stats         `json:"cache,omitempty"`
	Sync       *syncer.Status       `json:"sync,omitempty"`
	Breaker    string               `json:"breaker,omitempty"`
}

// assessHealth scores notification delivery out of 100. Every indicator in warning
// costs warningPenalty and every critical one criticalPenalty.
func assessHealth(in healthInputs) (string, int, []indicator) {
	indicators := []indicator{
		capacityIndicator(in.connections, in.maxConns),
		deliveryIndicator(in.delivery),
	}
	if in.sync != nil {
		indicators = append(indicators, syncIndicator(*in.sync))
	}
	if in.breaker != "" {
		indicators = append(indicators, breakerIndicator(in.breaker))
	}

	score := 100
	for _, ind := range indicators {
		switch ind.Status {
		case indicatorWarning:
			score -= warningPenalty
		case healthCritical:
			score -= criticalPenalty
		}
	}
	score = max(score, 0)

	switch {
	case score >= healthyFloor:
		return healthHealthy, score, indicators
	case score >= degradedFloor:
		return healthDegraded, score, indicators
	default:
		return healthCritical, score, indicators
	}
}

func capacityIndicator(current, limit int64) indicator {
	ind := indicator{Name: "connection_capacity", Status: healthHealthy}
	if limit <= 0 {
		return ind
	}
	ratio := float64(current) / float64(limit)
	ind.Value = ratio
	switch {
	case ratio >= capacityCritical:
		ind.Status = healthCritical
	case ratio >= capacityWarning:
		ind.Status = indicatorWarning
	}
	if ind.Status != healthHealthy {
		ind.Detail = fmt.Sprintf("%d of %d stream slots in use", current, limit)
	}
	return ind
}

func deliveryIndicator(d notify.DeliveryStats) indicator {
	ind := indicator{Name: "write_failures", Status: healthHealthy}
	if d.Writes == 0 {
		return ind
	}
	ratio := float64(d.Failures) / float64(d.Writes)
	ind.Value = ratio
	if d.Writes < minWritesForRatio {
		return ind
	}
	switch {
	case ratio >= writeFailureCritical:
		ind.Status = healthCritical
	case ratio >= writeFailureWarning:
		ind.Status = indicatorWarning
	}
	if ind.Status != healthHealthy {
		ind.Detail = fmt.Sprintf("%d of %d writes failed", d.Failures, d.Writes)
	}
	return ind
}

// syncIndicator warns while the latest run failed and goes critical when no run has
// ever succeeded.
func syncIndicator(st syncer.Status) indicator {
	ind := indicator{Name: "background_sync", Status: healthHealthy, Value: float64(st.Failures)}
	if st.LastError == "" {
		return ind
	}
	ind.Detail = st.LastError
	if st.LastSync == nil {
		ind.Status = healthCritical
	} else {
		ind.Status = indicatorWarning
	}
	return ind
}

func breakerIndicator(state string) indicator {
	ind := indicator{Name: "store_breaker", Status: healthHealthy, Detail: state}
	switch state {
	case "open":
		ind.Status = healthCritical
		ind.Value = 1
	case "half-open":
		ind.Status = indicatorWarning
		ind.Value = 0.5
	}
	return ind
}
