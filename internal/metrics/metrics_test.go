package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSet_RegistersWithoutConflicts(t *testing.T) {
	reg := NewRegistry()
	set := NewSet(reg)

	set.Stream.FrameSent("notification")
	set.Cache.Hit()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["starpush_stream_frames_sent_total"])
	assert.True(t, names["starpush_cache_hits_total"])
	assert.True(t, names["go_goroutines"])
}

func TestNilReceivers_AreNoOps(t *testing.T) {
	var (
		stream *StreamMetrics
		cache  *CacheMetrics
		sync   *SyncMetrics
		notif  *NotificationMetrics
	)

	assert.NotPanics(t, func() {
		stream.SetActive(3)
		stream.FrameSent("heartbeat")
		stream.WriteFailed()
		stream.Reject("global_limit")
		cache.Hit()
		cache.Miss()
		cache.Evicted("expired", 2)
		cache.SetSize(1)
		sync.Skipped()
		sync.Finished(nil, time.Second, time.Now())
		notif.RecordCreated("follow")
		notif.RecordSuppressed("duplicate")
		notif.RecordDelivery(true)
	})
}

func TestSyncMetrics_Finished(t *testing.T) {
	m := NewSyncMetrics(prometheus.NewRegistry())
	at := time.Unix(1_700_000_000, 0)

	m.Finished(nil, 150*time.Millisecond, at)
	m.Finished(errors.New("db down"), time.Second, at.Add(time.Minute))
	m.Skipped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("skipped")))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.LastSuccess))
}

func TestCacheMetrics_EvictedIgnoresZero(t *testing.T) {
	m := NewCacheMetrics(prometheus.NewRegistry())

	m.Evicted("expired", 0)
	m.Evicted("capacity", 2)

	assert.Equal(t, 1, testutil.CollectAndCount(m.Evictions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Evictions.WithLabelValues("capacity")))
}

func TestHTTPMiddleware_RecordsAPIRequests(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/cache/stats", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.POST("/api/notifications", func(c echo.Context) error { return c.NoContent(http.StatusTooManyRequests) })
	e.GET("/api/sync", func(c echo.Context) error { return echo.NewHTTPError(http.StatusServiceUnavailable) })
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/notifications/stream", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/api/cache/stats"},
		{http.MethodGet, "/api/cache/stats"},
		{http.MethodPost, "/api/notifications"},
		{http.MethodGet, "/api/sync"},
		{http.MethodGet, "/health/live"},
		{http.MethodGet, "/notifications/stream"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/api/cache/stats", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("POST", "/api/notifications", "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("GET", "/api/sync", "5xx")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.Requests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Throttled.WithLabelValues("/api/notifications", "429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Throttled.WithLabelValues("/api/sync", "503")))

	expected := `
# HELP starpush_http_in_flight_requests Number of API requests currently being served.
# TYPE starpush_http_in_flight_requests gauge
starpush_http_in_flight_requests 0
`
	assert.NoError(t, testutil.CollectAndCompare(m.InFlight, strings.NewReader(expected)))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusNoContent))
	assert.Equal(t, "4xx", statusClass(http.StatusTooManyRequests))
	assert.Equal(t, "5xx", statusClass(http.StatusBadGateway))
	assert.Equal(t, "unknown", statusClass(0))
}

func TestHTTPMiddleware_NilIsPassThrough(t *testing.T) {
	var m *HTTPMetrics
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/sync", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
