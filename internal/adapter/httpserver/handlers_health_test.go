package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func decodeReport(t *testing.T, body []byte) dependencyReport {
	t.Helper()
	var report dependencyReport
	require.NoError(t, json.Unmarshal(body, &report))
	return report
}

func TestReadiness_AllChecksPass(t *testing.T) {
	srv := newTestServer(t, &mockNotificationService{},
		withHealthChecks(
			HealthCheck{Name: "postgres", Check: healthOK},
			HealthCheck{Name: "redis", Check: healthOK},
		),
	)

	rec := doRequest(t, srv, http.MethodGet, "/health/ready", "")

	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeReport(t, rec.Body.Bytes())
	assert.Equal(t, "ready", report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "postgres", report.Checks[0].Name)
	assert.True(t, report.Checks[0].OK)
	assert.Equal(t, "redis", report.Checks[1].Name)
}

func TestReadiness_ReportsEveryFailure(t *testing.T) {
	srv := newTestServer(t, &mockNotificationService{},
		withHealthChecks(
			HealthCheck{Name: "postgres", Check: healthErr("too many clients")},
			HealthCheck{Name: "redis", Check: healthErr("connection refused")},
		),
	)

	rec := doRequest(t, srv, http.MethodGet, "/health/ready", "")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	report := decodeReport(t, rec.Body.Bytes())
	assert.Equal(t, "unhealthy", report.Status)
	assert.Equal(t, []checkResult{
		{Name: "postgres", Duration: "0s", Error: "too many clients"},
		{Name: "redis", Duration: "0s", Error: "connection refused"},
	}, report.Checks)
}

func TestReadiness_ChecksRunConcurrently(t *testing.T) {
	var running atomic.Int32
	both := make(chan struct{})
	rendezvous := func(ctx context.Context) error {
		if running.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return errors.New("ran alone")
		}
	}
	srv := newTestServer(t, &mockNotificationService{},
		withHealthChecks(
			HealthCheck{Name: "a", Check: rendezvous},
			HealthCheck{Name: "b", Check: rendezvous},
		),
	)

	rec := doRequest(t, srv, http.MethodGet, "/health/ready", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartup_NoChecks(t *testing.T) {
	srv := newTestServer(t, &mockNotificationService{})

	rec := doRequest(t, srv, http.MethodGet, "/health/startup", "")

	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeReport(t, rec.Body.Bytes())
	assert.Equal(t, "ready", report.Status)
	assert.Empty(t, report.Checks)
}

func TestLiveness(t *testing.T) {
	srv := newTestServer(t, &mockNotificationService{})
	srv.registry.Register("alice", &nopStream{})

	rec := doRequest(t, srv, http.MethodGet, "/health/live", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.InDelta(t, 0.0, resp["uptime"], 0.001)
	assert.InDelta(t, 1.0, resp["connections"], 0.001)
}

func TestVersion(t *testing.T) {
	srv := newTestServer(t, &mockNotificationService{})

	rec := doRequest(t, srv, http.MethodGet, "/version", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "starpush", resp["service"])
	assert.NotEmpty(t, resp["go_version"])
}
