package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/starpush/internal/domain"
	"github.com/pscheid92/starpush/internal/platform/correlation"
	apperrors "github.com/pscheid92/starpush/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareWithStructuredError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return apperrors.ValidationError("invalid input")
	})

	err := handler(c)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid input", resp.Error)
	assert.Equal(t, apperrors.TypeValidation, resp.Type)
}

func TestMiddlewareWithStandardError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return errors.New("standard error")
	})

	err := handler(c)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, apperrors.TypeInternal, resp.Type)
}

func TestMiddlewarePassesEchoHTTPErrors(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return echo.ErrNotFound
	})

	err := handler(c)
	assert.ErrorIs(t, err, echo.ErrNotFound)
}

func TestMiddlewareAllErrorTypes(t *testing.T) {
	tests := []struct {
		name       string
		err        *apperrors.Error
		wantStatus int
		wantType   apperrors.ErrorType
	}{
		{"validation", apperrors.ValidationError("invalid"), http.StatusBadRequest, apperrors.TypeValidation},
		{"not_found", apperrors.NotFoundError("missing"), http.StatusNotFound, apperrors.TypeNotFound},
		{"conflict", apperrors.ConflictError("duplicate"), http.StatusConflict, apperrors.TypeConflict},
		{"rate_limited", apperrors.RateLimitedError("slow down"), http.StatusTooManyRequests, apperrors.TypeRateLimited},
		{"internal", apperrors.InternalError("failed", errors.New("cause")), http.StatusInternalServerError, apperrors.TypeInternal},
		{"external", apperrors.ExternalError("sync failed", errors.New("timeout")), http.StatusBadGateway, apperrors.TypeExternal},
		{"unavailable", apperrors.UnavailableError("full"), http.StatusServiceUnavailable, apperrors.TypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := ErrorHandlingMiddleware()(func(c echo.Context) error {
				return tt.err
			})

			require.NoError(t, handler(c))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp apperrors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantType, resp.Type)
		})
	}
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType apperrors.ErrorType
	}{
		{"invalid", fmt.Errorf("%w: title is required", domain.ErrInvalidNotification), apperrors.TypeValidation},
		{"not_found", fmt.Errorf("wrapped: %w", domain.ErrNotificationNotFound), apperrors.TypeNotFound},
		{"duplicate", domain.ErrDuplicateNotification, apperrors.TypeConflict},
		{"rate_limited", domain.ErrRateLimited, apperrors.TypeRateLimited},
		{"other", errors.New("disk on fire"), apperrors.TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapDomainError(tt.err, "failed")
			assert.Equal(t, tt.wantType, got.Type)
		})
	}
}

func TestWrapHTTPError(t *testing.T) {
	got := WrapHTTPError(echo.NewHTTPError(http.StatusServiceUnavailable, "draining"))
	assert.Equal(t, apperrors.TypeUnavailable, got.Type)
	assert.Equal(t, "draining", got.Message)

	got = WrapHTTPError(echo.NewHTTPError(http.StatusTeapot))
	assert.Equal(t, apperrors.TypeInternal, got.Type)
}

func TestCorrelationMiddleware_EchoesInboundID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(correlation.Header, "abc123")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var (
		seen   string
		origin correlation.Origin
	)
	handler := correlationMiddleware(func(c echo.Context) error {
		seen, _ = correlation.ID(c.Request().Context())
		origin, _ = correlation.OriginOf(c.Request().Context())
		return nil
	})

	require.NoError(t, handler(c))
	assert.Equal(t, "abc123", seen)
	assert.Equal(t, correlation.OriginHTTP, origin)
	assert.Equal(t, "abc123", rec.Header().Get(correlation.Header))
}

func TestCorrelationMiddleware_GeneratesID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := correlationMiddleware(func(c echo.Context) error { return nil })

	require.NoError(t, handler(c))
	assert.NotEmpty(t, rec.Header().Get(correlation.Header))
}

func TestCorrelationMiddleware_ReplacesUnsafeID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(correlation.Header, "x\"} forged")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := correlationMiddleware(func(c echo.Context) error { return nil })

	require.NoError(t, handler(c))
	got := rec.Header().Get(correlation.Header)
	assert.NotEqual(t, "x\"} forged", got)
	assert.Len(t, got, 12)
}
