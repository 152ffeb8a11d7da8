package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/starpush/internal/domain"
	"github.com/pscheid92/starpush/internal/platform/correlation"
	apperrors "github.com/pscheid92/starpush/internal/platform/errors"
)

// correlationMiddleware tags the request context with the inbound X-Request-ID, or a
// fresh ID, and echoes it on the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, id := correlation.Adopt(c.Request().Context(), correlation.OriginHTTP, c.Request().Header.Get(correlation.Header))
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)

			if c.Response().Committed {
				return nil
			}
			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict:
		slog.InfoContext(ctx, "Conflict", attrs...)
	case apperrors.TypeRateLimited:
		slog.WarnContext(ctx, "Rate limited", attrs...)
	case apperrors.TypeUnavailable:
		slog.WarnContext(ctx, "Service unavailable", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// mapDomainError translates service errors into structured HTTP errors. Anything
// unrecognised becomes an internal error carrying message.
func mapDomainError(err error, message string) *apperrors.Error {
	switch {
	case errors.Is(err, domain.ErrInvalidNotification):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, domain.ErrNotificationNotFound):
		return apperrors.NotFoundError("notification not found")
	case errors.Is(err, domain.ErrDuplicateNotification):
		return apperrors.ConflictError("duplicate notification suppressed")
	case errors.Is(err, domain.ErrRateLimited):
		return apperrors.RateLimitedError("notification rate limit exceeded")
	default:
		return apperrors.InternalError(message, err)
	}
}

func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	var errType apperrors.ErrorType
	switch httpErr.Code {
	case http.StatusBadRequest:
		errType = apperrors.TypeValidation
	case http.StatusNotFound:
		errType = apperrors.TypeNotFound
	case http.StatusConflict:
		errType = apperrors.TypeConflict
	case http.StatusTooManyRequests:
		errType = apperrors.TypeRateLimited
	case http.StatusBadGateway:
		errType = apperrors.TypeExternal
	case http.StatusServiceUnavailable:
		errType = apperrors.TypeUnavailable
	default:
		errType = apperrors.TypeInternal
	}

	err := &apperrors.Error{
		Type:    errType,
		Message: message,
		Context: make(map[string]any),
	}
	if httpErr.Internal != nil {
		err.Cause = httpErr.Internal
	}
	return err
}
