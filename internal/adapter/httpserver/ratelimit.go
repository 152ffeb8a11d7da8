package httpserver

import (
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/starpush/internal/platform/errors"
)

// Fallbacks for configs built without the API rate settings.
const (
	defaultAPIRatePerSecond = 20
	defaultAPIBurst         = 40
)

var errNoClientIP = errors.New("request has no client address")

// ipRateStore adapts the stream connect limiter to echo's RateLimiterStore, so API
// buckets refill on the server clock and idle IPs are dropped the same way.
type ipRateStore struct {
	limiter *ConnectionRateLimiter
}

func (s ipRateStore) Allow(ip string) (bool, error) {
	return s.limiter.Allow(ip), nil
}

func newAPIRateLimiter(s *Server) *ConnectionRateLimiter {
	perSecond, burst := s.config.APIRatePerSecond, s.config.APIBurst
	if perSecond <= 0 {
		perSecond = defaultAPIRatePerSecond
	}
	if burst <= 0 {
		burst = defaultAPIBurst
	}
	return NewConnectionRateLimiter(perSecond, burst, s.clock)
}

// apiRateLimit throttles /api per client IP. Denials surface as rate_limited errors
// and go through the error middleware like any other handler error.
func apiRateLimit(limiter *ConnectionRateLimiter) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: ipRateStore{limiter: limiter},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			if ip := c.RealIP(); ip != "" {
				return ip, nil
			}
			return "", errNoClientIP
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return apperrors.ValidationError("cannot identify client").WithField("cause", err.Error())
		},
		DenyHandler: func(c echo.Context, ip string, _ error) error {
			return apperrors.RateLimitedError("rate limit exceeded").WithField("client_ip", ip)
		},
	})
}
