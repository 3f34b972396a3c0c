package httpserver

import (
	"time"

	apperrors "github.com/fabgilson/scrumboard-live/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// Idle caller buckets are dropped after this long.
const callerBucketTTL = 5 * time.Minute

// internalRateLimiter gives every internal API caller its own token bucket, keyed by the
// caller's address. A refused request surfaces as a rate_limited error so it is counted and
// logged like every other API error.
func internalRateLimiter(perSecond float64, burst int) echo.MiddlewareFunc {
	buckets := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: callerBucketTTL,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store:               buckets,
		IdentifierExtractor: func(c echo.Context) (string, error) { return c.RealIP(), nil },
		DenyHandler: func(c echo.Context, caller string, _ error) error {
			return apperrors.RateLimitedError("rate limit exceeded").WithField("caller", caller)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return apperrors.InternalError("failed to identify caller", err)
		},
	})
}
