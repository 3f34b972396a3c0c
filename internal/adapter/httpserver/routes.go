package httpserver

import (
	"crypto/subtle"
	"log/slog"

	"github.com/fabgilson/scrumboard-live/internal/platform/correlation"
	apperrors "github.com/fabgilson/scrumboard-live/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const headerAPIKey = "X-Api-Key"

func (s *Server) registerRoutes() {
	var errorsTotal *prometheus.CounterVec
	if s.opts.HTTPMetrics != nil {
		errorsTotal = s.opts.HTTPMetrics.ErrorsTotal
		s.echo.Use(s.opts.HTTPMetrics.Middleware())
	}
	s.echo.Use(correlation.Middleware())
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(apperrors.Middleware(errorsTotal))
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "no-referrer",
	}))

	if s.opts.Live != nil {
		s.echo.GET("/live", echo.WrapHandler(s.opts.Live))
	}
	if s.opts.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.opts.Metrics))
	}

	s.registerHealthRoutes()

	internal := s.echo.Group("/internal",
		internalRateLimiter(s.opts.InternalRate, s.opts.InternalBurst),
		s.requireAPIKey,
	)
	s.registerBroadcastRoutes(internal)
	s.registerAccessRoutes(internal)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}

// requireAPIKey guards the internal API. The key is compared in constant time.
func (s *Server) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get(headerAPIKey)
		if key == "" || s.opts.PublishAPIKey == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.PublishAPIKey)) != 1 {
			return apperrors.UnauthorizedError("missing or invalid API key")
		}
		return next(c)
	}
}
