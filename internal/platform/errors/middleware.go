package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// Middleware renders handler errors as ErrorResponse JSON and counts them by type.
// Echo's own HTTP errors are counted and returned untouched so the framework keeps their
// status codes. errorsTotal may be nil.
func Middleware(errorsTotal *prometheus.CounterVec) echo.MiddlewareFunc {
	count := func(t ErrorType) {
		if errorsTotal != nil {
			errorsTotal.WithLabelValues(string(t)).Inc()
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				count(WrapHTTPError(httpErr).Type)
				return err
			}

			structured := AsStructuredError(err)
			count(structured.Type)
			logRequestError(c, structured)

			if werr := c.JSON(structured.HTTPStatus(), structured.ToResponse()); werr != nil {
				return fmt.Errorf("write error response: %w", werr)
			}
			return nil
		}
	}
}

func logRequestError(c echo.Context, e *Error) {
	req := c.Request()
	k := kindOf(e.Type)

	attrs := make([]slog.Attr, 0, 6+len(e.Fields))
	attrs = append(attrs,
		slog.String("error_type", string(e.Type)),
		slog.String("message", e.Message),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", k.status),
	)
	for key, v := range e.Fields {
		attrs = append(attrs, slog.Any(key, v))
	}
	if e.Cause != nil {
		attrs = append(attrs, slog.Any("cause", e.Cause))
	}
	slog.LogAttrs(req.Context(), k.level, k.logLine, attrs...)
}

// httpStatusTypes covers the codes echo produces on its own that do not map one to one
// onto a kind.
var httpStatusTypes = map[int]ErrorType{
	http.StatusForbidden:             TypeUnauthorized,
	http.StatusMethodNotAllowed:      TypeValidation,
	http.StatusUnsupportedMediaType:  TypeValidation,
	http.StatusRequestEntityTooLarge: TypeValidation,
}

// WrapHTTPError maps echo's HTTPError onto an error type by status code.
func WrapHTTPError(httpErr *echo.HTTPError) *Error {
	message := "internal server error"
	if msg, ok := httpErr.Message.(string); ok {
		message = msg
	}
	return newError(typeForStatus(httpErr.Code), message, httpErr.Internal)
}

func typeForStatus(code int) ErrorType {
	if t, ok := httpStatusTypes[code]; ok {
		return t
	}
	for t, k := range kinds {
		if k.status == code {
			return t
		}
	}
	return TypeInternal
}
