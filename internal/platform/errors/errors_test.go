package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_HTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{ValidationError("bad"), http.StatusBadRequest},
		{UnauthorizedError("who"), http.StatusUnauthorized},
		{NotFoundError("gone"), http.StatusNotFound},
		{RateLimitedError("slow down"), http.StatusTooManyRequests},
		{InternalError("boom", nil), http.StatusInternalServerError},
		{ExternalError("redis", nil), http.StatusBadGateway},
		{UnavailableError("draining", nil), http.StatusServiceUnavailable},
		{&Error{Type: "other"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Type), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := ExternalError("publish failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "external: publish failed: connection refused", err.Error())
	assert.Equal(t, "validation: bad", ValidationError("bad").Error())
}

func TestAsStructuredError(t *testing.T) {
	assert.Nil(t, AsStructuredError(nil))

	original := NotFoundError("missing")
	assert.Same(t, original, AsStructuredError(fmt.Errorf("wrapped: %w", original)))

	converted := AsStructuredError(errors.New("plain"))
	assert.Equal(t, TypeInternal, converted.Type)
	assert.Equal(t, "internal server error", converted.Message)
}

func newContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	rec := httptest.NewRecorder()
	return e.NewContext(httptest.NewRequest(http.MethodPost, "/internal/broadcast", nil), rec), rec
}

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_errors_total"}, []string{"type"})
}

func TestMiddleware_StructuredError(t *testing.T) {
	c, rec := newContext()
	counter := newCounter()

	handler := Middleware(counter)(func(echo.Context) error {
		return ValidationError("unknown entity kind").WithField("kind", "Widget")
	})
	require.NoError(t, handler(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unknown entity kind", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.Equal(t, "Widget", resp.Fields["kind"])
	assert.Equal(t, float64(1), testutil.ToFloat64(counter.WithLabelValues("validation")))
}

func TestMiddleware_PlainErrorHidesCause(t *testing.T) {
	c, rec := newContext()

	handler := Middleware(nil)(func(echo.Context) error {
		return errors.New("password=hunter2")
	})
	require.NoError(t, handler(c))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
}

func TestMiddleware_EchoErrorPassesThrough(t *testing.T) {
	c, _ := newContext()
	counter := newCounter()

	handler := Middleware(counter)(func(echo.Context) error {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing api key")
	})
	err := handler(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(counter.WithLabelValues("unauthorized")))
}

func TestMiddleware_Success(t *testing.T) {
	c, rec := newContext()

	handler := Middleware(nil)(func(c echo.Context) error {
		return c.NoContent(http.StatusAccepted)
	})
	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestWrapHTTPError(t *testing.T) {
	wrapped := WrapHTTPError(echo.NewHTTPError(http.StatusServiceUnavailable, "draining"))
	assert.Equal(t, TypeUnavailable, wrapped.Type)
	assert.Equal(t, "draining", wrapped.Message)

	wrapped = WrapHTTPError(&echo.HTTPError{Code: http.StatusTeapot})
	assert.Equal(t, TypeInternal, wrapped.Type)
	assert.Equal(t, "internal server error", wrapped.Message)
}

func TestWrapHTTPError_StatusMapping(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{http.StatusBadRequest, TypeValidation},
		{http.StatusRequestEntityTooLarge, TypeValidation},
		{http.StatusForbidden, TypeUnauthorized},
		{http.StatusNotFound, TypeNotFound},
		{http.StatusTooManyRequests, TypeRateLimited},
		{http.StatusBadGateway, TypeExternal},
		{http.StatusGatewayTimeout, TypeInternal},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, WrapHTTPError(echo.NewHTTPError(tt.code)).Type)
		})
	}
}
