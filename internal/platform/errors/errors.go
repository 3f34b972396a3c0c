// Package errors provides structured HTTP errors for the internal API.
package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrorType is the category of an error. It is sent to the client, used as the metric label
// and decides how loudly the error is logged.
type ErrorType string

const (
	TypeValidation   ErrorType = "validation"
	TypeUnauthorized ErrorType = "unauthorized"
	TypeNotFound     ErrorType = "not_found"
	TypeRateLimited  ErrorType = "rate_limited"
	TypeInternal     ErrorType = "internal"
	TypeExternal     ErrorType = "external"
	TypeUnavailable  ErrorType = "unavailable"
)

type kind struct {
	status  int
	level   slog.Level
	logLine string
}

var kinds = map[ErrorType]kind{
	TypeValidation:   {http.StatusBadRequest, slog.LevelInfo, "Request rejected"},
	TypeNotFound:     {http.StatusNotFound, slog.LevelInfo, "Request rejected"},
	TypeUnauthorized: {http.StatusUnauthorized, slog.LevelWarn, "Request refused"},
	TypeRateLimited:  {http.StatusTooManyRequests, slog.LevelWarn, "Request refused"},
	TypeExternal:     {http.StatusBadGateway, slog.LevelError, "Dependency error"},
	TypeUnavailable:  {http.StatusServiceUnavailable, slog.LevelError, "Dependency error"},
	TypeInternal:     {http.StatusInternalServerError, slog.LevelError, "Internal error"},
}

func kindOf(t ErrorType) kind {
	if k, ok := kinds[t]; ok {
		return k
	}
	return kinds[TypeInternal]
}

// Error carries a client-facing message. Cause is logged but never sent; Fields are both
// logged and sent.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Fields  map[string]any
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

func ValidationError(message string) *Error   { return newError(TypeValidation, message, nil) }
func UnauthorizedError(message string) *Error { return newError(TypeUnauthorized, message, nil) }
func NotFoundError(message string) *Error     { return newError(TypeNotFound, message, nil) }
func RateLimitedError(message string) *Error  { return newError(TypeRateLimited, message, nil) }

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// ExternalError reports a failing downstream dependency (HTTP 502).
func ExternalError(message string, cause error) *Error {
	return newError(TypeExternal, message, cause)
}

func UnavailableError(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) HTTPStatus() int { return kindOf(e.Type).status }

// WithField attaches a detail such as the offending parameter.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any, 1)
	}
	e.Fields[key] = value
	return e
}

// ErrorResponse is the JSON body of every failed internal API request.
type ErrorResponse struct {
	Error  string         `json:"error"`
	Type   ErrorType      `json:"type"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message, Type: e.Type, Fields: e.Fields}
}

// AsStructuredError unwraps err to an *Error. Anything else becomes an opaque internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return InternalError("internal server error", err)
}
