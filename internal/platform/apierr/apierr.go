// Package apierr classifies service errors and renders them as the JSON
// error envelope every endpoint shares.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
)

// Error codes carried in the response envelope.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeResourceNotFound = "RESOURCE_NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
)

// FallbackMessage is returned for 5xx responses when the underlying error
// carries no message of its own.
const FallbackMessage = "internal server error"

type classified struct {
	kind error
	msg  string
}

func (e *classified) Error() string { return e.msg }
func (e *classified) Unwrap() error { return e.kind }

// Validation returns an error matching ErrValidation.
func Validation(format string, args ...interface{}) error {
	return &classified{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// NotFound returns an error matching ErrNotFound for the named resource.
func NotFound(resource string) error {
	return &classified{kind: ErrNotFound, msg: resource + " not found"}
}

// Unauthorized returns an error matching ErrUnauthorized.
func Unauthorized(msg string) error {
	return &classified{kind: ErrUnauthorized, msg: msg}
}

// Conflict returns an error matching ErrConflict.
func Conflict(format string, args ...interface{}) error {
	return &classified{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	var he *echo.HTTPError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &he):
		return he.Code
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts a service error into an echo.HTTPError. Store and
// transport failures keep their original message when they have one.
func ToHTTP(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	msg := err.Error()
	if msg == "" {
		msg = FallbackMessage
	}
	return echo.NewHTTPError(Status(err), msg).SetInternal(err)
}

// Response is the JSON error envelope.
type Response struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return CodeValidationError
	case http.StatusNotFound:
		return CodeResourceNotFound
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable:
		return CodeDatabaseError
	default:
		if status >= 500 {
			return CodeInternalError
		}
		return CodeValidationError
	}
}

// HTTPErrorHandler renders every error returned by a handler or middleware
// as a Response. 5xx errors are logged with the request id.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		he := ToHTTP(err)
		msg := fmt.Sprintf("%v", he.Message)
		if msg == "" {
			msg = http.StatusText(he.Code)
		}

		if he.Code >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().
				Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Int("status", he.Code).
				Msg("request failed")
		}

		resp := Response{
			Error:   http.StatusText(he.Code),
			Message: msg,
			Code:    codeFor(he.Code),
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(he.Code)
		} else {
			writeErr = c.JSON(he.Code, resp)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}
