package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// statusError is the value of Serialized.Status for every taxonomy member.
const statusError = "error"

// Error is a client-safe application error.
type Error struct {
	StatusCode int
	Message    string
	// ComingFrom names the component that raised the error.
	ComingFrom string

	cause error
}

// Serialized is the JSON body written for an *Error.
type Serialized struct {
	Message    string `json:"message"`
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	ComingFrom string `json:"comingFrom"`
}

// Error implements the error interface. The cause is included for logs but
// never serialized.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.ComingFrom, e.StatusCode, e.Message, e.cause)
	}
	return fmt.Sprintf("%s (%d): %s", e.ComingFrom, e.StatusCode, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Serialize returns the client-facing representation.
func (e *Error) Serialize() Serialized {
	return Serialized{
		Message:    e.Message,
		Status:     statusError,
		StatusCode: e.StatusCode,
		ComingFrom: e.ComingFrom,
	}
}

// WithCause returns a copy of e that wraps cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

// BadRequest returns a 400 error.
func BadRequest(message, comingFrom string) *Error {
	return newError(http.StatusBadRequest, message, comingFrom)
}

// NotAuthorized returns a 401 error.
func NotAuthorized(message, comingFrom string) *Error {
	return newError(http.StatusUnauthorized, message, comingFrom)
}

// Forbidden returns a 403 error.
func Forbidden(message, comingFrom string) *Error {
	return newError(http.StatusForbidden, message, comingFrom)
}

// NotFound returns a 404 error.
func NotFound(message, comingFrom string) *Error {
	return newError(http.StatusNotFound, message, comingFrom)
}

// FileTooLarge returns a 413 error.
func FileTooLarge(message, comingFrom string) *Error {
	return newError(http.StatusRequestEntityTooLarge, message, comingFrom)
}

// Validation returns a 400 error for a request that failed schema validation.
func Validation(message, comingFrom string) *Error {
	return newError(http.StatusBadRequest, message, comingFrom)
}

// ServerError returns a 503 error for a known, client-safe server-side failure.
func ServerError(message, comingFrom string) *Error {
	return newError(http.StatusServiceUnavailable, message, comingFrom)
}

func newError(status int, message, comingFrom string) *Error {
	return &Error{StatusCode: status, Message: message, ComingFrom: comingFrom}
}

// As reports whether err is, or wraps, a taxonomy *Error.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
