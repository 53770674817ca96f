package store

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInternal     = "INTERNAL"
)

// Error is the failure type every backend, the gateway and the authorization
// rules report. Err holds the underlying cause for logs and is never shown to
// callers.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func domainError(status int, code, message string, cause error) *Error {
	return &Error{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

func BadRequest(message string) *Error {
	return domainError(http.StatusBadRequest, CodeBadRequest, message, nil)
}

func Unauthorized(message string) *Error {
	return domainError(http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func Forbidden(message string) *Error {
	return domainError(http.StatusForbidden, CodeForbidden, message, nil)
}

func NotFound(message string) *Error {
	return domainError(http.StatusNotFound, CodeNotFound, message, nil)
}

func Unavailable(message string, cause error) *Error {
	return domainError(http.StatusServiceUnavailable, CodeUnavailable, message, cause)
}

func Internal(message string, cause error) *Error {
	return domainError(http.StatusInternalServerError, CodeInternal, message, cause)
}

// AsError extracts a *Error from err, wrapping anything else as Internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return Internal("We ran into a problem, this has been reported and will be looked at.", err)
}

func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return AsError(err).Status
}

func IsNotFound(err error) bool {
	var domainErr *Error
	return errors.As(err, &domainErr) && domainErr.Status == http.StatusNotFound
}

func IsForbidden(err error) bool {
	var domainErr *Error
	return errors.As(err, &domainErr) && domainErr.Status == http.StatusForbidden
}
