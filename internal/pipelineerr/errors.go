// Package pipelineerr defines the closed error taxonomy every stage handler,
// HTTP route, and job worker in casepilot translates its failures into before
// they leave the boundary of the component that produced them.
package pipelineerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, wire-safe error classification.
type Code string

// The full taxonomy. Never add an ad-hoc string error code outside this set;
// extend this list instead.
const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeDuplicate         Code = "DUPLICATE_DOCUMENT"
	CodePrecondition      Code = "PRECONDITION_FAILED"
	CodeExternalTransient Code = "EXTERNAL_TRANSIENT"
	CodeExternalPermanent Code = "EXTERNAL_PERMANENT"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeRateLimited       Code = "RATE_LIMITED"
)

// Error is the taxonomy-tagged error type. Every returned error that needs to
// surface through an API response or a job's failure reason should be (or
// wrap) one of these.
type Error struct {
	Code    Code
	Message string
	Details map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause so errors.Is/errors.As keep working
// against driver errors (e.g. gorm.ErrRecordNotFound) wrapped at the boundary.
func (e *Error) Unwrap() error { return e.cause }

// New constructs a taxonomy error with no details and no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf is New with formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a taxonomy code to an arbitrary error without losing it.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetail attaches a single structured detail and returns the receiver for
// chaining at the call site.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// As extracts a *Error from err, following the standard errors.As contract.
func As(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Is reports whether err is a taxonomy Error carrying code.
func Is(err error, code Code) bool {
	pe, ok := As(err)
	return ok && pe.Code == code
}

// HTTPStatus maps a taxonomy code to the status category spec.md §7 assigns
// it: 400 validation, 404 missing, 409 conflict/duplicate, 422 precondition
// not met, 429 rate-limit, 5xx internal.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicate, CodeConflict:
		return http.StatusConflict
	case CodePrecondition:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeExternalTransient, CodeExternalPermanent, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a job handler that produced this code should be
// retried by the job runner (spec.md §4.10/§7: external transient errors
// retry, everything else is terminal for that attempt).
func (c Code) Retryable() bool {
	return c == CodeExternalTransient
}
