// Package errors defines the application error taxonomy: coded, classified
// errors that map cleanly to HTTP statuses and log fields.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of application error.
type Code string

const (
	CodeLeadNotFound      Code = "LEAD_NOT_FOUND"
	CodeValidation        Code = "VALIDATION_FAILED"
	CodeDatabase          Code = "DATABASE_ERROR"
	CodeAIService         Code = "AI_SERVICE_ERROR"
	CodeWhatsAppService   Code = "WHATSAPP_SERVICE_ERROR"
	CodeCalendarService   Code = "CALENDAR_SERVICE_ERROR"
	CodeNotifyService     Code = "NOTIFY_SERVICE_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// Kind classifies who or what caused the error.
type Kind int

const (
	// KindUser means the caller sent something invalid.
	KindUser Kind = iota
	// KindSystem means an internal invariant or dependency broke.
	KindSystem
	// KindTransient means retrying later may succeed.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindSystem:
		return "system"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is the application error type. Op names the operation that failed
// so wrapped errors read as a call trace.
type Error struct {
	Code    Code
	Message string
	Kind    Kind
	Op      string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on the error code so callers can compare against sentinel
// constructors.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus maps the error to an HTTP response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeLeadNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	}
	switch e.Kind {
	case KindUser:
		return http.StatusBadRequest
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Response is the JSON error body returned to API clients.
type Response struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ToResponse converts the error to its public representation. Internal
// detail stays in logs.
func (e *Error) ToResponse() Response {
	msg := e.Message
	if e.Kind != KindUser {
		msg = "internal error"
	}
	return Response{Code: e.Code, Message: msg}
}

// New creates an error with no underlying cause.
func New(op string, code Code, kind Kind, message string) *Error {
	return &Error{Code: code, Message: message, Kind: kind, Op: op}
}

// Wrap annotates an underlying error.
func Wrap(op string, code Code, kind Kind, message string, err error) *Error {
	return &Error{Code: code, Message: message, Kind: kind, Op: op, Err: err}
}

// LeadNotFound reports a missing lead.
func LeadNotFound(op string, err error) *Error {
	return Wrap(op, CodeLeadNotFound, KindUser, "lead not found", err)
}

// ValidationFailed reports invalid caller input.
func ValidationFailed(op, message string) *Error {
	return New(op, CodeValidation, KindUser, message)
}

// DatabaseError wraps a persistence failure.
func DatabaseError(op string, err error) *Error {
	return Wrap(op, CodeDatabase, KindSystem, "database operation failed", err)
}

// ExternalServiceError wraps a failure of an outbound dependency. These are
// transient: circuit breakers and retries apply.
func ExternalServiceError(op string, code Code, err error) *Error {
	return Wrap(op, code, KindTransient, "external service call failed", err)
}

// GetCode extracts the application error code, or CodeInternal for foreign
// errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsNotFound reports whether err is a lead-not-found error.
func IsNotFound(err error) bool {
	return GetCode(err) == CodeLeadNotFound
}

// IsRetriable reports whether the operation may succeed on retry.
func IsRetriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransient
	}
	return false
}
