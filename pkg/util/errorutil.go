package util

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Public error codes.
const (
	CodeValidation   = "VALIDATION_FAILED"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeGuard        = "GUARD_REJECTED"
	CodeUnavailable  = "DEPENDENCY_UNAVAILABLE"
	CodeInternal     = "INTERNAL_ERROR"
)

var codeStatus = map[string]int{
	CodeValidation:   http.StatusBadRequest,
	CodeUnauthorized: http.StatusUnauthorized,
	CodeForbidden:    http.StatusForbidden,
	CodeNotFound:     http.StatusNotFound,
	CodeConflict:     http.StatusConflict,
	CodeGuard:        http.StatusUnprocessableEntity,
	CodeUnavailable:  http.StatusServiceUnavailable,
	CodeInternal:     http.StatusInternalServerError,
}

// DomainError standardizes application errors. Err keeps the internal cause
// for logging and is never serialised.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError. A zero status is looked up from code.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	if status == 0 {
		status = StatusForCode(code)
	}
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// StatusForCode returns the HTTP status of a public code, 500 when unknown.
func StatusForCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// CodeForStatus names an HTTP status that did not originate from a DomainError.
func CodeForStatus(status int) string {
	for code, s := range codeStatus {
		if s == status {
			return code
		}
	}
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, 0, details)
}

func NewNotFound(subject string, details map[string]any) error {
	return NewDomainError(CodeNotFound, subject+" not found", 0, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, 0, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, 0, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, 0, details)
}

// NewGuardRejection reports a request refused by the ticket state machine or capacity checks.
func NewGuardRejection(message string, cause error) error {
	de := NewDomainError(CodeGuard, message, 0, nil)
	de.Err = cause
	return de
}

func NewInternalError(err error) error {
	de := NewDomainError(CodeInternal, "internal server error", 0, nil)
	de.Err = err
	return de
}

// ToDomainError converts generic errors to DomainError. Unknown errors become
// INTERNAL_ERROR so their text never reaches clients.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return NewInternalError(err).(*DomainError)
}

// MapError is ToDomainError for callers that return a plain error.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
