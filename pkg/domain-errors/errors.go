// Package domainerrors provides coded errors for service-to-transport
// translation. Stores return sentinel errors (pkg/platform/sentinel) or wrapped
// driver errors; services translate them into coded errors here so handlers can
// map codes to HTTP statuses without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers. Codes are stable API; messages are not.
type Code string

const (
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeTimeout      Code = "timeout"
	CodeUnavailable  Code = "unavailable"
	CodeRateLimited  Code = "rate_limited"
	CodeInternal     Code = "internal"

	// CodeAuditChain marks a failed hash-chain append. It is the only failure
	// class that fails an operation whose business mutation already committed:
	// an unaudited state change is unacceptable for a forensic tool.
	CodeAuditChain Code = "audit_chain"
)

// Error is a coded domain error. It wraps an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a coded error around a cause. A nil cause returns nil so call
// sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		if err == nil {
			return false
		}
	}
	return false
}

// CodeOf returns the outermost code carried by err, or CodeInternal when err
// is not a coded error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Retryable reports whether the caller may safely retry the failed operation.
func Retryable(err error) bool {
	return HasCode(err, CodeTimeout) || HasCode(err, CodeUnavailable)
}
