// Package httputil centralizes JSON encoding and domain error translation
// for the HTTP layer, so every endpoint speaks the same envelope.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "frametruth/pkg/domain-errors"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteData writes a success envelope.
func WriteData(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Message: message, Data: data})
}

// WriteError translates a domain error to its HTTP status and envelope.
// Server-side failures keep their detail out of the response body.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeInternal
	message := "internal error"
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		code = domainErr.Code
		if clientFacing(code) {
			message = domainErr.Message
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(code))
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   string(code),
		Message: message,
	})
}

// DecodeJSON parses a request body into T, reporting malformed input as a
// client error.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return req, false
	}
	return req, true
}

func clientFacing(code dErrors.Code) bool {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeValidation, dErrors.CodeUnauthorized,
		dErrors.CodeForbidden, dErrors.CodeNotFound, dErrors.CodeConflict, dErrors.CodeTimeout,
		dErrors.CodeRateLimited:
		return true
	default:
		return false
	}
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeTimeout, dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
