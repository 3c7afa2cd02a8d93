// Package httputil provides the JSON response helpers used by every API handler.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ignite/pulse/internal/pkg/apierr"
	"github.com/ignite/pulse/internal/pkg/logger"
)

// ErrorResponse is the standard error envelope for all API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httputil: JSON encode failed", "error", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Accepted writes a 202 response with the given data.
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, data)
}

// NoContent writes a 204 response with no body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

// InternalError logs err and writes a generic 500.
func InternalError(w http.ResponseWriter, err error) {
	logger.Error("httputil: internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal server error")
}

// Upstream writes err with a status derived from its apierr kind. The
// message is the user-actionable text of the error. Errors without a kind
// fall through to InternalError.
func Upstream(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	if kind == nil {
		InternalError(w, err)
		return
	}
	JSON(w, StatusFor(kind), ErrorResponse{Error: err.Error(), Code: kind.Error()})
}

// StatusFor maps an apierr kind to the status returned to API callers.
func StatusFor(kind error) int {
	switch {
	case errors.Is(kind, apierr.ErrNotConfigured):
		return http.StatusPreconditionFailed
	case errors.Is(kind, apierr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(kind, apierr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(kind, apierr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, apierr.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusBadGateway
}

// Decode reads JSON from the request body into dst.
// Returns false and writes a 400 response if parsing fails.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
