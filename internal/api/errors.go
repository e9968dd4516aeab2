package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/hamonitor/internal/hass"
	"github.com/nerrad567/hamonitor/internal/history"
	"github.com/nerrad567/hamonitor/internal/todo"
	"github.com/nerrad567/hamonitor/internal/updates"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeUpstream     = "upstream_error"
	ErrCodeTimeout      = "timeout"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeNoSnapshot is returned by read endpoints before the first poll completes.
func writeNoSnapshot(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "no poll has completed yet")
}

// writeServiceError maps errors from the domain packages onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, todo.ErrInvalidEntity),
		errors.Is(err, todo.ErrEmptySummary),
		errors.Is(err, todo.ErrEmptyItem),
		errors.Is(err, todo.ErrInvalidStatus),
		errors.Is(err, todo.ErrInvalidDue),
		errors.Is(err, todo.ErrNoChanges),
		errors.Is(err, updates.ErrInvalidEntity),
		errors.Is(err, history.ErrInvalidKind),
		errors.Is(err, hass.ErrInvalidEntity):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, todo.ErrEntityNotAllowed),
		errors.Is(err, history.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, hass.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case errors.Is(err, hass.ErrNotConnected),
		errors.Is(err, hass.ErrConnectionFailed),
		errors.Is(err, hass.ErrAuthFailed),
		errors.Is(err, hass.ErrCommandFailed),
		errors.Is(err, updates.ErrActionFailed):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	default:
		writeInternalError(w, "internal server error")
	}
}
