package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/swncrew-core/internal/mission"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// Field and Index locate a validation failure.
	Field string `json:"field,omitempty"`
	Index *int   `json:"index,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeNotFound   = "not_found"
	ErrCodeInternal   = "internal_error"
	ErrCodeValidation = "validation_error"
	ErrCodeDisabled   = "disabled"
	ErrCodeConflict   = "conflict"
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

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeValidationError writes a 422 response. When err carries a
// mission.ValidationError its field and point index are included.
func writeValidationError(w http.ResponseWriter, err error) {
	resp := Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    ErrCodeValidation,
		Message: err.Error(),
	}
	var verr *mission.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
		if verr.Index >= 0 {
			idx := verr.Index
			resp.Index = &idx
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}
