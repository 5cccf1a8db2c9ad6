package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// ErrorResponse is the error envelope of every failed request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes the error payload.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Op      string `json:"op,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var typed *errors.Error
	if !errors.As(err, &typed) {
		typed = errors.NewInternalError("unexpected failure", err)
	}
	status := typed.HTTPStatusCode()
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "type", typed.Type, "op", typed.Op, "error", err)
	}
	// Causes stay in the log; only the public message is returned.
	h.writeJSON(w, status, ErrorResponse{Error: ErrorDetail{
		Message: typed.Message,
		Type:    typed.Type,
		Op:      typed.Op,
	}})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}
