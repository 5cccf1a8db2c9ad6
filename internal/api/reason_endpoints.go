package api

import (
	"net/http"

	"github.com/blueberrycongee/reasoncache/internal/reasoning"
	"github.com/blueberrycongee/reasoncache/internal/security"
	"github.com/blueberrycongee/reasoncache/pkg/errors"
)

// ReasonRequest is the body of POST /v1/reason.
type ReasonRequest struct {
	Input any `json:"input"`
	reasoning.ReasonOptions
}

// CrossLayerRequest is the body of POST /v1/reason/layers.
type CrossLayerRequest struct {
	Input any `json:"input"`
	reasoning.CrossLayerOptions
}

// Reason handles POST /v1/reason.
func (h *Handler) Reason(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, security.OpReason) {
		return
	}
	var req ReasonRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Input == nil {
		h.writeError(w, r, errors.NewInvalidArgumentError("input is required"))
		return
	}

	res, err := h.reasoner.Reason(r.Context(), req.Input, req.ReasonOptions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ReasonAcrossLayers handles POST /v1/reason/layers.
func (h *Handler) ReasonAcrossLayers(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, security.OpReasonAcrossLayers) {
		return
	}
	var req CrossLayerRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Input == nil {
		h.writeError(w, r, errors.NewInvalidArgumentError("input is required"))
		return
	}

	res, err := h.reasoner.ReasonAcrossLayers(r.Context(), req.Input, req.CrossLayerOptions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// GetTrace handles GET /v1/traces/{id}.
func (h *Handler) GetTrace(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, security.OpTraceRead) {
		return
	}
	id := r.PathValue("id")
	tr := h.reasoner.Trace(id)
	if tr == nil {
		h.writeError(w, r, errors.NewNotFoundError("trace", id))
		return
	}
	h.writeJSON(w, http.StatusOK, tr)
}
