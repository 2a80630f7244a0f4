package server

import (
	"net/http"

	"github.com/tracehub-ai/tracehub/internal/model"
)

// HandleDecide runs the judge and policy pipeline for a trace.
func (h *Handlers) HandleDecide(w http.ResponseWriter, r *http.Request) {
	project, err := h.project(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req model.DecideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp, err := h.decision.Decide(r.Context(), project.ID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}
