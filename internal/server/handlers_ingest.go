package server

import (
	"net/http"

	"github.com/tracehub-ai/tracehub/internal/model"
)

// HandleIngestTraces applies a trace batch: trace header merge plus span
// upserts, idempotent per span key.
func (h *Handlers) HandleIngestTraces(w http.ResponseWriter, r *http.Request) {
	project, err := h.ingestProject(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req model.TraceBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp, err := h.ingest.ApplyTraceBatch(r.Context(), project.ID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleIngestSpans applies a span event batch and re-projects the touched
// span and trace rows.
func (h *Handlers) HandleIngestSpans(w http.ResponseWriter, r *http.Request) {
	project, err := h.ingestProject(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req model.EventBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp, err := h.ingest.ApplyEventBatch(r.Context(), project.ID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleCreateEval records an evaluation against a trace or span.
func (h *Handlers) HandleCreateEval(w http.ResponseWriter, r *http.Request) {
	project, err := h.ingestProject(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req model.EvalCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	eval, err := h.ingest.CreateEval(r.Context(), project.ID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, eval)
}
