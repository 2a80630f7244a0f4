package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/tracehub-ai/tracehub/internal/model"
)

// HandleListCases returns a filtered page of cases with backlog stats.
func (h *Handlers) HandleListCases(w http.ResponseWriter, r *http.Request) {
	project, err := h.project(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	page, pageSize, err := pagination(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	filters := model.CaseListFilters{
		Status:     queryStr(r, "status"),
		Assignee:   queryStr(r, "assignee"),
		ReasonCode: queryStr(r, "reason_code"),
	}

	list, err := h.cases.List(r.Context(), project.ID, filters, page, pageSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// HandleGetCase returns one case.
func (h *Handlers) HandleGetCase(w http.ResponseWriter, r *http.Request) {
	project, err := h.project(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	caseID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	c, err := h.cases.Get(r.Context(), project.ID, caseID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

// HandleAcknowledgeCase transitions a case to acknowledged.
func (h *Handlers) HandleAcknowledgeCase(w http.ResponseWriter, r *http.Request) {
	h.caseTransition(w, r, h.cases.Acknowledge)
}

// HandleResolveCase transitions a case to resolved.
func (h *Handlers) HandleResolveCase(w http.ResponseWriter, r *http.Request) {
	h.caseTransition(w, r, h.cases.Resolve)
}

type caseTransitionFunc func(ctx context.Context, projectID, id uuid.UUID, assignee *string) (model.Case, error)

func (h *Handlers) caseTransition(w http.ResponseWriter, r *http.Request, transition caseTransitionFunc) {
	project, err := h.project(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	caseID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req model.CaseActionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	c, err := transition(r.Context(), project.ID, caseID, req.Assignee)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}
