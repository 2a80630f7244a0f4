package server

import (
	"net/http"

	"github.com/tracehub-ai/tracehub/internal/auth"
	"github.com/tracehub-ai/tracehub/internal/model"
	"github.com/tracehub-ai/tracehub/internal/storage"
)

// HandleCreateProject provisions a tenant and returns its plaintext api key.
func (h *Handlers) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	if _, err := h.admin(r); err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req model.ProjectCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}

	key, hash, err := auth.GenerateKey()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var project model.Project
	err = h.db.WithTx(r.Context(), func(st *storage.Store) error {
		var err error
		project, err = st.CreateProject(r.Context(), req.Name, hash, key)
		return err
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.logger.Info("project created", "project_id", project.ID, "name", project.Name)
	writeJSON(w, r, http.StatusCreated, model.ProjectKeyResponse{
		ID:        project.ID,
		Name:      project.Name,
		CreatedAt: project.CreatedAt,
		APIKey:    key,
	})
}

// HandleListProjects returns all projects with usage counters.
func (h *Handlers) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	if _, err := h.admin(r); err != nil {
		writeServiceError(w, r, err)
		return
	}

	items, err := h.db.Store().ListProjects(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, items)
}

// HandleRotateProjectKey replaces a project's api key. The old key stops
// working immediately and the new key must be used once before admin
// on-behalf ingest is accepted again.
func (h *Handlers) HandleRotateProjectKey(w http.ResponseWriter, r *http.Request) {
	if _, err := h.admin(r); err != nil {
		writeServiceError(w, r, err)
		return
	}
	projectID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	store := h.db.Store()
	project, err := store.GetProject(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	key, hash, err := auth.GenerateKey()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	err = h.db.WithTx(r.Context(), func(st *storage.Store) error {
		return st.RotateProjectKey(r.Context(), projectID, hash, key)
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.logger.Info("project key rotated", "project_id", projectID)
	writeJSON(w, r, http.StatusOK, model.ProjectKeyResponse{
		ID:        project.ID,
		Name:      project.Name,
		CreatedAt: project.CreatedAt,
		APIKey:    key,
	})
}

// HandleActivateProject re-enables a deactivated project.
func (h *Handlers) HandleActivateProject(w http.ResponseWriter, r *http.Request) {
	h.setProjectActive(w, r, true)
}

// HandleDeactivateProject disables a project. All of its keys stop
// resolving until reactivation.
func (h *Handlers) HandleDeactivateProject(w http.ResponseWriter, r *http.Request) {
	h.setProjectActive(w, r, false)
}

// HandleDeleteProject soft-deletes a project by deactivating it. Rows are
// retained for audit.
func (h *Handlers) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	h.setProjectActive(w, r, false)
}

func (h *Handlers) setProjectActive(w http.ResponseWriter, r *http.Request, active bool) {
	if _, err := h.admin(r); err != nil {
		writeServiceError(w, r, err)
		return
	}
	projectID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	err = h.db.WithTx(r.Context(), func(st *storage.Store) error {
		return st.SetProjectActive(r.Context(), projectID, active)
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.logger.Info("project active flag updated", "project_id", projectID, "is_active", active)
	writeJSON(w, r, http.StatusOK, map[string]any{"id": projectID, "is_active": active})
}

// HandleGetProjectCurrentKey returns the stored plaintext key, when one is
// still retained.
func (h *Handlers) HandleGetProjectCurrentKey(w http.ResponseWriter, r *http.Request) {
	if _, err := h.admin(r); err != nil {
		writeServiceError(w, r, err)
		return
	}
	projectID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	project, err := h.db.Store().GetProject(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.ProjectCurrentKeyResponse{
		ID:     project.ID,
		APIKey: project.CurrentAPIKey,
	})
}
