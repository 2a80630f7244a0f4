package server

import (
	"net/http"
	"strconv"

	"github.com/tracehub-ai/tracehub/internal/model"
	"github.com/tracehub-ai/tracehub/internal/storage"
)

// HandleCreatePolicy creates a policy and its version 1 definition.
func (h *Handlers) HandleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	project, err := h.project(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var req model.PolicyCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}

	var (
		pol model.Policy
		ver model.PolicyVersion
	)
	err = h.db.WithTx(r.Context(), func(st *storage.Store) error {
		var err error
		pol, ver, err = st.CreatePolicy(r.Context(), project.ID, req)
		return err
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, model.PolicyCreateResponse{Policy: pol, Version: ver})
}

// HandleListPolicies returns all policies of the project.
func (h *Handlers) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	project, err := h.project(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	policies, err := h.db.Store().ListPolicies(r.Context(), project.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, policies)
}

// HandleListPolicyVersions returns all versions of one policy, newest first.
func (h *Handlers) HandleListPolicyVersions(w http.ResponseWriter, r *http.Request) {
	project, err := h.project(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	policyID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	store := h.db.Store()
	if _, err := store.GetPolicy(r.Context(), project.ID, policyID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	versions, err := store.ListPolicyVersions(r.Context(), policyID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, versions)
}

// HandleActivatePolicyVersion makes one version the policy's single active
// version.
func (h *Handlers) HandleActivatePolicyVersion(w http.ResponseWriter, r *http.Request) {
	project, err := h.project(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	policyID, err := pathUUID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	version, err := strconv.Atoi(r.URL.Query().Get("version"))
	if err != nil || version < 1 {
		writeServiceError(w, r, model.Validationf("version must be a positive integer"))
		return
	}

	if _, err := h.db.Store().GetPolicy(r.Context(), project.ID, policyID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	var activated model.PolicyVersion
	err = h.db.WithTx(r.Context(), func(st *storage.Store) error {
		var err error
		activated, err = st.ActivatePolicyVersion(r.Context(), policyID, version)
		return err
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, activated)
}
