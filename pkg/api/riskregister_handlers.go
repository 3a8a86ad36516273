package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/fieldwork/pkg/audit"
	"github.com/platinummonkey/fieldwork/pkg/httputil"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

type riskRegisterRequest struct {
	ProjectID   int64  `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Likelihood  int    `json:"likelihood"`
	Impact      int    `json:"impact"`
	Mitigation  string `json:"mitigation"`
}

// ListRiskRegisters returns the risk register entries visible to the
// caller, scoped through project and program.
func (h *Handlers) ListRiskRegisters(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	filter, ok := h.listFilter(w, r, user)
	if !ok {
		return
	}
	risks, err := h.store.ListRiskRegisters(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, risks)
}

// GetRiskRegister returns a single risk register entry, or 404 when it
// does not exist or is outside the caller's visibility
func (h *Handlers) GetRiskRegister(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	risk, err := h.store.GetRiskRegister(r.Context(), id)
	if err != nil {
		h.writeGetError(w, err)
		return
	}
	_, programID, err := h.store.ScopeForProject(r.Context(), risk.ProjectID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	vis, ok := h.resolveVisibility(w, r, user)
	if !ok {
		return
	}
	if !vis.ContainsProgram(programID) {
		httputil.WriteNotFound(w, "not found")
		return
	}
	httputil.WriteSuccess(w, risk)
}

// CreateRiskRegister creates a risk register entry under a project
func (h *Handlers) CreateRiskRegister(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	var req riskRegisterRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.ProjectID == 0 || req.Name == "" {
		httputil.WriteBadRequest(w, "project_id and name are required")
		return
	}

	orgID, programID, err := h.store.ScopeForProject(r.Context(), req.ProjectID)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			httputil.WriteBadRequest(w, "unknown project")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	if err := h.evaluator.CanCreate(r.Context(), user, orgID, programID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionCreate, "risk_register", 0, err)
		return
	}

	risk := &workflow.RiskRegister{
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		Likelihood:  req.Likelihood,
		Impact:      req.Impact,
		Mitigation:  req.Mitigation,
		CreatedBy:   user.ID,
	}
	if err := h.store.CreateRiskRegister(r.Context(), risk); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	h.allowed(r, user, audit.ActionCreate, "risk_register", risk.ID)
	httputil.WriteCreated(w, risk)
}

// UpdateRiskRegister modifies a risk register entry. Lookup precedes the
// permission check.
func (h *Handlers) UpdateRiskRegister(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	risk, err := h.store.GetRiskRegister(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "risk_register", id, err)
		return
	}
	orgID, programID, err := h.store.ScopeForProject(r.Context(), risk.ProjectID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, orgID, programID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionUpdate, "risk_register", id, err)
		return
	}

	var req riskRegisterRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.Name != "" {
		risk.Name = req.Name
	}
	if req.Description != "" {
		risk.Description = req.Description
	}
	if req.Likelihood != 0 {
		risk.Likelihood = req.Likelihood
	}
	if req.Impact != 0 {
		risk.Impact = req.Impact
	}
	if req.Mitigation != "" {
		risk.Mitigation = req.Mitigation
	}

	if err := h.store.UpdateRiskRegister(r.Context(), risk); err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "risk_register", id, err)
		return
	}
	h.allowed(r, user, audit.ActionUpdate, "risk_register", id)
	httputil.WriteSuccess(w, risk)
}

// DeleteRiskRegister removes a risk register entry
func (h *Handlers) DeleteRiskRegister(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	risk, err := h.store.GetRiskRegister(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "risk_register", id, err)
		return
	}
	orgID, programID, err := h.store.ScopeForProject(r.Context(), risk.ProjectID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, orgID, programID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionDelete, "risk_register", id, err)
		return
	}

	if err := h.store.DeleteRiskRegister(r.Context(), id); err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "risk_register", id, err)
		return
	}
	h.allowed(r, user, audit.ActionDelete, "risk_register", id)
	httputil.WriteNoContent(w)
}
