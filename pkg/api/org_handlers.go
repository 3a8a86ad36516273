package api

import (
	"net/http"

	"github.com/platinummonkey/fieldwork/pkg/audit"
	"github.com/platinummonkey/fieldwork/pkg/httputil"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

type organizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListOrganizations returns the organizations visible to the caller.
// Members see exactly their own organization.
func (h *Handlers) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	filter, ok := h.listFilter(w, r, user)
	if !ok {
		return
	}
	orgs, err := h.store.ListOrganizations(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, orgs)
}

// GetOrganization returns a single organization, or 404 when it does not
// exist or is not the caller's own
func (h *Handlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	org, err := h.store.GetOrganization(r.Context(), id)
	if err != nil {
		h.writeGetError(w, err)
		return
	}
	vis, ok := h.resolveVisibility(w, r, user)
	if !ok {
		return
	}
	if !vis.ContainsOrg(org.ID) {
		httputil.WriteNotFound(w, "not found")
		return
	}
	httputil.WriteSuccess(w, org)
}

// CreateOrganization provisions a new tenant. Superusers only; regular
// members never create organizations through the API.
func (h *Handlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	if !user.IsSuperuser {
		h.recordAuthz("organization", string(audit.ActionCreate), false)
		h.recordAudit(r.Context(), user, audit.ActionCreate, "organization", 0, audit.StatusDenied, "")
		httputil.WriteForbidden(w, "permission denied")
		return
	}
	var req organizationRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	org := &workflow.Organization{
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.store.CreateOrganization(r.Context(), org); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	h.allowed(r, user, audit.ActionCreate, "organization", org.ID)
	httputil.WriteCreated(w, org)
}

// UpdateOrganization modifies an organization. Requires the org-admin
// role on it.
func (h *Handlers) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	org, err := h.store.GetOrganization(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "organization", id, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, org.ID, 0); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionUpdate, "organization", id, err)
		return
	}

	var req organizationRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.Name != "" {
		org.Name = req.Name
	}
	if req.Description != "" {
		org.Description = req.Description
	}

	if err := h.store.UpdateOrganization(r.Context(), org); err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "organization", id, err)
		return
	}
	h.allowed(r, user, audit.ActionUpdate, "organization", id)
	httputil.WriteSuccess(w, org)
}

// DeleteOrganization removes a tenant and everything under it.
// Superusers only.
func (h *Handlers) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.store.GetOrganization(r.Context(), id); err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "organization", id, err)
		return
	}
	if !user.IsSuperuser {
		h.recordAuthz("organization", string(audit.ActionDelete), false)
		h.recordAudit(r.Context(), user, audit.ActionDelete, "organization", id, audit.StatusDenied, "")
		httputil.WriteForbidden(w, "permission denied")
		return
	}

	if err := h.store.DeleteOrganization(r.Context(), id); err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "organization", id, err)
		return
	}
	h.allowed(r, user, audit.ActionDelete, "organization", id)
	httputil.WriteNoContent(w)
}
