package api

import (
	"net/http"
	"time"

	"github.com/platinummonkey/fieldwork/pkg/audit"
	"github.com/platinummonkey/fieldwork/pkg/httputil"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

type milestoneRequest struct {
	OrganizationID int64      `json:"organization_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	DueDate        *time.Time `json:"due_date"`
}

// ListMilestones returns the milestones visible to the caller. Milestones
// are owned by organizations directly, so program-only visibility from a
// partner grant does not reach them.
func (h *Handlers) ListMilestones(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	filter, ok := h.listFilter(w, r, user)
	if !ok {
		return
	}
	milestones, err := h.store.ListMilestones(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, milestones)
}

// GetMilestone returns a single milestone. Milestones outside the
// caller's visibility report 404, the same as ones that do not exist.
func (h *Handlers) GetMilestone(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	m, err := h.store.GetMilestone(r.Context(), id)
	if err != nil {
		h.writeGetError(w, err)
		return
	}
	vis, ok := h.resolveVisibility(w, r, user)
	if !ok {
		return
	}
	if !vis.ContainsOrg(m.OrganizationID) {
		httputil.WriteNotFound(w, "not found")
		return
	}
	httputil.WriteSuccess(w, m)
}

// CreateMilestone creates a milestone in the requested organization.
// Requires the program-team role or better there.
func (h *Handlers) CreateMilestone(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	var req milestoneRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.OrganizationID == 0 || req.Name == "" {
		httputil.WriteBadRequest(w, "organization_id and name are required")
		return
	}

	if err := h.evaluator.CanCreate(r.Context(), user, req.OrganizationID, 0); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionCreate, "milestone", 0, err)
		return
	}

	m := &workflow.Milestone{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Description:    req.Description,
		DueDate:        req.DueDate,
		CreatedBy:      user.ID,
	}
	if err := h.store.CreateMilestone(r.Context(), m); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	h.allowed(r, user, audit.ActionCreate, "milestone", m.ID)
	httputil.WriteCreated(w, m)
}

// UpdateMilestone modifies a milestone. The lookup happens before the
// permission check so a missing milestone reports 404, not 403.
func (h *Handlers) UpdateMilestone(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	m, err := h.store.GetMilestone(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "milestone", id, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, m.OrganizationID, 0); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionUpdate, "milestone", id, err)
		return
	}

	var req milestoneRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.Name != "" {
		m.Name = req.Name
	}
	if req.Description != "" {
		m.Description = req.Description
	}
	if req.DueDate != nil {
		m.DueDate = req.DueDate
	}

	if err := h.store.UpdateMilestone(r.Context(), m); err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "milestone", id, err)
		return
	}
	h.allowed(r, user, audit.ActionUpdate, "milestone", id)
	httputil.WriteSuccess(w, m)
}

// DeleteMilestone removes a milestone. Same lookup-then-permission order
// as UpdateMilestone.
func (h *Handlers) DeleteMilestone(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	m, err := h.store.GetMilestone(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "milestone", id, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, m.OrganizationID, 0); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionDelete, "milestone", id, err)
		return
	}

	if err := h.store.DeleteMilestone(r.Context(), id); err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "milestone", id, err)
		return
	}
	h.allowed(r, user, audit.ActionDelete, "milestone", id)
	httputil.WriteNoContent(w)
}
