package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/fieldwork/pkg/audit"
	"github.com/platinummonkey/fieldwork/pkg/httputil"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

type teamAssignmentRequest struct {
	MembershipID int64  `json:"membership_id"`
	ProgramID    int64  `json:"program_id"`
	Role         string `json:"role"`
	PartnerOrgID int64  `json:"partner_org_id"`
}

// ListTeamAssignments returns the team assignments visible to the caller
func (h *Handlers) ListTeamAssignments(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	filter, ok := h.listFilter(w, r, user)
	if !ok {
		return
	}
	assignments, err := h.store.ListTeamAssignments(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, assignments)
}

// GetTeamAssignment returns a single team assignment, or 404 when it does
// not exist or is outside the caller's visibility
func (h *Handlers) GetTeamAssignment(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	ta, err := h.store.GetTeamAssignment(r.Context(), id)
	if err != nil {
		h.writeGetError(w, err)
		return
	}
	vis, ok := h.resolveVisibility(w, r, user)
	if !ok {
		return
	}
	if !vis.ContainsProgram(ta.ProgramID) {
		httputil.WriteNotFound(w, "not found")
		return
	}
	httputil.WriteSuccess(w, ta)
}

// CreateTeamAssignment grants a membership a role on a program. The
// program-team role is enough to add teammates, even though editing and
// removing them takes program admin; the asymmetry is intentional.
//
// Accepts JSON and form-encoded bodies. When partner_org_id is omitted it
// defaults to the creating user's own organization, which records on
// whose behalf a cross-organization invitation was made.
func (h *Handlers) CreateTeamAssignment(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	var req teamAssignmentRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.MembershipID == 0 || req.ProgramID == 0 {
		httputil.WriteBadRequest(w, "membership_id and program_id are required")
		return
	}
	role := workflow.Role(req.Role)
	if !role.IsValid() {
		httputil.WriteBadRequest(w, "invalid role")
		return
	}
	if role == workflow.RoleOrgAdmin {
		// org admin is granted on the membership, never per program
		httputil.WriteBadRequest(w, "invalid role")
		return
	}

	program, err := h.store.GetProgram(r.Context(), req.ProgramID)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			httputil.WriteBadRequest(w, "unknown program")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	if _, err := h.store.GetMembership(r.Context(), req.MembershipID); err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			httputil.WriteBadRequest(w, "unknown membership")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	if err := h.evaluator.CanCreate(r.Context(), user, program.OrganizationID, program.ID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionCreate, "team_assignment", 0, err)
		return
	}

	partnerOrgID := req.PartnerOrgID
	if partnerOrgID == 0 {
		if m, err := h.store.GetMembershipByUser(r.Context(), user.ID); err == nil {
			partnerOrgID = m.OrganizationID
		}
	}

	ta := &workflow.TeamAssignment{
		MembershipID: req.MembershipID,
		ProgramID:    req.ProgramID,
		Role:         role,
		PartnerOrgID: partnerOrgID,
		CreatedBy:    user.ID,
	}
	if err := h.store.CreateTeamAssignment(r.Context(), ta); err != nil {
		if errors.Is(err, workflow.ErrDuplicate) {
			httputil.WriteBadRequest(w, "assignment already exists for this membership and program")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	h.allowed(r, user, audit.ActionCreate, "team_assignment", ta.ID)
	httputil.WriteCreated(w, ta)
}

// UpdateTeamAssignment changes the role of an existing assignment.
// Unlike creation this requires program admin. Only the role is mutable;
// moving an assignment between programs or memberships is not supported.
func (h *Handlers) UpdateTeamAssignment(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	ta, err := h.store.GetTeamAssignment(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "team_assignment", id, err)
		return
	}
	program, err := h.store.GetProgram(r.Context(), ta.ProgramID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, program.OrganizationID, program.ID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionUpdate, "team_assignment", id, err)
		return
	}

	var req teamAssignmentRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.Role != "" {
		role := workflow.Role(req.Role)
		if !role.IsValid() || role == workflow.RoleOrgAdmin {
			httputil.WriteBadRequest(w, "invalid role")
			return
		}
		ta.Role = role
	}

	if err := h.store.UpdateTeamAssignment(r.Context(), ta); err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "team_assignment", id, err)
		return
	}
	h.allowed(r, user, audit.ActionUpdate, "team_assignment", id)
	httputil.WriteSuccess(w, ta)
}

// DeleteTeamAssignment revokes an assignment. Requires program admin.
func (h *Handlers) DeleteTeamAssignment(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	ta, err := h.store.GetTeamAssignment(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "team_assignment", id, err)
		return
	}
	program, err := h.store.GetProgram(r.Context(), ta.ProgramID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, program.OrganizationID, program.ID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionDelete, "team_assignment", id, err)
		return
	}

	if err := h.store.DeleteTeamAssignment(r.Context(), id); err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "team_assignment", id, err)
		return
	}
	h.allowed(r, user, audit.ActionDelete, "team_assignment", id)
	httputil.WriteNoContent(w)
}
