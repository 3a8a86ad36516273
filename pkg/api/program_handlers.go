package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/fieldwork/pkg/audit"
	"github.com/platinummonkey/fieldwork/pkg/httputil"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

type programRequest struct {
	OrganizationID int64  `json:"organization_id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
}

type projectRequest struct {
	ProgramID   int64  `json:"program_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListPrograms returns the programs visible to the caller
func (h *Handlers) ListPrograms(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	filter, ok := h.listFilter(w, r, user)
	if !ok {
		return
	}
	programs, err := h.store.ListPrograms(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, programs)
}

// GetProgram returns a single program, or 404 when it does not exist or
// is outside the caller's visibility
func (h *Handlers) GetProgram(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	program, err := h.store.GetProgram(r.Context(), id)
	if err != nil {
		h.writeGetError(w, err)
		return
	}
	vis, ok := h.resolveVisibility(w, r, user)
	if !ok {
		return
	}
	if !vis.ContainsProgram(program.ID) {
		httputil.WriteNotFound(w, "not found")
		return
	}
	httputil.WriteSuccess(w, program)
}

// CreateProgram creates a program inside an organization. Programs are
// the unit of role grants, so creating one takes the org-admin role.
func (h *Handlers) CreateProgram(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	var req programRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.OrganizationID == 0 || req.Name == "" {
		httputil.WriteBadRequest(w, "organization_id and name are required")
		return
	}

	if err := h.evaluator.CanWrite(r.Context(), user, req.OrganizationID, 0); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionCreate, "program", 0, err)
		return
	}

	program := &workflow.Program{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Description:    req.Description,
		CreatedBy:      user.ID,
	}
	if err := h.store.CreateProgram(r.Context(), program); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	h.allowed(r, user, audit.ActionCreate, "program", program.ID)
	httputil.WriteCreated(w, program)
}

// UpdateProgram modifies a program. Lookup precedes the permission check.
func (h *Handlers) UpdateProgram(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	program, err := h.store.GetProgram(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "program", id, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, program.OrganizationID, program.ID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionUpdate, "program", id, err)
		return
	}

	var req programRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.Name != "" {
		program.Name = req.Name
	}
	if req.Description != "" {
		program.Description = req.Description
	}

	if err := h.store.UpdateProgram(r.Context(), program); err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "program", id, err)
		return
	}
	h.allowed(r, user, audit.ActionUpdate, "program", id)
	httputil.WriteSuccess(w, program)
}

// DeleteProgram removes a program
func (h *Handlers) DeleteProgram(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	program, err := h.store.GetProgram(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "program", id, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, program.OrganizationID, program.ID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionDelete, "program", id, err)
		return
	}

	if err := h.store.DeleteProgram(r.Context(), id); err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "program", id, err)
		return
	}
	h.allowed(r, user, audit.ActionDelete, "program", id)
	httputil.WriteNoContent(w)
}

// ListProjects returns the projects visible to the caller
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	filter, ok := h.listFilter(w, r, user)
	if !ok {
		return
	}
	projects, err := h.store.ListProjects(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, projects)
}

// GetProject returns a single project, or 404 when it does not exist or
// is outside the caller's visibility
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		h.writeGetError(w, err)
		return
	}
	vis, ok := h.resolveVisibility(w, r, user)
	if !ok {
		return
	}
	if !vis.ContainsProgram(project.ProgramID) {
		httputil.WriteNotFound(w, "not found")
		return
	}
	httputil.WriteSuccess(w, project)
}

// CreateProject creates a project under a program. The program-team role
// is enough.
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	var req projectRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.ProgramID == 0 || req.Name == "" {
		httputil.WriteBadRequest(w, "program_id and name are required")
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
	if err := h.evaluator.CanCreate(r.Context(), user, program.OrganizationID, program.ID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionCreate, "project", 0, err)
		return
	}

	project := &workflow.Project{
		ProgramID:   req.ProgramID,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   user.ID,
	}
	if err := h.store.CreateProject(r.Context(), project); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	h.allowed(r, user, audit.ActionCreate, "project", project.ID)
	httputil.WriteCreated(w, project)
}

// UpdateProject modifies a project. Lookup precedes the permission check.
func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "project", id, err)
		return
	}
	program, err := h.store.GetProgram(r.Context(), project.ProgramID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, program.OrganizationID, program.ID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionUpdate, "project", id, err)
		return
	}

	var req projectRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.Name != "" {
		project.Name = req.Name
	}
	if req.Description != "" {
		project.Description = req.Description
	}

	if err := h.store.UpdateProject(r.Context(), project); err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "project", id, err)
		return
	}
	h.allowed(r, user, audit.ActionUpdate, "project", id)
	httputil.WriteSuccess(w, project)
}

// DeleteProject removes a project
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "project", id, err)
		return
	}
	program, err := h.store.GetProgram(r.Context(), project.ProgramID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, program.OrganizationID, program.ID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionDelete, "project", id, err)
		return
	}

	if err := h.store.DeleteProject(r.Context(), id); err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "project", id, err)
		return
	}
	h.allowed(r, user, audit.ActionDelete, "project", id)
	httputil.WriteNoContent(w)
}
