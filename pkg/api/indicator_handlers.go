package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/fieldwork/pkg/audit"
	"github.com/platinummonkey/fieldwork/pkg/httputil"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

type indicatorRequest struct {
	ProgramID   int64  `json:"program_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Number      string `json:"number"`
}

// ListIndicators returns the indicators visible to the caller
func (h *Handlers) ListIndicators(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	filter, ok := h.listFilter(w, r, user)
	if !ok {
		return
	}
	indicators, err := h.store.ListIndicators(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, indicators)
}

// GetIndicator returns a single indicator, or 404 when it does not exist
// or is outside the caller's visibility
func (h *Handlers) GetIndicator(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	indicator, err := h.store.GetIndicator(r.Context(), id)
	if err != nil {
		h.writeGetError(w, err)
		return
	}
	vis, ok := h.resolveVisibility(w, r, user)
	if !ok {
		return
	}
	if !vis.ContainsProgram(indicator.ProgramID) {
		httputil.WriteNotFound(w, "not found")
		return
	}
	httputil.WriteSuccess(w, indicator)
}

// CreateIndicator creates an indicator under a program
func (h *Handlers) CreateIndicator(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	var req indicatorRequest
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
		h.writeAuthzError(w, r, user, audit.ActionCreate, "indicator", 0, err)
		return
	}

	indicator := &workflow.Indicator{
		ProgramID:   req.ProgramID,
		Name:        req.Name,
		Description: req.Description,
		Number:      req.Number,
		CreatedBy:   user.ID,
	}
	if err := h.store.CreateIndicator(r.Context(), indicator); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	h.allowed(r, user, audit.ActionCreate, "indicator", indicator.ID)
	httputil.WriteCreated(w, indicator)
}

// UpdateIndicator modifies an indicator. Lookup precedes the permission
// check.
func (h *Handlers) UpdateIndicator(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	indicator, err := h.store.GetIndicator(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "indicator", id, err)
		return
	}
	program, err := h.store.GetProgram(r.Context(), indicator.ProgramID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, program.OrganizationID, program.ID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionUpdate, "indicator", id, err)
		return
	}

	var req indicatorRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.Name != "" {
		indicator.Name = req.Name
	}
	if req.Description != "" {
		indicator.Description = req.Description
	}
	if req.Number != "" {
		indicator.Number = req.Number
	}

	if err := h.store.UpdateIndicator(r.Context(), indicator); err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "indicator", id, err)
		return
	}
	h.allowed(r, user, audit.ActionUpdate, "indicator", id)
	httputil.WriteSuccess(w, indicator)
}

// DeleteIndicator removes an indicator
func (h *Handlers) DeleteIndicator(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	indicator, err := h.store.GetIndicator(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "indicator", id, err)
		return
	}
	program, err := h.store.GetProgram(r.Context(), indicator.ProgramID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, program.OrganizationID, program.ID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionDelete, "indicator", id, err)
		return
	}

	if err := h.store.DeleteIndicator(r.Context(), id); err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "indicator", id, err)
		return
	}
	h.allowed(r, user, audit.ActionDelete, "indicator", id)
	httputil.WriteNoContent(w)
}

// ExportIndicators streams the caller's visible indicators as CSV. The
// export honors the same visibility filter as listing.
func (h *Handlers) ExportIndicators(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	if h.exporter == nil {
		httputil.WriteServiceUnavailable(w, "export not configured")
		return
	}
	filter, ok := h.listFilter(w, r, user)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=indicators-%s.csv", time.Now().Format("2006-01-02")))
	if err := h.exporter.WriteIndicatorsCSV(r.Context(), filter, w); err != nil {
		// headers are gone; log instead of writing a second status
		h.logger.WithError(err).Error("indicator export failed mid-stream")
		return
	}
	h.recordAudit(r.Context(), user, audit.ActionExport, "indicator", 0, audit.StatusAllowed, "")
}
