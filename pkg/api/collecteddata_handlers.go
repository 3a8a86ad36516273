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

type collectedDataRequest struct {
	IndicatorID    int64      `json:"indicator_id"`
	Achieved       *float64   `json:"achieved"`
	Description    string     `json:"description"`
	CollectionDate *time.Time `json:"collection_date"`
}

// ListCollectedData returns the data points visible to the caller,
// scoped through indicator and program
func (h *Handlers) ListCollectedData(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	filter, ok := h.listFilter(w, r, user)
	if !ok {
		return
	}
	data, err := h.store.ListCollectedData(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, data)
}

// GetCollectedData returns a single data point, or 404 when it does not
// exist or is outside the caller's visibility
func (h *Handlers) GetCollectedData(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	data, err := h.store.GetCollectedData(r.Context(), id)
	if err != nil {
		h.writeGetError(w, err)
		return
	}
	_, programID, err := h.store.ScopeForIndicator(r.Context(), data.IndicatorID)
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
	httputil.WriteSuccess(w, data)
}

// CreateCollectedData records a data point against an indicator
func (h *Handlers) CreateCollectedData(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	var req collectedDataRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.IndicatorID == 0 {
		httputil.WriteBadRequest(w, "indicator_id is required")
		return
	}

	orgID, programID, err := h.store.ScopeForIndicator(r.Context(), req.IndicatorID)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			httputil.WriteBadRequest(w, "unknown indicator")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	if err := h.evaluator.CanCreate(r.Context(), user, orgID, programID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionCreate, "collected_data", 0, err)
		return
	}

	data := &workflow.CollectedData{
		IndicatorID:    req.IndicatorID,
		Description:    req.Description,
		CollectionDate: req.CollectionDate,
		CreatedBy:      user.ID,
	}
	if req.Achieved != nil {
		data.Achieved = *req.Achieved
	}
	if err := h.store.CreateCollectedData(r.Context(), data); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	h.allowed(r, user, audit.ActionCreate, "collected_data", data.ID)
	httputil.WriteCreated(w, data)
}

// UpdateCollectedData modifies a data point. Lookup precedes the
// permission check.
func (h *Handlers) UpdateCollectedData(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	data, err := h.store.GetCollectedData(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "collected_data", id, err)
		return
	}
	orgID, programID, err := h.store.ScopeForIndicator(r.Context(), data.IndicatorID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, orgID, programID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionUpdate, "collected_data", id, err)
		return
	}

	var req collectedDataRequest
	if !httputil.ParseBodyOrError(w, r, &req) {
		return
	}
	if req.Achieved != nil {
		data.Achieved = *req.Achieved
	}
	if req.Description != "" {
		data.Description = req.Description
	}
	if req.CollectionDate != nil {
		data.CollectionDate = req.CollectionDate
	}

	if err := h.store.UpdateCollectedData(r.Context(), data); err != nil {
		h.writeLookupError(w, r, user, audit.ActionUpdate, "collected_data", id, err)
		return
	}
	h.allowed(r, user, audit.ActionUpdate, "collected_data", id)
	httputil.WriteSuccess(w, data)
}

// DeleteCollectedData removes a data point
func (h *Handlers) DeleteCollectedData(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	data, err := h.store.GetCollectedData(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "collected_data", id, err)
		return
	}
	orgID, programID, err := h.store.ScopeForIndicator(r.Context(), data.IndicatorID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if err := h.evaluator.CanWrite(r.Context(), user, orgID, programID); err != nil {
		h.writeAuthzError(w, r, user, audit.ActionDelete, "collected_data", id, err)
		return
	}

	if err := h.store.DeleteCollectedData(r.Context(), id); err != nil {
		h.writeLookupError(w, r, user, audit.ActionDelete, "collected_data", id, err)
		return
	}
	h.allowed(r, user, audit.ActionDelete, "collected_data", id)
	httputil.WriteNoContent(w)
}

// ExportCollectedData streams the caller's visible data points as CSV
func (h *Handlers) ExportCollectedData(w http.ResponseWriter, r *http.Request) {
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
		fmt.Sprintf("attachment; filename=collected-data-%s.csv", time.Now().Format("2006-01-02")))
	if err := h.exporter.WriteCollectedDataCSV(r.Context(), filter, w); err != nil {
		h.logger.WithError(err).Error("collected data export failed mid-stream")
		return
	}
	h.recordAudit(r.Context(), user, audit.ActionExport, "collected_data", 0, audit.StatusAllowed, "")
}
