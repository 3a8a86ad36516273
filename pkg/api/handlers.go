// Package api exposes the program-management domain over HTTP. Every
// resource route applies the same discipline: lists are filtered by the
// caller's visibility and never rejected, creates require the program-team
// role, mutations require the program-admin role, and a missing resource
// reports 404 before any permission check happens.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/fieldwork/pkg/audit"
	"github.com/platinummonkey/fieldwork/pkg/auth"
	"github.com/platinummonkey/fieldwork/pkg/export"
	"github.com/platinummonkey/fieldwork/pkg/httputil"
	"github.com/platinummonkey/fieldwork/pkg/middleware"
	"github.com/platinummonkey/fieldwork/pkg/observability"
	"github.com/platinummonkey/fieldwork/pkg/rbac"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

// Handlers holds the dependencies shared by every resource handler
type Handlers struct {
	store     *workflow.Store
	evaluator *rbac.Evaluator
	audit     audit.Logger
	auditRead *audit.DBLogger
	exporter  *export.Exporter
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// NewHandlers creates the handler set. The audit logger, exporter and
// metrics may be nil; the corresponding features degrade quietly.
func NewHandlers(store *workflow.Store, evaluator *rbac.Evaluator, auditLog *audit.DBLogger, exporter *export.Exporter, metrics *observability.Metrics, logger *observability.Logger) *Handlers {
	h := &Handlers{
		store:     store,
		evaluator: evaluator,
		auditRead: auditLog,
		exporter:  exporter,
		metrics:   metrics,
		logger:    logger,
	}
	if auditLog != nil {
		h.audit = auditLog
	} else {
		h.audit = audit.NopLogger{}
	}
	if logger == nil {
		h.logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return h
}

// RegisterRoutes mounts all resource routes on the given router,
// normally a subrouter under /api/v1
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/organizations", h.ListOrganizations).Methods("GET")
	router.HandleFunc("/organizations", h.CreateOrganization).Methods("POST")
	router.HandleFunc("/organizations/{id}", h.GetOrganization).Methods("GET")
	router.HandleFunc("/organizations/{id}", h.UpdateOrganization).Methods("PUT")
	router.HandleFunc("/organizations/{id}", h.DeleteOrganization).Methods("DELETE")

	router.HandleFunc("/programs", h.ListPrograms).Methods("GET")
	router.HandleFunc("/programs", h.CreateProgram).Methods("POST")
	router.HandleFunc("/programs/{id}", h.GetProgram).Methods("GET")
	router.HandleFunc("/programs/{id}", h.UpdateProgram).Methods("PUT")
	router.HandleFunc("/programs/{id}", h.DeleteProgram).Methods("DELETE")

	router.HandleFunc("/projects", h.ListProjects).Methods("GET")
	router.HandleFunc("/projects", h.CreateProject).Methods("POST")
	router.HandleFunc("/projects/{id}", h.GetProject).Methods("GET")
	router.HandleFunc("/projects/{id}", h.UpdateProject).Methods("PUT")
	router.HandleFunc("/projects/{id}", h.DeleteProject).Methods("DELETE")

	router.HandleFunc("/milestones", h.ListMilestones).Methods("GET")
	router.HandleFunc("/milestones", h.CreateMilestone).Methods("POST")
	router.HandleFunc("/milestones/{id}", h.GetMilestone).Methods("GET")
	router.HandleFunc("/milestones/{id}", h.UpdateMilestone).Methods("PUT")
	router.HandleFunc("/milestones/{id}", h.DeleteMilestone).Methods("DELETE")

	router.HandleFunc("/risk-registers", h.ListRiskRegisters).Methods("GET")
	router.HandleFunc("/risk-registers", h.CreateRiskRegister).Methods("POST")
	router.HandleFunc("/risk-registers/{id}", h.GetRiskRegister).Methods("GET")
	router.HandleFunc("/risk-registers/{id}", h.UpdateRiskRegister).Methods("PUT")
	router.HandleFunc("/risk-registers/{id}", h.DeleteRiskRegister).Methods("DELETE")

	router.HandleFunc("/team-assignments", h.ListTeamAssignments).Methods("GET")
	router.HandleFunc("/team-assignments", h.CreateTeamAssignment).Methods("POST")
	router.HandleFunc("/team-assignments/{id}", h.GetTeamAssignment).Methods("GET")
	router.HandleFunc("/team-assignments/{id}", h.UpdateTeamAssignment).Methods("PUT")
	router.HandleFunc("/team-assignments/{id}", h.DeleteTeamAssignment).Methods("DELETE")

	// /indicators/export must be registered before the {id} routes so the
	// literal path wins
	router.HandleFunc("/indicators/export", h.ExportIndicators).Methods("GET")
	router.HandleFunc("/indicators", h.ListIndicators).Methods("GET")
	router.HandleFunc("/indicators", h.CreateIndicator).Methods("POST")
	router.HandleFunc("/indicators/{id}", h.GetIndicator).Methods("GET")
	router.HandleFunc("/indicators/{id}", h.UpdateIndicator).Methods("PUT")
	router.HandleFunc("/indicators/{id}", h.DeleteIndicator).Methods("DELETE")

	router.HandleFunc("/collected-data/export", h.ExportCollectedData).Methods("GET")
	router.HandleFunc("/collected-data", h.ListCollectedData).Methods("GET")
	router.HandleFunc("/collected-data", h.CreateCollectedData).Methods("POST")
	router.HandleFunc("/collected-data/{id}", h.GetCollectedData).Methods("GET")
	router.HandleFunc("/collected-data/{id}", h.UpdateCollectedData).Methods("PUT")
	router.HandleFunc("/collected-data/{id}", h.DeleteCollectedData).Methods("DELETE")

	router.HandleFunc("/audit", h.ListAuditLog).Methods("GET")
}

// requireUser returns the authenticated user or writes a 401 response
func (h *Handlers) requireUser(w http.ResponseWriter, r *http.Request) *auth.User {
	user := middleware.GetUser(r)
	if user == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil
	}
	return user
}

func (h *Handlers) recordAuthz(resource, operation string, allowed bool) {
	if h.metrics != nil {
		h.metrics.RecordAuthzDecision(resource, operation, allowed)
	}
}

func (h *Handlers) recordAudit(ctx context.Context, user *auth.User, action audit.Action, resource string, id int64, status audit.Status, detail string) {
	entry := audit.Entry{
		Action:       action,
		ResourceType: resource,
		Status:       status,
		Detail:       detail,
	}
	if user != nil {
		entry.UserID = user.ID
	}
	if id != 0 {
		entry.ResourceID = strconv.FormatInt(id, 10)
	}
	h.audit.Record(ctx, entry)
}

// writeAuthzError maps an evaluator error to a response. Denials are
// always reported with the same generic message.
func (h *Handlers) writeAuthzError(w http.ResponseWriter, r *http.Request, user *auth.User, action audit.Action, resource string, id int64, err error) {
	if errors.Is(err, rbac.ErrPermissionDenied) {
		h.recordAuthz(resource, string(action), false)
		h.recordAudit(r.Context(), user, action, resource, id, audit.StatusDenied, "")
		httputil.WriteForbidden(w, "permission denied")
		return
	}
	h.recordAudit(r.Context(), user, action, resource, id, audit.StatusError, err.Error())
	httputil.WriteInternalError(w, err)
}

// writeLookupError maps a store lookup error to a response. Missing
// resources report 404 regardless of the caller's permissions.
func (h *Handlers) writeLookupError(w http.ResponseWriter, r *http.Request, user *auth.User, action audit.Action, resource string, id int64, err error) {
	if errors.Is(err, workflow.ErrNotFound) {
		h.recordAudit(r.Context(), user, action, resource, id, audit.StatusNotFound, "")
		httputil.WriteNotFound(w, "not found")
		return
	}
	h.recordAudit(r.Context(), user, action, resource, id, audit.StatusError, err.Error())
	httputil.WriteInternalError(w, err)
}

// writeGetError maps a store lookup error on a read. Reads are not
// audited.
func (h *Handlers) writeGetError(w http.ResponseWriter, err error) {
	if errors.Is(err, workflow.ErrNotFound) {
		httputil.WriteNotFound(w, "not found")
		return
	}
	httputil.WriteInternalError(w, err)
}

// allowed records a successful write for auditing and metrics
func (h *Handlers) allowed(r *http.Request, user *auth.User, action audit.Action, resource string, id int64) {
	h.recordAuthz(resource, string(action), true)
	h.recordAudit(r.Context(), user, action, resource, id, audit.StatusAllowed, "")
}

// resolveVisibility returns the caller's visibility set or writes a 500
func (h *Handlers) resolveVisibility(w http.ResponseWriter, r *http.Request, user *auth.User) (rbac.VisibilitySet, bool) {
	vis, err := h.evaluator.Resolver().Resolve(r.Context(), user)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return rbac.VisibilitySet{}, false
	}
	return vis, true
}

// listFilter computes the caller's list filter or writes a 500. Listing
// itself is never denied; an empty filter yields an empty result.
func (h *Handlers) listFilter(w http.ResponseWriter, r *http.Request, user *auth.User) (workflow.Filter, bool) {
	filter, err := h.evaluator.CanList(r.Context(), user)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return workflow.Filter{}, false
	}
	return filter, true
}

// ListAuditLog returns recent audit entries. Superusers only.
func (h *Handlers) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	user := h.requireUser(w, r)
	if user == nil {
		return
	}
	if !user.IsSuperuser {
		httputil.WriteForbidden(w, "permission denied")
		return
	}
	if h.auditRead == nil {
		httputil.WriteServiceUnavailable(w, "audit log not configured")
		return
	}

	q := audit.Query{
		ResourceType: r.URL.Query().Get("resource_type"),
		Status:       audit.Status(r.URL.Query().Get("status")),
	}
	if userID, err := httputil.ParseQueryInt64(r, "user_id", 0); err == nil {
		q.UserID = userID
	}
	if limit, err := httputil.ParseQueryInt64(r, "limit", 0); err == nil {
		q.Limit = int(limit)
	}

	entries, err := h.auditRead.List(r.Context(), q)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, entries)
}
