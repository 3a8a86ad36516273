package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fieldwork/pkg/audit"
	"github.com/platinummonkey/fieldwork/pkg/auth"
	"github.com/platinummonkey/fieldwork/pkg/contextkeys"
	"github.com/platinummonkey/fieldwork/pkg/export"
	"github.com/platinummonkey/fieldwork/pkg/observability"
	"github.com/platinummonkey/fieldwork/pkg/rbac"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

// fixture seeds two organizations, each with a program, and mounts the
// full route table. Authentication is injected directly into the request
// context; the token middleware has its own tests.
type fixture struct {
	store    *workflow.Store
	router   *mux.Router
	audit    *audit.DBLogger
	orgA     *workflow.Organization
	orgB     *workflow.Organization
	programA *workflow.Program
	programB *workflow.Program
	nextUser int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := workflow.OpenTestDB(t)
	store := workflow.NewStore(db)
	ctx := context.Background()

	f := &fixture{store: store, nextUser: 100}

	f.orgA = &workflow.Organization{Name: "Org A"}
	require.NoError(t, store.CreateOrganization(ctx, f.orgA))
	f.orgB = &workflow.Organization{Name: "Org B"}
	require.NoError(t, store.CreateOrganization(ctx, f.orgB))

	f.programA = &workflow.Program{OrganizationID: f.orgA.ID, Name: "Program A", CreatedBy: 1}
	require.NoError(t, store.CreateProgram(ctx, f.programA))
	f.programB = &workflow.Program{OrganizationID: f.orgB.ID, Name: "Program B", CreatedBy: 1}
	require.NoError(t, store.CreateProgram(ctx, f.programB))

	f.audit = audit.NewDBLogger(db)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	evaluator := rbac.NewEvaluator(store)
	exporter := export.NewExporter(store, nil, logger)
	handlers := NewHandlers(store, evaluator, f.audit, exporter, nil, logger)

	f.router = mux.NewRouter()
	handlers.RegisterRoutes(f.router.PathPrefix("/api/v1").Subrouter())
	return f
}

// member creates a user with a membership in org, optionally org admin,
// plus a role assignment on each given program
func (f *fixture) member(t *testing.T, org *workflow.Organization, isOrgAdmin bool, role workflow.Role, programs ...*workflow.Program) (*auth.User, *workflow.Membership) {
	t.Helper()
	ctx := context.Background()

	f.nextUser++
	user := &auth.User{ID: f.nextUser, Username: fmt.Sprintf("user%d", f.nextUser), IsActive: true}

	m := &workflow.Membership{UserID: user.ID, OrganizationID: org.ID, IsOrgAdmin: isOrgAdmin}
	require.NoError(t, f.store.CreateMembership(ctx, m))

	for _, p := range programs {
		ta := &workflow.TeamAssignment{
			MembershipID: m.ID,
			ProgramID:    p.ID,
			Role:         role,
			PartnerOrgID: org.ID,
			CreatedBy:    1,
		}
		require.NoError(t, f.store.CreateTeamAssignment(ctx, ta))
	}
	return user, m
}

func (f *fixture) superuser() *auth.User {
	return &auth.User{ID: 1, Username: "root", IsSuperuser: true, IsActive: true}
}

func (f *fixture) do(t *testing.T, user *auth.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req = req.WithContext(contextkeys.WithAuth(req.Context(), &auth.AuthContext{User: user}))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seedMilestone(t *testing.T, org *workflow.Organization) *workflow.Milestone {
	t.Helper()
	m := &workflow.Milestone{OrganizationID: org.ID, Name: "Baseline survey", CreatedBy: 1}
	require.NoError(t, f.store.CreateMilestone(context.Background(), m))
	return m
}

func (f *fixture) seedIndicator(t *testing.T, program *workflow.Program) *workflow.Indicator {
	t.Helper()
	i := &workflow.Indicator{ProgramID: program.ID, Name: "Households reached", Number: "1.1", CreatedBy: 1}
	require.NoError(t, f.store.CreateIndicator(context.Background(), i))
	return i
}

func decodeList[T any](t *testing.T, rec *httptest.ResponseRecorder) []T {
	t.Helper()
	var out []T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestListScopedByRole(t *testing.T) {
	f := newFixture(t)
	f.seedIndicator(t, f.programA)
	f.seedIndicator(t, f.programB)
	f.seedMilestone(t, f.orgA)
	f.seedMilestone(t, f.orgB)

	viewer, _ := f.member(t, f.orgA, false, workflow.RoleViewOnly, f.programA)
	partner, _ := f.member(t, f.orgB, false, workflow.RoleProgramTeam, f.programA)
	outsider := &auth.User{ID: 9999, Username: "nobody", IsActive: true}

	t.Run("member sees own org indicators", func(t *testing.T) {
		rec := f.do(t, viewer, "GET", "/api/v1/indicators", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeList[workflow.Indicator](t, rec), 1)
	})

	t.Run("partner sees both own org and granted program", func(t *testing.T) {
		rec := f.do(t, partner, "GET", "/api/v1/indicators", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeList[workflow.Indicator](t, rec), 2)
	})

	t.Run("milestones do not leak through program grants", func(t *testing.T) {
		rec := f.do(t, partner, "GET", "/api/v1/milestones", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		milestones := decodeList[workflow.Milestone](t, rec)
		require.Len(t, milestones, 1)
		assert.Equal(t, f.orgB.ID, milestones[0].OrganizationID)
	})

	t.Run("superuser sees everything", func(t *testing.T) {
		rec := f.do(t, f.superuser(), "GET", "/api/v1/indicators", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeList[workflow.Indicator](t, rec), 2)
	})

	t.Run("user without membership gets empty list not error", func(t *testing.T) {
		rec := f.do(t, outsider, "GET", "/api/v1/indicators", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeList[workflow.Indicator](t, rec))
	})

	t.Run("unauthenticated gets 401", func(t *testing.T) {
		rec := f.do(t, nil, "GET", "/api/v1/indicators", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestCreateMilestoneByRole(t *testing.T) {
	f := newFixture(t)
	viewer, _ := f.member(t, f.orgA, false, workflow.RoleViewOnly, f.programA)
	team, _ := f.member(t, f.orgA, false, workflow.RoleProgramTeam, f.programA)

	body := map[string]interface{}{"organization_id": f.orgA.ID, "name": "Quarterly report"}

	t.Run("view only is denied with a generic message", func(t *testing.T) {
		rec := f.do(t, viewer, "POST", "/api/v1/milestones", body)
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "permission denied")
		assert.NotContains(t, rec.Body.String(), "view")
	})

	t.Run("program team may create", func(t *testing.T) {
		rec := f.do(t, team, "POST", "/api/v1/milestones", body)
		require.Equal(t, http.StatusCreated, rec.Code)
		var m workflow.Milestone
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
		assert.Equal(t, team.ID, m.CreatedBy)
	})

	t.Run("missing fields get 400", func(t *testing.T) {
		rec := f.do(t, team, "POST", "/api/v1/milestones", map[string]interface{}{"name": "No org"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWriteRequiresProgramAdmin(t *testing.T) {
	f := newFixture(t)
	milestone := f.seedMilestone(t, f.orgA)
	team, _ := f.member(t, f.orgA, false, workflow.RoleProgramTeam, f.programA)
	admin, _ := f.member(t, f.orgA, true, workflow.RoleOrgAdmin)

	t.Run("program team cannot update", func(t *testing.T) {
		rec := f.do(t, team, "PUT", fmt.Sprintf("/api/v1/milestones/%d", milestone.ID),
			map[string]interface{}{"name": "Renamed"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("org admin can update", func(t *testing.T) {
		rec := f.do(t, admin, "PUT", fmt.Sprintf("/api/v1/milestones/%d", milestone.ID),
			map[string]interface{}{"name": "Renamed"})
		require.Equal(t, http.StatusOK, rec.Code)
		var m workflow.Milestone
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
		assert.Equal(t, "Renamed", m.Name)
	})

	t.Run("org admin can delete", func(t *testing.T) {
		rec := f.do(t, admin, "DELETE", fmt.Sprintf("/api/v1/milestones/%d", milestone.ID), nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestNotFoundBeforePermission(t *testing.T) {
	f := newFixture(t)
	viewer, _ := f.member(t, f.orgA, false, workflow.RoleViewOnly, f.programA)

	t.Run("superuser updating missing id gets 404", func(t *testing.T) {
		rec := f.do(t, f.superuser(), "PUT", "/api/v1/milestones/99999",
			map[string]interface{}{"name": "x"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("view only updating missing id gets 404 not 403", func(t *testing.T) {
		rec := f.do(t, viewer, "PUT", "/api/v1/milestones/99999",
			map[string]interface{}{"name": "x"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete missing id gets 404", func(t *testing.T) {
		rec := f.do(t, f.superuser(), "DELETE", "/api/v1/indicators/99999", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCrossOrgIsolation(t *testing.T) {
	f := newFixture(t)
	milestone := f.seedMilestone(t, f.orgA)
	adminB, _ := f.member(t, f.orgB, true, workflow.RoleOrgAdmin)

	t.Run("admin of another org cannot update", func(t *testing.T) {
		rec := f.do(t, adminB, "PUT", fmt.Sprintf("/api/v1/milestones/%d", milestone.ID),
			map[string]interface{}{"name": "Hijacked"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("resource outside visibility reads as 404", func(t *testing.T) {
		rec := f.do(t, adminB, "GET", fmt.Sprintf("/api/v1/milestones/%d", milestone.ID), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTeamAssignmentLifecycle(t *testing.T) {
	f := newFixture(t)
	team, _ := f.member(t, f.orgA, false, workflow.RoleProgramTeam, f.programA)
	admin, _ := f.member(t, f.orgA, true, workflow.RoleOrgAdmin)
	_, inviteeMembership := f.member(t, f.orgB, false, workflow.RoleViewOnly)

	body := map[string]interface{}{
		"membership_id": inviteeMembership.ID,
		"program_id":    f.programA.ID,
		"role":          "view_only",
	}

	var created workflow.TeamAssignment

	t.Run("program team may add a teammate", func(t *testing.T) {
		rec := f.do(t, team, "POST", "/api/v1/team-assignments", body)
		require.Equal(t, http.StatusCreated, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		// partner org defaults to the creator's own organization
		assert.Equal(t, f.orgA.ID, created.PartnerOrgID)
	})

	t.Run("duplicate assignment gets 400", func(t *testing.T) {
		rec := f.do(t, team, "POST", "/api/v1/team-assignments", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("program team cannot edit the teammate it added", func(t *testing.T) {
		rec := f.do(t, team, "PUT", fmt.Sprintf("/api/v1/team-assignments/%d", created.ID),
			map[string]interface{}{"role": "program_admin"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("program team cannot remove the teammate it added", func(t *testing.T) {
		rec := f.do(t, team, "DELETE", fmt.Sprintf("/api/v1/team-assignments/%d", created.ID), nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("org admin may edit", func(t *testing.T) {
		rec := f.do(t, admin, "PUT", fmt.Sprintf("/api/v1/team-assignments/%d", created.ID),
			map[string]interface{}{"role": "program_team"})
		require.Equal(t, http.StatusOK, rec.Code)
		var ta workflow.TeamAssignment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ta))
		assert.Equal(t, workflow.RoleProgramTeam, ta.Role)
	})

	t.Run("org admin may remove", func(t *testing.T) {
		rec := f.do(t, admin, "DELETE", fmt.Sprintf("/api/v1/team-assignments/%d", created.ID), nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("invalid role gets 400", func(t *testing.T) {
		bad := map[string]interface{}{
			"membership_id": inviteeMembership.ID,
			"program_id":    f.programA.ID,
			"role":          "owner",
		}
		rec := f.do(t, admin, "POST", "/api/v1/team-assignments", bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTeamAssignmentFormBody(t *testing.T) {
	f := newFixture(t)
	admin, _ := f.member(t, f.orgA, true, workflow.RoleOrgAdmin)
	_, inviteeMembership := f.member(t, f.orgB, false, workflow.RoleViewOnly)

	form := url.Values{}
	form.Set("membership_id", fmt.Sprintf("%d", inviteeMembership.ID))
	form.Set("program_id", fmt.Sprintf("%d", f.programA.ID))
	form.Set("role", "view_only")

	req := httptest.NewRequest("POST", "/api/v1/team-assignments", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(contextkeys.WithAuth(req.Context(), &auth.AuthContext{User: admin}))

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var ta workflow.TeamAssignment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ta))
	assert.Equal(t, workflow.RoleViewOnly, ta.Role)
	assert.Equal(t, f.orgA.ID, ta.PartnerOrgID)
}

func TestIndicatorExport(t *testing.T) {
	f := newFixture(t)
	f.seedIndicator(t, f.programA)
	f.seedIndicator(t, f.programB)
	viewer, _ := f.member(t, f.orgA, false, workflow.RoleViewOnly, f.programA)

	rec := f.do(t, viewer, "GET", "/api/v1/indicators/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	// header plus the one visible indicator; org B's is excluded
	assert.Len(t, records, 2)
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t)
	milestone := f.seedMilestone(t, f.orgA)
	viewer, _ := f.member(t, f.orgA, false, workflow.RoleViewOnly, f.programA)

	rec := f.do(t, viewer, "PUT", fmt.Sprintf("/api/v1/milestones/%d", milestone.ID),
		map[string]interface{}{"name": "x"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	t.Run("denial is recorded", func(t *testing.T) {
		rec := f.do(t, f.superuser(), "GET", "/api/v1/audit?status=denied", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		entries := decodeList[audit.Entry](t, rec)
		require.Len(t, entries, 1)
		assert.Equal(t, viewer.ID, entries[0].UserID)
		assert.Equal(t, "milestone", entries[0].ResourceType)
	})

	t.Run("audit listing is superuser only", func(t *testing.T) {
		rec := f.do(t, viewer, "GET", "/api/v1/audit", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestOrganizationVisibility(t *testing.T) {
	f := newFixture(t)
	viewer, _ := f.member(t, f.orgA, false, workflow.RoleViewOnly, f.programA)

	t.Run("member lists only own org", func(t *testing.T) {
		rec := f.do(t, viewer, "GET", "/api/v1/organizations", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		orgs := decodeList[workflow.Organization](t, rec)
		require.Len(t, orgs, 1)
		assert.Equal(t, f.orgA.ID, orgs[0].ID)
	})

	t.Run("other org reads as 404", func(t *testing.T) {
		rec := f.do(t, viewer, "GET", fmt.Sprintf("/api/v1/organizations/%d", f.orgB.ID), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("only superusers create organizations", func(t *testing.T) {
		rec := f.do(t, viewer, "POST", "/api/v1/organizations", map[string]interface{}{"name": "New Org"})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = f.do(t, f.superuser(), "POST", "/api/v1/organizations", map[string]interface{}{"name": "New Org"})
		assert.Equal(t, http.StatusCreated, rec.Code)
	})
}

func TestProjectAndRiskRegisterFlow(t *testing.T) {
	f := newFixture(t)
	team, _ := f.member(t, f.orgA, false, workflow.RoleProgramTeam, f.programA)
	admin, _ := f.member(t, f.orgA, true, workflow.RoleOrgAdmin)

	var project workflow.Project
	rec := f.do(t, team, "POST", "/api/v1/projects", map[string]interface{}{
		"program_id": f.programA.ID, "name": "Well drilling",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))

	var risk workflow.RiskRegister
	rec = f.do(t, team, "POST", "/api/v1/risk-registers", map[string]interface{}{
		"project_id": project.ID, "name": "Drought", "likelihood": 3, "impact": 4,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &risk))

	t.Run("creator with team role cannot mutate", func(t *testing.T) {
		rec := f.do(t, team, "PUT", fmt.Sprintf("/api/v1/risk-registers/%d", risk.ID),
			map[string]interface{}{"impact": 5})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("org admin mutates transitively scoped resource", func(t *testing.T) {
		rec := f.do(t, admin, "PUT", fmt.Sprintf("/api/v1/risk-registers/%d", risk.ID),
			map[string]interface{}{"impact": 5})
		require.Equal(t, http.StatusOK, rec.Code)
		var updated workflow.RiskRegister
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
		assert.Equal(t, 5, updated.Impact)
	})

	t.Run("unknown project on create gets 400", func(t *testing.T) {
		rec := f.do(t, admin, "POST", "/api/v1/risk-registers", map[string]interface{}{
			"project_id": 99999, "name": "Orphan",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCollectedDataFlow(t *testing.T) {
	f := newFixture(t)
	indicator := f.seedIndicator(t, f.programA)
	team, _ := f.member(t, f.orgA, false, workflow.RoleProgramTeam, f.programA)
	partner, _ := f.member(t, f.orgB, false, workflow.RoleProgramTeam, f.programA)

	var point workflow.CollectedData
	rec := f.do(t, team, "POST", "/api/v1/collected-data", map[string]interface{}{
		"indicator_id": indicator.ID, "achieved": 42.0,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &point))
	assert.Equal(t, 42.0, point.Achieved)

	t.Run("partner grant reaches collected data", func(t *testing.T) {
		rec := f.do(t, partner, "GET", "/api/v1/collected-data", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeList[workflow.CollectedData](t, rec), 1)
	})

	t.Run("unknown indicator on create gets 400", func(t *testing.T) {
		rec := f.do(t, team, "POST", "/api/v1/collected-data", map[string]interface{}{
			"indicator_id": 99999, "achieved": 1.0,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
