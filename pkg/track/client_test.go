package track

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fieldwork/pkg/config"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

func newTrackServer(t *testing.T, requests *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(requests, 1)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
	}))
}

func TestSyncOrganizationUpserts(t *testing.T) {
	var requests int64
	server := newTrackServer(t, &requests)
	defer server.Close()

	client, err := NewClient(config.TrackConfig{URL: server.URL, Token: "secret"})
	require.NoError(t, err)

	org := &workflow.Organization{ID: 7, Name: "Relief Intl"}
	require.NoError(t, client.SyncOrganization(context.Background(), org))
	assert.EqualValues(t, 1, requests)
}

func TestUnchangedRecordIsSkipped(t *testing.T) {
	var requests int64
	server := newTrackServer(t, &requests)
	defer server.Close()

	client, err := NewClient(config.TrackConfig{URL: server.URL, Token: "secret"})
	require.NoError(t, err)

	org := &workflow.Organization{ID: 7, Name: "Relief Intl"}
	ctx := context.Background()
	require.NoError(t, client.SyncOrganization(ctx, org))
	require.NoError(t, client.SyncOrganization(ctx, org))
	assert.EqualValues(t, 1, requests, "identical payload should not be pushed twice")

	org.Name = "Relief International"
	require.NoError(t, client.SyncOrganization(ctx, org))
	assert.EqualValues(t, 2, requests)
}

func TestPushFailureIsNotCached(t *testing.T) {
	var requests int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&requests, 1)
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(config.TrackConfig{URL: server.URL})
	require.NoError(t, err)

	org := &workflow.Organization{ID: 7, Name: "Relief Intl"}
	ctx := context.Background()
	require.Error(t, client.SyncOrganization(ctx, org))
	// retry of the same payload must go out again
	require.NoError(t, client.SyncOrganization(ctx, org))
	assert.EqualValues(t, 2, requests)
}

func TestSyncAll(t *testing.T) {
	type received struct {
		path    string
		payload map[string]interface{}
	}
	var got []received
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		got = append(got, received{path: r.URL.Path, payload: payload})
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	db := workflow.OpenTestDB(t)
	store := workflow.NewStore(db)
	ctx := context.Background()

	org := &workflow.Organization{Name: "Org"}
	require.NoError(t, store.CreateOrganization(ctx, org))
	program := &workflow.Program{OrganizationID: org.ID, Name: "Program", CreatedBy: 1}
	require.NoError(t, store.CreateProgram(ctx, program))
	m := &workflow.Membership{UserID: 10, OrganizationID: org.ID}
	require.NoError(t, store.CreateMembership(ctx, m))
	require.NoError(t, store.CreateTeamAssignment(ctx, &workflow.TeamAssignment{
		MembershipID: m.ID, ProgramID: program.ID, Role: workflow.RoleProgramTeam, PartnerOrgID: org.ID, CreatedBy: 1,
	}))

	client, err := NewClient(config.TrackConfig{URL: server.URL})
	require.NoError(t, err)
	syncer := NewSyncer(store, client)

	stats, err := syncer.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Organizations)
	assert.Equal(t, 1, stats.Programs)
	assert.Equal(t, 1, stats.TeamAssignments)
	assert.Equal(t, 0, stats.Errors)
	require.Len(t, got, 3)
	assert.Equal(t, "/api/organizations/", got[0].path)
	assert.Equal(t, "/api/programs/", got[1].path)
	assert.Equal(t, "/api/team-assignments/", got[2].path)
}

func TestSyncAllCountsErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	db := workflow.OpenTestDB(t)
	store := workflow.NewStore(db)
	ctx := context.Background()
	require.NoError(t, store.CreateOrganization(ctx, &workflow.Organization{Name: "Org"}))

	client, err := NewClient(config.TrackConfig{URL: server.URL})
	require.NoError(t, err)

	stats, err := NewSyncer(store, client).SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Organizations)
	assert.Equal(t, 1, stats.Errors)
}
