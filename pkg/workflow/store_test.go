package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrgWithProgram(t *testing.T, store *Store, orgName, programName string) (*Organization, *Program) {
	t.Helper()
	ctx := context.Background()

	org := &Organization{Name: orgName}
	require.NoError(t, store.CreateOrganization(ctx, org))

	program := &Program{OrganizationID: org.ID, Name: programName, CreatedBy: 1}
	require.NoError(t, store.CreateProgram(ctx, program))

	return org, program
}

func TestOrganizationCRUD(t *testing.T) {
	db := OpenTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	org := &Organization{Name: "Mercy Health", Description: "health programs"}
	require.NoError(t, store.CreateOrganization(ctx, org))
	require.NotZero(t, org.ID)

	t.Run("get", func(t *testing.T) {
		got, err := store.GetOrganization(ctx, org.ID)
		require.NoError(t, err)
		assert.Equal(t, "Mercy Health", got.Name)
		assert.Equal(t, "health programs", got.Description)
	})

	t.Run("update", func(t *testing.T) {
		org.Name = "Mercy Health International"
		require.NoError(t, store.UpdateOrganization(ctx, org))

		got, err := store.GetOrganization(ctx, org.ID)
		require.NoError(t, err)
		assert.Equal(t, "Mercy Health International", got.Name)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.GetOrganization(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update missing", func(t *testing.T) {
		err := store.UpdateOrganization(ctx, &Organization{ID: 9999, Name: "ghost"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeleteOrganization(ctx, org.ID))
		_, err := store.GetOrganization(ctx, org.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.DeleteOrganization(ctx, org.ID), ErrNotFound)
	})
}

func TestMembershipUniquePerUser(t *testing.T) {
	db := OpenTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	org, _ := seedOrgWithProgram(t, store, "Org A", "Program A")

	m := &Membership{UserID: 7, OrganizationID: org.ID}
	require.NoError(t, store.CreateMembership(ctx, m))

	dup := &Membership{UserID: 7, OrganizationID: org.ID}
	assert.ErrorIs(t, store.CreateMembership(ctx, dup), ErrDuplicate)

	got, err := store.GetMembershipByUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, org.ID, got.OrganizationID)

	_, err = store.GetMembershipByUser(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTeamAssignmentDuplicate(t *testing.T) {
	db := OpenTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	org, program := seedOrgWithProgram(t, store, "Org A", "Program A")

	m := &Membership{UserID: 1, OrganizationID: org.ID}
	require.NoError(t, store.CreateMembership(ctx, m))

	ta := &TeamAssignment{MembershipID: m.ID, ProgramID: program.ID, Role: RoleProgramTeam, PartnerOrgID: org.ID, CreatedBy: 1}
	require.NoError(t, store.CreateTeamAssignment(ctx, ta))

	dup := &TeamAssignment{MembershipID: m.ID, ProgramID: program.ID, Role: RoleProgramAdmin, PartnerOrgID: org.ID, CreatedBy: 1}
	assert.ErrorIs(t, store.CreateTeamAssignment(ctx, dup), ErrDuplicate)

	// A second assignment on a different program is fine
	program2 := &Program{OrganizationID: org.ID, Name: "Program B", CreatedBy: 1}
	require.NoError(t, store.CreateProgram(ctx, program2))
	ta2 := &TeamAssignment{MembershipID: m.ID, ProgramID: program2.ID, Role: RoleViewOnly, PartnerOrgID: org.ID, CreatedBy: 1}
	require.NoError(t, store.CreateTeamAssignment(ctx, ta2))

	assignments, err := store.ListAssignmentsForMembership(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, assignments, 2)
}

func TestScopedLists(t *testing.T) {
	db := OpenTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	orgA, programA := seedOrgWithProgram(t, store, "Org A", "Program A")
	orgB, programB := seedOrgWithProgram(t, store, "Org B", "Program B")

	require.NoError(t, store.CreateMilestone(ctx, &Milestone{OrganizationID: orgA.ID, Name: "A milestone", CreatedBy: 1}))
	require.NoError(t, store.CreateMilestone(ctx, &Milestone{OrganizationID: orgB.ID, Name: "B milestone", CreatedBy: 1}))

	projectA := &Project{ProgramID: programA.ID, Name: "A project", CreatedBy: 1}
	require.NoError(t, store.CreateProject(ctx, projectA))
	projectB := &Project{ProgramID: programB.ID, Name: "B project", CreatedBy: 1}
	require.NoError(t, store.CreateProject(ctx, projectB))

	require.NoError(t, store.CreateRiskRegister(ctx, &RiskRegister{ProjectID: projectA.ID, Name: "A risk", Likelihood: 2, Impact: 3, CreatedBy: 1}))
	require.NoError(t, store.CreateRiskRegister(ctx, &RiskRegister{ProjectID: projectB.ID, Name: "B risk", Likelihood: 1, Impact: 1, CreatedBy: 1}))

	indicatorA := &Indicator{ProgramID: programA.ID, Name: "A indicator", CreatedBy: 1}
	require.NoError(t, store.CreateIndicator(ctx, indicatorA))
	indicatorB := &Indicator{ProgramID: programB.ID, Name: "B indicator", CreatedBy: 1}
	require.NoError(t, store.CreateIndicator(ctx, indicatorB))

	require.NoError(t, store.CreateCollectedData(ctx, &CollectedData{IndicatorID: indicatorA.ID, Achieved: 10, CreatedBy: 1}))
	require.NoError(t, store.CreateCollectedData(ctx, &CollectedData{IndicatorID: indicatorB.ID, Achieved: 20, CreatedBy: 1}))

	t.Run("all filter sees everything", func(t *testing.T) {
		all := Filter{All: true}

		milestones, err := store.ListMilestones(ctx, all)
		require.NoError(t, err)
		assert.Len(t, milestones, 2)

		risks, err := store.ListRiskRegisters(ctx, all)
		require.NoError(t, err)
		assert.Len(t, risks, 2)

		data, err := store.ListCollectedData(ctx, all)
		require.NoError(t, err)
		assert.Len(t, data, 2)
	})

	t.Run("empty filter sees nothing", func(t *testing.T) {
		empty := Filter{}

		milestones, err := store.ListMilestones(ctx, empty)
		require.NoError(t, err)
		assert.Empty(t, milestones)

		indicators, err := store.ListIndicators(ctx, empty)
		require.NoError(t, err)
		assert.Empty(t, indicators)
	})

	t.Run("org filter scopes transitively", func(t *testing.T) {
		f := Filter{OrgIDs: []int64{orgA.ID}}

		milestones, err := store.ListMilestones(ctx, f)
		require.NoError(t, err)
		require.Len(t, milestones, 1)
		assert.Equal(t, "A milestone", milestones[0].Name)

		risks, err := store.ListRiskRegisters(ctx, f)
		require.NoError(t, err)
		require.Len(t, risks, 1)
		assert.Equal(t, "A risk", risks[0].Name)

		data, err := store.ListCollectedData(ctx, f)
		require.NoError(t, err)
		require.Len(t, data, 1)
		assert.Equal(t, indicatorA.ID, data[0].IndicatorID)
	})

	t.Run("program filter reaches program-owned resources only", func(t *testing.T) {
		f := Filter{ProgramIDs: []int64{programB.ID}}

		indicators, err := store.ListIndicators(ctx, f)
		require.NoError(t, err)
		require.Len(t, indicators, 1)
		assert.Equal(t, "B indicator", indicators[0].Name)

		// Milestones hang off the organization, so a program-only
		// grant does not expose them
		milestones, err := store.ListMilestones(ctx, f)
		require.NoError(t, err)
		assert.Empty(t, milestones)

		programs, err := store.ListPrograms(ctx, f)
		require.NoError(t, err)
		require.Len(t, programs, 1)
		assert.Equal(t, programB.ID, programs[0].ID)
	})

	t.Run("org and program filters combine", func(t *testing.T) {
		f := Filter{OrgIDs: []int64{orgA.ID}, ProgramIDs: []int64{programB.ID}}

		programs, err := store.ListPrograms(ctx, f)
		require.NoError(t, err)
		assert.Len(t, programs, 2)

		projects, err := store.ListProjects(ctx, f)
		require.NoError(t, err)
		assert.Len(t, projects, 2)
	})
}

func TestScopeResolution(t *testing.T) {
	db := OpenTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	org, program := seedOrgWithProgram(t, store, "Org A", "Program A")
	project := &Project{ProgramID: program.ID, Name: "Project", CreatedBy: 1}
	require.NoError(t, store.CreateProject(ctx, project))
	indicator := &Indicator{ProgramID: program.ID, Name: "Indicator", CreatedBy: 1}
	require.NoError(t, store.CreateIndicator(ctx, indicator))

	orgID, programID, err := store.ScopeForProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, orgID)
	assert.Equal(t, program.ID, programID)

	orgID, programID, err = store.ScopeForIndicator(ctx, indicator.ID)
	require.NoError(t, err)
	assert.Equal(t, org.ID, orgID)
	assert.Equal(t, program.ID, programID)

	_, _, err = store.ScopeForProject(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = store.ScopeForIndicator(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRoleRanking(t *testing.T) {
	assert.Greater(t, RoleOrgAdmin.Rank(), RoleProgramAdmin.Rank())
	assert.Greater(t, RoleProgramAdmin.Rank(), RoleProgramTeam.Rank())
	assert.Greater(t, RoleProgramTeam.Rank(), RoleViewOnly.Rank())
	assert.Equal(t, 0, Role("made_up").Rank())
	assert.False(t, Role("made_up").IsValid())

	assert.Equal(t, RoleOrgAdmin, MaxRole(RoleViewOnly, RoleOrgAdmin))
	assert.Equal(t, RoleProgramAdmin, MaxRole(RoleProgramAdmin, RoleViewOnly))
}
