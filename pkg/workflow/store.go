package workflow

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Store implements workflow persistence on PostgreSQL
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// isUniqueViolation detects duplicate-key errors from the driver
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	// sqlite in tests
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

// inClause appends ids to args and returns "column IN ($n, ...)"
func inClause(column string, ids []int64, args *[]interface{}) string {
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		*args = append(*args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(*args))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", "))
}

// scopeClause builds the visibility predicate for a filter over an
// organization column and/or a program column. Callers must have handled
// Filter.All and empty filters already.
func scopeClause(orgColumn, programColumn string, f Filter, args *[]interface{}) string {
	var parts []string
	if orgColumn != "" && len(f.OrgIDs) > 0 {
		parts = append(parts, inClause(orgColumn, f.OrgIDs, args))
	}
	if programColumn != "" && len(f.ProgramIDs) > 0 {
		parts = append(parts, inClause(programColumn, f.ProgramIDs, args))
	}
	if len(parts) == 0 {
		// Nothing visible through the columns this resource exposes
		return "1 = 0"
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// CreateOrganization creates a new organization
func (s *Store) CreateOrganization(ctx context.Context, org *Organization) error {
	now := time.Now()
	org.CreatedAt = now
	org.UpdatedAt = now
	query := `
		INSERT INTO organizations (name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query, org.Name, org.Description, org.CreatedAt, org.UpdatedAt).Scan(&org.ID)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// GetOrganization retrieves an organization by ID
func (s *Store) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM organizations
		WHERE id = $1`
	org := &Organization{}
	var description sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID, &org.Name, &description, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	org.Description = description.String
	return org, nil
}

// UpdateOrganization updates an organization
func (s *Store) UpdateOrganization(ctx context.Context, org *Organization) error {
	org.UpdatedAt = time.Now()
	query := `
		UPDATE organizations
		SET name = $1, description = $2, updated_at = $3
		WHERE id = $4`
	result, err := s.db.ExecContext(ctx, query, org.Name, org.Description, org.UpdatedAt, org.ID)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return checkAffected(result)
}

// DeleteOrganization deletes an organization
func (s *Store) DeleteOrganization(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return checkAffected(result)
}

// ListOrganizations lists organizations visible through the filter
func (s *Store) ListOrganizations(ctx context.Context, f Filter) ([]*Organization, error) {
	if f.IsEmpty() {
		return []*Organization{}, nil
	}
	query := `
		SELECT id, name, description, created_at, updated_at
		FROM organizations`
	var args []interface{}
	if !f.All {
		if len(f.OrgIDs) == 0 {
			return []*Organization{}, nil
		}
		query += " WHERE " + inClause("id", f.OrgIDs, &args)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := []*Organization{}
	for rows.Next() {
		org := &Organization{}
		var description sql.NullString
		if err := rows.Scan(&org.ID, &org.Name, &description, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		org.Description = description.String
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// CreateMembership creates a new membership. A user may hold only one.
func (s *Store) CreateMembership(ctx context.Context, m *Membership) error {
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now
	query := `
		INSERT INTO memberships (user_id, organization_id, title, is_org_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query,
		m.UserID, m.OrganizationID, m.Title, m.IsOrgAdmin, m.CreatedAt, m.UpdatedAt).Scan(&m.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// GetMembershipByUser retrieves the membership for a user.
// Returns ErrNotFound for a user with no organization.
func (s *Store) GetMembershipByUser(ctx context.Context, userID int64) (*Membership, error) {
	query := `
		SELECT id, user_id, organization_id, title, is_org_admin, created_at, updated_at
		FROM memberships
		WHERE user_id = $1`
	m := &Membership{}
	var title sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&m.ID, &m.UserID, &m.OrganizationID, &title, &m.IsOrgAdmin, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.Title = title.String
	return m, nil
}

// GetMembership retrieves a membership by ID
func (s *Store) GetMembership(ctx context.Context, id int64) (*Membership, error) {
	query := `
		SELECT id, user_id, organization_id, title, is_org_admin, created_at, updated_at
		FROM memberships
		WHERE id = $1`
	m := &Membership{}
	var title sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.UserID, &m.OrganizationID, &title, &m.IsOrgAdmin, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	m.Title = title.String
	return m, nil
}

// CreateProgram creates a new program
func (s *Store) CreateProgram(ctx context.Context, p *Program) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	query := `
		INSERT INTO programs (organization_id, name, description, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query,
		p.OrganizationID, p.Name, p.Description, p.CreatedBy, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create program: %w", err)
	}
	return nil
}

// GetProgram retrieves a program by ID
func (s *Store) GetProgram(ctx context.Context, id int64) (*Program, error) {
	query := `
		SELECT id, organization_id, name, description, created_by, created_at, updated_at
		FROM programs
		WHERE id = $1`
	p := &Program{}
	var description sql.NullString
	var createdBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.OrganizationID, &p.Name, &description, &createdBy, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get program: %w", err)
	}
	p.Description = description.String
	p.CreatedBy = createdBy.Int64
	return p, nil
}

// UpdateProgram updates a program
func (s *Store) UpdateProgram(ctx context.Context, p *Program) error {
	p.UpdatedAt = time.Now()
	query := `
		UPDATE programs
		SET name = $1, description = $2, updated_at = $3
		WHERE id = $4`
	result, err := s.db.ExecContext(ctx, query, p.Name, p.Description, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update program: %w", err)
	}
	return checkAffected(result)
}

// DeleteProgram deletes a program
func (s *Store) DeleteProgram(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM programs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete program: %w", err)
	}
	return checkAffected(result)
}

// ListPrograms lists programs visible through the filter: programs owned
// by a visible organization plus programs granted directly.
func (s *Store) ListPrograms(ctx context.Context, f Filter) ([]*Program, error) {
	if f.IsEmpty() {
		return []*Program{}, nil
	}
	query := `
		SELECT id, organization_id, name, description, created_by, created_at, updated_at
		FROM programs`
	var args []interface{}
	if !f.All {
		query += " WHERE " + scopeClause("organization_id", "id", f, &args)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer rows.Close()

	programs := []*Program{}
	for rows.Next() {
		p := &Program{}
		var description sql.NullString
		var createdBy sql.NullInt64
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Name, &description, &createdBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		p.Description = description.String
		p.CreatedBy = createdBy.Int64
		programs = append(programs, p)
	}
	return programs, rows.Err()
}

// ListProgramIDsByOrg returns the IDs of all programs owned by an organization
func (s *Store) ListProgramIDsByOrg(ctx context.Context, orgID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM programs WHERE organization_id = $1`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list program ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan program id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateProject creates a new project
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	query := `
		INSERT INTO projects (program_id, name, description, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query,
		p.ProgramID, p.Name, p.Description, p.CreatedBy, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by ID
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	query := `
		SELECT id, program_id, name, description, created_by, created_at, updated_at
		FROM projects
		WHERE id = $1`
	p := &Project{}
	var description sql.NullString
	var createdBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.ProgramID, &p.Name, &description, &createdBy, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.Description = description.String
	p.CreatedBy = createdBy.Int64
	return p, nil
}

// UpdateProject updates a project
func (s *Store) UpdateProject(ctx context.Context, p *Project) error {
	p.UpdatedAt = time.Now()
	query := `
		UPDATE projects
		SET name = $1, description = $2, updated_at = $3
		WHERE id = $4`
	result, err := s.db.ExecContext(ctx, query, p.Name, p.Description, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return checkAffected(result)
}

// DeleteProject deletes a project
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return checkAffected(result)
}

// ListProjects lists projects whose program is visible through the filter
func (s *Store) ListProjects(ctx context.Context, f Filter) ([]*Project, error) {
	if f.IsEmpty() {
		return []*Project{}, nil
	}
	query := `
		SELECT p.id, p.program_id, p.name, p.description, p.created_by, p.created_at, p.updated_at
		FROM projects p`
	var args []interface{}
	if !f.All {
		query += `
		JOIN programs pr ON pr.id = p.program_id
		WHERE ` + scopeClause("pr.organization_id", "p.program_id", f, &args)
	}
	query += " ORDER BY p.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []*Project{}
	for rows.Next() {
		p := &Project{}
		var description sql.NullString
		var createdBy sql.NullInt64
		if err := rows.Scan(&p.ID, &p.ProgramID, &p.Name, &description, &createdBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Description = description.String
		p.CreatedBy = createdBy.Int64
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CreateTeamAssignment creates a team assignment. The (membership, program)
// pair is unique; a duplicate surfaces as ErrDuplicate.
func (s *Store) CreateTeamAssignment(ctx context.Context, ta *TeamAssignment) error {
	now := time.Now()
	ta.CreatedAt = now
	ta.UpdatedAt = now
	query := `
		INSERT INTO team_assignments (membership_id, program_id, role, partner_org_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query,
		ta.MembershipID, ta.ProgramID, string(ta.Role), ta.PartnerOrgID, ta.CreatedBy, ta.CreatedAt, ta.UpdatedAt).Scan(&ta.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create team assignment: %w", err)
	}
	return nil
}

// GetTeamAssignment retrieves a team assignment by ID
func (s *Store) GetTeamAssignment(ctx context.Context, id int64) (*TeamAssignment, error) {
	query := `
		SELECT id, membership_id, program_id, role, partner_org_id, created_by, created_at, updated_at
		FROM team_assignments
		WHERE id = $1`
	ta := &TeamAssignment{}
	var partnerOrgID, createdBy sql.NullInt64
	var role string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ta.ID, &ta.MembershipID, &ta.ProgramID, &role, &partnerOrgID, &createdBy, &ta.CreatedAt, &ta.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team assignment: %w", err)
	}
	ta.Role = Role(role)
	ta.PartnerOrgID = partnerOrgID.Int64
	ta.CreatedBy = createdBy.Int64
	return ta, nil
}

// UpdateTeamAssignment updates a team assignment's role and partner org
func (s *Store) UpdateTeamAssignment(ctx context.Context, ta *TeamAssignment) error {
	ta.UpdatedAt = time.Now()
	query := `
		UPDATE team_assignments
		SET role = $1, partner_org_id = $2, updated_at = $3
		WHERE id = $4`
	result, err := s.db.ExecContext(ctx, query, string(ta.Role), ta.PartnerOrgID, ta.UpdatedAt, ta.ID)
	if err != nil {
		return fmt.Errorf("failed to update team assignment: %w", err)
	}
	return checkAffected(result)
}

// DeleteTeamAssignment deletes a team assignment
func (s *Store) DeleteTeamAssignment(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM team_assignments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete team assignment: %w", err)
	}
	return checkAffected(result)
}

// ListTeamAssignments lists assignments on programs visible through the filter
func (s *Store) ListTeamAssignments(ctx context.Context, f Filter) ([]*TeamAssignment, error) {
	if f.IsEmpty() {
		return []*TeamAssignment{}, nil
	}
	query := `
		SELECT ta.id, ta.membership_id, ta.program_id, ta.role, ta.partner_org_id, ta.created_by, ta.created_at, ta.updated_at
		FROM team_assignments ta`
	var args []interface{}
	if !f.All {
		query += `
		JOIN programs pr ON pr.id = ta.program_id
		WHERE ` + scopeClause("pr.organization_id", "ta.program_id", f, &args)
	}
	query += " ORDER BY ta.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list team assignments: %w", err)
	}
	defer rows.Close()

	assignments := []*TeamAssignment{}
	for rows.Next() {
		ta := &TeamAssignment{}
		var partnerOrgID, createdBy sql.NullInt64
		var role string
		if err := rows.Scan(&ta.ID, &ta.MembershipID, &ta.ProgramID, &role, &partnerOrgID, &createdBy, &ta.CreatedAt, &ta.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team assignment: %w", err)
		}
		ta.Role = Role(role)
		ta.PartnerOrgID = partnerOrgID.Int64
		ta.CreatedBy = createdBy.Int64
		assignments = append(assignments, ta)
	}
	return assignments, rows.Err()
}

// ListAssignmentsForMembership returns every assignment held by a membership
func (s *Store) ListAssignmentsForMembership(ctx context.Context, membershipID int64) ([]*TeamAssignment, error) {
	query := `
		SELECT id, membership_id, program_id, role, partner_org_id, created_by, created_at, updated_at
		FROM team_assignments
		WHERE membership_id = $1
		ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, membershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*TeamAssignment
	for rows.Next() {
		ta := &TeamAssignment{}
		var partnerOrgID, createdBy sql.NullInt64
		var role string
		if err := rows.Scan(&ta.ID, &ta.MembershipID, &ta.ProgramID, &role, &partnerOrgID, &createdBy, &ta.CreatedAt, &ta.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		ta.Role = Role(role)
		ta.PartnerOrgID = partnerOrgID.Int64
		ta.CreatedBy = createdBy.Int64
		assignments = append(assignments, ta)
	}
	return assignments, rows.Err()
}

// ScopeForProject resolves the organization and program a project belongs to
func (s *Store) ScopeForProject(ctx context.Context, projectID int64) (orgID, programID int64, err error) {
	query := `
		SELECT pr.organization_id, p.program_id
		FROM projects p
		JOIN programs pr ON pr.id = p.program_id
		WHERE p.id = $1`
	err = s.db.QueryRowContext(ctx, query, projectID).Scan(&orgID, &programID)
	if err == sql.ErrNoRows {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to resolve project scope: %w", err)
	}
	return orgID, programID, nil
}

// ScopeForIndicator resolves the organization and program an indicator belongs to
func (s *Store) ScopeForIndicator(ctx context.Context, indicatorID int64) (orgID, programID int64, err error) {
	query := `
		SELECT pr.organization_id, i.program_id
		FROM indicators i
		JOIN programs pr ON pr.id = i.program_id
		WHERE i.id = $1`
	err = s.db.QueryRowContext(ctx, query, indicatorID).Scan(&orgID, &programID)
	if err == sql.ErrNoRows {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to resolve indicator scope: %w", err)
	}
	return orgID, programID, nil
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
