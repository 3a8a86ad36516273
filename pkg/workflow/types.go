// Package workflow defines the program-management domain model and its
// Postgres-backed store: organizations, memberships, programs, projects,
// team assignments and the scoped resources hanging off them.
package workflow

import "time"

// Role is a program-level role grant. The set is closed; custom roles are
// not supported.
type Role string

const (
	// RoleOrgAdmin administers everything inside one organization
	RoleOrgAdmin Role = "org_admin"
	// RoleProgramAdmin has full control over a single program
	RoleProgramAdmin Role = "program_admin"
	// RoleProgramTeam can view and create within a program, but not
	// update or delete
	RoleProgramTeam Role = "program_team"
	// RoleViewOnly can only read
	RoleViewOnly Role = "view_only"
)

// Rank orders roles from least to most permissive. When an identity holds
// several roles on the same program, the highest rank wins.
func (r Role) Rank() int {
	switch r {
	case RoleOrgAdmin:
		return 4
	case RoleProgramAdmin:
		return 3
	case RoleProgramTeam:
		return 2
	case RoleViewOnly:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether r is one of the defined roles
func (r Role) IsValid() bool {
	return r.Rank() > 0
}

// MaxRole returns the more permissive of two roles
func MaxRole(a, b Role) Role {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Organization is the tenant boundary. Every membership, program and
// org-owned resource belongs to exactly one organization.
type Organization struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Membership links one user to one organization. A user holds at most one
// membership. IsOrgAdmin grants the org-admin role across every program
// owned by the member's organization, and only there.
type Membership struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	OrganizationID int64     `json:"organization_id"`
	Title          string    `json:"title,omitempty"`
	IsOrgAdmin     bool      `json:"is_org_admin"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Program is the top-level workflow entity and the unit of role grants.
type Program struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	CreatedBy      int64     `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Project is a second-level workflow entity under a program. Resources
// attached to a project reach their organization through the program.
type Project struct {
	ID          int64     `json:"id"`
	ProgramID   int64     `json:"program_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TeamAssignment grants a membership a role on a program. A membership
// holds at most one assignment per program (DB constraint). PartnerOrgID
// records which organization the grant was made on behalf of; it defaults
// to the creator's organization.
type TeamAssignment struct {
	ID           int64     `json:"id"`
	MembershipID int64     `json:"membership_id"`
	ProgramID    int64     `json:"program_id"`
	Role         Role      `json:"role"`
	PartnerOrgID int64     `json:"partner_org_id,omitempty"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Milestone is owned directly by an organization.
type Milestone struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	CreatedBy      int64      `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RiskRegister is owned by a project; its organization is reached
// transitively through project and program.
type RiskRegister struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Likelihood  int       `json:"likelihood"`
	Impact      int       `json:"impact"`
	Mitigation  string    `json:"mitigation,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Indicator measures progress within a program.
type Indicator struct {
	ID          int64     `json:"id"`
	ProgramID   int64     `json:"program_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Number      string    `json:"number,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CollectedData is a single data point recorded against an indicator.
type CollectedData struct {
	ID             int64      `json:"id"`
	IndicatorID    int64      `json:"indicator_id"`
	Achieved       float64    `json:"achieved"`
	Description    string     `json:"description,omitempty"`
	CollectionDate *time.Time `json:"collection_date,omitempty"`
	CreatedBy      int64      `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Filter narrows list queries to what a caller may see. All short-circuits
// the other fields. An empty filter matches nothing and yields an empty
// list, never an error.
type Filter struct {
	All        bool
	OrgIDs     []int64
	ProgramIDs []int64
}

// IsEmpty reports whether the filter matches nothing
func (f Filter) IsEmpty() bool {
	return !f.All && len(f.OrgIDs) == 0 && len(f.ProgramIDs) == 0
}
