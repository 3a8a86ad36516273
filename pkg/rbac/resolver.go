// Package rbac implements the authorization core: the scope resolver,
// which computes what an identity may see, and the permission evaluator,
// which decides whether an identity may create or mutate a resource.
//
// Visibility is recomputed on every request from the current membership
// and team assignments. There is no cross-request cache, so grants and
// revocations take effect immediately.
package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/fieldwork/pkg/auth"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

// ErrPermissionDenied is returned for any authorization failure. Handlers
// map it to 403 with a generic message; the reason is never disclosed.
var ErrPermissionDenied = errors.New("permission denied")

// VisibilitySet describes everything one identity may see. It is a value
// computed per request and never mutated after construction.
type VisibilitySet struct {
	// All short-circuits scoping entirely (superusers)
	All bool
	// OrgIDs are the organizations whose org-owned resources are visible
	OrgIDs map[int64]struct{}
	// ProgramIDs are the programs whose resources are visible, including
	// every program of the member's own organization and any program
	// granted directly through a team assignment
	ProgramIDs map[int64]struct{}
}

// IsEmpty reports whether nothing is visible
func (v VisibilitySet) IsEmpty() bool {
	return !v.All && len(v.OrgIDs) == 0 && len(v.ProgramIDs) == 0
}

// ContainsOrg reports whether org-owned resources of orgID are visible
func (v VisibilitySet) ContainsOrg(orgID int64) bool {
	if v.All {
		return true
	}
	_, ok := v.OrgIDs[orgID]
	return ok
}

// ContainsProgram reports whether resources under programID are visible
func (v VisibilitySet) ContainsProgram(programID int64) bool {
	if v.All {
		return true
	}
	_, ok := v.ProgramIDs[programID]
	return ok
}

// Filter converts the set into a store filter for list queries
func (v VisibilitySet) Filter() workflow.Filter {
	f := workflow.Filter{All: v.All}
	for id := range v.OrgIDs {
		f.OrgIDs = append(f.OrgIDs, id)
	}
	for id := range v.ProgramIDs {
		f.ProgramIDs = append(f.ProgramIDs, id)
	}
	return f
}

// Resolver computes visibility sets from memberships and team assignments
type Resolver struct {
	store *workflow.Store
}

// NewResolver creates a new Resolver
func NewResolver(store *workflow.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve computes the visibility set for a user.
//
// Superusers see everything. A user with no membership sees nothing.
// Everyone else sees their own organization, every program that
// organization owns, and any program granted directly through a team
// assignment, including programs owned by other organizations (partner
// invitations).
func (r *Resolver) Resolve(ctx context.Context, user *auth.User) (VisibilitySet, error) {
	if user == nil {
		return VisibilitySet{}, nil
	}
	if user.IsSuperuser {
		return VisibilitySet{All: true}, nil
	}

	membership, err := r.store.GetMembershipByUser(ctx, user.ID)
	if errors.Is(err, workflow.ErrNotFound) {
		return VisibilitySet{}, nil
	}
	if err != nil {
		return VisibilitySet{}, fmt.Errorf("failed to resolve membership: %w", err)
	}

	vs := VisibilitySet{
		OrgIDs:     map[int64]struct{}{membership.OrganizationID: {}},
		ProgramIDs: map[int64]struct{}{},
	}

	ownProgramIDs, err := r.store.ListProgramIDsByOrg(ctx, membership.OrganizationID)
	if err != nil {
		return VisibilitySet{}, fmt.Errorf("failed to resolve org programs: %w", err)
	}
	for _, id := range ownProgramIDs {
		vs.ProgramIDs[id] = struct{}{}
	}

	assignments, err := r.store.ListAssignmentsForMembership(ctx, membership.ID)
	if err != nil {
		return VisibilitySet{}, fmt.Errorf("failed to resolve assignments: %w", err)
	}
	for _, ta := range assignments {
		vs.ProgramIDs[ta.ProgramID] = struct{}{}
	}

	return vs, nil
}
