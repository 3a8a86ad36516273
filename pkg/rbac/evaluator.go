package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/fieldwork/pkg/auth"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

// Evaluator decides create and write permissions against a target scope.
// List access is never denied; callers get a filter instead.
type Evaluator struct {
	store    *workflow.Store
	resolver *Resolver
}

// NewEvaluator creates a new Evaluator
func NewEvaluator(store *workflow.Store) *Evaluator {
	return &Evaluator{
		store:    store,
		resolver: NewResolver(store),
	}
}

// Resolver exposes the evaluator's scope resolver
func (e *Evaluator) Resolver() *Resolver {
	return e.resolver
}

// CanList returns the list filter for a user. It never denies: a user who
// can see nothing gets an empty filter, which yields an empty 200 list.
func (e *Evaluator) CanList(ctx context.Context, user *auth.User) (workflow.Filter, error) {
	vs, err := e.resolver.Resolve(ctx, user)
	if err != nil {
		return workflow.Filter{}, err
	}
	return vs.Filter(), nil
}

// CanCreate checks whether a user may create a resource owned by orgID
// and, when the resource is program-scoped, programID (0 for org-owned
// resources such as milestones).
//
// Allowed for superusers, Org Admins of the owning organization, and
// Program Admin or Program Team on the target program. View Only is not
// sufficient.
func (e *Evaluator) CanCreate(ctx context.Context, user *auth.User, orgID, programID int64) error {
	return e.require(ctx, user, orgID, programID, workflow.RoleProgramTeam)
}

// CanWrite checks whether a user may update or delete a resource owned by
// orgID/programID. Restricted to superusers, Org Admins of the owning
// organization and Program Admins of the target program; Program Team may
// create but not write.
//
// Existence (404) is the caller's concern and precedes this check.
func (e *Evaluator) CanWrite(ctx context.Context, user *auth.User, orgID, programID int64) error {
	return e.require(ctx, user, orgID, programID, workflow.RoleProgramAdmin)
}

// require checks the user's effective role on the target scope against a
// minimum, short-circuiting from most to least permissive.
func (e *Evaluator) require(ctx context.Context, user *auth.User, orgID, programID int64, minimum workflow.Role) error {
	if user == nil {
		return ErrPermissionDenied
	}
	if user.IsSuperuser {
		return nil
	}

	membership, err := e.store.GetMembershipByUser(ctx, user.ID)
	if errors.Is(err, workflow.ErrNotFound) {
		return ErrPermissionDenied
	}
	if err != nil {
		return fmt.Errorf("failed to evaluate permission: %w", err)
	}

	// Org Admin route: the membership-level grant applies only to the
	// member's own organization.
	if membership.IsOrgAdmin && membership.OrganizationID == orgID {
		return nil
	}

	// Assignment route: most permissive role on the target program wins.
	best := workflow.Role("")
	assignments, err := e.store.ListAssignmentsForMembership(ctx, membership.ID)
	if err != nil {
		return fmt.Errorf("failed to evaluate permission: %w", err)
	}
	for _, ta := range assignments {
		if programID != 0 && ta.ProgramID != programID {
			continue
		}
		if programID == 0 {
			// Org-owned target: only assignments on programs of the
			// owning organization count.
			program, err := e.store.GetProgram(ctx, ta.ProgramID)
			if err != nil {
				if errors.Is(err, workflow.ErrNotFound) {
					continue
				}
				return fmt.Errorf("failed to evaluate permission: %w", err)
			}
			if program.OrganizationID != orgID {
				continue
			}
		}
		best = workflow.MaxRole(best, ta.Role)
		if ta.Role == workflow.RoleOrgAdmin {
			break
		}
	}

	if best.Rank() >= minimum.Rank() {
		return nil
	}
	return ErrPermissionDenied
}

// EffectiveRole reports the highest role a user holds on a program,
// combining the org-admin membership grant with direct assignments.
// Returns the zero Role when the user holds none.
func (e *Evaluator) EffectiveRole(ctx context.Context, user *auth.User, orgID, programID int64) (workflow.Role, error) {
	if user == nil {
		return "", nil
	}
	if user.IsSuperuser {
		return workflow.RoleOrgAdmin, nil
	}

	membership, err := e.store.GetMembershipByUser(ctx, user.ID)
	if errors.Is(err, workflow.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve role: %w", err)
	}

	best := workflow.Role("")
	if membership.IsOrgAdmin && membership.OrganizationID == orgID {
		best = workflow.RoleOrgAdmin
	}

	assignments, err := e.store.ListAssignmentsForMembership(ctx, membership.ID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve role: %w", err)
	}
	for _, ta := range assignments {
		if programID != 0 && ta.ProgramID != programID {
			continue
		}
		best = workflow.MaxRole(best, ta.Role)
	}
	return best, nil
}
