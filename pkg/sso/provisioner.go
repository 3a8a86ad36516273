package sso

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/fieldwork/pkg/audit"
	"github.com/platinummonkey/fieldwork/pkg/auth"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

// sessionTokenTTL bounds API tokens minted through SSO login
const sessionTokenTTL = 24 * time.Hour

// Provisioner turns verified OIDC identities into local users. First
// logins create a user plus a membership in the default organization;
// later logins just update the login timestamp.
type Provisioner struct {
	users        *auth.UserStore
	tokens       *auth.TokenManager
	store        *workflow.Store
	audit        audit.Logger
	defaultOrgID int64
}

// NewProvisioner creates a new Provisioner
func NewProvisioner(users *auth.UserStore, tokens *auth.TokenManager, store *workflow.Store, auditLog audit.Logger, defaultOrgID int64) *Provisioner {
	if auditLog == nil {
		auditLog = audit.NopLogger{}
	}
	return &Provisioner{
		users:        users,
		tokens:       tokens,
		store:        store,
		audit:        auditLog,
		defaultOrgID: defaultOrgID,
	}
}

// Login resolves the claims to a local user, provisioning one on first
// contact, and mints a short-lived API token for the session
func (p *Provisioner) Login(ctx context.Context, claims *Claims) (*auth.User, string, error) {
	user, err := p.lookup(ctx, claims)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		user, err = p.provision(ctx, claims)
		if err != nil {
			return nil, "", err
		}
	}
	if !user.IsActive {
		return nil, "", fmt.Errorf("user %q is deactivated", user.Username)
	}

	if err := p.users.RecordLogin(ctx, user.ID); err != nil {
		return nil, "", fmt.Errorf("failed to record login: %w", err)
	}

	expiresAt := time.Now().Add(sessionTokenTTL)
	_, plaintext, err := p.tokens.CreateToken(ctx, user.ID, "sso-session", "issued via SSO login", &expiresAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue session token: %w", err)
	}

	p.audit.Record(ctx, audit.Entry{
		UserID:       user.ID,
		Action:       audit.ActionLogin,
		ResourceType: "user",
		Status:       audit.StatusAllowed,
	})
	return user, plaintext, nil
}

func (p *Provisioner) lookup(ctx context.Context, claims *Claims) (*auth.User, error) {
	user, err := p.users.GetUserByUsername(ctx, claims.Username())
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, auth.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if claims.Email == "" {
		return nil, nil
	}
	user, err = p.users.GetUserByEmail(ctx, claims.Email)
	if err == nil {
		return user, nil
	}
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("failed to look up user by email: %w", err)
}

func (p *Provisioner) provision(ctx context.Context, claims *Claims) (*auth.User, error) {
	user := &auth.User{
		Username: claims.Username(),
		Email:    claims.Email,
		FullName: claims.Name,
		IsActive: true,
	}
	if err := p.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	// joins the default organization with no admin flag and no program
	// roles; everything else is granted explicitly later
	m := &workflow.Membership{UserID: user.ID, OrganizationID: p.defaultOrgID}
	if err := p.store.CreateMembership(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create default membership: %w", err)
	}
	return user, nil
}
