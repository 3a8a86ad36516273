package sso

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fieldwork/pkg/auth"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

func newProvisioner(t *testing.T) (*Provisioner, *workflow.Store, *auth.UserStore) {
	t.Helper()
	db := workflow.OpenTestDB(t)
	store := workflow.NewStore(db)
	users := auth.NewUserStore(db)
	tokens := auth.NewTokenManager(db)

	org := &workflow.Organization{Name: "Default Org"}
	require.NoError(t, store.CreateOrganization(context.Background(), org))

	return NewProvisioner(users, tokens, store, nil, org.ID), store, users
}

func TestFirstLoginProvisionsUser(t *testing.T) {
	p, store, _ := newProvisioner(t)
	ctx := context.Background()

	claims := &Claims{Subject: "abc123", Email: "asha@example.org", Name: "Asha N", PreferredUsername: "asha"}
	user, token, err := p.Login(ctx, claims)
	require.NoError(t, err)

	assert.Equal(t, "asha", user.Username)
	assert.Equal(t, "asha@example.org", user.Email)
	assert.False(t, user.IsSuperuser)
	assert.True(t, strings.HasPrefix(token, auth.TokenPrefix))

	m, err := store.GetMembershipByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, m.IsOrgAdmin)
}

func TestRepeatLoginReusesUser(t *testing.T) {
	p, _, users := newProvisioner(t)
	ctx := context.Background()

	claims := &Claims{Subject: "abc123", PreferredUsername: "asha"}
	first, _, err := p.Login(ctx, claims)
	require.NoError(t, err)
	second, _, err := p.Login(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	reloaded, err := users.GetUser(ctx, first.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.LastLoginAt)
}

func TestLoginMatchesByEmail(t *testing.T) {
	p, _, users := newProvisioner(t)
	ctx := context.Background()

	existing := &auth.User{Username: "asha.n", Email: "asha@example.org", IsActive: true}
	require.NoError(t, users.CreateUser(ctx, existing))

	claims := &Claims{Subject: "abc123", Email: "asha@example.org", PreferredUsername: "asha"}
	user, _, err := p.Login(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
}

func TestDeactivatedUserCannotLogin(t *testing.T) {
	p, _, users := newProvisioner(t)
	ctx := context.Background()

	existing := &auth.User{Username: "asha", IsActive: false}
	require.NoError(t, users.CreateUser(ctx, existing))

	_, _, err := p.Login(ctx, &Claims{Subject: "abc123", PreferredUsername: "asha"})
	assert.Error(t, err)
}

func TestClaimsUsernameFallback(t *testing.T) {
	assert.Equal(t, "asha", Claims{Subject: "s", Email: "e@x.org", PreferredUsername: "asha"}.Username())
	assert.Equal(t, "e@x.org", Claims{Subject: "s", Email: "e@x.org"}.Username())
	assert.Equal(t, "s", Claims{Subject: "s"}.Username())
}
