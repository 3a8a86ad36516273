// Package middleware provides HTTP middleware: bearer-token
// authentication, request IDs and rate limiting.
package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/fieldwork/pkg/auth"
	"github.com/platinummonkey/fieldwork/pkg/contextkeys"
	"github.com/platinummonkey/fieldwork/pkg/httputil"
)

// AuthMiddleware authenticates requests via bearer API tokens and loads
// the calling user onto the request context
type AuthMiddleware struct {
	tokenManager *auth.TokenManager
	users        *auth.UserStore
	optional     bool // allow unauthenticated requests through
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenManager *auth.TokenManager, users *auth.UserStore, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		tokenManager: tokenManager,
		users:        users,
		optional:     optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		apiToken, err := m.tokenManager.ValidateToken(r.Context(), parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		user, err := m.users.GetUser(r.Context(), apiToken.UserID)
		if err != nil || !user.IsActive {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		authCtx := &auth.AuthContext{
			User:  user,
			Token: apiToken,
		}

		ctx := contextkeys.WithAuth(r.Context(), authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts the auth context from a request
func GetAuthContext(r *http.Request) *auth.AuthContext {
	ctx := r.Context().Value(contextkeys.AuthKey)
	if ctx == nil {
		return nil
	}
	authCtx, ok := ctx.(*auth.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// GetUser returns the authenticated user, or nil
func GetUser(r *http.Request) *auth.User {
	if authCtx := GetAuthContext(r); authCtx != nil {
		return authCtx.User
	}
	return nil
}
