package sso

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/fieldwork/pkg/httputil"
	"github.com/platinummonkey/fieldwork/pkg/observability"
)

const stateCookie = "fieldwork_sso_state"

// Handlers exposes the OIDC login flow over HTTP
type Handlers struct {
	authenticator *Authenticator
	provisioner   *Provisioner
	logger        *observability.Logger
}

// NewHandlers creates the SSO handler set
func NewHandlers(authenticator *Authenticator, provisioner *Provisioner, logger *observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Handlers{
		authenticator: authenticator,
		provisioner:   provisioner,
		logger:        logger,
	}
}

// RegisterRoutes mounts the login and callback endpoints
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sso/login", h.Login).Methods("GET")
	router.HandleFunc("/sso/callback", h.Callback).Methods("GET")
}

// Login starts the authorization-code flow. The state parameter is
// pinned in a short-lived cookie and checked on callback.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	state := base64.RawURLEncoding.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((5 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.authenticator.InitiateLogin(w, r, state)
}

// Callback finishes the flow: verifies state, exchanges the code,
// provisions the user if needed and returns an API token
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		httputil.WriteBadRequest(w, "state mismatch")
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "missing authorization code")
		return
	}

	claims, err := h.authenticator.HandleCallback(r.Context(), code)
	if err != nil {
		h.logger.WithError(err).Warn("sso callback rejected")
		httputil.WriteUnauthorized(w, "login failed")
		return
	}

	user, token, err := h.provisioner.Login(r.Context(), claims)
	if err != nil {
		h.logger.WithError(err).Warn("sso provisioning failed")
		httputil.WriteUnauthorized(w, "login failed")
		return
	}

	// clear the state cookie
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	httputil.WriteSuccess(w, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}
