package server

import (
	"net/http"
	"strings"

	"github.com/bookden/bookden/internal/identity"
	"github.com/rs/zerolog/log"
)

// handleAuthCallback completes the authorization-code flow: exchange the code,
// establish the session cookie, and bounce to the original destination.
func (d *Deps) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if d.OIDC == nil {
		writeError(w, http.StatusServiceUnavailable, "sign-in is not configured")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	_, rawIDToken, expiry, err := d.OIDC.Exchange(r.Context(), code)
	if err != nil {
		log.Warn().Err(err).Msg("Authorization code exchange failed")
		writeError(w, http.StatusBadGateway, "sign-in failed")
		return
	}
	d.OIDC.EstablishSession(w, rawIDToken, expiry)

	returnTo := identity.ReturnToFromState(r.URL.Query().Get("state"))
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") {
		returnTo = "/dashboard"
	}
	http.Redirect(w, r, returnTo, http.StatusSeeOther)
}

// handleSignOut drops the session and any tenant selection.
func (d *Deps) handleSignOut(w http.ResponseWriter, r *http.Request) {
	d.Identity.SignOut(w, r)
	d.Selection.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}
