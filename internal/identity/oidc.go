package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const sessionCookieName = "bookden_session"

// OIDCConfig configures the OIDC-backed identity provider.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// CookieSecure controls the Secure attribute on the session cookie;
	// enabled outside local development.
	CookieSecure bool
}

// OIDCProvider verifies sessions against an external OIDC issuer. The
// session cookie carries the issuer's ID token; verification is local
// (signature + expiry against the issuer's published keys), so the gate
// never blocks on a live provider round trip.
type OIDCProvider struct {
	cfg      OIDCConfig
	verifier *gooidc.IDTokenVerifier
	oauth    *oauth2.Config
}

// NewOIDCProvider discovers the issuer and prepares the token verifier.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if strings.TrimSpace(cfg.IssuerURL) == "" {
		return nil, fmt.Errorf("issuer URL is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("client ID is required")
	}

	provider, err := gooidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover OIDC issuer %s: %w", cfg.IssuerURL, err)
	}

	return &OIDCProvider{
		cfg:      cfg,
		verifier: provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{gooidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

// VerifySession validates the ID token carried in the session cookie.
// Missing or invalid tokens resolve to the anonymous identity.
func (p *OIDCProvider) VerifySession(ctx context.Context, r *http.Request) (Identity, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return Identity{}, nil
	}

	idToken, err := p.verifier.Verify(ctx, cookie.Value)
	if err != nil {
		log.Debug().Err(err).Msg("Session token rejected")
		return Identity{}, nil
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("decode identity claims: %w", err)
	}

	return Identity{
		Subject: idToken.Subject,
		Email:   strings.ToLower(strings.TrimSpace(claims.Email)),
		Name:    strings.TrimSpace(claims.Name),
	}, nil
}

// EstablishSession stores a verified ID token as the session cookie.
// Called by the sign-in callback after code exchange.
func (p *OIDCProvider) EstablishSession(w http.ResponseWriter, rawIDToken string, expiry time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    rawIDToken,
		Path:     "/",
		Expires:  expiry,
		HttpOnly: true,
		Secure:   p.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SignOut clears the session cookie.
func (p *OIDCProvider) SignOut(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SignInURL returns the authorization-code entry point with the post-login
// return target threaded through the OAuth state.
func (p *OIDCProvider) SignInURL(returnTo string) string {
	state := url.Values{"return_to": {returnTo}}.Encode()
	return p.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a verified identity plus the raw
// ID token used to establish the session.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (Identity, string, time.Time, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, "", time.Time{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Identity{}, "", time.Time{}, fmt.Errorf("token response missing id_token")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, "", time.Time{}, fmt.Errorf("verify id_token: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, "", time.Time{}, fmt.Errorf("decode identity claims: %w", err)
	}

	ident := Identity{
		Subject: idToken.Subject,
		Email:   strings.ToLower(strings.TrimSpace(claims.Email)),
		Name:    strings.TrimSpace(claims.Name),
	}
	return ident, rawIDToken, idToken.Expiry, nil
}

// ReturnToFromState recovers the return target encoded by SignInURL.
func ReturnToFromState(state string) string {
	values, err := url.ParseQuery(state)
	if err != nil {
		return ""
	}
	return values.Get("return_to")
}
