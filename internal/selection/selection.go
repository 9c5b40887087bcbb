// Package selection manages the tenant-selection cookie: a signed, scoped,
// time-limited association between a caller's session and the tenant they are
// currently operating as. The selection is a convenience default only; every
// privileged decision re-derives membership and subscription state from the
// registry.
package selection

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	cookieName = "bookden_tenant"
	cookiePath = "/dashboard"

	// TTL bounds how long a stored selection remains usable.
	TTL = 30 * 24 * time.Hour
)

var ErrNoSelection = errors.New("no tenant selection")

type claims struct {
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// Manager signs and verifies tenant-selection tokens.
type Manager struct {
	secret []byte
	secure bool
	now    func() time.Time
}

// NewManager creates a selection manager. secure controls the cookie's Secure
// attribute and should be true outside local development.
func NewManager(secret string, secure bool) (*Manager, error) {
	if len(strings.TrimSpace(secret)) < 32 {
		return nil, fmt.Errorf("selection secret must be at least 32 characters")
	}
	return &Manager{
		secret: []byte(secret),
		secure: secure,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Set stores the tenant selection on the response.
func (m *Manager) Set(w http.ResponseWriter, tenantID string) error {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TTL)),
		},
	})
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("sign selection token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    signed,
		Path:     cookiePath,
		Expires:  now.Add(TTL),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Get returns the tenant ID stored in the caller's selection cookie.
// Absent, expired, or tampered selections yield ErrNoSelection; the caller
// falls back to onboarding rather than guessing a tenant.
func (m *Manager) Get(r *http.Request) (string, error) {
	cookie, err := r.Cookie(cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", ErrNoSelection
	}

	var c claims
	token, err := jwt.ParseWithClaims(cookie.Value, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil || !token.Valid || c.TenantID == "" {
		return "", ErrNoSelection
	}
	return c.TenantID, nil
}

// Clear removes the selection cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     cookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
