package identity

import (
	"context"
	"net/http"
)

// Identity is a verified external principal. The system never owns
// identities; it only references their opaque subject IDs.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Anonymous reports whether the identity is the unauthenticated caller.
func (id Identity) Anonymous() bool {
	return id.Subject == ""
}

// Provider is the boundary to the external authentication service. Any
// provider offering verified-session lookup and sign-out qualifies.
type Provider interface {
	// VerifySession resolves the caller's credentials to a verified identity.
	// An absent or invalid session yields the anonymous identity and no
	// error; errors are reserved for provider failures.
	VerifySession(ctx context.Context, r *http.Request) (Identity, error)

	// SignOut invalidates the caller's session.
	SignOut(w http.ResponseWriter, r *http.Request)

	// SignInURL returns the provider's sign-in entry point, carrying the
	// given post-login return target.
	SignInURL(returnTo string) string
}
