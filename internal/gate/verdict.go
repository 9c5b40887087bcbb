package gate

import (
	errs "github.com/bookden/bookden/internal/errors"
	"github.com/bookden/bookden/internal/identity"
	"github.com/bookden/bookden/internal/registry"
)

// RequiredLevel is the access class a route demands.
type RequiredLevel string

const (
	// LevelPublic performs no checks beyond tenant scoping.
	LevelPublic RequiredLevel = "public"
	// LevelAuthenticated requires a verified identity.
	LevelAuthenticated RequiredLevel = "authenticated"
	// LevelMember requires a membership in the resolved tenant, any role.
	LevelMember RequiredLevel = "member"
	// LevelAdminOrOwner requires the admin or owner role.
	LevelAdminOrOwner RequiredLevel = "adminOrOwner"
	// LevelSubscriptionActive requires membership plus an entitled
	// subscription state.
	LevelSubscriptionActive RequiredLevel = "subscriptionActive"
)

// VerdictKind is the outcome class of an access decision.
type VerdictKind string

const (
	VerdictAllow    VerdictKind = "allow"
	VerdictRedirect VerdictKind = "redirect"
	VerdictDeny     VerdictKind = "deny"
)

// Verdict is the gate's decision for one request. The gate never propagates
// errors past its boundary; every failure mode collapses into one of the
// three verdict kinds, failing closed.
type Verdict struct {
	Kind   VerdictKind
	Target string                  // redirect destination when Kind == VerdictRedirect
	Status int                     // HTTP status when Kind == VerdictDeny
	Reason errs.SubscriptionReason // set on billing redirects

	// Resolved context, populated as far as the decision got.
	Tenant   *registry.Tenant
	Identity identity.Identity
	Role     registry.Role
}

func allow(t *registry.Tenant, id identity.Identity, role registry.Role) Verdict {
	return Verdict{Kind: VerdictAllow, Tenant: t, Identity: id, Role: role}
}

func redirect(target string) Verdict {
	return Verdict{Kind: VerdictRedirect, Target: target}
}

func deny(status int) Verdict {
	return Verdict{Kind: VerdictDeny, Status: status}
}
