package gate

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	errs "github.com/bookden/bookden/internal/errors"
	"github.com/bookden/bookden/internal/identity"
	"github.com/bookden/bookden/internal/metrics"
	"github.com/bookden/bookden/internal/registry"
	"github.com/rs/zerolog/log"
)

// Request carries the inputs the gate needs for one decision. No ambient
// globals: credentials and tenant references travel explicitly.
type Request struct {
	HTTP *http.Request
	// Slug is the explicit tenant slug from the request path, if any.
	Slug string
}

// Gate is the single access decision point. Every protected request flows
// through Decide; authorization is never re-derived per route.
type Gate struct {
	reg      *registry.Registry
	idp      identity.Provider
	resolver *Resolver

	onboardingPath string
	billingPath    string

	now func() time.Time
}

// New creates an access gate.
func New(reg *registry.Registry, idp identity.Provider, resolver *Resolver, onboardingPath, billingPath string) *Gate {
	return &Gate{
		reg:            reg,
		idp:            idp,
		resolver:       resolver,
		onboardingPath: onboardingPath,
		billingPath:    billingPath,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the gate's time source (tests only).
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Decide evaluates the request against the required level. Tenant resolution
// always precedes identity and role checks so that a missing tenant never
// leaks whether a membership exists. All ambiguity fails closed.
func (g *Gate) Decide(ctx context.Context, req Request, level RequiredLevel) Verdict {
	v := g.decide(ctx, req, level)
	metrics.GateDecisionsTotal.WithLabelValues(string(level), string(v.Kind)).Inc()
	return v
}

func (g *Gate) decide(ctx context.Context, req Request, level RequiredLevel) Verdict {
	tenantRequired := level == LevelMember || level == LevelAdminOrOwner || level == LevelSubscriptionActive

	// Step 1: tenant.
	tenant, resolveErr := g.resolver.Resolve(req.Slug, req.HTTP)
	switch {
	case resolveErr == nil:
	case errors.Is(resolveErr, errNoTenantRef):
		// Tolerable unless the level needs a tenant; handled below once the
		// identity is known.
	case errors.Is(resolveErr, errTenantNotFound):
		if req.Slug != "" || tenantRequired || level == LevelPublic {
			return deny(http.StatusNotFound)
		}
	default:
		log.Error().Err(resolveErr).Msg("Tenant resolution failed")
		return deny(http.StatusInternalServerError)
	}

	if level == LevelPublic {
		return allow(tenant, identity.Identity{}, registry.RoleNone)
	}

	// Step 2: identity.
	ident, err := g.idp.VerifySession(ctx, req.HTTP)
	if err != nil {
		log.Error().Err(err).Msg("Identity verification failed")
		return deny(http.StatusInternalServerError)
	}
	if ident.Anonymous() {
		return redirect(g.idp.SignInURL(returnTarget(req.HTTP)))
	}

	if level == LevelAuthenticated {
		return allow(tenant, ident, registry.RoleNone)
	}

	// Member and above need a concrete tenant. No reference at all means the
	// caller has not picked a tenant yet: route to onboarding, not an error.
	if tenant == nil {
		return redirect(g.onboardingPath)
	}

	// Step 3: role.
	role, err := g.reg.RoleOf(ident.Subject, tenant.ID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Role lookup failed")
		return deny(http.StatusInternalServerError)
	}
	if role == registry.RoleNone {
		return deny(http.StatusForbidden)
	}

	// Step 4: role sufficiency.
	if level == LevelAdminOrOwner && role != registry.RoleAdmin && role != registry.RoleOwner {
		return deny(http.StatusForbidden)
	}

	// Step 5: entitlement.
	if level == LevelSubscriptionActive {
		sub, err := g.reg.GetSubscription(tenant.ID)
		if err != nil {
			log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Subscription lookup failed")
			return deny(http.StatusInternalServerError)
		}
		if !sub.EntitledAt(g.now()) {
			reason := entitlementReason(sub, g.now())
			v := redirect(billingRedirect(g.billingPath, tenant.Slug, reason))
			v.Reason = reason
			v.Tenant = tenant
			v.Identity = ident
			v.Role = role
			return v
		}
	}

	return allow(tenant, ident, role)
}

// entitlementReason maps a non-entitled subscription to the reason code shown
// to the user on the billing page.
func entitlementReason(sub *registry.Subscription, now time.Time) errs.SubscriptionReason {
	switch sub.EffectiveStatus() {
	case registry.StatusNone, registry.StatusCanceled:
		return errs.ReasonNoSubscription
	case registry.StatusTrialing:
		// Entitled trials never reach here; a trialing row at this point has
		// lapsed (or carries no trial window, which also fails closed).
		return errs.ReasonTrialExpired
	default:
		// incomplete, past_due
		return errs.ReasonPaymentIssue
	}
}

func billingRedirect(billingPath, slug string, reason errs.SubscriptionReason) string {
	q := url.Values{"reason": {string(reason)}}
	if slug != "" {
		q.Set("tenant", slug)
	}
	return billingPath + "?" + q.Encode()
}

// returnTarget preserves the original tenant-scoped route so the caller lands
// back where they started after signing in.
func returnTarget(r *http.Request) string {
	if r == nil || r.URL == nil {
		return "/"
	}
	target := r.URL.Path
	if q := r.URL.RawQuery; q != "" {
		target += "?" + q
	}
	if !strings.HasPrefix(target, "/") {
		return "/"
	}
	return target
}
