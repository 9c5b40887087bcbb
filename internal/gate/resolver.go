package gate

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bookden/bookden/internal/registry"
	"github.com/bookden/bookden/internal/selection"
)

// TenantHeader carries a tenant ID attached by upstream routing so storefront
// traffic resolves once per request instead of per lookup.
const TenantHeader = "X-Bookden-Tenant"

var (
	// errNoTenantRef means the request carried nothing to resolve a tenant
	// from. Distinct from errTenantNotFound so callers can route to
	// onboarding instead of a hard 404.
	errNoTenantRef = errors.New("no tenant reference in request")

	// errTenantNotFound means the request named a tenant that does not
	// exist. Never falls back to a stored selection: a mistyped slug must
	// not leak another tenant's state.
	errTenantNotFound = errors.New("tenant not found")
)

// Resolver maps an inbound request to a canonical tenant. Resolution order,
// first match wins: explicit slug, upstream header, stored selection.
type Resolver struct {
	reg *registry.Registry
	sel *selection.Manager
}

// NewResolver creates a tenant resolver.
func NewResolver(reg *registry.Registry, sel *selection.Manager) *Resolver {
	return &Resolver{reg: reg, sel: sel}
}

// Resolve returns the canonical tenant for the request, or one of
// errNoTenantRef / errTenantNotFound.
func (r *Resolver) Resolve(slug string, req *http.Request) (*registry.Tenant, error) {
	if slug = strings.TrimSpace(slug); slug != "" {
		t, err := r.reg.GetTenantBySlug(slug)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, errTenantNotFound
		}
		return t, nil
	}

	if req != nil {
		if id := strings.TrimSpace(req.Header.Get(TenantHeader)); id != "" {
			t, err := r.reg.GetTenant(id)
			if err != nil {
				return nil, err
			}
			if t == nil {
				return nil, errTenantNotFound
			}
			return t, nil
		}
	}

	if req != nil && r.sel != nil {
		id, err := r.sel.Get(req)
		if err == nil {
			t, lookupErr := r.reg.GetTenant(id)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if t != nil {
				return t, nil
			}
			// Stale selection pointing at a removed tenant behaves like no
			// selection at all.
		}
	}

	return nil, errNoTenantRef
}
