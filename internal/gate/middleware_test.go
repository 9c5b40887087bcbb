package gate

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bookden/bookden/internal/identity"
	"github.com/bookden/bookden/internal/registry"
	"github.com/stretchr/testify/require"
)

func TestRequireInjectsVerdictOnAllow(t *testing.T) {
	reg := newTestRegistry(t)
	tenant := mustCreateTenant(t, reg, "luna-hair")
	require.NoError(t, reg.PutMembership(&registry.Membership{TenantID: tenant.ID, IdentityID: "founder", Role: registry.RoleOwner}))
	g, _ := newTestGate(t, reg, identity.Identity{Subject: "founder"})

	var got Verdict
	handler := g.Require(LevelMember, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = VerdictFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	mux := http.NewServeMux()
	mux.Handle("GET /api/tenants/{slug}/members", handler)

	req := httptest.NewRequest(http.MethodGet, "/api/tenants/luna-hair/members", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, VerdictAllow, got.Kind)
	require.Equal(t, tenant.ID, got.Tenant.ID)
	require.Equal(t, registry.RoleOwner, got.Role)
}

func TestRequireRedirectsWithSeeOther(t *testing.T) {
	reg := newTestRegistry(t)
	mustCreateTenant(t, reg, "luna-hair")
	g, _ := newTestGate(t, reg, identity.Identity{})

	handler := g.Require(LevelMember, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for anonymous callers")
	}))

	mux := http.NewServeMux()
	mux.Handle("GET /api/tenants/{slug}/members", handler)

	req := httptest.NewRequest(http.MethodGet, "/api/tenants/luna-hair/members", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "/signin")
}

func TestRequireDeniesWithJSON(t *testing.T) {
	reg := newTestRegistry(t)
	mustCreateTenant(t, reg, "luna-hair")
	g, _ := newTestGate(t, reg, identity.Identity{Subject: "stranger"})

	handler := g.Require(LevelMember, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for non-members")
	}))

	mux := http.NewServeMux()
	mux.Handle("GET /api/tenants/{slug}/members", handler)

	req := httptest.NewRequest(http.MethodGet, "/api/tenants/luna-hair/members", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"error":"Forbidden"}`, rec.Body.String())
}

func TestVerdictFromEmptyContextFailsClosed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	v := VerdictFrom(req.Context())
	require.Equal(t, VerdictDeny, v.Kind)
	require.Equal(t, http.StatusInternalServerError, v.Status)
}
