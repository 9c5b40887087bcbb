package storefront

import (
	"encoding/json"
	"net/http"

	"github.com/bookden/bookden/internal/gate"
	"github.com/bookden/bookden/internal/registry"
	"github.com/rs/zerolog/log"
)

// Handler serves the public, tenant-scoped read surface. Every endpoint
// requires a resolved tenant from the gate; there is no cross-tenant listing
// and no way to enumerate tenants from here.
type Handler struct {
	reg *registry.Registry
}

// NewHandler creates the storefront handler set.
func NewHandler(reg *registry.Registry) *Handler {
	return &Handler{reg: reg}
}

// profileView is the public projection of a tenant. Contact email is
// published deliberately; internal IDs are not.
type profileView struct {
	Slug        string `json:"slug"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// Profile returns the tenant's public profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	tenant := gate.VerdictFrom(r.Context()).Tenant
	if tenant == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, profileView{
		Slug:        tenant.Slug,
		DisplayName: tenant.DisplayName,
		Email:       tenant.Email,
	})
}

// Services returns the tenant's published service catalog.
func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	tenant := gate.VerdictFrom(r.Context()).Tenant
	if tenant == nil {
		http.NotFound(w, r)
		return
	}
	services, err := h.reg.ListServices(tenant.ID, true)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to list services")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if services == nil {
		services = []registry.Service{}
	}
	writeJSON(w, http.StatusOK, services)
}

// Staff returns the tenant's published staff listings.
func (h *Handler) Staff(w http.ResponseWriter, r *http.Request) {
	tenant := gate.VerdictFrom(r.Context()).Tenant
	if tenant == nil {
		http.NotFound(w, r)
		return
	}
	profiles, err := h.reg.ListStaffProfiles(tenant.ID, true)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to list staff profiles")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if profiles == nil {
		profiles = []registry.StaffProfile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("storefront: encode response")
	}
}
