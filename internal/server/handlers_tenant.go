package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bookden/bookden/internal/auditlog"
	"github.com/bookden/bookden/internal/gate"
	"github.com/bookden/bookden/internal/registry"
	"github.com/rs/zerolog/log"
)

type createTenantRequest struct {
	Slug        string `json:"slug"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// handleCreateTenant provisions a tenant and makes the caller its owner. The
// new tenant becomes the caller's current selection so the dashboard lands
// somewhere useful immediately.
func (d *Deps) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	ident := gate.VerdictFrom(r.Context()).Identity

	var req createTenantRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	slug := registry.NormalizeSlug(req.Slug)
	if !registry.ValidSlug(slug) {
		writeError(w, http.StatusBadRequest, "slug must be 2-63 lowercase letters, digits, or interior hyphens")
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		req.DisplayName = slug
	}

	id, err := registry.GenerateTenantID()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate tenant ID")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	tenant := &registry.Tenant{
		ID:          id,
		Slug:        slug,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
	}
	if err := d.Registry.CreateTenant(tenant); err != nil {
		if errors.Is(err, registry.ErrSlugTaken) {
			writeError(w, http.StatusConflict, "slug already taken")
			return
		}
		log.Error().Err(err).Str("slug", slug).Msg("Failed to create tenant")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := d.Registry.PutMembership(&registry.Membership{
		TenantID:   tenant.ID,
		IdentityID: ident.Subject,
		Role:       registry.RoleOwner,
	}); err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to create owner membership")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := d.Selection.Set(w, tenant.ID); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to set tenant selection")
	}
	d.Audit.RecordTenantCreated(tenant.ID, ident.Subject, tenant.Slug, auditlog.ClientIP(r))

	writeJSON(w, http.StatusCreated, tenant)
}

type tenantWithRole struct {
	Tenant *registry.Tenant `json:"tenant"`
	Role   registry.Role    `json:"role"`
}

// handleListMyTenants returns every tenant the caller belongs to.
func (d *Deps) handleListMyTenants(w http.ResponseWriter, r *http.Request) {
	ident := gate.VerdictFrom(r.Context()).Identity

	memberships, err := d.Registry.ListMembershipsForIdentity(ident.Subject)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list memberships")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]tenantWithRole, 0, len(memberships))
	for _, m := range memberships {
		tenant, err := d.Registry.GetTenant(m.TenantID)
		if err != nil {
			log.Error().Err(err).Str("tenant_id", m.TenantID).Msg("Failed to load tenant")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if tenant == nil {
			continue
		}
		out = append(out, tenantWithRole{Tenant: tenant, Role: m.Role})
	}
	writeJSON(w, http.StatusOK, out)
}

type selectTenantRequest struct {
	Slug string `json:"slug"`
}

// handleSelectTenant stores the caller's tenant selection. Only members of the
// named tenant may select it.
func (d *Deps) handleSelectTenant(w http.ResponseWriter, r *http.Request) {
	ident := gate.VerdictFrom(r.Context()).Identity

	var req selectTenantRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tenant, err := d.Registry.GetTenantBySlug(req.Slug)
	if err != nil {
		log.Error().Err(err).Msg("Tenant lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}

	role, err := d.Registry.RoleOf(ident.Subject, tenant.ID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Role lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if role == registry.RoleNone {
		writeError(w, http.StatusForbidden, "not a member of this tenant")
		return
	}

	if err := d.Selection.Set(w, tenant.ID); err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to set selection")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, tenantWithRole{Tenant: tenant, Role: role})
}

// handleClearSelection removes the stored tenant selection.
func (d *Deps) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	d.Selection.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}
