package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bookden/bookden/internal/auditlog"
	"github.com/bookden/bookden/internal/gate"
	"github.com/bookden/bookden/internal/registry"
	"github.com/rs/zerolog/log"
)

// handlePutService creates or updates a storefront service. The tenant scope
// always comes from the gate, never from the body.
func (d *Deps) handlePutService(w http.ResponseWriter, r *http.Request) {
	tenant := gate.VerdictFrom(r.Context()).Tenant

	var svc registry.Service
	if err := readJSON(w, r, &svc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	svc.TenantID = tenant.ID
	if svc.DurationMin <= 0 {
		svc.DurationMin = 30
	}

	if err := d.Registry.PutService(&svc); err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to put service")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (d *Deps) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	tenant := gate.VerdictFrom(r.Context()).Tenant

	if err := d.Registry.DeleteService(tenant.ID, r.PathValue("id")); err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to delete service")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePutStaffProfile creates or updates a storefront staff listing.
func (d *Deps) handlePutStaffProfile(w http.ResponseWriter, r *http.Request) {
	tenant := gate.VerdictFrom(r.Context()).Tenant

	var profile registry.StaffProfile
	if err := readJSON(w, r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	profile.TenantID = tenant.ID

	if err := d.Registry.PutStaffProfile(&profile); err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to put staff profile")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (d *Deps) handleDeleteStaffProfile(w http.ResponseWriter, r *http.Request) {
	tenant := gate.VerdictFrom(r.Context()).Tenant

	if err := d.Registry.DeleteStaffProfile(tenant.ID, r.PathValue("id")); err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to delete staff profile")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type scheduleOverview struct {
	Tenant       string    `json:"tenant"`
	GeneratedAt  time.Time `json:"generated_at"`
	ServiceCount int       `json:"service_count"`
	StaffCount   int       `json:"staff_count"`
}

// handleScheduleOverview is the billing-gated dashboard resource: reaching it
// requires membership plus an entitled subscription.
func (d *Deps) handleScheduleOverview(w http.ResponseWriter, r *http.Request) {
	tenant := gate.VerdictFrom(r.Context()).Tenant

	services, err := d.Registry.ListServices(tenant.ID, false)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to list services")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	staff, err := d.Registry.ListStaffProfiles(tenant.ID, false)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to list staff profiles")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, scheduleOverview{
		Tenant:       tenant.Slug,
		GeneratedAt:  time.Now().UTC(),
		ServiceCount: len(services),
		StaffCount:   len(staff),
	})
}

// handleListAudit returns the tenant's recent audit entries, newest first.
func (d *Deps) handleListAudit(w http.ResponseWriter, r *http.Request) {
	tenant := gate.VerdictFrom(r.Context()).Tenant

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := d.Audit.ListForTenant(tenant.ID, limit)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Failed to list audit entries")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []auditlog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
