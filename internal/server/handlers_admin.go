package server

import (
	"net/http"
	"time"

	"github.com/bookden/bookden/internal/registry"
	"github.com/rs/zerolog/log"
)

type adminTenantView struct {
	ID          string                      `json:"id"`
	Slug        string                      `json:"slug"`
	DisplayName string                      `json:"display_name"`
	Status      registry.SubscriptionStatus `json:"subscription_status"`
	Entitled    bool                        `json:"entitled"`
	CreatedAt   time.Time                   `json:"created_at"`
}

// handleAdminListTenants lists every tenant with its subscription position.
// Operator-only; guarded by the admin key middleware.
func (d *Deps) handleAdminListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := d.Registry.ListTenants()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list tenants")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now().UTC()
	out := make([]adminTenantView, 0, len(tenants))
	for _, t := range tenants {
		sub, err := d.Registry.GetSubscription(t.ID)
		if err != nil {
			log.Error().Err(err).Str("tenant_id", t.ID).Msg("Subscription lookup failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		out = append(out, adminTenantView{
			ID:          t.ID,
			Slug:        t.Slug,
			DisplayName: t.DisplayName,
			Status:      sub.EffectiveStatus(),
			Entitled:    sub.EntitledAt(now),
			CreatedAt:   t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
