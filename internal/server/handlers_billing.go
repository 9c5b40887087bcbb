package server

import (
	"errors"
	"net/http"
	"time"

	errs "github.com/bookden/bookden/internal/errors"
	"github.com/bookden/bookden/internal/gate"
	"github.com/bookden/bookden/internal/registry"
	"github.com/rs/zerolog/log"
)

type billingSummary struct {
	Status           registry.SubscriptionStatus `json:"status"`
	Entitled         bool                        `json:"entitled"`
	Reason           errs.SubscriptionReason     `json:"reason,omitempty"`
	TrialEnd         *time.Time                  `json:"trial_end,omitempty"`
	CurrentPeriodEnd *time.Time                  `json:"current_period_end,omitempty"`
}

// handleBillingSummary reports the tenant's subscription position and whether
// it currently grants access, evaluated at request time.
func (d *Deps) handleBillingSummary(w http.ResponseWriter, r *http.Request) {
	tenant := gate.VerdictFrom(r.Context()).Tenant

	sub, err := d.Registry.GetSubscription(tenant.ID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Subscription lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now().UTC()
	summary := billingSummary{
		Status:   sub.EffectiveStatus(),
		Entitled: sub.EntitledAt(now),
	}
	if sub != nil {
		summary.TrialEnd = sub.TrialEnd
		summary.CurrentPeriodEnd = sub.CurrentPeriodEnd
	}
	if !summary.Entitled {
		switch summary.Status {
		case registry.StatusNone, registry.StatusCanceled:
			summary.Reason = errs.ReasonNoSubscription
		case registry.StatusTrialing:
			summary.Reason = errs.ReasonTrialExpired
		default:
			summary.Reason = errs.ReasonPaymentIssue
		}
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleStartCheckout creates a hosted checkout session and returns its URL.
func (d *Deps) handleStartCheckout(w http.ResponseWriter, r *http.Request) {
	tenant := gate.VerdictFrom(r.Context()).Tenant

	url, err := d.Checkout.StartCheckout(r.Context(), tenant)
	if err != nil {
		writeCheckoutError(w, tenant.ID, "Checkout session creation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// handleOpenPortal creates a billing portal session and returns its URL.
func (d *Deps) handleOpenPortal(w http.ResponseWriter, r *http.Request) {
	tenant := gate.VerdictFrom(r.Context()).Tenant

	sub, err := d.Registry.GetSubscription(tenant.ID)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.ID).Msg("Subscription lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	url, err := d.Checkout.OpenPortal(r.Context(), tenant, sub)
	if err != nil {
		writeCheckoutError(w, tenant.ID, "Portal session creation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func writeCheckoutError(w http.ResponseWriter, tenantID, msg string, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrTransientUpstream):
		log.Error().Err(err).Str("tenant_id", tenantID).Msg(msg)
		writeError(w, http.StatusBadGateway, "billing provider unavailable")
	default:
		log.Error().Err(err).Str("tenant_id", tenantID).Msg(msg)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
