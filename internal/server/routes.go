package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/bookden/bookden/internal/auditlog"
	"github.com/bookden/bookden/internal/billing"
	"github.com/bookden/bookden/internal/config"
	"github.com/bookden/bookden/internal/gate"
	"github.com/bookden/bookden/internal/identity"
	"github.com/bookden/bookden/internal/registry"
	"github.com/bookden/bookden/internal/selection"
	"github.com/bookden/bookden/internal/storefront"
)

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Config    *config.Config
	Registry  *registry.Registry
	Audit     *auditlog.Log
	Identity  identity.Provider
	OIDC      *identity.OIDCProvider // nil when an alternate Identity is injected (tests)
	Selection *selection.Manager
	Gate      *gate.Gate
	Webhook   *billing.WebhookHandler
	Checkout  *billing.CheckoutService
	Version   string
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	require := func(level gate.RequiredLevel, h http.HandlerFunc) http.Handler {
		return deps.Gate.Require(level, h)
	}

	// Health / readiness are unauthenticated liveness/readiness probes.
	mux.HandleFunc("GET /healthz", handleHealthz(deps.Version))
	mux.HandleFunc("GET /readyz", handleReadyz(deps.Registry))

	// Metrics are private whenever an admin key is configured.
	metricsHandler := promhttp.Handler()
	if deps.Config.AdminKeyHash != "" {
		mux.Handle("GET /metrics", adminKeyAuth(deps.Config.AdminKeyHash, metricsHandler))
	} else {
		mux.Handle("GET /metrics", metricsHandler)
	}

	// Billing webhook (signature-authenticated, rate limited).
	webhookLimiter := NewRateLimiter(120, time.Minute)
	mux.Handle("POST /api/billing/webhook", webhookLimiter.Middleware(deps.Webhook))

	// Sign-in callback and sign-out. The callback is rate limited because it
	// drives code exchange against the identity provider.
	authLimiter := NewRateLimiter(30, time.Minute)
	mux.Handle("GET /auth/callback", authLimiter.Middleware(http.HandlerFunc(deps.handleAuthCallback)))
	mux.HandleFunc("POST /auth/signout", deps.handleSignOut)

	// Public storefront, tenant-scoped by slug.
	sf := storefront.NewHandler(deps.Registry)
	mux.Handle("GET /s/{slug}", require(gate.LevelPublic, sf.Profile))
	mux.Handle("GET /s/{slug}/services", require(gate.LevelPublic, sf.Services))
	mux.Handle("GET /s/{slug}/staff", require(gate.LevelPublic, sf.Staff))

	// Tenant lifecycle and selection.
	mux.Handle("POST /api/tenants", require(gate.LevelAuthenticated, deps.handleCreateTenant))
	mux.Handle("GET /api/tenants", require(gate.LevelAuthenticated, deps.handleListMyTenants))
	mux.Handle("POST /api/tenants/select", require(gate.LevelAuthenticated, deps.handleSelectTenant))
	mux.Handle("DELETE /api/tenants/select", require(gate.LevelAuthenticated, deps.handleClearSelection))

	// Membership management.
	mux.Handle("GET /api/tenants/{slug}/members", require(gate.LevelMember, deps.handleListMembers))
	mux.Handle("POST /api/tenants/{slug}/members", require(gate.LevelAdminOrOwner, deps.handlePutMember))
	mux.Handle("DELETE /api/tenants/{slug}/members/{identity_id}", require(gate.LevelAdminOrOwner, deps.handleRemoveMember))

	// Billing surface.
	mux.Handle("GET /api/tenants/{slug}/billing", require(gate.LevelMember, deps.handleBillingSummary))
	mux.Handle("POST /api/tenants/{slug}/billing/checkout", require(gate.LevelAdminOrOwner, deps.handleStartCheckout))
	mux.Handle("POST /api/tenants/{slug}/billing/portal", require(gate.LevelAdminOrOwner, deps.handleOpenPortal))

	// Catalog management (feeds the public storefront).
	mux.Handle("POST /api/tenants/{slug}/services", require(gate.LevelAdminOrOwner, deps.handlePutService))
	mux.Handle("DELETE /api/tenants/{slug}/services/{id}", require(gate.LevelAdminOrOwner, deps.handleDeleteService))
	mux.Handle("POST /api/tenants/{slug}/staff", require(gate.LevelAdminOrOwner, deps.handlePutStaffProfile))
	mux.Handle("DELETE /api/tenants/{slug}/staff/{id}", require(gate.LevelAdminOrOwner, deps.handleDeleteStaffProfile))

	// Audit trail for tenant admins.
	mux.Handle("GET /api/tenants/{slug}/audit", require(gate.LevelAdminOrOwner, deps.handleListAudit))

	// Billing-gated resource: schedule overview.
	mux.Handle("GET /api/tenants/{slug}/schedule", require(gate.LevelSubscriptionActive, deps.handleScheduleOverview))

	// Operator admin surface (key-authenticated), disabled without a key.
	if deps.Config.AdminKeyHash != "" {
		mux.Handle("GET /admin/tenants", adminKeyAuth(deps.Config.AdminKeyHash, http.HandlerFunc(deps.handleAdminListTenants)))
	}
}

func handleHealthz(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	}
}

func handleReadyz(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := reg.Ping(); err != nil {
			log.Error().Err(err).Msg("Readiness probe failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// adminKeyAuth guards operator endpoints with a bcrypt-checked key from the
// X-Admin-Key header.
func adminKeyAuth(keyHash string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Admin-Key")
		if key == "" || bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readJSON decodes a request body into v with a sane size cap.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
