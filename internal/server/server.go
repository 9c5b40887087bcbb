package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bookden/bookden/internal/auditlog"
	"github.com/bookden/bookden/internal/billing"
	"github.com/bookden/bookden/internal/config"
	"github.com/bookden/bookden/internal/gate"
	"github.com/bookden/bookden/internal/identity"
	"github.com/bookden/bookden/internal/logging"
	"github.com/bookden/bookden/internal/metrics"
	"github.com/bookden/bookden/internal/registry"
	"github.com/bookden/bookden/internal/selection"
)

// Run starts the Bookden HTTP server with graceful shutdown.
func Run(ctx context.Context, version string) error {
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "bookden",
	})

	log.Info().Str("version", version).Msg("Starting Bookden")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "bookden",
	})

	// Ensure data directories exist
	if err := os.MkdirAll(cfg.RegistryDir(), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	if err := os.MkdirAll(cfg.AuditDir(), 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	reg, err := registry.New(cfg.RegistryDir())
	if err != nil {
		return fmt.Errorf("open tenant registry: %w", err)
	}
	defer reg.Close()

	audit, err := auditlog.Open(cfg.AuditDir())
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer audit.Close()

	oidc, err := identity.NewOIDCProvider(ctx, identity.OIDCConfig{
		IssuerURL:    cfg.OIDCIssuer,
		ClientID:     cfg.OIDCClientID,
		ClientSecret: cfg.OIDCClientSecret,
		RedirectURL:  cfg.BaseURL + "/auth/callback",
		CookieSecure: cfg.CookieSecure,
	})
	if err != nil {
		return fmt.Errorf("init identity provider: %w", err)
	}

	sel, err := selection.NewManager(cfg.SelectionSecret, cfg.CookieSecure)
	if err != nil {
		return fmt.Errorf("init selection manager: %w", err)
	}

	resolver := gate.NewResolver(reg, sel)
	accessGate := gate.New(reg, oidc, resolver, cfg.OnboardingPath, cfg.BillingPath)

	reconciler := billing.NewReconciler(reg, cfg.StripeWebhookSecret, audit)
	checkout := billing.NewCheckoutService(cfg.StripeAPIKey, cfg.StripePriceID, cfg.BaseURL, cfg.TrialDays)

	mux := http.NewServeMux()
	deps := &Deps{
		Config:    cfg,
		Registry:  reg,
		Audit:     audit,
		Identity:  oidc,
		OIDC:      oidc,
		Selection: sel,
		Gate:      accessGate,
		Webhook:   billing.NewWebhookHandler(reconciler),
		Checkout:  checkout,
		Version:   version,
	}
	RegisterRoutes(mux, deps)

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           SecurityHeaders(mux),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Create derived context for background goroutines
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go runSubscriptionMetrics(ctx, reg)

	// Start server in background
	go func() {
		log.Info().Str("addr", addr).Msg("Bookden listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Server failed")
		}
	}()

	// Signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		log.Info().Msg("Context cancelled, shutting down...")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	cancel()
	log.Info().Msg("Bookden stopped")
	return nil
}

// knownStatuses lists every status the gauge reports, so statuses that drop to
// zero are published as zero rather than going missing.
var knownStatuses = []registry.SubscriptionStatus{
	registry.StatusIncomplete,
	registry.StatusTrialing,
	registry.StatusActive,
	registry.StatusPastDue,
	registry.StatusCanceled,
}

// runSubscriptionMetrics refreshes the subscriptions-by-status gauge until the
// context ends.
func runSubscriptionMetrics(ctx context.Context, reg *registry.Registry) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	update := func() {
		counts, err := reg.CountSubscriptionsByStatus()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to count subscriptions")
			return
		}
		for _, status := range knownStatuses {
			metrics.SubscriptionsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
		}
	}

	update()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
