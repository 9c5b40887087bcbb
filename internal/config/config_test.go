package config

import (
	"strings"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BOOKDEN_BASE_URL", "https://app.bookden.example")
	t.Setenv("BOOKDEN_OIDC_ISSUER", "https://auth.bookden.example")
	t.Setenv("BOOKDEN_OIDC_CLIENT_ID", "bookden-web")
	t.Setenv("BOOKDEN_OIDC_CLIENT_SECRET", "secret")
	t.Setenv("STRIPE_API_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("STRIPE_PRICE_ID", "price_123")
	t.Setenv("BOOKDEN_SELECTION_SECRET", strings.Repeat("s", 32))
}

func TestLoadWithDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8443 {
		t.Errorf("Port = %d, want 8443", cfg.Port)
	}
	if cfg.TrialDays != 14 {
		t.Errorf("TrialDays = %d, want 14", cfg.TrialDays)
	}
	if !cfg.CookieSecure {
		t.Error("CookieSecure should default to true")
	}
	if cfg.OnboardingPath != "/dashboard/onboarding" || cfg.BillingPath != "/dashboard/billing" {
		t.Errorf("paths = (%q, %q)", cfg.OnboardingPath, cfg.BillingPath)
	}
	if cfg.RegistryDir() == cfg.AuditDir() {
		t.Error("registry and audit dirs must differ")
	}
}

func TestLoadReportsAllMissingVariables(t *testing.T) {
	// Only one of the required variables present.
	t.Setenv("BOOKDEN_BASE_URL", "https://app.bookden.example")
	t.Setenv("BOOKDEN_OIDC_ISSUER", "")
	t.Setenv("BOOKDEN_OIDC_CLIENT_ID", "")
	t.Setenv("BOOKDEN_OIDC_CLIENT_SECRET", "")
	t.Setenv("STRIPE_API_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("STRIPE_PRICE_ID", "")
	t.Setenv("BOOKDEN_SELECTION_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load succeeded without required variables")
	}
	for _, name := range []string{"BOOKDEN_OIDC_ISSUER", "STRIPE_WEBHOOK_SECRET", "BOOKDEN_SELECTION_SECRET"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}
}

func TestLoadRejectsShortSelectionSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BOOKDEN_SELECTION_SECRET", "short")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted a short selection secret")
	}
}

func TestLoadRejectsBadBaseURL(t *testing.T) {
	setRequiredEnv(t)

	for _, bad := range []string{"ftp://bookden.example", "not a url at all ://"} {
		t.Setenv("BOOKDEN_BASE_URL", bad)
		if _, err := Load(); err == nil {
			t.Errorf("Load accepted base URL %q", bad)
		}
	}
}

func TestLoadRejectsBadPort(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BOOKDEN_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted out-of-range port")
	}

	t.Setenv("BOOKDEN_PORT", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted non-numeric port")
	}
}
