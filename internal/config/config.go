package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the Bookden server.
type Config struct {
	DataDir     string
	BindAddress string
	Port        int
	BaseURL     string

	// Identity provider (OIDC).
	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string

	// Billing provider.
	StripeAPIKey        string
	StripeWebhookSecret string
	StripePriceID       string
	TrialDays           int64

	// SelectionSecret signs the tenant selection cookie. Must be at least 32
	// bytes of entropy.
	SelectionSecret string

	// AdminKeyHash is a bcrypt hash of the operator admin key. Optional; the
	// admin surface is disabled when empty.
	AdminKeyHash string

	// CookieSecure marks session and selection cookies Secure. Disable only
	// for plain-HTTP local development.
	CookieSecure bool

	OnboardingPath string
	BillingPath    string

	LogFormat string
	LogLevel  string
}

// RegistryDir returns the directory holding the tenant registry database.
func (c *Config) RegistryDir() string {
	return filepath.Join(c.DataDir, "registry")
}

// AuditDir returns the directory holding the audit log database.
func (c *Config) AuditDir() string {
	return filepath.Join(c.DataDir, "audit")
}

// Load reads configuration from environment variables. A .env file is loaded
// if present but not required.
func Load() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	port, err := envOrDefaultInt("BOOKDEN_PORT", 8443)
	if err != nil {
		return nil, err
	}
	trialDays, err := envOrDefaultInt64("BOOKDEN_TRIAL_DAYS", 14)
	if err != nil {
		return nil, err
	}
	cookieSecure, err := envOrDefaultBool("BOOKDEN_COOKIE_SECURE", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:             envOrDefault("BOOKDEN_DATA_DIR", "/data"),
		BindAddress:         envOrDefault("BOOKDEN_BIND_ADDRESS", "0.0.0.0"),
		Port:                port,
		BaseURL:             strings.TrimSpace(os.Getenv("BOOKDEN_BASE_URL")),
		OIDCIssuer:          strings.TrimSpace(os.Getenv("BOOKDEN_OIDC_ISSUER")),
		OIDCClientID:        strings.TrimSpace(os.Getenv("BOOKDEN_OIDC_CLIENT_ID")),
		OIDCClientSecret:    strings.TrimSpace(os.Getenv("BOOKDEN_OIDC_CLIENT_SECRET")),
		StripeAPIKey:        strings.TrimSpace(os.Getenv("STRIPE_API_KEY")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		StripePriceID:       strings.TrimSpace(os.Getenv("STRIPE_PRICE_ID")),
		TrialDays:           trialDays,
		SelectionSecret:     strings.TrimSpace(os.Getenv("BOOKDEN_SELECTION_SECRET")),
		AdminKeyHash:        strings.TrimSpace(os.Getenv("BOOKDEN_ADMIN_KEY_HASH")),
		CookieSecure:        cookieSecure,
		OnboardingPath:      envOrDefault("BOOKDEN_ONBOARDING_PATH", "/dashboard/onboarding"),
		BillingPath:         envOrDefault("BOOKDEN_BILLING_PATH", "/dashboard/billing"),
		LogFormat:           envOrDefault("BOOKDEN_LOG_FORMAT", "auto"),
		LogLevel:            envOrDefault("BOOKDEN_LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.BaseURL == "" {
		missing = append(missing, "BOOKDEN_BASE_URL")
	}
	if c.OIDCIssuer == "" {
		missing = append(missing, "BOOKDEN_OIDC_ISSUER")
	}
	if c.OIDCClientID == "" {
		missing = append(missing, "BOOKDEN_OIDC_CLIENT_ID")
	}
	if c.OIDCClientSecret == "" {
		missing = append(missing, "BOOKDEN_OIDC_CLIENT_SECRET")
	}
	if c.StripeAPIKey == "" {
		missing = append(missing, "STRIPE_API_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.StripePriceID == "" {
		missing = append(missing, "STRIPE_PRICE_ID")
	}
	if c.SelectionSecret == "" {
		missing = append(missing, "BOOKDEN_SELECTION_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("BOOKDEN_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if len(c.SelectionSecret) < 32 {
		return fmt.Errorf("BOOKDEN_SELECTION_SECRET must be at least 32 characters")
	}
	if c.TrialDays < 0 {
		return fmt.Errorf("BOOKDEN_TRIAL_DAYS must not be negative, got %d", c.TrialDays)
	}

	parsedBaseURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("BOOKDEN_BASE_URL must be a valid URL: %w", err)
	}
	if parsedBaseURL.Scheme != "http" && parsedBaseURL.Scheme != "https" {
		return fmt.Errorf("BOOKDEN_BASE_URL must use http or https scheme")
	}
	if parsedBaseURL.Host == "" {
		return fmt.Errorf("BOOKDEN_BASE_URL must include a host")
	}
	if !strings.HasPrefix(c.OnboardingPath, "/") {
		return fmt.Errorf("BOOKDEN_ONBOARDING_PATH must start with /")
	}
	if !strings.HasPrefix(c.BillingPath, "/") {
		return fmt.Errorf("BOOKDEN_BILLING_PATH must start with /")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultInt64(key string, fallback int64) (int64, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultBool(key string, fallback bool) (bool, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		return b, nil
	}
	return fallback, nil
}
