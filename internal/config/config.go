// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/shopspring/decimal"
	"golang.org/x/mod/semver"

	"coffee-checkout/internal/backend"
	"coffee-checkout/internal/brdoc"
	"coffee-checkout/internal/checkout"
	"coffee-checkout/internal/payment"
)

// Defaults applied when a setting is absent.
const (
	DefaultPort               = "8080"
	DefaultBackendTimeout     = 15
	DefaultInstantDiscount    = "5"
	DefaultMaxInstallments    = 12
	DefaultSessionIdleMinutes = 30
	DefaultOriginPostalCode   = "01310-100"
)

// Config holds all service configuration.
// Environment determines whether backend credentials load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	StoreID    string

	Backend         BackendConfig
	Checkout        CheckoutConfig
	PostalLookupURL string // empty disables address auto-fill
	Redis           RedisConfig
}

// BackendConfig locates the storefront checkout backend.
// In production, BaseURL and APIKey are loaded from Secret Manager.
type BackendConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	FingerprintTLS bool   `json:"fingerprint_tls,omitempty"`
	MinAPIVersion  string `json:"min_api_version,omitempty"`
}

// CheckoutConfig holds store policy for the wizard.
type CheckoutConfig struct {
	OriginPostalCode       string          `json:"origin_postal_code"`
	InstantDiscountPercent decimal.Decimal `json:"instant_discount_percent"`
	MaxInstallments        int             `json:"max_installments"`
	RequireVoucherTaxID    bool            `json:"require_voucher_tax_id,omitempty"`
	SessionIdleMinutes     int             `json:"session_idle_minutes"`
}

// RedisConfig points at the live cart store. An empty Addr keeps carts
// in memory.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// storeSecret is the Secret Manager payload for one store.
type storeSecret struct {
	BackendURL    string `json:"backend_url"`
	BackendAPIKey string `json:"backend_api_key"`
	RedisPassword string `json:"redis_password,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	// Otherwise, use ENV vars / Secret Manager approach
	cfg := &Config{
		Port:            envOrDefault("PORT", DefaultPort),
		Environment:     envOrDefault("ENVIRONMENT", "development"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		GCPProject:      os.Getenv("GCP_PROJECT"),
		StoreID:         os.Getenv("STORE_ID"),
		PostalLookupURL: os.Getenv("POSTAL_LOOKUP_URL"),
	}

	// StoreID required in all environments
	if cfg.StoreID == "" {
		return nil, fmt.Errorf("STORE_ID environment variable required")
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	// Backend credentials come from Secret Manager in production
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading store secret: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Use a struct that matches the JSON structure
	var fileConfig struct {
		Port            string         `json:"port"`
		Environment     string         `json:"environment"`
		LogLevel        string         `json:"log_level"`
		StoreID         string         `json:"store_id"`
		Backend         BackendConfig  `json:"backend"`
		Checkout        CheckoutConfig `json:"checkout"`
		PostalLookupURL string         `json:"postal_lookup_url"`
		Redis           RedisConfig    `json:"redis"`
	}
	// Absent keys keep this value; an explicit 0 disables the discount
	fileConfig.Checkout.InstantDiscountPercent = decimal.RequireFromString(DefaultInstantDiscount)

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:            withDefault(fileConfig.Port, DefaultPort),
		Environment:     withDefault(fileConfig.Environment, "development"),
		LogLevel:        withDefault(fileConfig.LogLevel, "info"),
		StoreID:         fileConfig.StoreID,
		Backend:         fileConfig.Backend,
		Checkout:        fileConfig.Checkout,
		PostalLookupURL: fileConfig.PostalLookupURL,
		Redis:           fileConfig.Redis,
	}

	if cfg.StoreID == "" {
		return nil, fmt.Errorf("store_id is required")
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches backend credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{store_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StoreID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	return c.applySecret(result.Payload.Data)
}

// applySecret overlays a store secret payload onto the config.
func (c *Config) applySecret(data []byte) error {
	var s storeSecret
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	if s.BackendURL != "" {
		c.Backend.BaseURL = s.BackendURL
	}
	if s.BackendAPIKey != "" {
		c.Backend.APIKey = s.BackendAPIKey
	}
	if s.RedisPassword != "" {
		c.Redis.Password = s.RedisPassword
	}
	return nil
}

// loadFromEnv reads backend, checkout and Redis settings from individual
// environment variables.
func (c *Config) loadFromEnv() error {
	var err error
	c.Backend = BackendConfig{
		BaseURL:       os.Getenv("BACKEND_URL"),
		APIKey:        os.Getenv("BACKEND_API_KEY"),
		MinAPIVersion: os.Getenv("BACKEND_MIN_API_VERSION"),
	}
	if c.Backend.TimeoutSeconds, err = envInt("BACKEND_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	if c.Backend.FingerprintTLS, err = envBool("BACKEND_FINGERPRINT_TLS"); err != nil {
		return err
	}

	c.Checkout = CheckoutConfig{OriginPostalCode: os.Getenv("ORIGIN_POSTAL_CODE")}
	if v := os.Getenv("INSTANT_DISCOUNT_PERCENT"); v != "" {
		if c.Checkout.InstantDiscountPercent, err = decimal.NewFromString(v); err != nil {
			return fmt.Errorf("parsing INSTANT_DISCOUNT_PERCENT: %w", err)
		}
	} else {
		c.Checkout.InstantDiscountPercent = decimal.RequireFromString(DefaultInstantDiscount)
	}
	if c.Checkout.MaxInstallments, err = envInt("MAX_INSTALLMENTS"); err != nil {
		return err
	}
	if c.Checkout.RequireVoucherTaxID, err = envBool("REQUIRE_VOUCHER_TAX_ID"); err != nil {
		return err
	}
	if c.Checkout.SessionIdleMinutes, err = envInt("SESSION_IDLE_MINUTES"); err != nil {
		return err
	}

	c.Redis = RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
	}
	if c.Redis.DB, err = envInt("REDIS_DB"); err != nil {
		return err
	}
	return nil
}

// applyDefaults fills zero-valued settings.
func (c *Config) applyDefaults() {
	if c.Backend.TimeoutSeconds <= 0 {
		c.Backend.TimeoutSeconds = DefaultBackendTimeout
	}
	if c.Checkout.OriginPostalCode == "" {
		c.Checkout.OriginPostalCode = DefaultOriginPostalCode
	}
	if c.Checkout.MaxInstallments <= 0 {
		c.Checkout.MaxInstallments = DefaultMaxInstallments
	}
	if c.Checkout.SessionIdleMinutes <= 0 {
		c.Checkout.SessionIdleMinutes = DefaultSessionIdleMinutes
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend base_url is required")
	}
	if c.Backend.APIKey == "" {
		return fmt.Errorf("backend api_key is required")
	}

	// Validate backend URL is well-formed
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend base_url: %q", c.Backend.BaseURL)
	}

	if c.PostalLookupURL != "" {
		if u, err := url.Parse(c.PostalLookupURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid postal_lookup_url: %q", c.PostalLookupURL)
		}
	}

	if !brdoc.ValidCEP(c.Checkout.OriginPostalCode) {
		return fmt.Errorf("invalid origin_postal_code: %q", c.Checkout.OriginPostalCode)
	}

	pct := c.Checkout.InstantDiscountPercent
	if pct.IsNegative() || pct.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("instant_discount_percent must be in [0, 100), got %s", pct)
	}

	if v := c.Backend.MinAPIVersion; v != "" && !semver.IsValid(canonicalVersion(v)) {
		return fmt.Errorf("invalid min_api_version: %q", v)
	}

	return nil
}

// canonicalVersion adds the "v" prefix semver expects.
func canonicalVersion(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// BackendTimeout is the per-call bound for backend requests.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// SessionIdle is how long an untouched wizard is kept.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.Checkout.SessionIdleMinutes) * time.Minute
}

// BuildBackendConfig creates the backend client configuration.
func (c *Config) BuildBackendConfig(logger *slog.Logger) backend.Config {
	return backend.Config{
		BaseURL:     strings.TrimSuffix(c.Backend.BaseURL, "/"),
		APIKey:      c.Backend.APIKey,
		Timeout:     c.BackendTimeout(),
		Fingerprint: c.Backend.FingerprintTLS,
		Logger:      logger,
	}
}

// BuildPaymentConfig creates the payment gateway configuration.
func (c *Config) BuildPaymentConfig(logger *slog.Logger) payment.Config {
	return payment.Config{
		InstantDiscountPercent: c.Checkout.InstantDiscountPercent,
		Rules: payment.Rules{
			MaxInstallments:     c.Checkout.MaxInstallments,
			RequireVoucherTaxID: c.Checkout.RequireVoucherTaxID,
		},
		Logger: logger,
	}
}

// BuildCheckoutConfig creates the orchestrator configuration.
// Collaborator calls share the backend timeout.
func (c *Config) BuildCheckoutConfig() checkout.Config {
	return checkout.Config{
		OriginPostalCode: brdoc.MaskCEP(c.Checkout.OriginPostalCode),
		CallTimeout:      c.BackendTimeout(),
	}
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// envInt parses an optional integer environment variable. Unset is 0.
func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

// envBool parses an optional boolean environment variable. Unset is false.
func envBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}
