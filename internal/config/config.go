package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or an env-file loaded at startup).
// No business logic should depend on raw environment variables.
type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	CRM   CRMConfig
	Relay RelayConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit. Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

// CRMConfig is the SalesNexus API surface.
type CRMConfig struct {
	APIKey  string
	BaseURL string
}

// RelayConfig drives the webhook relay and contact resolution.
type RelayConfig struct {
	// FallbackContactID receives notes when no contact can be resolved.
	// Required: resolution has no meaningful behavior without it.
	FallbackContactID string

	// SiteBaseURL is used in note bodies for direct links back to calls.
	SiteBaseURL string

	// OverridesFile is an optional JSON file holding the static
	// phone-to-email and phone-to-contact override tables.
	OverridesFile string

	// LookupTimeout bounds the directory lookup inside resolution.
	// Timeouts degrade to "no result"; they never fail the webhook.
	LookupTimeout time.Duration

	// CallContextTTL bounds retention of per-call phone number context.
	CallContextTTL time.Duration

	// DedupeTTL bounds the webhook delivery dedupe window.
	DedupeTTL time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.CRM.APIKey = os.Getenv("SALESNEXUS_API_KEY")
	c.CRM.BaseURL = strings.TrimSpace(os.Getenv("SALESNEXUS_BASE_URL"))

	c.Relay.FallbackContactID = strings.TrimSpace(os.Getenv("FALLBACK_CONTACT_ID"))
	c.Relay.SiteBaseURL = strings.TrimSpace(os.Getenv("SITE_BASE_URL"))
	c.Relay.OverridesFile = strings.TrimSpace(os.Getenv("OVERRIDES_FILE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Relay.LookupTimeout = mustDuration("LOOKUP_TIMEOUT")
	c.Relay.CallContextTTL = mustDuration("CALL_CONTEXT_TTL")
	c.Relay.DedupeTTL = mustDuration("WEBHOOK_DEDUPE_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.CRM.APIKey == "" {
		errs = append(errs, errors.New("SALESNEXUS_API_KEY is required"))
	}
	if c.CRM.BaseURL == "" {
		c.CRM.BaseURL = "https://logon.salesnexus.com"
	}

	// A missing fallback contact is a configuration error, not a runtime one:
	// resolution degrades to this id and must always have somewhere to land.
	if c.Relay.FallbackContactID == "" {
		errs = append(errs, errors.New("FALLBACK_CONTACT_ID is required"))
	}

	if c.Relay.LookupTimeout <= 0 {
		c.Relay.LookupTimeout = 2 * time.Second
	}
	if c.Relay.CallContextTTL <= 0 {
		c.Relay.CallContextTTL = time.Hour
	}
	if c.Relay.DedupeTTL <= 0 {
		c.Relay.DedupeTTL = 24 * time.Hour
	}

	return joinErrors(errs)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c *Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
