package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "relay"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		CRM:   CRMConfig{APIKey: "token"},
		Relay: RelayConfig{FallbackContactID: "fallback-contact"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_FallbackContactRequired(t *testing.T) {
	c := validConfig()
	c.Relay.FallbackContactID = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error when FALLBACK_CONTACT_ID is missing")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.DB.SSLMode = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.CRM.BaseURL == "" {
		t.Fatalf("expected CRM base URL default")
	}
	if c.Relay.LookupTimeout != 2*time.Second {
		t.Fatalf("expected 2s lookup timeout default, got %v", c.Relay.LookupTimeout)
	}
	if c.Relay.CallContextTTL != time.Hour {
		t.Fatalf("expected 1h call context ttl default, got %v", c.Relay.CallContextTTL)
	}
}
