package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("LAB_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("LAB_BILLING_TAX_RATE", "10")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 10.0, cfg.Billing.TaxRate)
	assert.Equal(t, "10", cfg.Billing.DefaultTaxRate().String())
	assert.True(t, cfg.Billing.ReleaseTestsOnCancel)
	assert.Equal(t, 60*time.Second, cfg.App.RateLimitWindow)
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("LAB_AUTH_JWT_SECRET", "s3cret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte(`
database:
  driver: sqlite
  dsn: file:lab.db
billing:
  issuer_code: LAB01
  release_tests_on_cancel: false
`)
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "LAB01", cfg.Billing.IssuerCode)
	assert.False(t, cfg.Billing.ReleaseTestsOnCancel)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: "postgres"},
			Auth:     AuthConfig{JWTSecret: "x"},
			Billing:  BillingConfig{IssuerCode: "LAB", TaxRate: 22},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = " " }, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"sqlite without dsn", func(c *Config) { c.Database.Driver = "sqlite" }, true},
		{"negative tax", func(c *Config) { c.Billing.TaxRate = -1 }, true},
		{"tax over 100", func(c *Config) { c.Billing.TaxRate = 101 }, true},
		{"empty issuer", func(c *Config) { c.Billing.IssuerCode = "" }, true},
		{"storage without endpoint", func(c *Config) { c.Storage.Enabled = true }, true},
		{"messaging without url", func(c *Config) { c.Messaging.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
