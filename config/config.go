package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all service configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Messaging MessagingConfig `mapstructure:"messaging"`
}

type AppConfig struct {
	Env             string        `mapstructure:"env"`
	Port            string        `mapstructure:"port"`
	BodyLimitMB     int           `mapstructure:"body_limit_mb"`
	AllowedOrigins  string        `mapstructure:"allowed_origins"`
	RateLimitMax    int           `mapstructure:"rate_limit_max"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres | sqlite
	DSN             string        `mapstructure:"dsn"`    // overrides the discrete fields when set
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	TimeZone        string        `mapstructure:"timezone"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// BillingConfig carries the issuer identity and the fiscal defaults of the lab.
type BillingConfig struct {
	IssuerCode           string  `mapstructure:"issuer_code"`
	TaxRate              float64 `mapstructure:"tax_rate"` // percent
	Currency             string  `mapstructure:"currency"`
	DocumentType         string  `mapstructure:"document_type"`
	ReleaseTestsOnCancel bool    `mapstructure:"release_tests_on_cancel"`
}

// DefaultTaxRate returns the configured tax percentage as a decimal.
func (b BillingConfig) DefaultTaxRate() decimal.Decimal {
	return decimal.NewFromFloat(b.TaxRate)
}

type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type MessagingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Queue   string `mapstructure:"queue"`
}

// Load reads an optional .env file, an optional YAML config file and the
// LAB_* environment, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	// .env is a convenience for local runs; containers pass real env vars.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.body_limit_mb", 4)
	v.SetDefault("app.allowed_origins", "*")
	v.SetDefault("app.rate_limit_max", 60)
	v.SetDefault("app.rate_limit_window", 60*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("billing.issuer_code", "default")
	v.SetDefault("billing.tax_rate", 22.0)
	v.SetDefault("billing.currency", "EUR")
	v.SetDefault("billing.document_type", "TD01")
	v.SetDefault("billing.release_tests_on_cancel", true)

	v.SetDefault("logger.level", "info")

	v.SetDefault("storage.bucket", "einvoices")
	v.SetDefault("messaging.queue", "einvoice_transmissions")

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"database.dsn", "database.user", "database.password", "database.name",
		"auth.jwt_secret",
		"storage.enabled", "storage.endpoint", "storage.access_key", "storage.secret_key", "storage.use_ssl",
		"messaging.enabled", "messaging.url",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		return errors.New("database.dsn is required for sqlite")
	}
	if c.Billing.TaxRate < 0 || c.Billing.TaxRate > 100 {
		return fmt.Errorf("billing.tax_rate must be within 0-100, got %v", c.Billing.TaxRate)
	}
	if strings.TrimSpace(c.Billing.IssuerCode) == "" {
		return errors.New("billing.issuer_code is required")
	}
	if c.Storage.Enabled && (c.Storage.Endpoint == "" || c.Storage.Bucket == "") {
		return errors.New("storage.endpoint and storage.bucket are required when storage is enabled")
	}
	if c.Messaging.Enabled && c.Messaging.URL == "" {
		return errors.New("messaging.url is required when messaging is enabled")
	}
	return nil
}
