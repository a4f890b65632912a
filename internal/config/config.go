package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const insecureSecret = "supersecretkey"

type Config struct {
	Addr            string         `yaml:"addr" env:"STORYBB_ADDR"`
	JWTSecret       string         `yaml:"jwt_secret" env:"STORYBB_JWT_SECRET"`
	APITimeout      time.Duration  `yaml:"timeout" env:"STORYBB_TIMEOUT"`
	DatabasePath    string         `yaml:"database_path" env:"STORYBB_DATABASE_PATH"`
	TokenDuration   time.Duration  `yaml:"token_duration" env:"STORYBB_TOKEN_DURATION"`
	CookieName      string         `yaml:"cookie_name" env:"STORYBB_COOKIE_NAME"`
	CookieSecure    bool           `yaml:"cookie_secure" env:"STORYBB_COOKIE_SECURE"`
	LogLevel        string         `yaml:"log_level" env:"STORYBB_LOG_LEVEL"`
	DefaultLanguage string         `yaml:"default_language" env:"STORYBB_DEFAULT_LANGUAGE"`
	Workers         int            `yaml:"workers" env:"STORYBB_WORKERS"`
	OTelEndpoint    string         `yaml:"otel_endpoint" env:"STORYBB_OTEL_ENDPOINT"`
	MailFrom        string         `yaml:"mail_from" env:"STORYBB_MAIL_FROM"`
	Payments        PaymentsConfig `yaml:"payments"`
}

// PaymentsConfig configures the paid subscription gateways.
type PaymentsConfig struct {
	// TokenSecret signs callbacks from the token gateway; empty disables it.
	TokenSecret string `yaml:"token_secret" env:"STORYBB_PAYMENTS_TOKEN_SECRET"`
	CheckoutURL string `yaml:"checkout_url" env:"STORYBB_PAYMENTS_CHECKOUT_URL"`
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// at path, then STORYBB_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Addr:            ":8080",
		JWTSecret:       insecureSecret,
		APITimeout:      15 * time.Second,
		DatabasePath:    "storybb.db",
		TokenDuration:   24 * time.Hour,
		CookieName:      "storybb_session",
		LogLevel:        "info",
		DefaultLanguage: "en-US",
		Workers:         2,
		MailFrom:        "noreply@storybb.local",
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration and fills defaults for zero values.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.JWTSecret == insecureSecret && os.Getenv("STORYBB_ENV") != "development" {
		return errors.New("jwt_secret uses the insecure default; set STORYBB_JWT_SECRET or STORYBB_ENV=development")
	}
	if c.APITimeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.TokenDuration <= 0 {
		return errors.New("token_duration must be positive")
	}
	if c.DatabasePath == "" {
		return errors.New("database_path is required")
	}
	if _, err := language.Parse(c.DefaultLanguage); err != nil {
		return fmt.Errorf("default_language: %w", err)
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.CookieName == "" {
		c.CookieName = "storybb_session"
	}
	return nil
}
