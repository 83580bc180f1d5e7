package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

// Config holds the API client settings, resolved once at startup.
//
// APIBaseURL is the single canonical base path for the backend: if the deployment
// mounts the API under a prefix (e.g. /api) the prefix belongs here and nowhere else.
type Config struct {
	Environment    string        `env:"ENVIRONMENT,default=dev"`
	LogLevel       string        `env:"LOG_LEVEL,default=debug"`
	APIBaseURL     string        `env:"QA_API_BASE_URL,default=http://127.0.0.1:8000"`
	SendCookies    bool          `env:"QA_SEND_COOKIES,default=false"`
	RequestTimeout time.Duration `env:"QA_REQUEST_TIMEOUT,default=30s"`
	RateLimit      float64       `env:"QA_RATE_LIMIT,default=0"` // requests per second, 0 disables
	RateBurst      int           `env:"QA_RATE_BURST,default=1"`
	TokenFile      string        `env:"QA_TOKEN_FILE"`
	UserAgent      string        `env:"QA_USER_AGENT"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"staging": true,
	"prod":    true,
}

const (
	DefaultAPIBaseURL = "http://127.0.0.1:8000"
	tokenDirName      = "qaportal"
	tokenFileName     = "token"
)

// NewConfig loads the configuration from the process environment.
func NewConfig() (*Config, error) {
	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return FromEnvSet(es)
}

// FromEnvSet loads the configuration from an explicit set of variables.
func FromEnvSet(es env.EnvSet) (*Config, error) {
	var cfg Config

	if err := env.Unmarshal(es, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if cfg.TokenFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("QA_TOKEN_FILE not set and no user config dir available: %w", err)
		}
		cfg.TokenFile = filepath.Join(dir, tokenDirName, tokenFileName)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid environment '%s'. Valid environments: dev, test, staging, prod", cfg.Environment)
	}

	if cfg.APIBaseURL == "" {
		return fmt.Errorf("QA_API_BASE_URL cannot be empty")
	}
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return fmt.Errorf("QA_API_BASE_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("QA_API_BASE_URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("QA_API_BASE_URL must include a host")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("QA_API_BASE_URL must not contain a query or fragment")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative, got %v", cfg.RequestTimeout)
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", cfg.RateLimit)
	}
	if cfg.RateLimit > 0 && cfg.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1 when rate limiting is enabled, got %d", cfg.RateBurst)
	}

	return nil
}
