package mockapi

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultTokenTTL = 30 * time.Minute

	// tokens are signed by the mock server only, the secret never leaves the process
	minSecretKeyLength = 16
)

// Config controls a mock backend instance. Zero values are replaced with defaults by NewServer.
type Config struct {
	SecretKey      string
	TokenTTL       time.Duration
	AllowedOrigins []string // CORS origins, empty disables CORS handling
	Clock          clockwork.Clock
	Logger         *slog.Logger
}

func (c *Config) withDefaults() (*Config, error) {
	out := *c
	if out.SecretKey == "" {
		out.SecretKey = "qaportal-mock-secret-key"
	}
	if len(out.SecretKey) < minSecretKeyLength {
		return nil, fmt.Errorf("secret key must be at least %d characters", minSecretKeyLength)
	}
	if out.TokenTTL <= 0 {
		out.TokenTTL = DefaultTokenTTL
	}
	if out.Clock == nil {
		out.Clock = clockwork.NewRealClock()
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return &out, nil
}
