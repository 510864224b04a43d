// Package config loads the runtime configuration from the environment.
//
// A .env file in the working directory is read first (missing is fine);
// real environment variables always win over it. APP_ENV selects one of
// three profiles that supply defaults the environment did not:
//
//	development  DB_PATH=data/jokes_dev.db, a fixed dev JWT secret
//	testing      DB_PATH=:memory:, a fixed test JWT secret
//	production   DB_PATH=data/jokes.db, JWT_SECRET must be set
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvProduction  = "production"
)

const (
	devJWTSecret  = "dev-secret-change-me"
	testJWTSecret = "testing-secret-key"

	minProductionSecretLength = 32
)

// Config holds runtime configuration for the API server and CLI.
type Config struct {
	Env            string        `env:"APP_ENV,default=development"`
	Port           int           `env:"PORT,default=8080"`
	DBPath         string        `env:"DB_PATH"`
	JWTSecret      string        `env:"JWT_SECRET"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL,default=1h"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
	LogFormat      string        `env:"LOG_FORMAT,default=text"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS,default=*"`
	AuthRateLimit  int           `env:"AUTH_RATE_LIMIT,default=10"` // requests per minute per client IP on /login and /register

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads an optional .env file and then the process environment.
func Load(ctx context.Context) (Config, error) {
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: reading .env: %w", err)
	}
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom decodes the configuration from l and applies profile defaults.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.applyProfile(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyProfile() error {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))

	switch c.Env {
	case EnvDevelopment:
		if c.DBPath == "" {
			c.DBPath = "data/jokes_dev.db"
		}
		if c.JWTSecret == "" {
			c.JWTSecret = devJWTSecret
		}
	case EnvTesting:
		if c.DBPath == "" {
			c.DBPath = ":memory:"
		}
		if c.JWTSecret == "" {
			c.JWTSecret = testJWTSecret
		}
	case EnvProduction:
		if c.DBPath == "" {
			c.DBPath = "data/jokes.db"
		}
		if c.JWTSecret == "" {
			return errors.New("config: JWT_SECRET is required in production")
		}
		if len(c.JWTSecret) < minProductionSecretLength {
			return fmt.Errorf("config: JWT_SECRET must be at least %d characters in production", minProductionSecretLength)
		}
	default:
		return fmt.Errorf("config: APP_ENV must be one of %s, %s, %s; got %q",
			EnvDevelopment, EnvTesting, EnvProduction, c.Env)
	}

	if c.GoogleCallbackURL == "" {
		c.GoogleCallbackURL = fmt.Sprintf("http://localhost:%d/api/v1/auth/google/callback", c.Port)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("config: ACCESS_TOKEN_TTL must be positive, got %s", c.AccessTokenTTL)
	}
	if c.AuthRateLimit < 0 {
		return fmt.Errorf("config: AUTH_RATE_LIMIT must not be negative, got %d", c.AuthRateLimit)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// GoogleEnabled reports whether Google sign-in is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// UsingDefaultSecret reports whether the JWT secret came from a profile
// default rather than the environment.
func (c Config) UsingDefaultSecret() bool {
	return c.JWTSecret == devJWTSecret || c.JWTSecret == testJWTSecret
}

// SlogLevel parses LOG_LEVEL.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return level, nil
}
