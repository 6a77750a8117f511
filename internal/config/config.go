// Package config loads service configuration from an optional YAML file with
// environment-variable overlay. Environment values always win over the file.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root service configuration.
type Config struct {
	Env      string         `yaml:"env" env:"CHORDSTREAM_ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	DB       DBConfig       `yaml:"db"`
	Auth     AuthConfig     `yaml:"auth"`
	Security SecurityConfig `yaml:"security"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`

	// Per-IP token bucket applied in front of every endpoint.
	RateLimitPerSecond int `yaml:"rate_limit_per_second" env:"HTTP_RATE_LIMIT_PER_SECOND" env-default:"20"`
	RateLimitBurst     int `yaml:"rate_limit_burst" env:"HTTP_RATE_LIMIT_BURST" env-default:"40"`

	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"HTTP_MAX_BODY_BYTES" env-default:"1048576"`
}

// Addr returns the listen address in host:port form.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// DBConfig holds Postgres connection settings. The DSN is optional: without
// it the service runs with in-memory stores only.
type DBConfig struct {
	DSN string `yaml:"dsn" env:"CHORDSTREAM_PG_DSN"`
}

// AuthConfig holds token issuance and validation parameters.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"CHORDSTREAM_JWT_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	Issuer          string        `yaml:"issuer" env:"TOKEN_ISSUER" env-default:"chordstream"`
	Audience        string        `yaml:"audience" env:"TOKEN_AUDIENCE" env-default:"chordstream-api"`
}

// SecurityConfig tunes login rate limiting and the background sweep.
type SecurityConfig struct {
	LoginWindow   time.Duration `yaml:"login_window" env:"LOGIN_WINDOW" env-default:"15m"`
	MaxAttempts   int           `yaml:"max_attempts" env:"LOGIN_MAX_ATTEMPTS" env-default:"5"`
	BlockDuration time.Duration `yaml:"block_duration" env:"LOGIN_BLOCK_DURATION" env-default:"30m"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SECURITY_SWEEP_INTERVAL" env-default:"5m"`
}

// MustLoad wraps Load and panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load resolves configuration with the following priority:
// 1) explicit path; 2) CONFIG_PATH env; 3) environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Env always overrides file values.
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("overlay env: %w", err)
		}
		return &cfg, nil
	}

	if path != "" {
		return tryRead(path)
	}
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return tryRead(p)
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, nil
}
