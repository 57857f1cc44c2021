// Package config loads typed service configuration from a YAML file with an
// environment-variable overlay. Token secrets and TTLs are each independently
// required: a missing value fails startup instead of silently defaulting.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root configuration of the API service.
//
// Value sources, in descending priority:
//  1. explicit path passed to Load (the --config flag);
//  2. path from the CONFIG_PATH environment variable;
//  3. ./local.yaml in the working directory;
//  4. environment variables only.
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	GRPC     GRPCConfig    `yaml:"grpc"`
	Auth     AuthConfig    `yaml:"auth"`
	DB       DBConfig      `yaml:"db"`
	Limits   LimitConfig   `yaml:"limits"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// HTTPConfig holds the HTTP listener settings.
type HTTPConfig struct {
	Host string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
}

// GRPCConfig holds the optional gRPC health listener settings. An empty port
// disables the listener.
type GRPCConfig struct {
	Host string `yaml:"host" env:"GRPC_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"GRPC_PORT" env-default:""`
}

// Addr returns the listener address in host:port form.
func (c HTTPConfig) Addr() string { return net.JoinHostPort(c.Host, c.Port) }

// Addr returns the listener address in host:port form.
func (c GRPCConfig) Addr() string { return net.JoinHostPort(c.Host, c.Port) }

// Enabled reports whether a gRPC listener should be started.
func (c GRPCConfig) Enabled() bool { return c.Port != "" }

// AuthConfig carries token issuance parameters. The two secrets must differ;
// that is enforced by the auth package at construction time.
type AuthConfig struct {
	AccessTokenSecret  string        `yaml:"access_token_secret" env:"ACCESS_TOKEN_SECRET" env-required:"true"`
	AccessTokenTTL     time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-required:"true"`
	RefreshTokenSecret string        `yaml:"refresh_token_secret" env:"REFRESH_TOKEN_SECRET" env-required:"true"`
	RefreshTokenTTL    time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-required:"true"`
	Issuer             string        `yaml:"issuer" env:"TOKEN_ISSUER" env-default:"vidora-api"`
}

// DBConfig holds database connection settings.
type DBConfig struct {
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL" env-required:"true"`
}

// LimitConfig holds request throttling knobs. MaxBodyBytes mirrors the 16kb
// JSON body cap of the public API.
type LimitConfig struct {
	RateBurst    int   `yaml:"rate_burst" env:"RATE_BURST" env-default:"20"`
	RatePerSec   int   `yaml:"rate_per_sec" env:"RATE_PER_SEC" env-default:"10"`
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES" env-default:"16384"`
}

// TimeoutConfig holds server lifecycle timeouts.
type TimeoutConfig struct {
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// MustLoad is Load with a panic on error, for use from main.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration following the priority order documented on Config.
// Environment variables are overlaid on top of any file that was read.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("overlay env: %w", err)
		}
		return &cfg, nil
	}

	if path != "" {
		return tryRead(path)
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	return &cfg, nil
}
