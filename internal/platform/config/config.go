package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	DatabaseURL      string `env:"DATABASE_URL"`
	DatabaseMaxConns int32  `env:"DATABASE_MAX_CONNS" default:"10"`
	RedisURL         string `env:"REDIS_URL"`
	PublishAPIKey    string `env:"PUBLISH_API_KEY"`

	HandshakeTimeout    time.Duration `env:"HANDSHAKE_TIMEOUT" default:"10s"`
	MaxConnections      int64         `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int           `env:"MAX_CONNECTIONS_PER_IP" default:"50"`
	ConnectionRate      float64       `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst     int           `env:"CONNECTION_BURST" default:"20"`
	MembershipCacheTTL  time.Duration `env:"MEMBERSHIP_CACHE_TTL" default:"5s"`
	RelayEnabled        bool          `env:"RELAY_ENABLED" default:"true"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" default:"15s"`
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"PUBLISH_API_KEY", cfg.PublishAPIKey},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(cfg.PublishAPIKey) < 16 {
		return errors.New("PUBLISH_API_KEY must be at least 16 characters")
	}
	if cfg.HandshakeTimeout <= 0 {
		return errors.New("HANDSHAKE_TIMEOUT must be positive")
	}
	if cfg.MaxConnections < 1 || cfg.MaxConnectionsPerIP < 1 {
		return errors.New("MAX_CONNECTIONS and MAX_CONNECTIONS_PER_IP must be at least 1")
	}
	if cfg.ConnectionRate <= 0 || cfg.ConnectionBurst < 1 {
		return errors.New("CONNECTION_RATE must be positive and CONNECTION_BURST at least 1")
	}
	if cfg.MembershipCacheTTL < 0 {
		return errors.New("MEMBERSHIP_CACHE_TTL must not be negative")
	}

	if !cfg.IsDevelopment() {
		if mode := sslMode(cfg.DatabaseURL); mode == "disable" || mode == "allow" {
			return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in %s", mode, cfg.AppEnv)
		}
	}

	return nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
