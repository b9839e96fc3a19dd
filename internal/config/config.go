// Package config holds the runtime settings of the vending daemon.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StoreGorm = "gorm"
	StorePgx  = "pgx"

	defaultListenAddr      = ":8080"
	defaultGRPCListenAddr  = ":7000"
	defaultDatabaseURL     = "sqlite:///tmp/vending.db"
	defaultSessionCacheURL = "memory://"
	defaultSessionTTL      = 60 * time.Minute
	defaultTokenIssuer     = "vending"
	defaultAllowedOrigin   = "http://localhost:3000"
	defaultLoginRateLimit  = 5.0
	defaultLoginBurst      = 10
	defaultShutdownTimeout = 5 * time.Second
)

var ErrInvalidConfig = errors.New("invalid config")

// Config aggregates runtime settings for vendingd.
type Config struct {
	ListenAddr           string
	GRPCListenAddr       string
	DatabaseURL          string
	Store                string
	SessionCacheURL      string
	SessionTTL           time.Duration
	JWTSigningKey        string
	JWTIssuer            string
	JWTAudience          string
	AllowedOrigins       []string
	SerializeBalances    bool
	LoginRateLimit       float64
	LoginBurst           int
	RequireActiveSession bool
	ShutdownTimeout      time.Duration
}

// Validate fills defaults and rejects unusable values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.GRPCListenAddr = defaultIfEmpty(cfg.GRPCListenAddr, defaultGRPCListenAddr)
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.Store = strings.ToLower(defaultIfEmpty(cfg.Store, StoreGorm))
	cfg.SessionCacheURL = defaultIfEmpty(cfg.SessionCacheURL, defaultSessionCacheURL)
	cfg.JWTIssuer = defaultIfEmpty(cfg.JWTIssuer, defaultTokenIssuer)
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.LoginRateLimit <= 0 {
		cfg.LoginRateLimit = defaultLoginRateLimit
	}
	if cfg.LoginBurst <= 0 {
		cfg.LoginBurst = defaultLoginBurst
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.Store != StoreGorm && cfg.Store != StorePgx {
		return fmt.Errorf("%w: store must be %q or %q, got %q", ErrInvalidConfig, StoreGorm, StorePgx, cfg.Store)
	}
	if cfg.Store == StorePgx && !IsPostgresURL(cfg.DatabaseURL) {
		return fmt.Errorf("%w: the pgx store requires a postgres database url", ErrInvalidConfig)
	}
	if len(cfg.JWTSigningKey) == 0 {
		return fmt.Errorf("%w: jwt signing key is required", ErrInvalidConfig)
	}
	return nil
}

// IsPostgresURL reports whether dsn names a postgres database.
func IsPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
