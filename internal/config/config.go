// Package config provides centralized configuration management for the import
// service. It loads configuration from environment variables with sensible
// defaults and validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Import   ImportConfig
	Media    MediaConfig
	Schema   SchemaConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0).
	// Imports with media can run for minutes, so the write side is unbounded
	// and RequestTimeout governs instead.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 15m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"15m"`

	// MaxBodySize caps the JSON import payload in bytes (default: 32MB)
	MaxBodySize int64 `env:"SERVER_MAX_BODY_SIZE" default:"33554432"`
}

// StoreConfig selects and tunes the document store backend.
type StoreConfig struct {
	// Driver is one of postgres, sqlite, memory (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SQLitePath is the database file for the sqlite driver (default: docimport.db)
	SQLitePath string `env:"SQLITE_PATH" default:"docimport.db"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds import run settings.
type ImportConfig struct {
	// MaxConcurrent is the maximum number of parallel import runs (default: 5)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single import run (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`

	// MapConcurrency bounds the row-mapping fan-out within one run (default: 16)
	MapConcurrency int `env:"IMPORT_MAP_CONCURRENCY" default:"16"`

	// DefaultLocale is used when settings carry no locale (default: en-GB)
	DefaultLocale string `env:"IMPORT_DEFAULT_LOCALE" default:"en-GB"`

	// DebugDetails adds per-record outcomes to results (default: false)
	DebugDetails bool `env:"IMPORT_DEBUG_DETAILS" default:"false"`
}

// MediaConfig holds remote image fetch settings.
type MediaConfig struct {
	// FetchTimeout bounds a single image download (default: 30s)
	FetchTimeout time.Duration `env:"MEDIA_FETCH_TIMEOUT" default:"30s"`

	// MaxBytes caps a downloaded image (default: 25MB)
	MaxBytes int64 `env:"MEDIA_MAX_BYTES" default:"26214400"`

	// RequestsPerSecond limits outbound fetches; 0 disables limiting (default: 0)
	RequestsPerSecond float64 `env:"MEDIA_REQUESTS_PER_SECOND" default:"0"`

	// Burst is the token bucket size when limiting is enabled (default: 3)
	Burst int `env:"MEDIA_BURST" default:"3"`

	// UserAgent is sent with every fetch
	UserAgent string `env:"MEDIA_USER_AGENT" default:"docimport/1.0"`
}

// SchemaConfig points at optional collection definitions.
type SchemaConfig struct {
	// File is a YAML file of collection definitions loaded at startup
	File string `env:"SCHEMA_FILE"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for the import endpoint (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey rejects import requests without a known X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of name:key pairs
	APIKeys []string `env:"API_KEYS"`

	// CORSOrigins lists allowed browser origins; empty disables CORS headers
	CORSOrigins []string `env:"CORS_ORIGINS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// APIKeyMap parses APIKeys into key -> principal name. Entries without a
// name use the key itself.
func (c *SecurityConfig) APIKeyMap() map[string]string {
	keys := make(map[string]string, len(c.APIKeys))
	for _, entry := range c.APIKeys {
		name, key, ok := strings.Cut(entry, ":")
		if !ok {
			key, name = entry, entry
		}
		name, key = strings.TrimSpace(name), strings.TrimSpace(key)
		if key == "" {
			continue
		}
		keys[key] = name
	}
	return keys
}
