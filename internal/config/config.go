// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Ingest   IngestConfig
	Files    FilesConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response
	// (default: 0, unlimited, because sync ingests of large sheets can be slow)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 120s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"120s"`
}

// StoreConfig holds dataset store settings.
type StoreConfig struct {
	// Engine selects the dataset store backend: memory or postgres (default: memory)
	Engine string `env:"STORE_ENGINE" default:"memory"`

	// URL is the PostgreSQL connection string; required when Engine is postgres.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// IngestConfig holds spreadsheet processing settings.
type IngestConfig struct {
	// DefaultRowLimit is the row cap applied when a request sends no max (default: 1000)
	DefaultRowLimit int `env:"INGEST_DEFAULT_ROW_LIMIT" envAlt:"DEFAULT_LIMIT" default:"1000"`

	// MaxRowLimit is the hard ceiling on any requested max (default: 10000)
	MaxRowLimit int `env:"INGEST_MAX_ROW_LIMIT" envAlt:"MAX_LIMIT" default:"10000"`

	// DefaultPreviewRows is the per-sheet sample size for preview mode (default: 25)
	DefaultPreviewRows int `env:"INGEST_DEFAULT_PREVIEW_ROWS" envAlt:"DEFAULT_PREVIEW_LIMIT" default:"25"`

	// MaxPreviewRows is the hard ceiling on the preview sample size (default: 50)
	MaxPreviewRows int `env:"INGEST_MAX_PREVIEW_ROWS" envAlt:"MAX_PREVIEW_LIMIT" default:"50"`

	// MaxConcurrent is the maximum number of parallel normalization jobs (default: 4)
	MaxConcurrent int `env:"INGEST_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a request waits for a processing slot (default: 30s)
	MaxWaitTime time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"30s"`

	// JobTimeout is the maximum duration for a single ingest job (default: 10m)
	JobTimeout time.Duration `env:"INGEST_JOB_TIMEOUT" default:"10m"`
}

// FilesConfig holds temporary upload storage settings.
type FilesConfig struct {
	// Dir is the base directory for temporary files (default: /tmp)
	Dir string `env:"FILES_DIR" envAlt:"TMP_FILE_DIR" default:"/tmp"`

	// Subdir is the subdirectory under Dir for spreadsheet uploads (default: sheets)
	Subdir string `env:"FILES_SUBDIR" envAlt:"SPREADSHEET_SUBDIR" default:"sheets"`

	// TTLSeconds is how long an unused upload survives before the sweeper
	// deletes it (default: 3600). Kept in seconds to match the legacy env name.
	TTLSeconds int `env:"FILES_TTL_SECONDS" envAlt:"DELETE_TMP_FILES_AFTER_SECONDS" default:"3600"`

	// SweepInterval is how often the cleanup sweep runs (default: 10m)
	SweepInterval time.Duration `env:"FILES_SWEEP_INTERVAL" default:"10m"`

	// MaxUploadSize is the maximum allowed upload size in bytes (default: 100MB)
	MaxUploadSize int64 `env:"FILES_MAX_UPLOAD_SIZE" default:"104857600"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadPerMinute is requests per minute for upload/process endpoints (default: 10)
	UploadPerMinute int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds HTTP hardening settings.
type SecurityConfig struct {
	// RequireAPIKey enables X-API-Key validation on every route (default: false)
	RequireAPIKey bool `env:"SECURITY_REQUIRE_API_KEY" default:"false"`

	// APIKeys is the comma-separated list of accepted API keys
	APIKeys []string `env:"SECURITY_API_KEYS"`

	// TrustedProxies is the comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are trusted
	TrustedProxies []string `env:"SECURITY_TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// TTL returns the upload time-to-live as a duration.
func (c *FilesConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Path returns the full directory files are stored in.
func (c *FilesConfig) Path() string {
	if c.Subdir == "" {
		return c.Dir
	}
	return filepath.Join(c.Dir, c.Subdir)
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
