// Package config provides configuration management for syncstore.
package config

import (
	"strconv"
	"time"
)

// Config is the root configuration structure for syncstore.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Store       StoreConfig       `mapstructure:"store"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind the server to
	Host string `mapstructure:"host"`

	// Port to listen on
	Port int `mapstructure:"port"`

	// Request timeouts
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// Maximum request body size in bytes
	MaxBodySize int64 `mapstructure:"max_body_size"`

	// Enable gzip response compression
	Compression bool `mapstructure:"compression"`
}

// DatabaseConfig holds SQLite settings shared by every store file.
type DatabaseConfig struct {
	// Enable WAL mode (recommended)
	WALMode bool `mapstructure:"wal_mode"`

	// Cache size in KB (negative for KB, positive for pages)
	CacheSize int `mapstructure:"cache_size"`

	// Busy timeout
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`

	// Maximum open connections per store file
	MaxOpenConns int `mapstructure:"max_open_conns"`

	// Maximum idle connections per store file
	MaxIdleConns int `mapstructure:"max_idle_conns"`

	// Connection max lifetime
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StoreConfig holds document-store settings.
type StoreConfig struct {
	// Base directory for namespace files. Users and ACLs live under
	// <base>/inner.
	BaseDir string `mapstructure:"base_dir"`

	// Directory of schema files, laid out as <dir>/<namespace>/<collection>.json
	SchemaDir string `mapstructure:"schema_dir"`

	// Namespaces backed by in-memory databases instead of files
	MemoryNamespaces []string `mapstructure:"memory_namespaces"`

	// Default page size for list operations
	DefaultPageSize int `mapstructure:"default_page_size"`

	// Maximum page size a caller may request
	MaxPageSize int `mapstructure:"max_page_size"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// JWT configuration
	JWT JWTConfig `mapstructure:"jwt"`

	// Password requirements
	Password PasswordConfig `mapstructure:"password"`

	// Rate limiting for the auth endpoints
	RateLimit AuthRateLimitConfig `mapstructure:"rate_limit"`

	// Failed-login lockout
	BruteForce BruteForceConfig `mapstructure:"brute_force"`

	// Glob patterns for paths that skip bearer-token verification
	PublicPaths []string `mapstructure:"public_paths"`

	// Allow registration
	AllowRegistration bool `mapstructure:"allow_registration"`
}

// AuthRateLimitConfig holds rate limiting settings for auth endpoints.
type AuthRateLimitConfig struct {
	// Login attempts per window
	Login RateLimitRule `mapstructure:"login"`

	// Registration attempts per window
	Register RateLimitRule `mapstructure:"register"`
}

// RateLimitRule defines a rate limit rule. A zero Max disables the rule.
type RateLimitRule struct {
	// Maximum requests
	Max int `mapstructure:"max"`

	// Time window
	Window time.Duration `mapstructure:"window"`
}

// BruteForceConfig holds failed-login lockout settings. A zero Threshold
// disables the lockout.
type BruteForceConfig struct {
	// Failed attempts before an account locks
	Threshold int `mapstructure:"threshold"`

	// Window the attempts are counted (and the lock held) over
	Window time.Duration `mapstructure:"window"`
}

// JWTConfig holds JWT settings.
type JWTConfig struct {
	// Secret key for signing tokens (min 32 chars when set; an empty secret
	// is not rejected by validation)
	Secret string `mapstructure:"secret"`

	// Access token lifetime
	AccessTTL time.Duration `mapstructure:"access_ttl"`

	// JWT issuer claim
	Issuer string `mapstructure:"issuer"`
}

// PasswordConfig holds password requirements.
type PasswordConfig struct {
	// Minimum password length
	MinLength int `mapstructure:"min_length"`

	// Require uppercase letter
	RequireUppercase bool `mapstructure:"require_uppercase"`

	// Require number
	RequireNumber bool `mapstructure:"require_number"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Log format (json, console)
	Format string `mapstructure:"format"`

	// Include caller info
	Caller bool `mapstructure:"caller"`

	// Include timestamp
	Timestamp bool `mapstructure:"timestamp"`

	// Output file (empty for stderr); rotated when set
	Output string `mapstructure:"output"`

	// Rotation settings, used when Output is set
	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// MaintenanceConfig holds background maintenance settings.
type MaintenanceConfig struct {
	// Enable the maintenance scheduler
	Enabled bool `mapstructure:"enabled"`

	// Cron spec for WAL checkpoints across all store files
	CheckpointSchedule string `mapstructure:"checkpoint_schedule"`

	// Cron spec for connection-pool stat sampling
	StatsSchedule string `mapstructure:"stats_schedule"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
