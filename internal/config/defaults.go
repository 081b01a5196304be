package config

import "time"

// Default configuration values.
const (
	// Server defaults.
	DefaultHost         = "localhost"
	DefaultPort         = 8090
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	DefaultIdleTimeout  = 120 * time.Second
	DefaultMaxBodySize  = 10 * 1024 * 1024 // 10MB

	// Database defaults.
	DefaultCacheSize    = -64000 // 64MB
	DefaultBusyTimeout  = 5 * time.Second
	DefaultMaxOpenConns = 1 // SQLite works best with single writer
	DefaultMaxIdleConns = 1

	// Store defaults.
	DefaultBaseDir   = "data"
	DefaultSchemaDir = "schemas"
	DefaultPageSize  = 100
	MaxPageSize      = 1000

	// Auth defaults.
	DefaultAccessTTL           = 15 * time.Minute
	DefaultJWTIssuer           = "syncstore"
	DefaultMinPassword         = 8
	DefaultLoginRateLimit      = 5
	DefaultLoginWindow         = time.Minute
	DefaultRegisterRateLimit   = 3
	DefaultRegisterWindow      = time.Minute
	DefaultBruteForceThreshold = 10
	DefaultBruteForceWindow    = 15 * time.Minute

	// Logging defaults.
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "console"
	DefaultMaxSizeMB  = 100
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 28

	// Maintenance defaults.
	DefaultCheckpointSchedule = "@every 15m"
	DefaultStatsSchedule      = "@every 30s"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
			Compression:  true,
		},
		Database: DatabaseConfig{
			WALMode:         true,
			CacheSize:       DefaultCacheSize,
			BusyTimeout:     DefaultBusyTimeout,
			MaxOpenConns:    DefaultMaxOpenConns,
			MaxIdleConns:    DefaultMaxIdleConns,
			ConnMaxLifetime: 0, // No limit
		},
		Store: StoreConfig{
			BaseDir:         DefaultBaseDir,
			SchemaDir:       DefaultSchemaDir,
			DefaultPageSize: DefaultPageSize,
			MaxPageSize:     MaxPageSize,
		},
		Auth: AuthConfig{
			JWT: JWTConfig{
				AccessTTL: DefaultAccessTTL,
				Issuer:    DefaultJWTIssuer,
			},
			Password: PasswordConfig{
				MinLength:        DefaultMinPassword,
				RequireUppercase: false,
				RequireNumber:    false,
			},
			RateLimit: AuthRateLimitConfig{
				Login: RateLimitRule{
					Max:    DefaultLoginRateLimit,
					Window: DefaultLoginWindow,
				},
				Register: RateLimitRule{
					Max:    DefaultRegisterRateLimit,
					Window: DefaultRegisterWindow,
				},
			},
			BruteForce: BruteForceConfig{
				Threshold: DefaultBruteForceThreshold,
				Window:    DefaultBruteForceWindow,
			},
			PublicPaths: []string{
				"/health*",
				"/metrics",
				"/auth/*",
			},
			AllowRegistration: true,
		},
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			Caller:     false,
			Timestamp:  true,
			MaxSizeMB:  DefaultMaxSizeMB,
			MaxBackups: DefaultMaxBackups,
			MaxAgeDays: DefaultMaxAgeDays,
		},
		Maintenance: MaintenanceConfig{
			Enabled:            true,
			CheckpointSchedule: DefaultCheckpointSchedule,
			StatsSchedule:      DefaultStatsSchedule,
		},
	}
}
