package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrMissingRequired = errors.New("missing required configuration")
)

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
	Defaults   *Config
}

func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	defaults := opts.Defaults
	if defaults == nil {
		defaults = Default()
	}
	setViperDefaults(v, defaults)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "SYNCSTORE"
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("syncstore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/syncstore")
		v.AddConfigPath("/etc/syncstore")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	expandEnvInConfig(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	return Load(LoadOptions{ConfigFile: path})
}

func LoadWithDefaults() (*Config, error) {
	return Load(LoadOptions{})
}

func setViperDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", cfg.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", cfg.Server.MaxBodySize)
	v.SetDefault("server.compression", cfg.Server.Compression)

	v.SetDefault("database.wal_mode", cfg.Database.WALMode)
	v.SetDefault("database.cache_size", cfg.Database.CacheSize)
	v.SetDefault("database.busy_timeout", cfg.Database.BusyTimeout)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)

	v.SetDefault("store.base_dir", cfg.Store.BaseDir)
	v.SetDefault("store.schema_dir", cfg.Store.SchemaDir)
	v.SetDefault("store.memory_namespaces", cfg.Store.MemoryNamespaces)
	v.SetDefault("store.default_page_size", cfg.Store.DefaultPageSize)
	v.SetDefault("store.max_page_size", cfg.Store.MaxPageSize)

	v.SetDefault("auth.jwt.access_ttl", cfg.Auth.JWT.AccessTTL)
	v.SetDefault("auth.jwt.issuer", cfg.Auth.JWT.Issuer)
	v.SetDefault("auth.password.min_length", cfg.Auth.Password.MinLength)
	v.SetDefault("auth.password.require_uppercase", cfg.Auth.Password.RequireUppercase)
	v.SetDefault("auth.password.require_number", cfg.Auth.Password.RequireNumber)
	v.SetDefault("auth.rate_limit.login.max", cfg.Auth.RateLimit.Login.Max)
	v.SetDefault("auth.rate_limit.login.window", cfg.Auth.RateLimit.Login.Window)
	v.SetDefault("auth.rate_limit.register.max", cfg.Auth.RateLimit.Register.Max)
	v.SetDefault("auth.rate_limit.register.window", cfg.Auth.RateLimit.Register.Window)
	v.SetDefault("auth.brute_force.threshold", cfg.Auth.BruteForce.Threshold)
	v.SetDefault("auth.brute_force.window", cfg.Auth.BruteForce.Window)
	v.SetDefault("auth.public_paths", cfg.Auth.PublicPaths)
	v.SetDefault("auth.allow_registration", cfg.Auth.AllowRegistration)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.caller", cfg.Logging.Caller)
	v.SetDefault("logging.timestamp", cfg.Logging.Timestamp)
	v.SetDefault("logging.output", cfg.Logging.Output)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", cfg.Logging.MaxAgeDays)

	v.SetDefault("maintenance.enabled", cfg.Maintenance.Enabled)
	v.SetDefault("maintenance.checkpoint_schedule", cfg.Maintenance.CheckpointSchedule)
	v.SetDefault("maintenance.stats_schedule", cfg.Maintenance.StatsSchedule)
}

func expandEnvInConfig(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envVar := val[2 : len(val)-1]
			if envVal := os.Getenv(envVar); envVal != "" {
				v.Set(key, envVal)
			}
		}
	}
}

func ConfigFilePath(customPath string) (string, error) {
	if customPath != "" {
		absPath, err := filepath.Abs(customPath)
		if err != nil {
			return "", fmt.Errorf("resolving config path: %w", err)
		}
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", absPath)
		}
		return absPath, nil
	}

	searchPaths := []string{
		"syncstore.yaml",
		"syncstore.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "syncstore", "syncstore.yaml"),
		"/etc/syncstore/syncstore.yaml",
	}

	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", ErrConfigNotFound
}
