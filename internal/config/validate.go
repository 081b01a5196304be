package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/robfig/cron/v3"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func Validate(cfg *Config) error {
	var errs ValidationErrors

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateMaintenance(&cfg.Maintenance)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateServer(cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.read_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.write_timeout",
			Message: "must be non-negative",
		})
	}

	if cfg.MaxBodySize < 1024 {
		errs = append(errs, ValidationError{
			Field:   "server.max_body_size",
			Message: "must be at least 1KB",
		})
	}

	return errs
}

func validateDatabase(cfg *DatabaseConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.MaxOpenConns < 1 {
		errs = append(errs, ValidationError{
			Field:   "database.max_open_conns",
			Message: "must be at least 1",
		})
	}

	if cfg.MaxIdleConns < 0 {
		errs = append(errs, ValidationError{
			Field:   "database.max_idle_conns",
			Message: "must be non-negative",
		})
	}

	if cfg.BusyTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "database.busy_timeout",
			Message: "must be non-negative",
		})
	}

	return errs
}

func validateStore(cfg *StoreConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.BaseDir == "" {
		errs = append(errs, ValidationError{
			Field:   "store.base_dir",
			Message: "must not be empty",
		})
	}

	if cfg.DefaultPageSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "store.default_page_size",
			Message: "must be at least 1",
		})
	}

	if cfg.MaxPageSize < cfg.DefaultPageSize {
		errs = append(errs, ValidationError{
			Field:   "store.max_page_size",
			Message: "must be at least the default page size",
		})
	}

	return errs
}

func validateAuth(cfg *AuthConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.JWT.Secret != "" && len(cfg.JWT.Secret) < 32 {
		errs = append(errs, ValidationError{
			Field:   "auth.jwt.secret",
			Message: "must be at least 32 characters",
		})
	}

	if cfg.JWT.AccessTTL <= 0 {
		errs = append(errs, ValidationError{
			Field:   "auth.jwt.access_ttl",
			Message: "must be positive",
		})
	}

	if cfg.Password.MinLength < 1 {
		errs = append(errs, ValidationError{
			Field:   "auth.password.min_length",
			Message: "must be at least 1",
		})
	}

	for field, rule := range map[string]RateLimitRule{
		"auth.rate_limit.login":    cfg.RateLimit.Login,
		"auth.rate_limit.register": cfg.RateLimit.Register,
	} {
		if rule.Max > 0 && rule.Window <= 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "window must be positive when max is set",
			})
		}
	}

	if cfg.BruteForce.Threshold > 0 && cfg.BruteForce.Window <= 0 {
		errs = append(errs, ValidationError{
			Field:   "auth.brute_force",
			Message: "window must be positive when threshold is set",
		})
	}

	for _, p := range cfg.PublicPaths {
		if _, err := glob.Compile(p); err != nil {
			errs = append(errs, ValidationError{
				Field:   "auth.public_paths",
				Message: fmt.Sprintf("invalid pattern %q: %v", p, err),
			})
		}
	}

	return errs
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch cfg.Level {
	case "debug", "info", "warn", "error", "":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	switch cfg.Format {
	case "json", "console", "":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be one of: json, console",
		})
	}

	return errs
}

func validateMaintenance(cfg *MaintenanceConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return errs
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for field, spec := range map[string]string{
		"maintenance.checkpoint_schedule": cfg.CheckpointSchedule,
		"maintenance.stats_schedule":      cfg.StatsSchedule,
	} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid cron spec %q: %v", spec, err),
			})
		}
	}

	return errs
}
