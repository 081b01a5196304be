// Package cli implements the syncstore command tree.
package cli

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/watzon/syncstore/internal/config"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "syncstore",
	Short: "A multi-tenant document store over SQLite",
	Long: `Syncstore is a multi-tenant document store layered over SQLite:

  - Schema-validated JSON documents in namespaces and collections
  - Uniqueness and parent-reference constraints enforced at write time
  - Hierarchical access control with ancestor-inherited grants
  - Optional end-to-end encryption of request and response bodies (HPKE)

Start the server:
  syncstore serve

Bulk-load a JSONL dump:
  syncstore import --namespace blog --collection post dump.jsonl`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./syncstore.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		return nil, err
	}
	setupLogging(&cfg.Logging)
	return cfg, nil
}

func setupLogging(cfg *config.LoggingConfig) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	} else {
		switch strings.ToLower(cfg.Level) {
		case "debug":
			level = zerolog.DebugLevel
		case "warn":
			level = zerolog.WarnLevel
		case "error":
			level = zerolog.ErrorLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if cfg.Output != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
	}

	if cfg.Format == "console" && cfg.Output == "" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out)
	ctx := logger.With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
}
