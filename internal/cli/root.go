// Package cli builds the dianabot command tree: serve runs the HTTP API and
// the background sweeper, migrate prepares the schema, sweep runs one
// expiry pass.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/dianabot-core/internal/sysutil"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	EnvFile  string
	LogLevel string // overrides LOG_LEVEL when set
	Pretty   bool   // overrides LOG_PRETTY when set
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "dianabot",
		Short:   "DianaBot engagement core",
		Long:    "Scores user interactions, advances users through engagement stages, keeps the reward ledger and issues access tokens.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadEnv(opts.EnvFile); err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				_ = os.Setenv("LOG_LEVEL", opts.LogLevel)
			}
			if cmd.Flags().Changed("pretty") {
				_ = os.Setenv("LOG_PRETTY", fmt.Sprint(opts.Pretty))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading configuration (missing file is ignored)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&opts.Pretty, "pretty", false, "human-friendly console logs")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))

	return cmd
}

// loadEnv loads path into the environment without overriding variables that
// are already set. A missing default file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// setupLogging installs the global zerolog logger.
func setupLogging(level string, pretty bool, w io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	sysutil.SetLogLevel(level)
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", "dianabot-core").Logger()
}
