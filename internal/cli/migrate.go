package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/dianabot-core/internal/config"
	"github.com/tbourn/dianabot-core/internal/repo"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Create or update the database schema",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel, cfg.LogPretty, cmd.ErrOrStderr())

			db, err := repo.OpenSQLite(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db %s: %w", cfg.DBPath, err)
			}
			defer closeDB(db)
			if err := repo.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date: %s\n", cfg.DBPath)
			return nil
		},
	}
}
