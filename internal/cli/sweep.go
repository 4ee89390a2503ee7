package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/dianabot-core/internal/config"
)

// SweepResult is printed by the sweep command.
type SweepResult struct {
	TokensExpired  int64 `json:"tokens_expired"`
	ReceiptsPurged int64 `json:"receipts_purged"`
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:           "sweep",
		Short:         "Expire overdue tokens and purge old interaction receipts once",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			setupLogging(cfg.LogLevel, cfg.LogPretty, cmd.ErrOrStderr())
			// A one-shot run has no consumers for follow-up events.
			cfg.Redis.Enabled, cfg.AMQP.Enabled = false, false

			app, err := Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			expired, purged, err := app.Coord.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			res := SweepResult{TokensExpired: expired, ReceiptsPurged: purged}
			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tokens expired: %d\nreceipts purged: %d\n", res.TokensExpired, res.ReceiptsPurged)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
