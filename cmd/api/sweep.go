package main

import (
	"fmt"

	"treeadopt/internal/config"
	"treeadopt/internal/scheduler"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	var (
		assignments bool
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the escalation sweep once and exit",
		Long: `Moves planted tasks that have gone a growth interval without an
update back to updating. With --assignments, paid orders still waiting
for a wellwisher are retried as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger := config.NewLogger(cfg.Logger)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.escalation.RunEscalation(cmd.Context())
			if err != nil {
				return fmt.Errorf("escalation sweep failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d escalated=%d skipped=%d failed=%d\n",
				result.Scanned, result.Escalated, result.Skipped, result.Failed)

			if assignments {
				n, err := a.orders.RetryAssignments(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("assignment retry failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "assigned=%d\n", n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&assignments, "assignments", false, "Also retry deferred order assignments")
	cmd.Flags().IntVar(&limit, "limit", scheduler.AssignmentRetryBatch, "Maximum orders to retry")
	return cmd
}
