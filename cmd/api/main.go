package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "treeadopt"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Tree adoption fulfilment API",
		Long: `treeadopt takes tree adoption orders, assigns paid orders to field
wellwishers and tracks planting and growth updates.

Running without a subcommand starts the HTTP server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.AddCommand(serveCmd(), sweepCmd(), migrateCmd(), tokenCmd())
	return cmd
}
