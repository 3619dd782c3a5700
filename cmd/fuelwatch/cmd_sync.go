package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a one-time sync pass",
		Long:  "Runs a single sync pass against the Fuel Finder API and persists the result. Useful for testing credentials and for cron-driven setups.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			ctx := context.Background()

			p, _, st, client, err := buildPoller(ctx, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if check {
				if err := client.TestConnection(ctx); err != nil {
					return fmt.Errorf("connection check: %w", err)
				}
				logger.Info().Msg("connection check passed")
				return nil
			}

			if err := p.Tick(ctx); err != nil {
				return fmt.Errorf("sync pass: %w", err)
			}

			logger.Info().Msg("sync completed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Only verify API credentials and connectivity")

	return cmd
}
