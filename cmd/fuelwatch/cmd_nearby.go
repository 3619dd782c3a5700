package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/ranking"
	"github.com/fuelwatch/fuelwatch/internal/store"
)

func nearbyCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "nearby",
		Short: "List the cheapest stations from the persisted snapshot",
		Long:  "Ranks stations around the configured origin using the last persisted snapshot. Does not contact the Fuel Finder API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			ctx := context.Background()

			fuels, err := cfg.ParsedFuelTypes()
			if err != nil {
				return err
			}

			st, err := store.New(ctx, cfg.StoreDriver, cfg.DSN(), logger)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			defer st.Close()

			state, err := st.LoadState(ctx)
			if err != nil {
				return fmt.Errorf("loading sync state: %w", err)
			}
			if !state.Bootstrapped {
				return fmt.Errorf("no synced data available, run 'fuelwatch sync' first")
			}

			model, err := st.LoadModel(ctx)
			if err != nil {
				return fmt.Errorf("loading snapshot: %w", err)
			}

			labels := models.ResolveLabels(fuels)
			origin := cfg.Origin()

			for _, fuel := range fuels {
				entries := ranking.Rank(model, fuel, origin, cfg.RadiusMiles)
				if !all && len(entries) > cfg.TopN {
					entries = entries[:cfg.TopN]
				}

				fmt.Printf("%s (within %.1f miles, data from %s)\n", labels[fuel], cfg.RadiusMiles, state.LastSync.Local().Format("2006-01-02 15:04"))
				if len(entries) == 0 {
					fmt.Printf("  no stations found\n\n")
					continue
				}
				for _, e := range entries {
					fmt.Printf("  %d. %s p/l  %-30s  %.1f mi  %s, %s\n",
						e.Rank, e.Price, e.Station.Name, e.DistanceMiles, e.Station.Address, e.Station.Postcode)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "List every station in radius instead of the cheapest few")

	return cmd
}
