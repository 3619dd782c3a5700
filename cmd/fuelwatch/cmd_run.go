package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fuelwatch/fuelwatch/internal/api/fuelfinder"
	"github.com/fuelwatch/fuelwatch/internal/api/routing"
	"github.com/fuelwatch/fuelwatch/internal/httpapi"
	"github.com/fuelwatch/fuelwatch/internal/poller"
	"github.com/fuelwatch/fuelwatch/internal/snapshot"
	"github.com/fuelwatch/fuelwatch/internal/store"
)

// buildPoller wires the store, API client, and poller. The caller owns the
// returned store and must Close it.
func buildPoller(ctx context.Context, logger zerolog.Logger) (*poller.Poller, *snapshot.Holder, store.Store, *fuelfinder.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, nil, err
	}
	fuels, err := cfg.ParsedFuelTypes()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	st, err := store.New(ctx, cfg.StoreDriver, cfg.DSN(), logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("opening store: %w", err)
	}

	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = fuelfinder.DefaultBaseURL
	}
	client := fuelfinder.New(baseURL, cfg.ClientID, cfg.ClientSecret, fuelfinder.DefaultRetryPolicy(), logger)

	holder := snapshot.NewHolder()
	p := poller.New(client, st, holder, poller.Config{
		Origin:                 cfg.Origin(),
		RadiusMiles:            cfg.RadiusMiles,
		FuelTypes:              fuels,
		TopN:                   cfg.TopN,
		PollInterval:           cfg.PollInterval,
		BootstrapRetryInterval: cfg.BootstrapRetryInterval,
	}, logger)

	if cfg.ORSAPIKey != "" {
		router := routing.New(routing.DefaultMatrixURL, cfg.ORSAPIKey, logger)
		p.SetDistanceFunc(router.DrivingDistances)
	}

	if err := p.Restore(ctx); err != nil {
		st.Close()
		return nil, nil, nil, nil, fmt.Errorf("restoring persisted state: %w", err)
	}
	return p, holder, st, client, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the continuous price sync service",
		Long:  "Starts the price synchronisation loop together with the HTTP server for metrics, status and rankings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			logger.Info().
				Str("version", Version).
				Str("commit", Commit).
				Str("buildDate", BuildDate).
				Str("httpAddr", cfg.HTTPAddr).
				Str("storeDriver", cfg.StoreDriver).
				Strs("fuelTypes", cfg.FuelTypes).
				Float64("radiusMiles", cfg.RadiusMiles).
				Msg("starting fuelwatch")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			p, holder, st, client, err := buildPoller(ctx, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			httpServer := httpapi.NewServer(cfg.HTTPAddr, p, holder, st, logger)

			// Wire Prometheus metrics to the poller and API client
			p.SetMetrics(httpServer.Metrics())
			client.RequestObserver = httpServer.Metrics().RecordAPIRequest

			// Setup signal handling
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			// Start HTTP server in goroutine
			go func() {
				if err := httpServer.Start(); err != nil {
					logger.Error().Err(err).Msg("HTTP server error")
					cancel()
				}
			}()

			// Start polling loop in goroutine
			go func() {
				if err := p.Start(ctx); err != nil && err != context.Canceled {
					logger.Error().Err(err).Msg("poller error")
					cancel()
				}
			}()

			// Wait for signal
			select {
			case sig := <-sigCh:
				logger.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
			case <-ctx.Done():
			}
			cancel()

			// Graceful shutdown
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("HTTP server shutdown error")
			}

			logger.Info().Msg("shutdown complete")
			return nil
		},
	}
}
