// Package main provides the entry point for the fuelwatch CLI.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fuelwatch/fuelwatch/internal/config"
)

var (
	// Version is set at build time.
	Version = "dev"
	// Commit is set at build time.
	Commit = "none"
	// BuildDate is set at build time.
	BuildDate = "unknown"
)

var cfg *config.Config

func main() {
	cfg = config.Load()

	var fuelTypes string

	rootCmd := &cobra.Command{
		Use:   "fuelwatch",
		Short: "Fuelwatch - Find the cheapest fuel stations near you",
		Long: `Fuelwatch is a service that synchronises UK road fuel prices from the
GOV.UK Fuel Finder API and ranks nearby stations by price.

Features:
  - Incremental price synchronisation with a persisted cursor
  - Price ranking by fuel type within a configurable radius
  - Optional driving distances via openrouteservice
  - SQLite or PostgreSQL persistence
  - Prometheus metrics and status endpoints`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if fuelTypes != "" {
				cfg.FuelTypes = splitFlagList(fuelTypes)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "Fuel Finder API client ID")
	rootCmd.PersistentFlags().StringVar(&cfg.ClientSecret, "client-secret", cfg.ClientSecret, "Fuel Finder API client secret")
	rootCmd.PersistentFlags().Float64Var(&cfg.Latitude, "latitude", cfg.Latitude, "Search origin latitude")
	rootCmd.PersistentFlags().Float64Var(&cfg.Longitude, "longitude", cfg.Longitude, "Search origin longitude")
	rootCmd.PersistentFlags().Float64Var(&cfg.RadiusMiles, "radius", cfg.RadiusMiles, "Search radius in miles")
	rootCmd.PersistentFlags().StringVar(&fuelTypes, "fuel-types", "", "Comma-separated fuel type codes (E10, E5, B7_STANDARD, B7_PREMIUM, B10, HVO)")
	rootCmd.PersistentFlags().StringVar(&cfg.StoreDriver, "store-driver", cfg.StoreDriver, "Persistence driver (sqlite, postgres)")
	rootCmd.PersistentFlags().StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address for /metrics, /status, /rankings")
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (json, console)")

	// Add subcommands
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(nearbyCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger() zerolog.Logger {
	var logger zerolog.Logger

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set log format
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	return logger
}

func splitFlagList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
