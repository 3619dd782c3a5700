// Package config provides configuration structures and loading for fuelwatch.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fuelwatch/fuelwatch/internal/models"
)

// Config holds all configuration for fuelwatch.
type Config struct {
	// Fuel Finder API base URL
	APIBaseURL string
	// Fuel Finder OAuth client credentials
	ClientID     string
	ClientSecret string
	// Search origin
	Latitude  float64
	Longitude float64
	// Search radius in miles
	RadiusMiles float64
	// Selected fuel types
	FuelTypes []string
	// Number of cheapest stations to highlight
	TopN int
	// openrouteservice API key for driving distances (optional)
	ORSAPIKey string
	// Persistence driver (sqlite, postgres)
	StoreDriver string
	// SQLite database path
	SQLitePath string
	// PostgreSQL connection string
	PostgresDSN string
	// HTTP server address
	HTTPAddr string
	// Log level (debug, info, warn, error)
	LogLevel string
	// Log format (json, console)
	LogFormat string
	// Steady-state interval between sync passes
	PollInterval time.Duration
	// Retry interval until the first successful bootstrap
	BootstrapRetryInterval time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:             "",
		Latitude:               51.5074,
		Longitude:              -0.1278,
		RadiusMiles:            5,
		FuelTypes:              []string{"E10", "B7_STANDARD"},
		TopN:                   3,
		StoreDriver:            "sqlite",
		SQLitePath:             "fuelwatch.db",
		HTTPAddr:               ":8080",
		LogLevel:               "info",
		LogFormat:              "json",
		PollInterval:           2 * time.Hour,
		BootstrapRetryInterval: 5 * time.Minute,
	}
}

// Load builds the configuration from defaults, an optional .env file, and
// environment variables, in that order. Validation is deferred to the caller
// so command-line flags can still fill gaps.
func Load() *Config {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.LoadFromEnv()
	return cfg
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("API_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv("CLIENT_SECRET"); v != "" {
		c.ClientSecret = v
	}
	if v := os.Getenv("LATITUDE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Latitude = f
		}
	}
	if v := os.Getenv("LONGITUDE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Longitude = f
		}
	}
	if v := os.Getenv("RADIUS_MILES"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.RadiusMiles = f
		}
	}
	if v := os.Getenv("FUEL_TYPES"); v != "" {
		c.FuelTypes = splitList(v)
	} else if v := os.Getenv("FUEL_TYPE"); v != "" {
		// Older deployments configured a single fuel type.
		c.FuelTypes = []string{strings.TrimSpace(v)}
	}
	if v := os.Getenv("TOP_N"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			c.TopN = i
		}
	}
	if v := os.Getenv("ORS_API_KEY"); v != "" {
		c.ORSAPIKey = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.StoreDriver = strings.ToLower(v)
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.SQLitePath = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.PollInterval = d
		}
	}
	if v := os.Getenv("BOOTSTRAP_RETRY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.BootstrapRetryInterval = d
		}
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("CLIENT_ID and CLIENT_SECRET must be set")
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", c.Longitude)
	}
	if c.RadiusMiles <= 0 {
		return fmt.Errorf("radius %v must be positive", c.RadiusMiles)
	}
	if len(c.FuelTypes) == 0 {
		return fmt.Errorf("at least one fuel type must be selected")
	}
	if _, err := c.ParsedFuelTypes(); err != nil {
		return err
	}
	switch c.StoreDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.StoreDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN must be set for the postgres driver")
	}
	return nil
}

// ParsedFuelTypes converts the configured fuel type codes.
func (c *Config) ParsedFuelTypes() ([]models.FuelType, error) {
	fuels := make([]models.FuelType, 0, len(c.FuelTypes))
	for _, raw := range c.FuelTypes {
		fuel, err := models.ParseFuelType(raw)
		if err != nil {
			return nil, err
		}
		fuels = append(fuels, fuel)
	}
	return fuels, nil
}

// Origin returns the configured search origin.
func (c *Config) Origin() models.Coordinate {
	return models.Coordinate{Latitude: c.Latitude, Longitude: c.Longitude}
}

// DSN returns the connection string for the configured store driver.
func (c *Config) DSN() string {
	if c.StoreDriver == "postgres" {
		return c.PostgresDSN
	}
	return c.SQLitePath
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
