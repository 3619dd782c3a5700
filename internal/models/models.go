// Package models provides shared data types for the fuel price sync engine.
package models

import (
	"fmt"
	"time"
)

// Price is a fuel price in tenths of a penny per litre. Keeping the value as
// an integer makes price comparisons exact, which the ranking order depends on.
type Price int

// PencePerLitre returns the price in pence per litre for display.
func (p Price) PencePerLitre() float64 {
	return float64(p) / 10
}

// String formats the price for display, e.g. "128.9".
func (p Price) String() string {
	return fmt.Sprintf("%.1f", p.PencePerLitre())
}

// PriceFromPence converts a pence-per-litre value into a Price, keeping one
// decimal place of precision.
func PriceFromPence(pence float64) Price {
	return Price(pence*10 + 0.5)
}

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Station is a fuel station as stored in the local model. The ID is the
// upstream node identifier and is stable across fetches; an update replaces
// all other fields in place.
type Station struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Brand     string  `json:"brand"`
	Address   string  `json:"address"`
	Postcode  string  `json:"postcode"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// Closed marks stations flagged as permanently or temporarily closed
	// upstream. Closed stations stay in the model but are excluded from
	// ranking.
	Closed bool `json:"closed,omitempty"`
}

// PriceRecord is the current price for one (station, fuel type) pair.
// At most one record exists per pair; a newer RecordedAt always replaces an
// older one.
type PriceRecord struct {
	StationID  string    `json:"station_id"`
	FuelType   FuelType  `json:"fuel_type"`
	Price      Price     `json:"price"`
	RecordedAt time.Time `json:"recorded_at"`
}

// SyncState tracks the progress of the incremental fetch protocol. It is
// updated only after a fully successful pass and never rolled back, so a
// failed pass re-requests the same window on the next attempt.
type SyncState struct {
	// Cursor is the lower bound for the next incremental fetch. It is
	// monotonically non-decreasing.
	Cursor time.Time
	// LastSync is when the last fully successful pass completed.
	LastSync time.Time
	// Bootstrapped reports whether a full initial fetch has ever completed.
	Bootstrapped bool
}

// PriceUpdate is one incoming (station, fuel type) price observation handed
// to the merger. Absent reports that the payload explicitly carried no price
// for the fuel type, which removes any stored record for the pair.
type PriceUpdate struct {
	StationID  string
	FuelType   FuelType
	Price      Price
	Absent     bool
	RecordedAt time.Time
}

// RankedEntry pairs a station with its price, distance and rank for one fuel
// type. Entries are derived on every ranking pass and never stored.
type RankedEntry struct {
	Station   Station  `json:"station"`
	FuelType  FuelType `json:"fuel_type"`
	FuelLabel string   `json:"fuel_label"`
	Price     Price    `json:"price"`
	// DistanceMiles is the great-circle distance from the configured origin.
	DistanceMiles float64 `json:"distance_miles"`
	// DrivingDistanceMiles is set only when a routing service is configured
	// and the lookup succeeded.
	DrivingDistanceMiles *float64  `json:"driving_distance_miles,omitempty"`
	Rank                 int       `json:"rank"`
	BrandIcon            string    `json:"brand_icon,omitempty"`
	LastUpdated          time.Time `json:"last_updated"`
}

// FuelView is the outbound model for a single fuel type: the top-N cheapest
// stations and the full in-radius station set.
type FuelView struct {
	FuelType FuelType `json:"fuel_type"`
	Label    string   `json:"label"`
	// Cheapest holds the top-N entries ordered by (price, distance, id).
	Cheapest []RankedEntry `json:"cheapest"`
	// Stations holds every in-radius station with a price for this fuel
	// type, keyed by station ID.
	Stations map[string]RankedEntry `json:"stations"`
}

// Rankings is the complete outbound model recomputed after every successful
// pass.
type Rankings struct {
	ByFuel    map[FuelType]FuelView `json:"by_fuel"`
	Labels    map[FuelType]string   `json:"labels"`
	UpdatedAt time.Time             `json:"updated_at"`
}
