// Package ranking turns the merged model into sorted, per-fuel-type views of
// the cheapest nearby stations.
package ranking

import (
	"math"
	"sort"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/snapshot"
)

const (
	// DefaultTopN is the number of entries in the cheapest view.
	DefaultTopN = 3

	metersPerMile = 1609.344
)

// Rank returns every station within radiusMiles of origin that has a current
// price for the given fuel type, ordered by price ascending, then distance,
// then station ID. The order is fully deterministic: prices compare as exact
// integers and the ID breaks remaining ties. The result is recomputed from
// scratch on every call.
func Rank(model *snapshot.Model, fuel models.FuelType, origin models.Coordinate, radiusMiles float64) []models.RankedEntry {
	type candidate struct {
		entry models.RankedEntry
		// distance keeps full precision for sorting; the entry carries
		// the display-rounded value.
		distance float64
	}

	var candidates []candidate
	for id, station := range model.Stations {
		if station.Closed {
			continue
		}
		if station.Latitude == 0 || station.Longitude == 0 {
			continue
		}
		record, ok := model.Price(id, fuel)
		if !ok {
			continue
		}

		meters := gpx.Distance2D(origin.Latitude, origin.Longitude, station.Latitude, station.Longitude, true)
		miles := meters / metersPerMile
		if miles > radiusMiles {
			continue
		}

		candidates = append(candidates, candidate{
			entry: models.RankedEntry{
				Station:       station,
				FuelType:      fuel,
				Price:         record.Price,
				DistanceMiles: roundTenth(miles),
				BrandIcon:     models.BrandIcon(station.Brand),
				LastUpdated:   record.RecordedAt,
			},
			distance: miles,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.entry.Price != b.entry.Price {
			return a.entry.Price < b.entry.Price
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.entry.Station.ID < b.entry.Station.ID
	})

	entries := make([]models.RankedEntry, len(candidates))
	for i, c := range candidates {
		c.entry.Rank = i + 1
		entries[i] = c.entry
	}
	return entries
}

// View builds the outbound per-fuel-type model: the top-N cheapest entries
// plus the full in-radius set keyed by station ID.
func View(model *snapshot.Model, fuel models.FuelType, label string, origin models.Coordinate, radiusMiles float64, topN int) models.FuelView {
	if topN <= 0 {
		topN = DefaultTopN
	}

	entries := Rank(model, fuel, origin, radiusMiles)
	for i := range entries {
		entries[i].FuelLabel = label
	}

	cheapest := entries
	if len(cheapest) > topN {
		cheapest = cheapest[:topN]
	}

	stations := make(map[string]models.RankedEntry, len(entries))
	for _, entry := range entries {
		stations[entry.Station.ID] = entry
	}

	return models.FuelView{
		FuelType: fuel,
		Label:    label,
		Cheapest: cheapest,
		Stations: stations,
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
