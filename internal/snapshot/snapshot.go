// Package snapshot holds the merged station/price model and the swap point
// between the sync pass and its readers.
package snapshot

import (
	"github.com/fuelwatch/fuelwatch/internal/models"
)

// Model is the merged local view of all stations and their current prices.
// A published Model is never mutated; Merge produces a new one.
type Model struct {
	// Stations is keyed by station ID.
	Stations map[string]models.Station
	// Prices is keyed by station ID, then fuel type. At most one record
	// exists per pair.
	Prices map[string]map[models.FuelType]models.PriceRecord
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		Stations: make(map[string]models.Station),
		Prices:   make(map[string]map[models.FuelType]models.PriceRecord),
	}
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	clone := &Model{
		Stations: make(map[string]models.Station, len(m.Stations)),
		Prices:   make(map[string]map[models.FuelType]models.PriceRecord, len(m.Prices)),
	}
	for id, station := range m.Stations {
		clone.Stations[id] = station
	}
	for id, byFuel := range m.Prices {
		copied := make(map[models.FuelType]models.PriceRecord, len(byFuel))
		for fuel, record := range byFuel {
			copied[fuel] = record
		}
		clone.Prices[id] = copied
	}
	return clone
}

// PriceCount returns the number of current price records.
func (m *Model) PriceCount() int {
	n := 0
	for _, byFuel := range m.Prices {
		n += len(byFuel)
	}
	return n
}

// Price returns the current price record for a (station, fuel type) pair.
func (m *Model) Price(stationID string, fuel models.FuelType) (models.PriceRecord, bool) {
	record, ok := m.Prices[stationID][fuel]
	return record, ok
}

// Merge reconciles incoming station and price records into a new model.
//
// Stations are replaced whole by ID. A price update replaces the stored
// record for its (station, fuel type) pair unless the stored record carries a
// newer timestamp; an explicitly absent price removes the stored record.
// Merge never mutates its input and is idempotent: applying the same batch
// twice yields the same model, which the at-least-once fetch protocol relies
// on.
func Merge(m *Model, stations []models.Station, updates []models.PriceUpdate) *Model {
	merged := m.Clone()

	for _, station := range stations {
		if station.ID == "" {
			continue
		}
		merged.Stations[station.ID] = station
	}

	for _, update := range updates {
		if update.StationID == "" {
			continue
		}

		byFuel := merged.Prices[update.StationID]

		if update.Absent {
			if byFuel != nil {
				delete(byFuel, update.FuelType)
				if len(byFuel) == 0 {
					delete(merged.Prices, update.StationID)
				}
			}
			continue
		}

		if existing, ok := byFuel[update.FuelType]; ok && existing.RecordedAt.After(update.RecordedAt) {
			continue
		}
		if byFuel == nil {
			byFuel = make(map[models.FuelType]models.PriceRecord)
			merged.Prices[update.StationID] = byFuel
		}
		byFuel[update.FuelType] = models.PriceRecord{
			StationID:  update.StationID,
			FuelType:   update.FuelType,
			Price:      update.Price,
			RecordedAt: update.RecordedAt,
		}
	}

	return merged
}
