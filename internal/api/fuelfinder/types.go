package fuelfinder

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
)

// flexFloat unmarshals a JSON number that the upstream feed sometimes encodes
// as a quoted string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		// Bad coordinates are common in the feed; treat them as missing
		// rather than failing the whole batch.
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// flexTime unmarshals the upstream "YYYY-MM-DD HH:MM:SS" timestamps, falling
// back to RFC 3339.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{timestampLayout, time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

// StationRecord mirrors the upstream station payload.
type StationRecord struct {
	NodeID           string          `json:"node_id"`
	TradingName      string          `json:"trading_name"`
	BrandName        string          `json:"brand_name"`
	PermanentClosure bool            `json:"permanent_closure"`
	TemporaryClosure bool            `json:"temporary_closure"`
	Location         stationLocation `json:"location"`
}

// stationLocation is the nested address block of a station record.
type stationLocation struct {
	AddressLine1 string    `json:"address_line_1"`
	AddressLine2 string    `json:"address_line_2"`
	City         string    `json:"city"`
	Postcode     string    `json:"postcode"`
	Latitude     flexFloat `json:"latitude"`
	Longitude    flexFloat `json:"longitude"`
}

// Station converts the raw record into the local model. The address is
// assembled from the non-empty address lines and city.
func (r StationRecord) Station() models.Station {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Location.AddressLine1, r.Location.AddressLine2, r.Location.City} {
		if p != "" {
			parts = append(parts, p)
		}
	}

	name := r.TradingName
	if name == "" {
		name = "Unknown"
	}
	brand := r.BrandName
	if brand == "" {
		brand = "Unknown"
	}

	return models.Station{
		ID:        r.NodeID,
		Name:      name,
		Brand:     brand,
		Address:   strings.Join(parts, ", "),
		Postcode:  r.Location.Postcode,
		Latitude:  float64(r.Location.Latitude),
		Longitude: float64(r.Location.Longitude),
		Closed:    r.PermanentClosure || r.TemporaryClosure,
	}
}

// PriceListRecord mirrors the upstream per-station price payload.
type PriceListRecord struct {
	NodeID     string      `json:"node_id"`
	FuelPrices []fuelPrice `json:"fuel_prices"`
}

// fuelPrice is a single fuel type entry inside a price record. A null price
// is an explicit absence marker, not a zero value.
type fuelPrice struct {
	FuelType         string   `json:"fuel_type"`
	Price            *float64 `json:"price"`
	PriceLastUpdated flexTime `json:"price_last_updated"`
}

// Updates converts the raw record into merge inputs. Prices that are missing
// or fail normalisation become explicit absences so a stale stored price is
// removed rather than kept.
func (r PriceListRecord) Updates() []models.PriceUpdate {
	updates := make([]models.PriceUpdate, 0, len(r.FuelPrices))
	for _, fp := range r.FuelPrices {
		code, err := models.ParseFuelType(fp.FuelType)
		if err != nil {
			continue
		}

		update := models.PriceUpdate{
			StationID:  r.NodeID,
			FuelType:   code,
			RecordedAt: fp.PriceLastUpdated.Time,
		}
		if price, ok := models.CleanPrice(fp.Price); ok {
			update.Price = price
		} else {
			update.Absent = true
		}
		updates = append(updates, update)
	}
	return updates
}

// decodeRecords extracts the record array from a page response. The API wraps
// pages either as a bare array or under a "results" or "data" key.
func decodeRecords(body []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err == nil {
		return records, nil
	}

	var wrapped struct {
		Results []json.RawMessage `json:"results"`
		Data    []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Results != nil {
		return wrapped.Results, nil
	}
	return wrapped.Data, nil
}
