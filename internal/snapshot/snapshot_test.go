package snapshot

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuelwatch/fuelwatch/internal/models"
)

func TestMergeReplacesStationByID(t *testing.T) {
	base := Merge(NewModel(), []models.Station{
		{ID: "s1", Name: "Old Name", Brand: "Shell", Postcode: "SW1A 1AA"},
	}, nil)

	updated := Merge(base, []models.Station{
		{ID: "s1", Name: "New Name", Brand: "Shell"},
	}, nil)

	require.Len(t, updated.Stations, 1)
	assert.Equal(t, "New Name", updated.Stations["s1"].Name)
	// Replacement is whole record, not field-wise.
	assert.Empty(t, updated.Stations["s1"].Postcode)
	// The input model is untouched.
	assert.Equal(t, "Old Name", base.Stations["s1"].Name)
}

func TestMergeUpsertsPriceByPair(t *testing.T) {
	now := time.Now().UTC()

	m := Merge(NewModel(), nil, []models.PriceUpdate{
		{StationID: "s1", FuelType: models.FuelE10, Price: 1289, RecordedAt: now},
		{StationID: "s1", FuelType: models.FuelB7Standard, Price: 1423, RecordedAt: now},
	})

	assert.Equal(t, 2, m.PriceCount())

	record, ok := m.Price("s1", models.FuelE10)
	require.True(t, ok)
	assert.Equal(t, models.Price(1289), record.Price)
}

func TestMergeKeepsNewerRecord(t *testing.T) {
	newer := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-24 * time.Hour)

	m := Merge(NewModel(), nil, []models.PriceUpdate{
		{StationID: "s1", FuelType: models.FuelE10, Price: 1300, RecordedAt: newer},
	})

	// A late-arriving older observation must not win.
	m = Merge(m, nil, []models.PriceUpdate{
		{StationID: "s1", FuelType: models.FuelE10, Price: 1250, RecordedAt: older},
	})

	record, ok := m.Price("s1", models.FuelE10)
	require.True(t, ok)
	assert.Equal(t, models.Price(1300), record.Price)
	assert.Equal(t, newer, record.RecordedAt)
}

func TestMergeAbsentPriceRemovesRecord(t *testing.T) {
	now := time.Now().UTC()

	m := Merge(NewModel(), nil, []models.PriceUpdate{
		{StationID: "s1", FuelType: models.FuelE10, Price: 1289, RecordedAt: now},
		{StationID: "s1", FuelType: models.FuelB7Standard, Price: 1423, RecordedAt: now},
	})

	m = Merge(m, nil, []models.PriceUpdate{
		{StationID: "s1", FuelType: models.FuelE10, Absent: true, RecordedAt: now},
	})

	_, ok := m.Price("s1", models.FuelE10)
	assert.False(t, ok)
	_, ok = m.Price("s1", models.FuelB7Standard)
	assert.True(t, ok)

	// Removing a record that never existed is a no-op.
	m = Merge(m, nil, []models.PriceUpdate{
		{StationID: "s2", FuelType: models.FuelE10, Absent: true, RecordedAt: now},
	})
	assert.Equal(t, 1, m.PriceCount())
}

func TestMergeIsIdempotent(t *testing.T) {
	now := time.Now().UTC()

	stations := make([]models.Station, 0, 500)
	updates := make([]models.PriceUpdate, 0, 500)
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("s%03d", i)
		stations = append(stations, models.Station{ID: id, Name: "Station " + id})
		updates = append(updates, models.PriceUpdate{
			StationID:  id,
			FuelType:   models.FuelE10,
			Price:      models.Price(1200 + i),
			RecordedAt: now,
		})
	}
	// The batch protocol can re-deliver records around a page boundary.
	stations = append(stations, stations[250])
	updates = append(updates, updates[250])

	once := Merge(NewModel(), stations, updates)
	twice := Merge(once, stations, updates)

	assert.Equal(t, once, twice)
	assert.Len(t, twice.Stations, 500)
	assert.Equal(t, 500, twice.PriceCount())
}

func TestHolderPublish(t *testing.T) {
	holder := NewHolder()

	// Nothing is served before the first successful pass.
	assert.Nil(t, holder.Model())
	assert.Nil(t, holder.Rankings())

	model := Merge(NewModel(), []models.Station{{ID: "s1"}}, nil)
	rankings := &models.Rankings{UpdatedAt: time.Now().UTC()}
	holder.Publish(model, rankings)

	assert.Same(t, model, holder.Model())
	assert.Same(t, rankings, holder.Rankings())

	// A later publish swaps both atomically.
	next := Merge(model, []models.Station{{ID: "s2"}}, nil)
	holder.Publish(next, rankings)
	assert.Same(t, next, holder.Model())
}
