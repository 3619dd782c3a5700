package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFuelType(t *testing.T) {
	for _, code := range AllFuelTypes() {
		parsed, err := ParseFuelType(string(code))
		require.NoError(t, err)
		assert.Equal(t, code, parsed)
	}

	_, err := ParseFuelType("SDF")
	assert.Error(t, err)

	_, err = ParseFuelType("e10")
	assert.Error(t, err, "fuel type codes are case sensitive")
}

func TestResolveLabels(t *testing.T) {
	tests := []struct {
		name      string
		selection []FuelType
		expected  map[FuelType]string
	}{
		{
			name:      "single petrol uses family name",
			selection: []FuelType{FuelE10},
			expected:  map[FuelType]string{FuelE10: "Petrol"},
		},
		{
			name:      "two petrols are disambiguated",
			selection: []FuelType{FuelE10, FuelE5},
			expected: map[FuelType]string{
				FuelE10: "Petrol (E10)",
				FuelE5:  "Petrol (E5)",
			},
		},
		{
			name:      "different families keep plain names",
			selection: []FuelType{FuelE10, FuelB7Standard},
			expected: map[FuelType]string{
				FuelE10:        "Petrol",
				FuelB7Standard: "Diesel",
			},
		},
		{
			name:      "two diesels are disambiguated",
			selection: []FuelType{FuelB7Standard, FuelB7Premium, FuelHVO},
			expected: map[FuelType]string{
				FuelB7Standard: "Diesel (B7)",
				FuelB7Premium:  "Diesel (Premium)",
				FuelHVO:        "HVO Diesel",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveLabels(tt.selection))
		})
	}
}

func TestResolveLabelsRecomputedPerSelection(t *testing.T) {
	// The same code gets a different label depending on what else is
	// selected.
	alone := ResolveLabels([]FuelType{FuelE10})
	paired := ResolveLabels([]FuelType{FuelE10, FuelE5})

	assert.Equal(t, "Petrol", alone[FuelE10])
	assert.Equal(t, "Petrol (E10)", paired[FuelE10])
}
