package models

import (
	"fmt"
	"sort"
)

// FuelType is an upstream fuel type code.
type FuelType string

const (
	FuelE10        FuelType = "E10"
	FuelE5         FuelType = "E5"
	FuelB7Standard FuelType = "B7_STANDARD"
	FuelB7Premium  FuelType = "B7_PREMIUM"
	FuelB10        FuelType = "B10"
	FuelHVO        FuelType = "HVO"
)

// fuelInfo describes a fuel type for labelling: the family is the common name
// shown when the code is unambiguous within the selection, the variant
// disambiguates codes sharing a family.
type fuelInfo struct {
	family  string
	variant string
	// fullName is the descriptive name used in help texts and CLI output.
	fullName string
}

var fuelTypes = map[FuelType]fuelInfo{
	FuelE10:        {family: "Petrol", variant: "E10", fullName: "Regular Unleaded (E10)"},
	FuelE5:         {family: "Petrol", variant: "E5", fullName: "Super Unleaded (E5)"},
	FuelB7Standard: {family: "Diesel", variant: "B7", fullName: "Diesel (B7)"},
	FuelB7Premium:  {family: "Diesel", variant: "Premium", fullName: "Premium Diesel"},
	FuelB10:        {family: "Biodiesel", variant: "B10", fullName: "Biodiesel (B10)"},
	FuelHVO:        {family: "HVO Diesel", variant: "HVO", fullName: "HVO Diesel"},
}

// AllFuelTypes returns every known fuel type code in a stable order.
func AllFuelTypes() []FuelType {
	codes := make([]FuelType, 0, len(fuelTypes))
	for code := range fuelTypes {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// ParseFuelType validates a fuel type code.
func ParseFuelType(s string) (FuelType, error) {
	code := FuelType(s)
	if _, ok := fuelTypes[code]; !ok {
		return "", fmt.Errorf("unknown fuel type %q", s)
	}
	return code, nil
}

// FullName returns the descriptive name for a fuel type code, falling back to
// the code itself for unknown values.
func (f FuelType) FullName() string {
	if info, ok := fuelTypes[f]; ok {
		return info.fullName
	}
	return string(f)
}

// ResolveLabels assigns a display label to each selected fuel type. The label
// is the fuel family's common name unless two or more selected codes share a
// family, in which case each gets the family plus its distinguishing variant.
// The result is a pure function of the selection and is recomputed whenever
// the selection changes.
func ResolveLabels(selection []FuelType) map[FuelType]string {
	familyCount := make(map[string]int)
	for _, code := range selection {
		if info, ok := fuelTypes[code]; ok {
			familyCount[info.family]++
		}
	}

	labels := make(map[FuelType]string, len(selection))
	for _, code := range selection {
		info, ok := fuelTypes[code]
		if !ok {
			labels[code] = string(code)
			continue
		}
		if familyCount[info.family] > 1 {
			labels[code] = fmt.Sprintf("%s (%s)", info.family, info.variant)
		} else {
			labels[code] = info.family
		}
	}
	return labels
}
