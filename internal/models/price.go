package models

const (
	// priceMinPence and priceMaxPence bound the plausible range for UK
	// forecourt prices in pence per litre. Values outside the range after
	// normalisation are treated as absent.
	priceMinPence = 100
	priceMaxPence = 180
)

// CleanPrice normalises a raw upstream price value to tenths of a penny per
// litre. The upstream feed contains recurring data errors:
//
//   - values like 1.289 are pounds per litre and become 128.9
//   - values like 1319.0 carry an extra digit and become 131.9
//
// The second return value is false when the price is missing or implausible.
func CleanPrice(raw *float64) (Price, bool) {
	if raw == nil {
		return 0, false
	}

	pence := *raw
	if pence < 10 {
		pence *= 100
	} else if pence > 1000 {
		pence /= 10
	}

	if pence < priceMinPence || pence > priceMaxPence {
		return 0, false
	}
	return PriceFromPence(pence), true
}
