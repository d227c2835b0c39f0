package quant

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FillEpsilon is the tolerance used when comparing an accumulated executed
// quantity against an order's target quantity. Slicing a quantity into
// quantity/steps parts accumulates float64 rounding error, so the final sum
// may land just below the target even when every slice filled.
const FillEpsilon = 1e-9

// ParsePrice parses a price string from an exchange payload.
// Exchanges send prices as JSON strings; parsing through decimal keeps the
// conversion exact up to the final float64 boundary.
func ParsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// ParseQty parses a quantity string from an exchange payload.
func ParseQty(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// SliceQuantity returns the per-step quantity for a schedule of the given
// number of steps. Steps must be >= 1; callers validate before scheduling.
func SliceQuantity(total float64, steps int) float64 {
	return total / float64(steps)
}

// AlmostGTE reports whether a >= b within FillEpsilon.
func AlmostGTE(a, b float64) bool {
	return a >= b-FillEpsilon
}
