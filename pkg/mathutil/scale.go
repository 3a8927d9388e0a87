// Package mathutil provides the unit conversions applied at the request and
// display boundaries.
package mathutil

import (
	"github.com/iwvelando/trade-route/pkg/constants"
	"github.com/shopspring/decimal"
)

var (
	subUnits       = decimal.NewFromInt(constants.SubUnitsPerUnit)
	percentDivisor = decimal.NewFromInt(constants.PercentDivisor)
)

// ToSubUnits converts a whole number of units (e.g. SCU of cargo) into
// sub-units. units must be within [0, constants.MaxCargo].
func ToSubUnits(units int64) int64 {
	return units * constants.SubUnitsPerUnit
}

// FromSubUnits converts a sub-unit quantity back into units.
func FromSubUnits(value decimal.Decimal) decimal.Decimal {
	return value.Div(subUnits)
}

// PercentToFraction converts a user-facing percent (0-100) into a fraction.
// The division is done in decimal so 29 becomes exactly the float nearest 0.29.
func PercentToFraction(percent int) float64 {
	return decimal.NewFromInt(int64(percent)).Div(percentDivisor).InexactFloat64()
}
