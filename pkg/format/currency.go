// Package format renders money and cargo quantities for display.
package format

import (
	"github.com/iwvelando/trade-route/pkg/constants"
	"github.com/iwvelando/trade-route/pkg/mathutil"
	"github.com/shopspring/decimal"
)

// Currency returns a currency string with the sign ahead of the dollar sign
// (e.g., "$300", "-$500", "$12.5"). Trailing zeros are not padded.
func Currency(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "-$" + amount.Abs().String()
	}
	return "$" + amount.String()
}

// Amount renders a sub-unit quantity as units with one decimal (e.g., 1000 -> "10.0").
func Amount(subUnits decimal.Decimal) string {
	return mathutil.FromSubUnits(subUnits).StringFixed(constants.AmountDecimals)
}

// Stock renders a stock level like Amount, using the placeholder when the
// level is unknown or zero.
func Stock(level decimal.Decimal, known bool) string {
	if !known || level.IsZero() {
		return constants.StockPlaceholder
	}
	return Amount(level)
}
