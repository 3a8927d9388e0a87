package model

import "github.com/shopspring/decimal"

// StockRequest asks for stock levels of commodities keyed by location.
type StockRequest map[string][]string

// StockTable maps location -> commodity -> stock level in sub-units.
type StockTable map[string]map[string]decimal.Decimal

// Lookup returns the stock level for a commodity at a location and whether
// the table has an entry for it.
func (t StockTable) Lookup(location, commodity string) (decimal.Decimal, bool) {
	if t == nil {
		return decimal.Zero, false
	}
	byCommodity, ok := t[location]
	if !ok {
		return decimal.Zero, false
	}
	level, ok := byCommodity[commodity]
	return level, ok
}
