// Package model defines the wire types exchanged with the optimizer service.
package model

import "github.com/shopspring/decimal"

// PlanRequest is the body of POST /optimize. Percentages are already
// fractions and cargo is already in sub-units.
type PlanRequest struct {
	MaxRange     int                           `json:"max_range"`
	MaxCargo     int64                         `json:"max_cargo"`
	Stops        int                           `json:"stops"`
	MaxCommodity map[string]float64            `json:"max_commodity"`
	Restrictions map[string]map[string]float64 `json:"restrictions"`
	BlkLocations []string                      `json:"blk_locations"`
	Filter       string                        `json:"filter"`
}

// Transaction is a single buy or sell of a commodity at a location. Amount
// is in sub-units; the solver may return fractional values.
type Transaction struct {
	Commodity string          `json:"commodity"`
	Location  string          `json:"location"`
	Amount    decimal.Decimal `json:"amount"`
}

// HighLevelPlan is the aggregate result of one optimization run.
type HighLevelPlan struct {
	BuyTransactions  []Transaction   `json:"buyTransactions"`
	SellTransactions []Transaction   `json:"sellTransactions"`
	Cost             decimal.Decimal `json:"cost"`
	Revenue          decimal.Decimal `json:"revenue"`
}

// RouteStep is one stop of the itinerary, in route order.
type RouteStep struct {
	StartLocation    string        `json:"startLocation,omitempty"`
	EndLocation      string        `json:"endLocation"`
	BuyTransactions  []Transaction `json:"buyTransactions"`
	SellTransactions []Transaction `json:"sellTransactions"`
}

// OptimizeResponse is the body of a successful POST /optimize.
type OptimizeResponse struct {
	Plan   HighLevelPlan `json:"plan"`
	Routes []RouteStep   `json:"routes"`
}
