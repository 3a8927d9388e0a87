// Package report turns an optimizer plan into display-ready tables: plan
// rows grouped by location with stock levels, and the route itinerary.
package report

import (
	"github.com/iwvelando/trade-route/internal/model"
	"github.com/iwvelando/trade-route/pkg/constants"
	"github.com/iwvelando/trade-route/pkg/format"
	"github.com/shopspring/decimal"
)

// LocationGroup collects the plan transactions made at one location.
type LocationGroup struct {
	Location string
	Buy      []model.Transaction
	Sell     []model.Transaction
}

// GroupByLocation groups buy and sell transactions by location. Locations
// appear in first-seen order across buys then sells.
func GroupByLocation(plan model.HighLevelPlan) []LocationGroup {
	groups := []LocationGroup{}
	index := make(map[string]int)
	find := func(location string) *LocationGroup {
		i, ok := index[location]
		if !ok {
			i = len(groups)
			index[location] = i
			groups = append(groups, LocationGroup{Location: location})
		}
		return &groups[i]
	}
	for _, t := range plan.BuyTransactions {
		g := find(t.Location)
		g.Buy = append(g.Buy, t)
	}
	for _, t := range plan.SellTransactions {
		g := find(t.Location)
		g.Sell = append(g.Sell, t)
	}
	return groups
}

// Profit is revenue minus cost.
func Profit(plan model.HighLevelPlan) decimal.Decimal {
	return plan.Revenue.Sub(plan.Cost)
}

// StockRequests builds the stock lookup bodies for the plan's buy and sell
// transactions. A commodity is listed once per transaction, in plan order.
func StockRequests(plan model.HighLevelPlan) (buy, sell model.StockRequest) {
	return stockRequest(plan.BuyTransactions), stockRequest(plan.SellTransactions)
}

func stockRequest(transactions []model.Transaction) model.StockRequest {
	req := make(model.StockRequest)
	for _, t := range transactions {
		req[t.Location] = append(req[t.Location], t.Commodity)
	}
	return req
}

// Row is one rendered transaction line.
type Row struct {
	Commodity string `json:"commodity"`
	Stock     string `json:"stock,omitempty"`
	Amount    string `json:"amount"`
	Type      string `json:"type"`
}

// LocationTable is the plan table for one location.
type LocationTable struct {
	Location string `json:"location"`
	Rows     []Row  `json:"rows"`
}

// StepCard is one stop of the route, titled by its end location.
type StepCard struct {
	From     string `json:"from,omitempty"`
	Location string `json:"location"`
	Rows     []Row  `json:"rows"`
}

// Summary holds the plan totals as display strings.
type Summary struct {
	Cost    string `json:"cost"`
	Revenue string `json:"revenue"`
	Profit  string `json:"profit"`
	Loss    bool   `json:"loss"`
}

// Report is the complete rendered result of one submission.
type Report struct {
	Summary   Summary         `json:"summary"`
	Locations []LocationTable `json:"locations"`
	Route     []StepCard      `json:"route"`
}

// Build renders a plan and its route. Stock tables may be nil; a missing or
// zero level renders as the placeholder.
func Build(plan model.HighLevelPlan, routes []model.RouteStep, buyStock, sellStock model.StockTable) *Report {
	profit := Profit(plan)
	rep := &Report{
		Summary: Summary{
			Cost:    format.Currency(plan.Cost),
			Revenue: format.Currency(plan.Revenue),
			Profit:  format.Currency(profit),
			Loss:    profit.IsNegative(),
		},
		Locations: []LocationTable{},
		Route:     make([]StepCard, 0, len(routes)),
	}

	for _, g := range GroupByLocation(plan) {
		table := LocationTable{Location: g.Location, Rows: make([]Row, 0, len(g.Buy)+len(g.Sell))}
		for _, t := range g.Buy {
			table.Rows = append(table.Rows, stockRow(t, constants.TypeBuy, buyStock))
		}
		for _, t := range g.Sell {
			table.Rows = append(table.Rows, stockRow(t, constants.TypeSell, sellStock))
		}
		rep.Locations = append(rep.Locations, table)
	}

	for _, step := range routes {
		card := StepCard{From: step.StartLocation, Location: step.EndLocation, Rows: make([]Row, 0, len(step.BuyTransactions)+len(step.SellTransactions))}
		for _, t := range step.BuyTransactions {
			card.Rows = append(card.Rows, Row{Commodity: t.Commodity, Amount: format.Amount(t.Amount), Type: constants.TypeBuy})
		}
		for _, t := range step.SellTransactions {
			card.Rows = append(card.Rows, Row{Commodity: t.Commodity, Amount: format.Amount(t.Amount), Type: constants.TypeSell})
		}
		rep.Route = append(rep.Route, card)
	}
	return rep
}

func stockRow(t model.Transaction, kind string, stock model.StockTable) Row {
	level, known := stock.Lookup(t.Location, t.Commodity)
	return Row{
		Commodity: t.Commodity,
		Stock:     format.Stock(level, known),
		Amount:    format.Amount(t.Amount),
		Type:      kind,
	}
}
