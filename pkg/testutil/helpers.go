// Package testutil provides common utility functions for testing.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/iwvelando/trade-route/internal/model"
	"github.com/shopspring/decimal"
)

// FakeOptimizer is an in-process stand-in for the optimizer service. It
// records every call and serves canned responses.
type FakeOptimizer struct {
	*httptest.Server

	mu             sync.Mutex
	commodities    []string
	locations      []string
	response       model.OptimizeResponse
	optimizeStatus int
	optimizeBody   string
	stockStatus    int
	buyStock       model.StockTable
	sellStock      model.StockTable
	gate           chan struct{}

	calls    map[string]int
	filters  []string
	requests [][]byte
}

// NewFakeOptimizer starts a fake service with a small vocabulary and a
// profitable one-commodity plan.
func NewFakeOptimizer() *FakeOptimizer {
	f := &FakeOptimizer{
		commodities: []string{"Gold", "Iron"},
		locations:   []string{"Station A", "Station B"},
		response:    SamplePlan(),
		calls:       make(map[string]int),
	}

	r := chi.NewRouter()
	r.Get("/commodities", f.vocabulary(func() []string { return f.commodities }))
	r.Get("/locations", f.vocabulary(func() []string { return f.locations }))
	r.Post("/optimize", f.optimize)
	r.Post("/buy/stocks", f.stocks(func() model.StockTable { return f.buyStock }))
	r.Post("/sell/stocks", f.stocks(func() model.StockTable { return f.sellStock }))

	f.Server = httptest.NewServer(r)
	return f
}

// SamplePlan buys 10 SCU of Gold at Station A for $500 and sells it at
// Station B for $800.
func SamplePlan() model.OptimizeResponse {
	buy := model.Transaction{Commodity: "Gold", Location: "Station A", Amount: decimal.NewFromInt(1000)}
	sell := model.Transaction{Commodity: "Gold", Location: "Station B", Amount: decimal.NewFromInt(1000)}
	return model.OptimizeResponse{
		Plan: model.HighLevelPlan{
			BuyTransactions:  []model.Transaction{buy},
			SellTransactions: []model.Transaction{sell},
			Cost:             decimal.NewFromInt(500),
			Revenue:          decimal.NewFromInt(800),
		},
		Routes: []model.RouteStep{
			{EndLocation: "Station A", BuyTransactions: []model.Transaction{buy}, SellTransactions: []model.Transaction{}},
			{StartLocation: "Station A", EndLocation: "Station B", BuyTransactions: []model.Transaction{}, SellTransactions: []model.Transaction{sell}},
		},
	}
}

// SetVocabulary replaces the commodity and location lists.
func (f *FakeOptimizer) SetVocabulary(commodities, locations []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commodities = commodities
	f.locations = locations
}

// SetResponse replaces the successful /optimize response.
func (f *FakeOptimizer) SetResponse(resp model.OptimizeResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.response = resp
	f.optimizeStatus = 0
}

// FailOptimize makes /optimize answer with the given status and plain-text body.
func (f *FakeOptimizer) FailOptimize(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optimizeStatus = status
	f.optimizeBody = body
}

// SetStocks replaces the stock tables.
func (f *FakeOptimizer) SetStocks(buy, sell model.StockTable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buyStock = buy
	f.sellStock = sell
	f.stockStatus = 0
}

// FailStocks makes both stock endpoints answer with the given status.
func (f *FakeOptimizer) FailStocks(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stockStatus = status
}

// HoldOptimize makes /optimize block until the returned release func is called.
func (f *FakeOptimizer) HoldOptimize() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Calls returns how many requests reached the given path.
func (f *FakeOptimizer) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// Filters returns the filter query values seen by the vocabulary endpoints.
func (f *FakeOptimizer) Filters() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.filters...)
}

// LastOptimizeBody returns the raw body of the latest /optimize request.
func (f *FakeOptimizer) LastOptimizeBody() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func (f *FakeOptimizer) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r.URL.Path]++
}

func (f *FakeOptimizer) vocabulary(list func() []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		f.filters = append(f.filters, r.URL.Query().Get("filter"))
		names := list()
		f.mu.Unlock()
		writeJSON(w, names)
	}
}

func (f *FakeOptimizer) optimize(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, body)
	gate := f.gate
	status, text, resp := f.optimizeStatus, f.optimizeBody, f.response
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, text)
		return
	}
	writeJSON(w, resp)
}

func (f *FakeOptimizer) stocks(table func() model.StockTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		f.mu.Lock()
		status, stock := f.stockStatus, table()
		f.mu.Unlock()

		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		if stock == nil {
			stock = model.StockTable{}
		}
		writeJSON(w, stock)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
