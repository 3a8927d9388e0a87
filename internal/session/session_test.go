package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iwvelando/trade-route/internal/apperrors"
	"github.com/iwvelando/trade-route/internal/client"
	"github.com/iwvelando/trade-route/internal/form"
	"github.com/iwvelando/trade-route/internal/model"
	"github.com/iwvelando/trade-route/internal/settings"
	"github.com/iwvelando/trade-route/pkg/testutil"
	"github.com/shopspring/decimal"
)

// stubService lets a test script every service call.
type stubService struct {
	mu            sync.Mutex
	optimizeCalls int
	vocabCalls    int

	optimize func(ctx context.Context, req model.PlanRequest) (*model.OptimizeResponse, error)
	vocab    func(ctx context.Context, kind, filter string) ([]string, error)
	stocks   func(ctx context.Context, side string, req model.StockRequest) (model.StockTable, error)
}

func (s *stubService) Optimize(ctx context.Context, req model.PlanRequest) (*model.OptimizeResponse, error) {
	s.mu.Lock()
	s.optimizeCalls++
	s.mu.Unlock()
	if s.optimize == nil {
		resp := testutil.SamplePlan()
		return &resp, nil
	}
	return s.optimize(ctx, req)
}

func (s *stubService) Commodities(ctx context.Context, filter string) ([]string, error) {
	return s.vocabulary(ctx, "commodities", filter)
}

func (s *stubService) Locations(ctx context.Context, filter string) ([]string, error) {
	return s.vocabulary(ctx, "locations", filter)
}

func (s *stubService) vocabulary(ctx context.Context, kind, filter string) ([]string, error) {
	s.mu.Lock()
	s.vocabCalls++
	s.mu.Unlock()
	if s.vocab == nil {
		if kind == "commodities" {
			return []string{"Gold", "Iron"}, nil
		}
		return []string{"Station A", "Station B"}, nil
	}
	return s.vocab(ctx, kind, filter)
}

func (s *stubService) BuyStocks(ctx context.Context, req model.StockRequest) (model.StockTable, error) {
	if s.stocks == nil {
		return model.StockTable{}, nil
	}
	return s.stocks(ctx, "buy", req)
}

func (s *stubService) SellStocks(ctx context.Context, req model.StockRequest) (model.StockTable, error) {
	if s.stocks == nil {
		return model.StockTable{}, nil
	}
	return s.stocks(ctx, "sell", req)
}

func (s *stubService) calls() (optimize, vocab int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.optimizeCalls, s.vocabCalls
}

// fillValidForm adds one allocation and one location that pass validation
// against the default vocabulary.
func fillValidForm(t *testing.T, c *Coordinator) {
	t.Helper()
	if err := c.RefreshVocabulary(context.Background()); err != nil {
		t.Fatalf("RefreshVocabulary() error = %v", err)
	}
	f := c.Form()
	if err := f.UpdateCommodity(f.AddCommodity(), "Gold", 50); err != nil {
		t.Fatal(err)
	}
	if err := f.UpdateLocation(f.AddLocation(), "Station A"); err != nil {
		t.Fatal(err)
	}
}

func waitForStatus(t *testing.T, c *Coordinator, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.Status() != want {
		if time.Now().After(deadline) {
			t.Fatalf("status = %s, expected %s", c.Status(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewCoordinator(t *testing.T) {
	c := New(&stubService{}, nil)
	view := c.State()
	if view.Status != StatusIdle || view.Report != nil || view.Notification != "" {
		t.Errorf("unexpected initial view: %+v", view)
	}
	if view.Form.Cargo != 696 {
		t.Errorf("expected default form, got %+v", view.Form)
	}
}

func TestSubmitValidationFailureSendsNothing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *form.Form)
	}{
		{"Unknown commodity", func(f *form.Form) { _ = f.UpdateCommodity(f.AddCommodity(), "Unobtainium", 10) }},
		{"Unknown location", func(f *form.Form) { _ = f.UpdateLocation(f.AddLocation(), "Nowhere") }},
		{"Unknown restriction location", func(f *form.Form) { _ = f.UpdateRestriction(f.AddRestriction(), "Gold", "Nowhere", 0) }},
		{"Stops out of range", func(f *form.Form) { f.SetStops(1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			c := New(svc, nil)
			fillValidForm(t, c)
			tt.mutate(c.Form())

			_, err := c.Submit(context.Background())
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if calls, _ := svc.calls(); calls != 0 {
				t.Errorf("expected no optimize call, got %d", calls)
			}
			if c.Status() != StatusIdle || c.Notification() != "" {
				t.Errorf("validation failure changed state: %s %q", c.Status(), c.Notification())
			}
		})
	}
}

func TestSubmitEndToEnd(t *testing.T) {
	fake := testutil.NewFakeOptimizer()
	defer fake.Close()
	fake.SetStocks(
		model.StockTable{"Station A": {"Gold": decimal.NewFromInt(5000)}},
		model.StockTable{"Station B": {"Gold": decimal.NewFromInt(0)}},
	)

	c := New(client.New(fake.URL, client.WithRetry(1, time.Millisecond)), nil)
	fillValidForm(t, c)

	rep, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	expectedBody := `{"max_range":2,"max_cargo":69600,"stops":2,"max_commodity":{"Gold":0.5},"restrictions":{},"blk_locations":["Station A"],"filter":".*"}`
	if got := string(fake.LastOptimizeBody()); got != expectedBody {
		t.Errorf("request body\n got: %s\nwant: %s", got, expectedBody)
	}
	if rep.Summary.Cost != "$500" || rep.Summary.Revenue != "$800" || rep.Summary.Profit != "$300" {
		t.Errorf("summary = %+v", rep.Summary)
	}
	if rep.Locations[0].Rows[0].Stock != "50.0" || rep.Locations[1].Rows[0].Stock != "-" {
		t.Errorf("stock merge failed: %+v", rep.Locations)
	}
	if c.Status() != StatusSuccess || c.Report() != rep {
		t.Errorf("status = %s, stored report matches = %v", c.Status(), c.Report() == rep)
	}
	if fake.Calls("/buy/stocks") != 1 || fake.Calls("/sell/stocks") != 1 {
		t.Errorf("expected one lookup per side")
	}
}

func TestSubmitServiceFailure(t *testing.T) {
	fake := testutil.NewFakeOptimizer()
	defer fake.Close()

	c := New(client.New(fake.URL, client.WithRetry(1, time.Millisecond)), nil)
	fillValidForm(t, c)

	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}

	fake.FailOptimize(http.StatusInternalServerError, "no feasible route")
	_, err := c.Submit(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	view := c.State()
	if view.Notification != "no feasible route" {
		t.Errorf("notification = %q", view.Notification)
	}
	if view.Report != nil || c.Result() != nil {
		t.Error("expected previous result to be cleared")
	}
	if view.Status != StatusFailure {
		t.Errorf("status = %s", view.Status)
	}

	c.DismissNotification()
	if c.Notification() != "" {
		t.Error("notification not dismissed")
	}
}

func TestSubmitClearsNotification(t *testing.T) {
	fake := testutil.NewFakeOptimizer()
	defer fake.Close()

	c := New(client.New(fake.URL, client.WithRetry(1, time.Millisecond)), nil)
	fillValidForm(t, c)

	fake.FailOptimize(http.StatusInternalServerError, "no feasible route")
	if _, err := c.Submit(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	// A submission rejected by validation leaves the notification alone.
	f := c.Form()
	id := f.AddLocation()
	if _, err := c.Submit(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
	if c.Notification() != "no feasible route" {
		t.Errorf("notification after validation failure = %q", c.Notification())
	}
	if err := f.RemoveLocation(id); err != nil {
		t.Fatal(err)
	}

	fake.SetResponse(testutil.SamplePlan())
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("resubmit error = %v", err)
	}
	view := c.State()
	if view.Notification != "" {
		t.Errorf("stale notification %q next to a fresh result", view.Notification)
	}
	if view.Status != StatusSuccess || view.Report == nil {
		t.Errorf("unexpected view after success: %+v", view)
	}
	if fake.Calls("/optimize") != 2 {
		t.Errorf("expected 2 optimize calls, got %d", fake.Calls("/optimize"))
	}
}

func TestSubmitSingleFlight(t *testing.T) {
	release := make(chan struct{})
	svc := &stubService{
		optimize: func(ctx context.Context, req model.PlanRequest) (*model.OptimizeResponse, error) {
			<-release
			resp := testutil.SamplePlan()
			return &resp, nil
		},
	}
	c := New(svc, nil)
	fillValidForm(t, c)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	waitForStatus(t, c, StatusSubmitting)

	if _, err := c.Submit(context.Background()); !errors.Is(err, apperrors.ErrSubmissionInFlight) {
		t.Errorf("expected ErrSubmissionInFlight, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if calls, _ := svc.calls(); calls != 1 {
		t.Errorf("expected one optimize call, got %d", calls)
	}
}

func TestSubmitStockFailureDegrades(t *testing.T) {
	svc := &stubService{
		stocks: func(ctx context.Context, side string, req model.StockRequest) (model.StockTable, error) {
			return nil, errors.New("stock service down")
		},
	}
	c := New(svc, nil)
	fillValidForm(t, c)

	rep, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	for _, table := range rep.Locations {
		for _, row := range table.Rows {
			if row.Stock != "-" {
				t.Errorf("%s stock = %q, expected placeholder", table.Location, row.Stock)
			}
		}
	}
	if c.Notification() != "" || c.Status() != StatusSuccess {
		t.Errorf("stock failure leaked into session: %q %s", c.Notification(), c.Status())
	}
}

func TestSubmitSkipsEmptyStockRequests(t *testing.T) {
	var mu sync.Mutex
	sides := []string{}
	svc := &stubService{
		optimize: func(ctx context.Context, req model.PlanRequest) (*model.OptimizeResponse, error) {
			resp := testutil.SamplePlan()
			resp.Plan.SellTransactions = nil
			return &resp, nil
		},
		stocks: func(ctx context.Context, side string, req model.StockRequest) (model.StockTable, error) {
			mu.Lock()
			defer mu.Unlock()
			sides = append(sides, side)
			return model.StockTable{}, nil
		},
	}
	c := New(svc, nil)
	fillValidForm(t, c)

	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(sides) != 1 || sides[0] != "buy" {
		t.Errorf("stock lookups = %v, expected only buy", sides)
	}
}

func TestRefreshVocabularyDiscardsStale(t *testing.T) {
	slow := make(chan struct{})
	svc := &stubService{
		vocab: func(ctx context.Context, kind, filter string) ([]string, error) {
			if filter == "old" {
				<-slow
			}
			return []string{kind + ":" + filter}, nil
		},
	}
	c := New(svc, nil)

	c.Form().SetFilter("old")
	done := make(chan error, 1)
	go func() { done <- c.RefreshVocabulary(context.Background()) }()

	// Wait for the slow refresh to have started before issuing the newer one.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, vocab := svc.calls(); vocab >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("slow refresh never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := c.SetFilter(context.Background(), "new"); err != nil {
		t.Fatalf("SetFilter() error = %v", err)
	}
	close(slow)
	if err := <-done; err != nil {
		t.Fatalf("stale refresh error = %v", err)
	}

	vocab := c.Form().Vocabulary()
	if len(vocab.Commodities) != 1 || vocab.Commodities[0] != "commodities:new" {
		t.Errorf("commodities = %v, expected newest refresh to win", vocab.Commodities)
	}
	if len(vocab.Locations) != 1 || vocab.Locations[0] != "locations:new" {
		t.Errorf("locations = %v, expected newest refresh to win", vocab.Locations)
	}
}

func TestSetFilterUnchangedSkipsRefresh(t *testing.T) {
	svc := &stubService{}
	c := New(svc, nil)
	if err := c.SetFilter(context.Background(), ".*"); err != nil {
		t.Fatalf("SetFilter() error = %v", err)
	}
	if _, vocab := svc.calls(); vocab != 0 {
		t.Errorf("expected no vocabulary fetch, got %d", vocab)
	}
}

func TestRefreshVocabularyFailureKeepsVocabulary(t *testing.T) {
	fail := false
	svc := &stubService{
		vocab: func(ctx context.Context, kind, filter string) ([]string, error) {
			if fail {
				return nil, errors.New("boom")
			}
			return []string{"kept"}, nil
		},
	}
	c := New(svc, nil)
	if err := c.RefreshVocabulary(context.Background()); err != nil {
		t.Fatal(err)
	}
	fail = true
	if err := c.RefreshVocabulary(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if v := c.Form().Vocabulary(); len(v.Commodities) != 1 || v.Commodities[0] != "kept" {
		t.Errorf("vocabulary = %+v", v)
	}
}

func TestBlacklist(t *testing.T) {
	c := New(&stubService{}, nil)
	if _, err := c.Blacklist(); !errors.Is(err, apperrors.ErrNoPlan) {
		t.Fatalf("expected ErrNoPlan, got %v", err)
	}

	fillValidForm(t, c)
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}

	added, err := c.Blacklist()
	if err != nil || added != 2 {
		t.Fatalf("Blacklist() = %d, %v", added, err)
	}
	rs := c.Form().Snapshot().Restrictions
	if rs[0].Location != "Station A" || rs[1].Location != "Station B" || rs[0].Value != 0 || rs[1].Value != 0 {
		t.Errorf("restrictions = %+v", rs)
	}

	// The blacklisted form still validates and can be resubmitted.
	if _, err := c.Submit(context.Background()); err != nil {
		t.Errorf("resubmit after blacklist error = %v", err)
	}
}

func TestBlacklistRefusedWhileSubmitting(t *testing.T) {
	svc := &stubService{}
	c := New(svc, nil)
	fillValidForm(t, c)
	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}

	release := make(chan struct{})
	svc.optimize = func(ctx context.Context, req model.PlanRequest) (*model.OptimizeResponse, error) {
		<-release
		resp := testutil.SamplePlan()
		return &resp, nil
	}
	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	waitForStatus(t, c, StatusSubmitting)

	before := len(c.Form().Snapshot().Restrictions)
	if _, err := c.Blacklist(); !errors.Is(err, apperrors.ErrSubmissionInFlight) {
		t.Errorf("expected ErrSubmissionInFlight, got %v", err)
	}
	if after := len(c.Form().Snapshot().Restrictions); after != before {
		t.Errorf("restrictions changed during submission: %d -> %d", before, after)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if added, err := c.Blacklist(); err != nil || added != 2 {
		t.Errorf("Blacklist() after submission = %d, %v", added, err)
	}
}

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func TestLoadSettings(t *testing.T) {
	svc := &stubService{}
	c := New(svc, nil)

	doc := `{"cargo":500,"filter":"Stanton","locations":["Station A"]}`
	err := c.LoadSettings(context.Background(), func() (io.ReadCloser, error) {
		return nopCloser{strings.NewReader(doc)}, nil
	}, settings.JSON)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}

	s := c.Form().Snapshot()
	if s.Cargo != 500 || s.Filter != "Stanton" || len(s.Locations) != 1 {
		t.Errorf("settings not applied: %+v", s)
	}
	if _, vocab := svc.calls(); vocab != 2 {
		t.Errorf("expected a vocabulary refresh after filter change, got %d calls", vocab)
	}
}

func TestLoadSettingsFailures(t *testing.T) {
	tests := []struct {
		name string
		open func() (io.ReadCloser, error)
	}{
		{"Open failure", func() (io.ReadCloser, error) { return nil, errors.New("permission denied") }},
		{"Parse failure", func() (io.ReadCloser, error) { return nopCloser{strings.NewReader("{not json")}, nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&stubService{}, nil)
			c.Form().SetCargo(123)
			before := c.Form().Snapshot()

			if err := c.LoadSettings(context.Background(), tt.open, settings.JSON); err == nil {
				t.Fatal("expected error")
			}
			if c.Notification() == "" {
				t.Error("expected notification")
			}
			after := c.Form().Snapshot()
			if after.Cargo != before.Cargo {
				t.Errorf("form changed: %+v", after)
			}
		})
	}
}

func TestExportSettings(t *testing.T) {
	c := New(&stubService{}, nil)
	c.Form().SetCargo(42)

	data, err := c.ExportSettings(settings.JSON)
	if err != nil {
		t.Fatalf("ExportSettings() error = %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["cargo"] != float64(42) || decoded["step"] != float64(2) {
		t.Errorf("decoded = %v", decoded)
	}
}
