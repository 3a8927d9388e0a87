// Package session coordinates one user's planning session: it owns the
// form, drives the submission lifecycle and keeps the latest result and
// notification.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/iwvelando/trade-route/internal/apperrors"
	"github.com/iwvelando/trade-route/internal/form"
	"github.com/iwvelando/trade-route/internal/model"
	"github.com/iwvelando/trade-route/internal/report"
	"github.com/iwvelando/trade-route/internal/settings"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service is the optimizer service as seen by the coordinator.
type Service interface {
	Optimize(ctx context.Context, req model.PlanRequest) (*model.OptimizeResponse, error)
	Commodities(ctx context.Context, filter string) ([]string, error)
	Locations(ctx context.Context, filter string) ([]string, error)
	BuyStocks(ctx context.Context, req model.StockRequest) (model.StockTable, error)
	SellStocks(ctx context.Context, req model.StockRequest) (model.StockTable, error)
}

// Status is the submission lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusSuccess    Status = "success"
	StatusFailure    Status = "failure"
)

// Coordinator is safe for concurrent use.
type Coordinator struct {
	form   *form.Form
	svc    Service
	logger *zap.Logger

	mu           sync.Mutex
	status       Status
	notification string
	result       *model.OptimizeResponse
	report       *report.Report
	submitGen    uint64
	vocabGen     uint64
}

// New returns a coordinator with a fresh default form.
func New(svc Service, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		form:   form.New(),
		svc:    svc,
		logger: logger,
		status: StatusIdle,
	}
}

// Form exposes the form for direct edits.
func (c *Coordinator) Form() *form.Form {
	return c.form
}

// View is a consistent snapshot of the whole session.
type View struct {
	Form         form.State      `json:"form"`
	Vocabulary   form.Vocabulary `json:"vocabulary"`
	Status       Status          `json:"status"`
	Notification string          `json:"notification,omitempty"`
	Report       *report.Report  `json:"report,omitempty"`
}

// State returns the current session view.
func (c *Coordinator) State() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Form:         c.form.Snapshot(),
		Vocabulary:   c.form.Vocabulary(),
		Status:       c.status,
		Notification: c.notification,
		Report:       c.report,
	}
}

// Status returns the submission lifecycle state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Result returns the latest successful optimizer response, or nil.
func (c *Coordinator) Result() *model.OptimizeResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Report returns the latest rendered report, or nil.
func (c *Coordinator) Report() *report.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}

// Notification returns the pending error text, if any.
func (c *Coordinator) Notification() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notification
}

// DismissNotification clears the pending error text.
func (c *Coordinator) DismissNotification() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notification = ""
}

func (c *Coordinator) notify(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notification = msg
}

// RefreshVocabulary fetches both vocabularies for the current filter. A
// response that arrives after a newer refresh has started is discarded.
func (c *Coordinator) RefreshVocabulary(ctx context.Context) error {
	c.mu.Lock()
	c.vocabGen++
	gen := c.vocabGen
	c.mu.Unlock()

	filter := c.form.Filter()
	var commodities, locations []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		commodities, err = c.svc.Commodities(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		locations, err = c.svc.Locations(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn("failed to refresh vocabulary",
			zap.String("op", "session.RefreshVocabulary"),
			zap.String("filter", filter),
			zap.Error(err),
		)
		return fmt.Errorf("refreshing vocabulary: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.vocabGen {
		c.logger.Debug("discarding stale vocabulary",
			zap.String("op", "session.RefreshVocabulary"),
			zap.String("filter", filter),
		)
		return nil
	}
	c.form.SetVocabulary(commodities, locations)
	c.logger.Debug("vocabulary refreshed",
		zap.String("op", "session.RefreshVocabulary"),
		zap.String("filter", filter),
		zap.Int("commodities", len(commodities)),
		zap.Int("locations", len(locations)),
	)
	return nil
}

// SetFilter updates the filter and refreshes the vocabularies when it changed.
func (c *Coordinator) SetFilter(ctx context.Context, filter string) error {
	if !c.form.SetFilter(filter) {
		return nil
	}
	return c.RefreshVocabulary(ctx)
}

// Submit validates the form and, if it passes, clears the notification and
// sends one optimize request. A validation failure returns a
// *form.ValidationError and changes nothing.
// A service failure becomes the notification and clears the result. On
// success the report is returned with stock levels merged in; stock lookup
// failures leave the levels unknown.
func (c *Coordinator) Submit(ctx context.Context) (*report.Report, error) {
	state := c.form.Snapshot()
	if err := form.Validate(state, c.form.Vocabulary()); err != nil {
		c.logger.Debug("submission rejected by validation",
			zap.String("op", "session.Submit"),
			zap.Error(err),
		)
		return nil, err
	}

	c.mu.Lock()
	if c.status == StatusSubmitting {
		c.mu.Unlock()
		return nil, apperrors.ErrSubmissionInFlight
	}
	c.status = StatusSubmitting
	c.notification = ""
	c.submitGen++
	gen := c.submitGen
	c.mu.Unlock()

	resp, err := c.svc.Optimize(ctx, state.Request())

	c.mu.Lock()
	if err != nil {
		c.status = StatusFailure
		c.notification = err.Error()
		c.result = nil
		c.report = nil
		c.mu.Unlock()
		c.logger.Error("optimization failed",
			zap.String("op", "session.Submit"),
			zap.Error(err),
		)
		return nil, err
	}
	c.status = StatusSuccess
	c.result = resp
	c.report = report.Build(resp.Plan, resp.Routes, nil, nil)
	c.mu.Unlock()

	c.logger.Info("plan received",
		zap.String("op", "session.Submit"),
		zap.Int("buyTransactions", len(resp.Plan.BuyTransactions)),
		zap.Int("sellTransactions", len(resp.Plan.SellTransactions)),
		zap.Int("routeSteps", len(resp.Routes)),
		zap.String("profit", report.Profit(resp.Plan).String()),
	)

	return c.attachStock(ctx, gen, resp), nil
}

// attachStock looks up buy and sell stock for the plan and rebuilds the
// report. The stored report is only replaced while resp is still the
// latest result.
func (c *Coordinator) attachStock(ctx context.Context, gen uint64, resp *model.OptimizeResponse) *report.Report {
	buyReq, sellReq := report.StockRequests(resp.Plan)

	var buy, sell model.StockTable
	g, gctx := errgroup.WithContext(ctx)
	if len(buyReq) > 0 {
		g.Go(func() error {
			buy = c.lookupStock(gctx, "buy", c.svc.BuyStocks, buyReq)
			return nil
		})
	}
	if len(sellReq) > 0 {
		g.Go(func() error {
			sell = c.lookupStock(gctx, "sell", c.svc.SellStocks, sellReq)
			return nil
		})
	}
	_ = g.Wait()

	rep := report.Build(resp.Plan, resp.Routes, buy, sell)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.submitGen || c.result != resp {
		c.logger.Debug("discarding stock levels for superseded plan",
			zap.String("op", "session.attachStock"),
		)
		return rep
	}
	c.report = rep
	return rep
}

func (c *Coordinator) lookupStock(ctx context.Context, side string, fetch func(context.Context, model.StockRequest) (model.StockTable, error), req model.StockRequest) model.StockTable {
	table, err := fetch(ctx, req)
	if err != nil {
		c.logger.Warn("stock lookup failed, levels unknown",
			zap.String("op", "session.lookupStock"),
			zap.String("side", side),
			zap.Error(err),
		)
		return nil
	}
	return table
}

// Blacklist restricts every commodity and location pair of the latest plan
// to zero and returns how many restrictions were added. It is refused while
// a submission is in flight.
func (c *Coordinator) Blacklist() (int, error) {
	c.mu.Lock()
	result, status := c.result, c.status
	c.mu.Unlock()
	if status == StatusSubmitting {
		return 0, apperrors.ErrSubmissionInFlight
	}
	if result == nil {
		return 0, apperrors.ErrNoPlan
	}
	return c.form.Blacklist(&result.Plan), nil
}

// ExportSettings encodes the current form.
func (c *Coordinator) ExportSettings(format settings.Format) ([]byte, error) {
	return settings.Export(c.form.Snapshot(), format)
}

// LoadSettings opens a settings document and applies it to the form. Any
// open or parse failure becomes the notification and leaves the form as it
// was. A filter change triggers a vocabulary refresh.
func (c *Coordinator) LoadSettings(ctx context.Context, open func() (io.ReadCloser, error), format settings.Format) error {
	rc, err := open()
	if err != nil {
		c.notify(err.Error())
		return err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			c.logger.Warn("failed to close settings source",
				zap.String("op", "session.LoadSettings"),
				zap.Error(closeErr),
			)
		}
	}()

	filterChanged, err := settings.Import(rc, format, c.form)
	if err != nil {
		c.notify(err.Error())
		c.logger.Warn("failed to import settings",
			zap.String("op", "session.LoadSettings"),
			zap.Error(err),
		)
		return err
	}

	if filterChanged {
		// Failures are logged by RefreshVocabulary; the import itself succeeded.
		_ = c.RefreshVocabulary(ctx)
	}
	return nil
}
