// Package client is a typed HTTP client for the trade-route optimizer service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/iwvelando/trade-route/internal/model"
	"github.com/iwvelando/trade-route/pkg/constants"
	"go.uber.org/zap"
)

// Service endpoints.
const (
	optimizePath    = "/optimize"
	commoditiesPath = "/commodities"
	locationsPath   = "/locations"
	buyStocksPath   = "/buy/stocks"
	sellStocksPath  = "/sell/stocks"
)

// maxErrorBody caps how much of a failed response is read into an APIError.
const maxErrorBody = 64 * 1024

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

// Error returns the service's own message so it can be shown verbatim.
func (e *APIError) Error() string {
	return e.Message
}

// Client talks to one optimizer service instance.
type Client struct {
	baseURL  string
	http     *http.Client
	logger   *zap.Logger
	retries  uint64
	interval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetry sets the retry budget and pause for idempotent lookups.
// /optimize is never retried.
func WithRetry(retries uint64, interval time.Duration) Option {
	return func(c *Client) {
		c.retries = retries
		c.interval = interval
	}
}

// New returns a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: constants.DefaultServiceTimeout},
		logger:   zap.NewNop(),
		retries:  constants.DefaultRetries,
		interval: constants.DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Optimize submits a plan request. The call is made exactly once.
func (c *Client) Optimize(ctx context.Context, req model.PlanRequest) (*model.OptimizeResponse, error) {
	var out model.OptimizeResponse
	if err := c.do(ctx, http.MethodPost, optimizePath, nil, req, &out); err != nil {
		c.logger.Warn("optimize request failed",
			zap.String("op", "client.Optimize"),
			zap.Error(err),
		)
		return nil, err
	}
	return &out, nil
}

// Commodities lists commodity names matching the filter.
func (c *Client) Commodities(ctx context.Context, filter string) ([]string, error) {
	return c.vocabulary(ctx, commoditiesPath, filter)
}

// Locations lists location names matching the filter.
func (c *Client) Locations(ctx context.Context, filter string) ([]string, error) {
	return c.vocabulary(ctx, locationsPath, filter)
}

func (c *Client) vocabulary(ctx context.Context, path, filter string) ([]string, error) {
	query := url.Values{"filter": []string{filter}}
	var out []string
	err := c.retry(ctx, "client.vocabulary", func() error {
		out = nil
		return c.do(ctx, http.MethodGet, path, query, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// BuyStocks looks up the stock available to buy for each location's commodities.
func (c *Client) BuyStocks(ctx context.Context, req model.StockRequest) (model.StockTable, error) {
	return c.stocks(ctx, buyStocksPath, req)
}

// SellStocks looks up the demand available to sell into for each location's commodities.
func (c *Client) SellStocks(ctx context.Context, req model.StockRequest) (model.StockTable, error) {
	return c.stocks(ctx, sellStocksPath, req)
}

func (c *Client) stocks(ctx context.Context, path string, req model.StockRequest) (model.StockTable, error) {
	var out model.StockTable
	err := c.retry(ctx, "client.stocks", func() error {
		out = nil
		return c.do(ctx, http.MethodPost, path, nil, req, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// retry runs op with a constant backoff. Client errors (4xx) are not retried.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	return backoff.Retry(
		func() error {
			attempt++
			err := fn()
			if err == nil {
				return nil
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}
			c.logger.Debug("retrying service call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		},
		backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(c.interval), c.retries),
			ctx,
		),
	)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) (err error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing %s response: %w", path, closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// newAPIError reads the response body as the error message. HTML error
// pages are reduced to their visible text.
func newAPIError(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(data))

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/html" && message != "" {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data)); err == nil {
			doc.Find("script, style").Remove()
			message = strings.Join(strings.Fields(doc.Text()), " ")
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}
