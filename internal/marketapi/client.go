// Package marketapi is the client for the marketplace REST API. Responses are
// normalized into the strict models at this boundary and nowhere else.
package marketapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aaravmahajanofficial/agri-marketplace/internal/api/middleware"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/config"
	appErrors "github.com/aaravmahajanofficial/agri-marketplace/internal/errors"
	"github.com/aaravmahajanofficial/agri-marketplace/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxErrorBody = 4 << 10

type ProductQuery struct {
	Category string
	Search   string
	FarmerID string
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	normalize  normalizer
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func NewClient(cfg config.MarketAPI, validate *validator.Validate, opts ...Option) *Client {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		normalize: normalizer{validate: validate},
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "market-api",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// 4xx answers mean the upstream is healthy
		IsSuccessful: func(err error) bool {
			var se *statusError
			return err == nil || (errors.As(err, &se) && se.code < http.StatusInternalServerError)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Ping reports the breaker state without calling upstream, so health probes
// never count against the failure budget.
func (c *Client) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if c.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("market api circuit is open: %w", gobreaker.ErrOpenState)
	}

	return nil
}

func (c *Client) ListProducts(ctx context.Context, q ProductQuery) ([]models.Product, error) {
	params := url.Values{}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.FarmerID != "" {
		params.Set("farmer", q.FarmerID)
	}

	path := "/products"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var raws []rawProduct
	if err := json.Unmarshal(unwrap(body, "products"), &raws); err != nil {
		return nil, appErrors.TransportError("Unexpected response from the marketplace").WithError(err)
	}

	logger := middleware.LoggerFromContext(ctx)
	products := make([]models.Product, 0, len(raws))

	for _, raw := range raws {
		p, err := c.normalize.product(raw)
		if err != nil {
			logger.Warn("Skipping malformed product listing", slog.String("error", err.Error()))
			continue
		}

		products = append(products, p)
	}

	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	body, err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var raw rawProduct
	if err := json.Unmarshal(unwrap(body, "product"), &raw); err != nil {
		return nil, appErrors.TransportError("Unexpected response from the marketplace").WithError(err)
	}

	p, err := c.normalize.product(raw)
	if err != nil {
		return nil, appErrors.TransportError("Marketplace returned an invalid product").WithError(err)
	}

	return &p, nil
}

func (c *Client) ListOrders(ctx context.Context) ([]models.Order, error) {
	body, err := c.do(ctx, http.MethodGet, "/orders", nil)
	if err != nil {
		return nil, err
	}

	var raws []rawOrder
	if err := json.Unmarshal(unwrap(body, "orders"), &raws); err != nil {
		return nil, appErrors.TransportError("Unexpected response from the marketplace").WithError(err)
	}

	logger := middleware.LoggerFromContext(ctx)
	orders := make([]models.Order, 0, len(raws))

	for _, raw := range raws {
		o, err := c.normalize.order(raw)
		if err != nil {
			logger.Warn("Skipping malformed order", slog.String("error", err.Error()))
			continue
		}

		orders = append(orders, o)
	}

	return orders, nil
}

func (c *Client) CreateOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.Order, error) {
	return c.orderCall(ctx, http.MethodPost, "/orders", req)
}

func (c *Client) CancelOrder(ctx context.Context, id string) (*models.Order, error) {
	return c.orderCall(ctx, http.MethodPost, "/orders/"+url.PathEscape(id)+"/cancel", nil)
}

func (c *Client) UpdateOrder(ctx context.Context, id string, req models.UpdateOrderRequest) (*models.Order, error) {
	return c.orderCall(ctx, http.MethodPut, "/orders/"+url.PathEscape(id), req)
}

func (c *Client) orderCall(ctx context.Context, method, path string, payload any) (*models.Order, error) {
	body, err := c.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	var raw rawOrder
	if err := json.Unmarshal(unwrap(body, "order"), &raw); err != nil {
		return nil, appErrors.TransportError("Unexpected response from the marketplace").WithError(err)
	}

	order, err := c.normalize.order(raw)
	if err != nil {
		invalid := &InvalidOrderError{OrderID: firstNonEmpty(raw.ID, raw.MongoID), Err: err}
		return nil, appErrors.TransportError("Marketplace returned an invalid order").WithError(invalid)
	}

	return &order, nil
}

// InvalidOrderError is returned when the marketplace answered an order call
// successfully but its document failed normalization. The call took effect
// upstream; OrderID is set whenever the document carried one.
type InvalidOrderError struct {
	OrderID string
	Err     error
}

func (e *InvalidOrderError) Error() string {
	if e.OrderID == "" {
		return "invalid order: " + e.Err.Error()
	}

	return "invalid order " + e.OrderID + ": " + e.Err.Error()
}

func (e *InvalidOrderError) Unwrap() error {
	return e.Err
}

type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("marketplace responded %d: %s", e.code, e.message)
}

// do runs a single request through the breaker. Nothing is retried; callers
// surface the failure and the user decides.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	logger := middleware.LoggerFromContext(ctx).With(slog.String("upstream", method+" "+path))
	start := time.Now()

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	if err != nil {
		logger.Warn("Marketplace call failed", slog.String("error", err.Error()), slog.Duration("duration", time.Since(start)))
		return nil, mapError(err)
	}

	logger.Debug("Marketplace call completed", slog.Duration("duration", time.Since(start)))

	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := middleware.TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{code: resp.StatusCode, message: upstreamMessage(msg)}
	}

	return io.ReadAll(resp.Body)
}

// upstreamMessage extracts {"message": "..."} when present.
func upstreamMessage(body []byte) string {
	var m struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}

	if json.Unmarshal(body, &m) == nil {
		if msg := firstNonEmpty(m.Message, m.Error); msg != "" {
			return msg
		}
	}

	return strings.TrimSpace(string(body))
}

func mapError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return appErrors.TransportError("Marketplace is unavailable, please try again later").WithError(err)
	}

	var se *statusError
	if !errors.As(err, &se) {
		return appErrors.TransportError("Could not reach the marketplace").WithError(err)
	}

	switch se.code {
	case http.StatusNotFound:
		return appErrors.NotFoundError("Resource not found in the marketplace").WithError(err)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return appErrors.BadRequestError(firstNonEmpty(se.message, "Marketplace rejected the request")).WithError(err)
	case http.StatusConflict:
		return appErrors.StateConflictError(firstNonEmpty(se.message, "Marketplace reported a conflict")).WithError(err)
	case http.StatusUnauthorized:
		return appErrors.UnauthorizedError("Marketplace rejected the session").WithError(err)
	case http.StatusForbidden:
		return appErrors.ForbiddenError("Not allowed by the marketplace").WithError(err)
	default:
		return appErrors.TransportError("Marketplace request failed").WithError(err)
	}
}
