// Package ironbeam is a thin signed REST client for the Ironbeam v1 API.
package ironbeam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chidi150c/tranchebot/internal/exchange"
)

// DefaultBaseURL is the production REST root.
const DefaultBaseURL = "https://api.ironbeam.com/v1"

// DefaultTimeout bounds a single request.
const DefaultTimeout = 3 * time.Second

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ironbeam %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Config holds credentials and endpoint settings.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Account    string
	Instrument exchange.Instrument
	Timeout    time.Duration
}

// Client implements exchange.Orders and exchange.Positions. Prices are
// rounded to the instrument tick before they leave the process.
type Client struct {
	cfg Config
	hc  *http.Client
	now func() time.Time
	log zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		cfg: cfg,
		hc:  &http.Client{Timeout: cfg.Timeout},
		now: time.Now,
		log: log.With().Str("component", "ironbeam").Logger(),
	}
}

type submitPayload struct {
	Account       string             `json:"account"`
	Symbol        string             `json:"symbol"`
	Side          exchange.Side      `json:"side"`
	OrderType     exchange.OrderType `json:"orderType"`
	Quantity      int                `json:"quantity"`
	TimeInForce   string             `json:"timeInForce"`
	Price         *float64           `json:"price"`
	ReduceOnly    bool               `json:"reduceOnly"`
	ClientOrderID string             `json:"clientOrderId,omitempty"`
}

// Submit places an order and returns the broker order id.
func (c *Client) Submit(ctx context.Context, req exchange.SubmitRequest) (string, error) {
	tif := req.TimeInForce
	if tif == "" {
		tif = "GTC"
	}
	p := submitPayload{
		Account:       c.cfg.Account,
		Symbol:        req.Symbol,
		Side:          req.Side,
		OrderType:     req.Type,
		Quantity:      req.Qty,
		TimeInForce:   tif,
		ReduceOnly:    req.ReduceOnly,
		ClientOrderID: req.ClientOrderID,
	}
	if req.Type != exchange.Market {
		px := c.cfg.Instrument.RoundToTick(req.Price)
		p.Price = &px
	}

	var res struct {
		OrderID string `json:"orderId"`
	}
	if err := c.do(ctx, http.MethodPost, "/orders", p, &res); err != nil {
		return "", err
	}
	if res.OrderID == "" {
		return "", fmt.Errorf("ironbeam POST /orders: empty orderId")
	}
	return res.OrderID, nil
}

// Modify moves a resting order to price.
func (c *Client) Modify(ctx context.Context, orderID string, price float64) error {
	body := map[string]float64{"price": c.cfg.Instrument.RoundToTick(price)}
	return c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(orderID), body, nil)
}

// Cancel removes a resting order.
func (c *Client) Cancel(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodDelete, "/orders/"+url.PathEscape(orderID), nil, nil)
}

// OpenOrders lists open orders for symbol.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]exchange.OpenOrder, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("status", "open")
	var out []exchange.OpenOrder
	if err := c.do(ctx, http.MethodGet, "/orders?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Positions returns the account's position rows.
func (c *Client) Positions(ctx context.Context) ([]exchange.PositionRow, error) {
	var out []exchange.PositionRow
	if err := c.do(ctx, http.MethodGet, "/positions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ironbeam %s %s: encode: %w", method, path, err)
		}
		body = b
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	signHeaders(req.Header, c.cfg.APIKey, c.cfg.APISecret, method, path, string(body), c.now())

	start := time.Now()
	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("ironbeam %s %s: %w", method, path, err)
	}
	defer res.Body.Close()
	bs, _ := io.ReadAll(res.Body)
	c.log.Debug().Str("method", method).Str("path", path).Int("status", res.StatusCode).Dur("took", time.Since(start)).Msg("api call")

	if res.StatusCode/100 != 2 {
		return &APIError{Method: method, Path: path, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(bs))}
	}
	if out == nil || len(bytes.TrimSpace(bs)) == 0 {
		return nil
	}
	if err := json.Unmarshal(bs, out); err != nil {
		return fmt.Errorf("ironbeam %s %s: decode: %w", method, path, err)
	}
	return nil
}
