// Package tradesim is a Go client for the tradesim-server journal API.
package tradesim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when the server has nothing recorded for a run.
var ErrNotFound = errors.New("tradesim: not found")

// Run summarises one simulation run.
type Run struct {
	ID            string    `json:"id"`
	Strategy      string    `json:"strategy"`
	Params        string    `json:"params,omitempty"`
	Market        string    `json:"market"`
	Symbols       []string  `json:"symbols"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	Steps         int       `json:"steps"`
	BaseCurrency  string    `json:"base_currency"`
	InitialEquity string    `json:"initial_equity"`
	FinalEquity   string    `json:"final_equity"`
	TotalReturn   float64   `json:"total_return"`
	MaxDrawdown   float64   `json:"max_drawdown"`
	TotalTrades   int       `json:"total_trades"`
	WinRate       float64   `json:"win_rate"`
	ProfitFactor  float64   `json:"profit_factor"`
}

// Order is the final state of an order placed during a run.
type Order struct {
	OrderID  int64     `json:"order_id"`
	ParentID int64     `json:"parent_id,omitempty"`
	Type     string    `json:"type"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side,omitempty"`
	Qty      string    `json:"qty,omitempty"`
	Limit    string    `json:"limit,omitempty"`
	Stop     string    `json:"stop,omitempty"`
	TIF      string    `json:"tif,omitempty"`
	Tag      string    `json:"tag,omitempty"`
	Status   string    `json:"status"`
	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at"`
}

// Trade is one execution of a run.
type Trade struct {
	OrderID  int64     `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Currency string    `json:"currency"`
	Time     time.Time `json:"time"`
	Qty      string    `json:"qty"`
	Price    string    `json:"price"`
	Fee      string    `json:"fee"`
	PNL      string    `json:"pnl"`
}

// Position is a position left open at the end of a run.
type Position struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
	Size     string `json:"size"`
	AvgPrice string `json:"avg_price"`
	MktPrice string `json:"mkt_price"`
}

// Client provides a Go SDK for interacting with the tradesim-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new tradesim API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ListRuns returns the most recent runs, newest first. A zero limit returns
// every run.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := c.get(ctx, "/api/runs?limit="+strconv.Itoa(limit), &runs)
	return runs, err
}

// GetRun returns the run with the given id.
func (c *Client) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	err := c.get(ctx, "/api/runs/"+url.PathEscape(id), &run)
	return run, err
}

// GetOrders returns the orders of a run.
func (c *Client) GetOrders(ctx context.Context, id string) ([]Order, error) {
	var orders []Order
	err := c.get(ctx, "/api/runs/"+url.PathEscape(id)+"/orders", &orders)
	return orders, err
}

// GetTrades returns the trades of a run.
func (c *Client) GetTrades(ctx context.Context, id string) ([]Trade, error) {
	var trades []Trade
	err := c.get(ctx, "/api/runs/"+url.PathEscape(id)+"/trades", &trades)
	return trades, err
}

// GetPositions returns the positions a run ended with.
func (c *Client) GetPositions(ctx context.Context, id string) ([]Position, error) {
	var positions []Position
	err := c.get(ctx, "/api/runs/"+url.PathEscape(id)+"/positions", &positions)
	return positions, err
}

// GetFills returns the fills exported for a run.
func (c *Client) GetFills(ctx context.Context, id string) ([]Trade, error) {
	var fills []Trade
	err := c.get(ctx, "/api/runs/"+url.PathEscape(id)+"/fills", &fills)
	return fills, err
}

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e apiError
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("GET %s: %s: %w", path, e.Message, ErrNotFound)
		}
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, e.Message)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", path, err)
	}
	return nil
}
