// Package store persists bar history and the journal of simulation runs.
package store

import (
	"context"
	"errors"
	"time"

	"tradesim/internal/domain"
)

// ErrNotFound is returned when a journal lookup matches nothing.
var ErrNotFound = errors.New("store: not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars for market.
	WriteBars(ctx context.Context, market string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// RunJournal records finished simulation runs and the ledger they produced.
type RunJournal interface {
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	SaveOrders(ctx context.Context, runID string, orders []OrderRecord) error
	ListOrders(ctx context.Context, runID string) ([]OrderRecord, error)

	SaveTrades(ctx context.Context, runID string, trades []TradeRecord) error
	ListTrades(ctx context.Context, runID string) ([]TradeRecord, error)

	SavePositions(ctx context.Context, runID string, positions []PositionRecord) error
	ListPositions(ctx context.Context, runID string) ([]PositionRecord, error)
}
