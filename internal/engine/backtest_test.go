package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"tradesim/internal/broker"
	"tradesim/internal/domain"
	"tradesim/internal/jobs"
	"tradesim/internal/store"
	"tradesim/internal/strategy"
	"tradesim/internal/strategy/builtins"
)

type memFills struct {
	mu   sync.Mutex
	runs map[string]int
}

func (m *memFills) WriteFills(runID string, trades []store.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs == nil {
		m.runs = make(map[string]int)
	}
	m.runs[runID] = len(trades)
	return nil
}

func TestBacktesterRunsIsolated(t *testing.T) {
	journal, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer journal.Close()
	fills := &memFills{}

	f := dailyFeed(10, 9, 8, 12, 12, 5, 5)
	bt := NewBacktester(builtins.Registry(), f,
		WithPolicy(DefaultPolicy{OrderPct: decimal.RequireFromString("0.1")}),
		WithBrokerOptions(broker.WithDeposit(domain.NewAmount(domain.USD, 100_000))),
		WithJobOptions(jobs.WithLimit(2)),
		WithJournal(journal),
		WithFillExport(fills),
	)

	specs := []RunSpec{
		{Strategy: builtins.SMACrossName, Params: strategy.Params{"short": 2, "long": 3}, Market: domain.MarketUS, Assets: []domain.Asset{abc}},
		{Strategy: builtins.BuyAndHoldName, Market: domain.MarketUS, Assets: []domain.Asset{abc}},
		{Strategy: builtins.SMACrossName, Params: strategy.Params{"short": 2, "long": 3}, Market: domain.MarketUS, Assets: []domain.Asset{abc}},
	}
	results, err := bt.Run(context.Background(), specs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	ids := make(map[string]bool)
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("run %d failed: %v", i, r.Err)
		}
		if r.RunID == "" || ids[r.RunID] {
			t.Errorf("run %d id %q is empty or repeated", i, r.RunID)
		}
		ids[r.RunID] = true
		if r.Result.Steps != 7 {
			t.Errorf("run %d steps = %d, want 7", i, r.Result.Steps)
		}
	}
	// Identical specs give identical outcomes: nothing is shared between runs.
	if !results[0].Result.Final.Equity.Equal(results[2].Result.Final.Equity) {
		t.Errorf("same spec, different equity: %s vs %s", results[0].Result.Final.Equity, results[2].Result.Final.Equity)
	}
	if results[0].Metrics.TotalTrades != 2 || results[1].Metrics.TotalTrades != 1 {
		t.Errorf("trades = %d/%d, want 2/1", results[0].Metrics.TotalTrades, results[1].Metrics.TotalTrades)
	}

	ctx := context.Background()
	runs, err := journal.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("journal has %d runs, want 3", len(runs))
	}
	rec, err := journal.GetRun(ctx, results[0].RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Status != store.RunStatusCompleted || rec.Steps != 7 || rec.TotalTrades != 2 {
		t.Errorf("journaled run = %+v", rec)
	}
	if rec.Params != `{"long":3,"short":2}` || len(rec.Symbols) != 1 || rec.InitialEquity != "100000" {
		t.Errorf("journaled params/symbols/equity = %s/%v/%s", rec.Params, rec.Symbols, rec.InitialEquity)
	}
	trades, err := journal.ListTrades(ctx, results[0].RunID)
	if err != nil || len(trades) != 2 {
		t.Errorf("journaled trades = %d (%v), want 2", len(trades), err)
	}
	orders, err := journal.ListOrders(ctx, results[0].RunID)
	if err != nil || len(orders) != 2 {
		t.Errorf("journaled orders = %d (%v), want 2", len(orders), err)
	}
	positions, err := journal.ListPositions(ctx, results[1].RunID)
	if err != nil || len(positions) != 1 {
		t.Errorf("buy-and-hold positions = %d (%v), want 1", len(positions), err)
	}
	if fills.runs[results[1].RunID] != 1 {
		t.Errorf("exported fills = %v, want 1 for the buy-and-hold run", fills.runs)
	}
}

func TestBacktesterFailedRun(t *testing.T) {
	journal, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer journal.Close()

	bt := NewBacktester(builtins.Registry(), dailyFeed(1, 2, 3),
		WithJournal(journal), WithJobOptions(jobs.WithSequential()))
	specs := []RunSpec{
		{Strategy: "nope"},
		{Strategy: builtins.BuyAndHoldName},
	}
	results, err := bt.Run(context.Background(), specs)
	if !errors.Is(err, strategy.ErrUnknownStrategy) {
		t.Fatalf("Run error = %v, want ErrUnknownStrategy", err)
	}
	if results[0].Err == nil || results[1].Err != nil {
		t.Errorf("errors = %v/%v, want only the first run to fail", results[0].Err, results[1].Err)
	}
	rec, err := journal.GetRun(context.Background(), results[0].RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.Status != store.RunStatusFailed || rec.Error == "" {
		t.Errorf("failed run journaled as %s (%q)", rec.Status, rec.Error)
	}
}

func TestBacktesterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bt := NewBacktester(builtins.Registry(), dailyFeed(1, 2, 3))
	results, err := bt.Run(ctx, []RunSpec{{Strategy: builtins.BuyAndHoldName}, {Strategy: builtins.BuyAndHoldName}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	for i, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("run %d error = %v, want context.Canceled", i, r.Err)
		}
	}
}

func TestComputeMetrics(t *testing.T) {
	usd := func(v int64) domain.Amount { return domain.NewAmount(domain.USD, v) }
	res := &RunResult{}
	res.Initial.Equity = usd(1000)
	res.Final.Equity = usd(1100)
	for _, v := range []int64{1000, 1200, 900, 1100} {
		res.Equity = append(res.Equity, EquityPoint{Equity: usd(v)})
	}
	res.Final.Trades = []domain.Trade{
		{Qty: dec(10)},
		{Qty: dec(-5), PNL: dec(300), Fee: dec(10)},
		{Qty: dec(-5), PNL: dec(-100)},
		{Qty: dec(5), PNL: dec(50)},
	}

	m := ComputeMetrics(res)
	if m.TotalTrades != 4 {
		t.Errorf("TotalTrades = %d, want 4", m.TotalTrades)
	}
	if m.TotalReturn != 0.1 {
		t.Errorf("TotalReturn = %v, want 0.1", m.TotalReturn)
	}
	if m.MaxDrawdown != 0.25 {
		t.Errorf("MaxDrawdown = %v, want 0.25", m.MaxDrawdown)
	}
	if want := 2.0 / 3.0; m.WinRate != want {
		t.Errorf("WinRate = %v, want %v", m.WinRate, want)
	}
	if m.ProfitFactor != 3.4 {
		t.Errorf("ProfitFactor = %v, want 3.4", m.ProfitFactor)
	}
	if (ComputeMetrics(nil) != Metrics{}) {
		t.Error("ComputeMetrics(nil) should be zero")
	}
}
