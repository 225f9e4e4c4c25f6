package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/broker"
	"tradesim/internal/domain"
	"tradesim/internal/feed"
	"tradesim/internal/strategy/builtins"
)

var (
	abc = domain.NewStock("ABC", domain.USD)
	xyz = domain.NewStock("XYZ", domain.USD)
	t0  = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func tick(asset domain.Asset, price int64) domain.PriceAction {
	return domain.NewTradePrice(asset, dec(price), dec(1_000_000))
}

// dailyFeed returns a feed with one ABC tick per day.
func dailyFeed(prices ...int64) *feed.HistoricFeed {
	f := feed.NewHistoricFeed()
	for i, p := range prices {
		f.Add(t0.AddDate(0, 0, i), tick(abc, p))
	}
	return f
}

// sliceFeed plays its events as given, without ordering them.
type sliceFeed []domain.Event

func (s sliceFeed) Play(ctx context.Context, out chan<- domain.Event) error {
	for _, ev := range s {
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

type failingStrategy struct{ after int }

func (s *failingStrategy) Name() string                 { return "failing" }
func (s *failingStrategy) Init(_ context.Context) error { return nil }
func (s *failingStrategy) Generate(_ context.Context, _ domain.Event) ([]domain.Signal, error) {
	if s.after == 0 {
		return nil, errors.New("model diverged")
	}
	s.after--
	return nil, nil
}

func TestEngineRunBuyAndHold(t *testing.T) {
	policy := DefaultPolicy{OrderPct: decimal.RequireFromString("0.5")}
	e := NewEngine(builtins.NewBuyAndHold(), policy, broker.NewSimBroker())

	res, err := e.Run(context.Background(), dailyFeed(100, 110, 120), domain.Timeframe{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Steps != 3 || len(res.Equity) != 3 {
		t.Fatalf("Steps = %d, equity points = %d, want 3/3", res.Steps, len(res.Equity))
	}
	pos, ok := res.Final.Position(abc)
	if !ok || !pos.Size.Equal(dec(5000)) {
		t.Fatalf("ABC position = %v (found %v), want 5000", pos.Size, ok)
	}
	if want := domain.NewAmount(domain.USD, 1_100_000); !res.Final.Equity.Equal(want) {
		t.Errorf("final equity = %s, want %s", res.Final.Equity, want)
	}
	if want := domain.NewAmount(domain.USD, 1_000_000); !res.Initial.Equity.Equal(want) {
		t.Errorf("initial equity = %s, want %s", res.Initial.Equity, want)
	}
	if !res.Equity[1].Equity.Equal(domain.NewAmount(domain.USD, 1_050_000)) {
		t.Errorf("equity after day 2 = %s, want 1050000", res.Equity[1].Equity)
	}
	if len(res.Final.Trades) != 1 {
		t.Errorf("trades = %d, want 1 (buy-and-hold never exits)", len(res.Final.Trades))
	}
	if len(res.Final.ClosedOrders) != 1 || res.Final.ClosedOrders[0].Order.Tag != builtins.BuyAndHoldName {
		t.Errorf("closed orders = %+v, want one order tagged %s", res.Final.ClosedOrders, builtins.BuyAndHoldName)
	}
}

func TestEngineRunSMACrossRoundTrip(t *testing.T) {
	s, err := builtins.NewSMACross(2, 3)
	if err != nil {
		t.Fatalf("NewSMACross: %v", err)
	}
	policy := DefaultPolicy{OrderPct: decimal.RequireFromString("0.1")}
	e := NewEngine(s, policy, broker.NewSimBroker())

	// Buy at 12 on day 3, sell at 5 on day 5.
	res, err := e.Run(context.Background(), dailyFeed(10, 9, 8, 12, 12, 5, 5), domain.Timeframe{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Final.Trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(res.Final.Trades))
	}
	buy, sell := res.Final.Trades[0], res.Final.Trades[1]
	if !buy.Qty.Equal(dec(8333)) || !buy.Price.Equal(dec(12)) {
		t.Errorf("buy = %s @ %s, want 8333 @ 12", buy.Qty, buy.Price)
	}
	if !sell.Qty.Equal(dec(-8333)) || !sell.PNL.Equal(dec(-8333*7)) {
		t.Errorf("sell = %s pnl %s, want -8333 pnl %d", sell.Qty, sell.PNL, -8333*7)
	}
	if p, ok := res.Final.Position(abc); ok && !p.Closed() {
		t.Errorf("position still open: %s", p.Size)
	}

	m := ComputeMetrics(res)
	if m.TotalTrades != 2 || m.WinRate != 0 || m.ProfitFactor != 0 {
		t.Errorf("metrics = %+v, want 2 trades, no wins", m)
	}
	if m.TotalReturn >= 0 || m.MaxDrawdown <= 0 {
		t.Errorf("return/drawdown = %v/%v, want a loss", m.TotalReturn, m.MaxDrawdown)
	}
}

func TestEngineRunTimeframe(t *testing.T) {
	tf := domain.Timeframe{Start: t0.AddDate(0, 0, 1), End: t0.AddDate(0, 0, 2)}

	for name, f := range map[string]feed.Feed{
		"range feed": dailyFeed(100, 110, 120),
		"plain feed": sliceFeed{
			domain.NewEvent(t0, tick(abc, 100)),
			domain.NewEvent(t0.AddDate(0, 0, 1), tick(abc, 110)),
			domain.NewEvent(t0.AddDate(0, 0, 2), tick(abc, 120)),
		},
	} {
		e := NewEngine(builtins.NewBuyAndHold(), DefaultPolicy{OrderPct: dec(1)}, broker.NewSimBroker())
		res, err := e.Run(context.Background(), f, tf)
		if err != nil {
			t.Fatalf("%s: Run: %v", name, err)
		}
		if res.Steps != 1 {
			t.Errorf("%s: Steps = %d, want 1", name, res.Steps)
		}
		if len(res.Final.Trades) != 1 || !res.Final.Trades[0].Price.Equal(dec(110)) {
			t.Errorf("%s: trades = %+v, want one fill at 110", name, res.Final.Trades)
		}
	}
}

func TestEngineRejectsUnorderedEvents(t *testing.T) {
	f := sliceFeed{
		domain.NewEvent(t0.Add(time.Hour), tick(abc, 100)),
		domain.NewEvent(t0, tick(abc, 101)),
	}
	e := NewEngine(builtins.NewBuyAndHold(), DefaultPolicy{OrderPct: dec(1)}, broker.NewSimBroker())
	res, err := e.Run(context.Background(), f, domain.Timeframe{})
	if !errors.Is(err, domain.ErrInvariant) {
		t.Fatalf("Run error = %v, want ErrInvariant", err)
	}
	if res.Steps != 1 {
		t.Errorf("Steps = %d, want 1 before the failure", res.Steps)
	}

	// Equal timestamps are not increasing either.
	f = sliceFeed{domain.NewEvent(t0, tick(abc, 100)), domain.NewEvent(t0, tick(xyz, 5))}
	e = NewEngine(builtins.NewBuyAndHold(), DefaultPolicy{OrderPct: dec(1)}, broker.NewSimBroker())
	if _, err := e.Run(context.Background(), f, domain.Timeframe{}); !errors.Is(err, domain.ErrInvariant) {
		t.Errorf("Run with repeated time error = %v, want ErrInvariant", err)
	}
}

func TestEngineStrategyErrorAbortsRun(t *testing.T) {
	e := NewEngine(&failingStrategy{after: 2}, DefaultPolicy{}, broker.NewSimBroker())
	res, err := e.Run(context.Background(), dailyFeed(1, 2, 3, 4, 5), domain.Timeframe{})
	if err == nil {
		t.Fatal("Run should fail when the strategy fails")
	}
	if res.Steps != 2 {
		t.Errorf("Steps = %d, want 2", res.Steps)
	}
}

func TestEngineRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewEngine(builtins.NewBuyAndHold(), DefaultPolicy{OrderPct: dec(1)}, broker.NewSimBroker())
	if _, err := e.Run(ctx, dailyFeed(1, 2, 3), domain.Timeframe{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}
