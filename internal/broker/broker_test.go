package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/account"
	"tradesim/internal/domain"
	"tradesim/internal/sim"
)

var t0 = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// scenario replays one event per step, optionally placing a market order.
type scenario struct {
	t      *testing.T
	broker *SimBroker
	asset  domain.Asset
	step   int
}

func (s *scenario) update(price, size int64) account.Account {
	s.t.Helper()
	var orders []domain.Order
	if size != 0 {
		orders = append(orders, domain.NewMarketOrder(s.asset, dec(size)))
	}
	ev := domain.NewEvent(t0.Add(time.Duration(s.step)*time.Minute),
		domain.NewTradePrice(s.asset, dec(price), decimal.Zero))
	s.step++
	acc, err := s.broker.Place(context.Background(), orders, ev)
	if err != nil {
		s.t.Fatalf("Place: %v", err)
	}
	return acc
}

func wantAmount(t *testing.T, name string, got domain.Amount, currency domain.Currency, want int64) {
	t.Helper()
	if !got.Equal(domain.NewAmount(currency, want)) {
		t.Errorf("%s = %s, want %s %d", name, got, currency, want)
	}
}

func TestSimBrokerName(t *testing.T) {
	b := NewSimBroker()
	if got := b.Name(); got != "sim" {
		t.Errorf("SimBroker.Name() = %q, want %q", got, "sim")
	}
}

func TestMarginAccountLong(t *testing.T) {
	abc := domain.NewStock("ABC", domain.JPY)
	s := &scenario{t: t, asset: abc, broker: NewSimBroker(
		WithDeposit(domain.NewAmount(domain.JPY, 1_000_000)),
		WithAccountModel(account.NewMarginAccount()),
	)}

	acc := s.update(1000, 0)
	wantAmount(t, "buying power", acc.BuyingPower, domain.JPY, 2_000_000)

	acc = s.update(1000, 500)
	wantAmount(t, "buying power", acc.BuyingPower, domain.JPY, 1_700_000)
	wantAmount(t, "equity", acc.Equity, domain.JPY, 1_000_000)

	acc = s.update(500, 0)
	wantAmount(t, "buying power", acc.BuyingPower, domain.JPY, 1_350_000)

	acc = s.update(500, 2000)
	wantAmount(t, "buying power", acc.BuyingPower, domain.JPY, 750_000)

	acc = s.update(400, 0)
	wantAmount(t, "buying power", acc.BuyingPower, domain.JPY, 400_000)

	acc = s.update(400, -2500)
	wantAmount(t, "buying power", acc.BuyingPower, domain.JPY, 1_000_000)
	if len(acc.Positions) != 0 {
		t.Errorf("positions = %v, want none", acc.Positions)
	}
}

func TestMarginAccountShort(t *testing.T) {
	abc := domain.NewStock("ABC", domain.USD)
	s := &scenario{t: t, asset: abc, broker: NewSimBroker(
		WithDeposit(domain.NewAmount(domain.USD, 20_000)),
		WithAccountModel(account.NewMarginAccount()),
	)}

	acc := s.update(200, -50)
	wantAmount(t, "buying power", acc.BuyingPower, domain.USD, 34_000)
	wantAmount(t, "equity", acc.Equity, domain.USD, 20_000)

	acc = s.update(300, 0)
	wantAmount(t, "buying power", acc.BuyingPower, domain.USD, 21_000)

	acc = s.update(300, -50)
	wantAmount(t, "buying power", acc.BuyingPower, domain.USD, 12_000)

	acc = s.update(300, 100)
	wantAmount(t, "buying power", acc.BuyingPower, domain.USD, 30_000)
	if want := domain.NewWallet(domain.NewAmount(domain.USD, 15_000)); !acc.Cash.Equal(want) {
		t.Errorf("cash = %s, want %s", acc.Cash, want)
	}
}

func TestPlaceRejectsBeyondBuyingPower(t *testing.T) {
	abc := domain.NewStock("ABC", domain.USD)
	b := NewSimBroker(WithDeposit(domain.NewAmount(domain.USD, 10_000)))

	first := domain.NewMarketOrder(abc, dec(60))
	second := domain.NewMarketOrder(abc, dec(60))
	ev := domain.NewEvent(t0, domain.NewTradePrice(abc, dec(100), decimal.Zero))

	acc, err := b.Place(context.Background(), []domain.Order{first, second}, ev)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if len(acc.Trades) != 1 || acc.Trades[0].OrderID != first.ID {
		t.Fatalf("trades = %+v, want one fill for the first order", acc.Trades)
	}
	if len(acc.ClosedOrders) != 2 {
		t.Fatalf("closed orders = %d, want 2", len(acc.ClosedOrders))
	}

	var rejected domain.OrderState
	for _, s := range acc.ClosedOrders {
		if s.ID() == second.ID {
			rejected = s
		}
	}
	if rejected.Status != domain.OrderStatusRejected {
		t.Fatalf("second order status = %s, want rejected", rejected.Status)
	}
	if !rejected.OpenedAt.Equal(t0) || !rejected.ClosedAt.Equal(t0) {
		t.Errorf("rejected openedAt=%v closedAt=%v, want both %v", rejected.OpenedAt, rejected.ClosedAt, t0)
	}
}

func TestPlaceRejects(t *testing.T) {
	abc := domain.NewStock("ABC", domain.USD)
	xyz := domain.NewStock("XYZ", domain.USD)
	ev := domain.NewEvent(t0,
		domain.NewTradePrice(abc, dec(100), decimal.Zero),
		domain.NewTradePrice(xyz, dec(100), decimal.Zero))

	tests := []struct {
		name  string
		opts  []Option
		order domain.Order
	}{
		{"short on cash account", nil, domain.NewMarketOrder(abc, dec(-1))},
		{"outside universe", []Option{WithUniverse(abc)}, domain.NewMarketOrder(xyz, dec(1))},
		{"malformed", nil, domain.NewMarketOrder(abc, decimal.Zero)},
		{"oco leg too large", nil, domain.NewOCOOrder(
			domain.NewLimitOrder(abc, dec(1), dec(90)),
			domain.NewLimitOrder(abc, dec(1_000_000), dec(90)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewSimBroker(tt.opts...)
			acc, err := b.Place(context.Background(), []domain.Order{tt.order}, ev)
			if err != nil {
				t.Fatalf("Place: %v", err)
			}
			if len(acc.ClosedOrders) != 1 || acc.ClosedOrders[0].Status != domain.OrderStatusRejected {
				t.Fatalf("closed orders = %+v, want one rejection", acc.ClosedOrders)
			}
			if len(acc.OpenOrders) != 0 || len(acc.Trades) != 0 {
				t.Errorf("rejected order left open=%d trades=%d", len(acc.OpenOrders), len(acc.Trades))
			}
		})
	}
}

func TestReducingOrdersNeedNoBuyingPower(t *testing.T) {
	abc := domain.NewStock("ABC", domain.USD)
	b := NewSimBroker(WithDeposit(domain.NewAmount(domain.USD, 10_000)))
	ctx := context.Background()

	ev := domain.NewEvent(t0, domain.NewTradePrice(abc, dec(100), decimal.Zero))
	if _, err := b.Place(ctx, []domain.Order{domain.NewMarketOrder(abc, dec(100))}, ev); err != nil {
		t.Fatalf("Place: %v", err)
	}

	// Cash is fully invested; selling is still allowed.
	ev = domain.NewEvent(t0.Add(time.Minute), domain.NewTradePrice(abc, dec(110), decimal.Zero))
	acc, err := b.Place(ctx, []domain.Order{domain.NewMarketOrder(abc, dec(-100))}, ev)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	wantAmount(t, "cash", acc.Cash.Amount(domain.USD), domain.USD, 11_000)
	if got := acc.RealizedPNL().Get(domain.USD); !got.Equal(dec(1_000)) {
		t.Errorf("realized pnl = %s, want 1000", got)
	}
}

func TestPlaceChargesFees(t *testing.T) {
	abc := domain.NewStock("ABC", domain.USD)
	b := NewSimBroker(
		WithDeposit(domain.NewAmount(domain.USD, 100_000)),
		WithFeeModel(sim.PercentageFeeModel{Bips: dec(10)}),
	)
	ev := domain.NewEvent(t0, domain.NewTradePrice(abc, dec(100), decimal.Zero))
	acc, err := b.Place(context.Background(), []domain.Order{domain.NewMarketOrder(abc, dec(100))}, ev)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	wantAmount(t, "cash", acc.Cash.Amount(domain.USD), domain.USD, 89_990)
	if !acc.Trades[0].Fee.Equal(dec(10)) {
		t.Errorf("fee = %s, want 10", acc.Trades[0].Fee)
	}
}

func TestOpenOrdersTracked(t *testing.T) {
	abc := domain.NewStock("ABC", domain.USD)
	b := NewSimBroker()
	ctx := context.Background()
	limit := domain.NewLimitOrder(abc, dec(10), dec(90))

	acc, err := b.Place(ctx, []domain.Order{limit}, domain.NewEvent(t0, domain.NewTradePrice(abc, dec(100), decimal.Zero)))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if len(acc.OpenOrders) != 1 || acc.OpenOrders[0].Status != domain.OrderStatusAccepted {
		t.Fatalf("open orders = %+v, want the accepted limit", acc.OpenOrders)
	}

	acc, err = b.Place(ctx, nil, domain.NewEvent(t0.Add(time.Minute), domain.NewTradePrice(abc, dec(89), decimal.Zero)))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if len(acc.OpenOrders) != 0 || len(acc.ClosedOrders) != 1 {
		t.Fatalf("open=%d closed=%d, want 0/1", len(acc.OpenOrders), len(acc.ClosedOrders))
	}
	p, ok := acc.Position(abc)
	if !ok || !p.Size.Equal(dec(10)) || !p.AvgPrice.Equal(dec(90)) {
		t.Errorf("position = %+v", p)
	}
}

func TestCancelThroughBroker(t *testing.T) {
	abc := domain.NewStock("ABC", domain.USD)
	b := NewSimBroker()
	ctx := context.Background()
	limit := domain.NewLimitOrder(abc, dec(10), dec(90))

	acc, err := b.Place(ctx, []domain.Order{limit}, domain.NewEvent(t0, domain.NewTradePrice(abc, dec(100), decimal.Zero)))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	cancel := domain.NewCancelOrder(acc.OpenOrders[0])
	acc, err = b.Place(ctx, []domain.Order{cancel}, domain.NewEvent(t0.Add(time.Minute), domain.NewTradePrice(abc, dec(80), decimal.Zero)))
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if len(acc.Trades) != 0 {
		t.Fatalf("cancelled order traded")
	}
	statuses := map[int64]domain.OrderStatus{}
	for _, s := range acc.ClosedOrders {
		statuses[s.ID()] = s.Status
	}
	if statuses[limit.ID] != domain.OrderStatusCancelled || statuses[cancel.ID] != domain.OrderStatusCompleted {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestResubmittingClosedOrderFails(t *testing.T) {
	abc := domain.NewStock("ABC", domain.USD)
	b := NewSimBroker()
	ctx := context.Background()
	o := domain.NewMarketOrder(abc, dec(1))
	ev := domain.NewEvent(t0, domain.NewTradePrice(abc, dec(100), decimal.Zero))

	if _, err := b.Place(ctx, []domain.Order{o}, ev); err != nil {
		t.Fatalf("Place: %v", err)
	}
	ev.Time = ev.Time.Add(time.Minute)
	if _, err := b.Place(ctx, []domain.Order{o}, ev); !errors.Is(err, domain.ErrInvariant) {
		t.Fatalf("Place error = %v, want ErrInvariant", err)
	}
}

func TestPlaceHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSimBroker().Place(ctx, nil, domain.NewEvent(t0)); !errors.Is(err, context.Canceled) {
		t.Errorf("Place error = %v, want context.Canceled", err)
	}
}

func TestReset(t *testing.T) {
	abc := domain.NewStock("ABC", domain.USD)
	b := NewSimBroker(WithDeposit(domain.NewAmount(domain.USD, 5_000)))
	ev := domain.NewEvent(t0, domain.NewTradePrice(abc, dec(100), decimal.Zero))
	if _, err := b.Place(context.Background(), []domain.Order{domain.NewMarketOrder(abc, dec(10))}, ev); err != nil {
		t.Fatalf("Place: %v", err)
	}

	b.Reset()
	acc, err := b.Account()
	if err != nil {
		t.Fatalf("Account: %v", err)
	}
	if len(acc.Trades) != 0 || len(acc.Positions) != 0 {
		t.Errorf("reset left trades=%d positions=%d", len(acc.Trades), len(acc.Positions))
	}
	wantAmount(t, "cash", acc.Cash.Amount(domain.USD), domain.USD, 5_000)
	wantAmount(t, "buying power", acc.BuyingPower, domain.USD, 5_000)
}
