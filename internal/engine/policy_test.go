package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"tradesim/internal/account"
	"tradesim/internal/domain"
)

func signal(asset domain.Asset, typ domain.SignalType) domain.Signal {
	return domain.Signal{StrategyID: "test", Asset: asset, Type: typ, Strength: 1, CreatedAt: t0}
}

func flatAccount(bp int64) account.Account {
	return account.Account{
		BaseCurrency: domain.USD,
		LastUpdate:   t0,
		BuyingPower:  domain.NewAmount(domain.USD, bp),
		Equity:       domain.NewAmount(domain.USD, bp),
	}
}

func TestDefaultPolicyOpensLong(t *testing.T) {
	p := DefaultPolicy{OrderPct: decimal.RequireFromString("0.25")}
	ev := domain.NewEvent(t0, tick(abc, 40))

	orders, err := p.Orders(context.Background(), []domain.Signal{signal(abc, domain.SignalTypeBuy)}, flatAccount(10_000), ev)
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("got %d orders, want 1", len(orders))
	}
	o := orders[0]
	if o.Type != domain.OrderTypeMarket || !o.Qty.Equal(dec(62)) || o.Tag != "test" {
		t.Errorf("order = %s %s tag %q, want market 62 tagged test", o.Type, o.Qty, o.Tag)
	}
	if o.TIF.Policy != domain.TIFGoodTillCancelled {
		t.Errorf("TIF = %s, want gtc", o.TIF)
	}
}

func TestDefaultPolicyBracket(t *testing.T) {
	p := DefaultPolicy{
		OrderPct:      decimal.RequireFromString("0.5"),
		TakeProfitPct: decimal.RequireFromString("0.1"),
		StopLossPct:   decimal.RequireFromString("0.05"),
		AllowShort:    true,
	}
	ev := domain.NewEvent(t0, tick(abc, 100), tick(xyz, 20))
	signals := []domain.Signal{signal(abc, domain.SignalTypeBuy), signal(xyz, domain.SignalTypeSell)}

	orders, err := p.Orders(context.Background(), signals, flatAccount(10_000), ev)
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}

	long := orders[0]
	if long.Type != domain.OrderTypeBracket {
		t.Fatalf("long order type = %s, want bracket", long.Type)
	}
	if err := long.Validate(); err != nil {
		t.Errorf("long bracket invalid: %v", err)
	}
	if !long.Entry().Qty.Equal(dec(50)) {
		t.Errorf("long entry qty = %s, want 50", long.Entry().Qty)
	}
	if !long.TakeProfit().Limit.Equal(dec(110)) || !long.StopLoss().Stop.Equal(dec(95)) {
		t.Errorf("long tp/sl = %s/%s, want 110/95", long.TakeProfit().Limit, long.StopLoss().Stop)
	}

	// The first order used half the budget; the short is sized on the rest.
	short := orders[1]
	if !short.Entry().Qty.Equal(dec(-125)) {
		t.Errorf("short entry qty = %s, want -125", short.Entry().Qty)
	}
	if !short.TakeProfit().Limit.Equal(dec(18)) || !short.StopLoss().Stop.Equal(dec(21)) {
		t.Errorf("short tp/sl = %s/%s, want 18/21", short.TakeProfit().Limit, short.StopLoss().Stop)
	}
}

func TestDefaultPolicyCloses(t *testing.T) {
	p := DefaultPolicy{OrderPct: decimal.RequireFromString("0.5")}
	acct := flatAccount(10_000)
	acct.Positions = []domain.Position{
		{Asset: abc, Size: dec(30), AvgPrice: dec(90), MktPrice: dec(100)},
		{Asset: xyz, Size: dec(-40), AvgPrice: dec(20), MktPrice: dec(20)},
	}
	ev := domain.NewEvent(t0, tick(abc, 100), tick(xyz, 20))

	tests := []struct {
		name    string
		signal  domain.Signal
		wantQty int64 // 0 means no order
	}{
		{"sell closes long", signal(abc, domain.SignalTypeSell), -30},
		{"buy on long is ignored", signal(abc, domain.SignalTypeBuy), 0},
		{"buy covers short", signal(xyz, domain.SignalTypeBuy), 40},
		{"sell on short is ignored", signal(xyz, domain.SignalTypeSell), 0},
	}
	for _, tt := range tests {
		orders, err := p.Orders(context.Background(), []domain.Signal{tt.signal}, acct, ev)
		if err != nil {
			t.Fatalf("%s: Orders: %v", tt.name, err)
		}
		if tt.wantQty == 0 {
			if len(orders) != 0 {
				t.Errorf("%s: got %d orders, want none", tt.name, len(orders))
			}
			continue
		}
		if len(orders) != 1 || orders[0].Type != domain.OrderTypeMarket || !orders[0].Qty.Equal(dec(tt.wantQty)) {
			t.Errorf("%s: orders = %+v, want market %d", tt.name, orders, tt.wantQty)
		}
	}
}

func TestDefaultPolicySkips(t *testing.T) {
	p := DefaultPolicy{OrderPct: decimal.RequireFromString("0.5")}
	ev := domain.NewEvent(t0, tick(abc, 100))

	// Shorting is off by default.
	if orders, _ := p.Orders(context.Background(), []domain.Signal{signal(abc, domain.SignalTypeSell)}, flatAccount(10_000), ev); len(orders) != 0 {
		t.Errorf("sell when flat produced %d orders, want 0", len(orders))
	}
	// No price for the asset in the event.
	if orders, _ := p.Orders(context.Background(), []domain.Signal{signal(xyz, domain.SignalTypeBuy)}, flatAccount(10_000), ev); len(orders) != 0 {
		t.Errorf("unpriced asset produced %d orders, want 0", len(orders))
	}
	// Too little buying power for a single share.
	if orders, _ := p.Orders(context.Background(), []domain.Signal{signal(abc, domain.SignalTypeBuy)}, flatAccount(150), ev); len(orders) != 0 {
		t.Errorf("tiny budget produced %d orders, want 0", len(orders))
	}
	// Open orders on the asset.
	acct := flatAccount(10_000)
	acct.OpenOrders = []domain.OrderState{domain.NewOrderState(domain.NewLimitOrder(abc, dec(1), dec(90)))}
	if orders, _ := p.Orders(context.Background(), []domain.Signal{signal(abc, domain.SignalTypeBuy)}, acct, ev); len(orders) != 0 {
		t.Errorf("busy asset produced %d orders, want 0", len(orders))
	}
	// Two signals for one asset in the same event.
	twice := []domain.Signal{signal(abc, domain.SignalTypeBuy), signal(abc, domain.SignalTypeBuy)}
	if orders, _ := p.Orders(context.Background(), twice, flatAccount(10_000), ev); len(orders) != 1 {
		t.Errorf("repeated signal produced %d orders, want 1", len(orders))
	}
}

func TestDefaultPolicyRisk(t *testing.T) {
	p := DefaultPolicy{
		OrderPct: decimal.RequireFromString("0.5"),
		Risk:     NewRiskManager(0.2, 0),
	}
	ev := domain.NewEvent(t0, tick(abc, 100))
	orders, err := p.Orders(context.Background(), []domain.Signal{signal(abc, domain.SignalTypeBuy)}, flatAccount(10_000), ev)
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if len(orders) != 0 {
		t.Errorf("got %d orders, want the 50%% position blocked by the 20%% limit", len(orders))
	}
}
