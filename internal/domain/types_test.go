package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}

	// Zero-value orders and states carry no variant.
	order := Order{}
	if order.ID != 0 || order.Type != "" {
		t.Error("expected zero ID/Type for zero-value Order")
	}
	if !order.Qty.IsZero() || !order.Limit.IsZero() || !order.Stop.IsZero() {
		t.Error("expected zero Qty/Limit/Stop for zero-value Order")
	}
	state := OrderState{}
	if state.Open() || state.Closed() {
		t.Error("zero-value OrderState should be neither open nor closed")
	}

	// Verify enum constants are defined correctly.
	if OrderSideBuy != "buy" {
		t.Errorf("OrderSideBuy = %q, want %q", OrderSideBuy, "buy")
	}
	if MarketUS != "us" || MarketCN != "cn" {
		t.Error("Market constants have unexpected values")
	}

	now := time.Now()
	signal := Signal{
		ID:         1,
		StrategyID: "momentum_v1",
		Asset:      NewStock("AAPL", USD),
		Type:       SignalTypeBuy,
		Strength:   0.85,
		Metadata:   map[string]string{"reason": "breakout"},
		CreatedAt:  now,
	}
	if signal.StrategyID != "momentum_v1" {
		t.Errorf("signal.StrategyID = %q, want %q", signal.StrategyID, "momentum_v1")
	}

	pos := Position{
		Asset: NewStock("AAPL", USD),
		Size:  decimal.NewFromInt(100),
	}
	if pos.Side() != PositionSideLong {
		t.Errorf("pos.Side() = %q, want %q", pos.Side(), PositionSideLong)
	}
}

func TestPriceActionPrices(t *testing.T) {
	abc := NewStock("ABC", USD)
	bar := NewPriceBar(abc,
		decimal.NewFromInt(10), decimal.NewFromInt(14), decimal.NewFromInt(8),
		decimal.NewFromInt(12), decimal.NewFromInt(1000))

	tests := []struct {
		typ  PriceType
		want int64
	}{
		{PriceTypeDefault, 12},
		{PriceTypeOpen, 10},
		{PriceTypeHigh, 14},
		{PriceTypeLow, 8},
		{PriceTypeClose, 12},
	}
	for _, tt := range tests {
		if got := bar.Price(tt.typ); !got.Equal(decimal.NewFromInt(tt.want)) {
			t.Errorf("bar.Price(%s) = %s, want %d", tt.typ, got, tt.want)
		}
	}
	if got := bar.Price(PriceTypeTypical).Round(4); !got.Equal(decimal.RequireFromString("11.3333")) {
		t.Errorf("bar.Price(typical) = %s, want 11.3333", got)
	}

	quote := NewPriceQuote(abc, decimal.NewFromInt(101), decimal.NewFromInt(99), decimal.Zero)
	if got := quote.Price(PriceTypeDefault); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("quote mid = %s, want 100", got)
	}
	if got := quote.Price(PriceTypeHigh); !got.Equal(decimal.NewFromInt(101)) {
		t.Errorf("quote high = %s, want 101", got)
	}

	trade := NewTradePrice(abc, decimal.NewFromInt(50), decimal.NewFromInt(5))
	if got := trade.Price(PriceTypeLow); !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("trade low = %s, want 50", got)
	}
}

func TestEventPrice(t *testing.T) {
	abc := NewStock("ABC", USD)
	xyz := NewStock("XYZ", USD)
	ev := NewEvent(time.Now(),
		NewTradePrice(abc, decimal.NewFromInt(1), decimal.Zero),
		NewTradePrice(abc, decimal.NewFromInt(2), decimal.Zero),
	)

	got, ok := ev.Price(abc)
	if !ok {
		t.Fatal("Price(abc) not found")
	}
	if !got.Close.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Price(abc) = %s, want the last action (2)", got.Close)
	}
	if _, ok := ev.Price(xyz); ok {
		t.Error("Price(xyz) should not be found")
	}
	if len(ev.Prices()) != 1 {
		t.Errorf("Prices() has %d entries, want 1", len(ev.Prices()))
	}
}

func TestTimeframeContains(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	tf := Timeframe{Start: start, End: end}

	if !tf.Contains(start) {
		t.Error("timeframe should contain its start")
	}
	if tf.Contains(end) {
		t.Error("timeframe should not contain its end")
	}
	if tf.Contains(start.Add(-time.Second)) {
		t.Error("timeframe should not contain times before start")
	}
	if !(Timeframe{}).Contains(end) {
		t.Error("zero timeframe should contain everything")
	}
}
