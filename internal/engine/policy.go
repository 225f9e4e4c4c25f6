package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"tradesim/internal/account"
	"tradesim/internal/domain"
)

// Policy turns strategy signals into orders.
type Policy interface {
	Orders(ctx context.Context, signals []domain.Signal, acct account.Account, event domain.Event) ([]domain.Order, error)
}

// DefaultPolicy opens positions sized as a fraction of buying power and
// closes them on the opposite signal.
//
// A buy signal covers a short position, or opens a long one when flat. A
// sell signal closes a long position, or opens a short one when flat and
// AllowShort is set. Assets with open orders are left alone. When both
// TakeProfitPct and StopLossPct are set, new positions are opened with a
// bracket order.
type DefaultPolicy struct {
	OrderPct       decimal.Decimal // of buying power per new position
	TakeProfitPct  decimal.Decimal
	StopLossPct    decimal.Decimal
	AllowShort     bool
	QtyPrecision   int32 // decimal places of order quantities
	PricePrecision int32 // decimal places of bracket prices, 2 when zero
	TIF            domain.TimeInForce
	Risk           *RiskManager // optional
	Log            *slog.Logger // optional
}

var one = decimal.NewFromInt(1)

// Orders implements Policy.
func (p DefaultPolicy) Orders(ctx context.Context, signals []domain.Signal, acct account.Account, event domain.Event) ([]domain.Order, error) {
	busy := make(map[domain.Asset]bool)
	for _, s := range acct.OpenOrders {
		busy[s.Asset()] = true
	}
	budget := acct.BuyingPower.Value

	var orders []domain.Order
	for _, sig := range signals {
		if busy[sig.Asset] {
			continue
		}
		action, ok := event.Price(sig.Asset)
		if !ok {
			continue
		}
		price := action.Price(domain.PriceTypeDefault)
		if !price.IsPositive() {
			continue
		}

		pos, _ := acct.Position(sig.Asset)
		var order domain.Order
		switch {
		case sig.Type == domain.SignalTypeBuy && pos.Short():
			order = domain.NewMarketOrder(sig.Asset, pos.Size.Neg())
		case sig.Type == domain.SignalTypeSell && pos.Long():
			order = domain.NewMarketOrder(sig.Asset, pos.Size.Neg())
		case pos.Closed() && (sig.Type == domain.SignalTypeBuy || p.AllowShort):
			qty := budget.Mul(p.OrderPct).Div(price).Truncate(p.QtyPrecision)
			if !qty.IsPositive() {
				continue
			}
			budget = budget.Sub(qty.Mul(price))
			if sig.Type == domain.SignalTypeSell {
				qty = qty.Neg()
			}
			order = p.open(sig.Asset, qty, price)
		default:
			continue
		}
		order = order.WithTag(sig.StrategyID)

		if p.Risk != nil {
			if err := p.Risk.CheckOrder(ctx, order, acct, price); err != nil {
				if !errors.Is(err, ErrRiskLimit) {
					return nil, err
				}
				if p.Log != nil {
					p.Log.Info("order blocked", "asset", sig.Asset.Symbol, "reason", err)
				}
				continue
			}
		}
		busy[sig.Asset] = true
		orders = append(orders, order)
	}
	return orders, nil
}

func (p DefaultPolicy) open(asset domain.Asset, qty, price decimal.Decimal) domain.Order {
	tif := p.TIF
	if tif.Policy == "" {
		tif = domain.GTC()
	}
	entry := domain.NewMarketOrder(asset, qty).WithTIF(tif)
	if !p.TakeProfitPct.IsPositive() || !p.StopLossPct.IsPositive() {
		return entry
	}

	up := one.Add(p.TakeProfitPct)
	down := one.Sub(p.StopLossPct)
	if qty.IsNegative() {
		up, down = one.Sub(p.TakeProfitPct), one.Add(p.StopLossPct)
	}
	places := p.PricePrecision
	if places == 0 {
		places = 2
	}
	tp := domain.NewLimitOrder(asset, qty.Neg(), price.Mul(up).Round(places))
	sl := domain.NewStopOrder(asset, qty.Neg(), price.Mul(down).Round(places))
	return domain.NewBracketOrder(entry, tp, sl)
}
