package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tradesim/internal/account"
	"tradesim/internal/domain"
	"tradesim/internal/util"
)

// ErrRiskLimit is returned by RiskManager.CheckOrder for orders that breach
// a configured limit.
var ErrRiskLimit = errors.New("risk limit")

// RiskManager enforces pre-trade risk rules such as position sizing limits
// and maximum daily loss constraints. Orders that only reduce an existing
// position always pass.
type RiskManager struct {
	maxPositionPct  decimal.Decimal
	maxDailyLossPct decimal.Decimal
}

// NewRiskManager creates a RiskManager with the specified risk thresholds.
//
//   - maxPositionPct: maximum fraction of equity allowed in a single position
//     (e.g. 0.10 for 10%).
//   - maxDailyLossPct: maximum fraction of equity that may be lost in a single
//     trading day (e.g. 0.02 for 2%).
//
// A zero threshold disables that rule.
func NewRiskManager(maxPositionPct, maxDailyLossPct float64) *RiskManager {
	return &RiskManager{
		maxPositionPct:  decimal.NewFromFloat(maxPositionPct),
		maxDailyLossPct: decimal.NewFromFloat(maxDailyLossPct),
	}
}

// CheckOrder evaluates whether the proposed order complies with the
// configured risk limits given the current account state. price is the
// reference price used to value the order.
func (rm *RiskManager) CheckOrder(_ context.Context, order domain.Order, acct account.Account, price decimal.Decimal) error {
	qty := order.Qty
	if order.Composite() {
		// oco/oto/bracket: the first leg opens the position.
		qty = order.Legs[0].Qty
	}
	pos, _ := acct.Position(order.Asset)
	after := pos.Size.Add(qty)
	if after.Abs().LessThanOrEqual(pos.Size.Abs()) && (after.IsZero() || after.Sign() == pos.Size.Sign()) {
		return nil
	}

	equity := acct.Equity.Value
	if rm.maxPositionPct.IsPositive() {
		limit := equity.Mul(rm.maxPositionPct)
		notional := after.Abs().Mul(price)
		if notional.GreaterThan(limit) {
			return fmt.Errorf("%s position %s exceeds %s of equity: %w",
				order.Asset, notional.StringFixed(2), limit.StringFixed(2), ErrRiskLimit)
		}
	}
	if rm.maxDailyLossPct.IsPositive() {
		loc := util.NewTradingCalendar(order.Asset.Market).Location()
		pnl := decimal.Zero
		for _, tr := range acct.DayTrades(acct.LastUpdate.In(loc)) {
			pnl = pnl.Add(tr.PNL).Sub(tr.Fee)
		}
		limit := equity.Mul(rm.maxDailyLossPct)
		if pnl.IsNegative() && pnl.Neg().GreaterThanOrEqual(limit) {
			return fmt.Errorf("daily loss %s reached %s: %w", pnl.Neg().StringFixed(2), limit.StringFixed(2), ErrRiskLimit)
		}
	}
	return nil
}
