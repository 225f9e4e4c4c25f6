package account

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

// AccountModel derives buying power from the ledger. Models hold no state.
type AccountModel interface {
	BuyingPower(a *InternalAccount) (domain.Amount, error)
	// AllowShortSelling reports whether orders may open or grow short
	// positions.
	AllowShortSelling() bool
}

// CashAccount allows no leverage and no short selling. Buying power is the
// cash balance less short exposure and the configured minimum.
type CashAccount struct {
	Minimum decimal.Decimal
}

// BuyingPower implements AccountModel.
func (m CashAccount) BuyingPower(a *InternalAccount) (domain.Amount, error) {
	cash, err := a.CashValue()
	if err != nil {
		return cash, fmt.Errorf("cash account: %w", err)
	}
	short, err := a.ShortExposure()
	if err != nil {
		return short, fmt.Errorf("cash account: %w", err)
	}
	bp := cash.Sub(short)
	bp.Value = bp.Value.Sub(m.Minimum)
	return bp, nil
}

// AllowShortSelling implements AccountModel.
func (CashAccount) AllowShortSelling() bool { return false }

// MarginAccount lends against the equity of the account:
//
//	excess      = cash + marketValue - minimumEquity
//	              - longExposure*maintenanceLong - shortExposure*maintenanceShort
//	buyingPower = excess * leverage
type MarginAccount struct {
	Leverage         decimal.Decimal
	MaintenanceLong  decimal.Decimal
	MaintenanceShort decimal.Decimal
	MinimumEquity    decimal.Decimal
}

// NewMarginAccount returns a 2x margin account with 30% maintenance margin
// on both sides.
func NewMarginAccount() MarginAccount {
	return MarginAccount{
		Leverage:         decimal.NewFromInt(2),
		MaintenanceLong:  decimal.RequireFromString("0.3"),
		MaintenanceShort: decimal.RequireFromString("0.3"),
	}
}

// BuyingPower implements AccountModel.
func (m MarginAccount) BuyingPower(a *InternalAccount) (domain.Amount, error) {
	equity, err := a.Equity()
	if err != nil {
		return equity, fmt.Errorf("margin account: %w", err)
	}
	long, err := a.LongExposure()
	if err != nil {
		return long, fmt.Errorf("margin account: %w", err)
	}
	short, err := a.ShortExposure()
	if err != nil {
		return short, fmt.Errorf("margin account: %w", err)
	}

	excess := equity.Value.
		Sub(m.MinimumEquity).
		Sub(long.Value.Mul(m.MaintenanceLong)).
		Sub(short.Value.Mul(m.MaintenanceShort))
	return domain.Amount{Currency: a.BaseCurrency, Value: excess.Mul(m.Leverage)}, nil
}

// AllowShortSelling implements AccountModel.
func (MarginAccount) AllowShortSelling() bool { return true }
