package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
	PositionSideFlat  PositionSide = "flat"
)

// Position is the holding in one asset. Size is signed: negative sizes are
// short positions.
type Position struct {
	Asset      Asset
	Size       decimal.Decimal
	AvgPrice   decimal.Decimal
	MktPrice   decimal.Decimal
	LastUpdate time.Time
}

// Side returns long, short or flat.
func (p Position) Side() PositionSide {
	switch p.Size.Sign() {
	case 1:
		return PositionSideLong
	case -1:
		return PositionSideShort
	}
	return PositionSideFlat
}

func (p Position) Long() bool   { return p.Size.IsPositive() }
func (p Position) Short() bool  { return p.Size.IsNegative() }
func (p Position) Closed() bool { return p.Size.IsZero() }

// MarketValue is size times the last market price; negative for shorts.
func (p Position) MarketValue() Amount {
	return p.Asset.Value(p.Size, p.MktPrice)
}

// Exposure is the absolute market value.
func (p Position) Exposure() Amount {
	return p.Asset.Value(p.Size.Abs(), p.MktPrice)
}

// TotalCost is size times the average entry price.
func (p Position) TotalCost() Amount {
	return p.Asset.Value(p.Size, p.AvgPrice)
}

// UnrealizedPNL is the profit of the open size at the last market price.
func (p Position) UnrealizedPNL() Amount {
	return p.Asset.Value(p.Size, p.MktPrice.Sub(p.AvgPrice))
}

// Apply returns the position after trading qty at price, together with the
// profit realized by the part of qty that reduced the existing size.
func (p Position) Apply(qty, price decimal.Decimal) (Position, decimal.Decimal) {
	newSize := p.Size.Add(qty)
	pnl := decimal.Zero

	switch {
	case p.Size.IsZero() || p.Size.Sign() == qty.Sign():
		cost := p.Size.Mul(p.AvgPrice).Add(qty.Mul(price))
		p.AvgPrice = cost.Div(newSize)
	case qty.Abs().LessThanOrEqual(p.Size.Abs()):
		pnl = qty.Neg().Mul(price.Sub(p.AvgPrice))
		if newSize.IsZero() {
			p.AvgPrice = decimal.Zero
		}
	default:
		// The trade closes the whole position and opens one on the other side.
		pnl = p.Size.Mul(price.Sub(p.AvgPrice))
		p.AvgPrice = price
	}

	p.Size = newSize
	p.MktPrice = price
	return p, pnl
}

// Trade is one execution booked on the account.
type Trade struct {
	Time    time.Time
	Asset   Asset
	Qty     decimal.Decimal
	Price   decimal.Decimal
	Fee     decimal.Decimal
	PNL     decimal.Decimal // realized, before fees
	OrderID int64
}

// Value is the signed notional of the trade.
func (t Trade) Value() Amount {
	return t.Asset.Value(t.Qty, t.Price)
}

// FeeAmount returns the fee in the asset currency.
func (t Trade) FeeAmount() Amount {
	return Amount{Currency: t.Asset.Currency, Value: t.Fee}
}

// PNLAmount returns the realized profit in the asset currency.
func (t Trade) PNLAmount() Amount {
	return Amount{Currency: t.Asset.Currency, Value: t.PNL}
}
