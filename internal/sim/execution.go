package sim

import (
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

// Execution is a fill produced by an OrderCommand. Qty is signed: positive
// buys, negative sells.
type Execution struct {
	OrderID int64
	Asset   domain.Asset
	Qty     decimal.Decimal
	Price   decimal.Decimal
	Time    time.Time
}

// Value is the signed notional of the fill in the asset currency.
func (e Execution) Value() domain.Amount {
	return e.Asset.Value(e.Qty, e.Price)
}
