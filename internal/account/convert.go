package account

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

// Converter converts amounts between currencies.
type Converter interface {
	Convert(amount domain.Amount, to domain.Currency, t time.Time) (domain.Amount, error)
}

// FixedRates converts using constant rates. Each rate is the value of one
// unit of the currency expressed in a common pivot currency.
type FixedRates map[domain.Currency]decimal.Decimal

// Convert implements Converter.
func (r FixedRates) Convert(amount domain.Amount, to domain.Currency, _ time.Time) (domain.Amount, error) {
	if amount.Currency == to {
		return amount, nil
	}
	from, ok := r[amount.Currency]
	if !ok || from.IsZero() {
		return domain.Amount{}, fmt.Errorf("converting %s to %s: %w", amount.Currency, to, domain.ErrNoConversion)
	}
	dest, ok := r[to]
	if !ok || dest.IsZero() {
		return domain.Amount{}, fmt.Errorf("converting %s to %s: %w", amount.Currency, to, domain.ErrNoConversion)
	}
	return domain.Amount{Currency: to, Value: amount.Value.Mul(from).Div(dest)}, nil
}
