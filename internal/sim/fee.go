package sim

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeModel prices the commission of an execution in the asset currency.
type FeeModel interface {
	Fee(exec Execution) (decimal.Decimal, error)
}

// NoFeeModel charges nothing.
type NoFeeModel struct{}

// Fee implements FeeModel.
func (NoFeeModel) Fee(Execution) (decimal.Decimal, error) { return decimal.Zero, nil }

// PercentageFeeModel charges Bips basis points of the traded notional, with
// an optional Minimum per execution.
type PercentageFeeModel struct {
	Bips    decimal.Decimal
	Minimum decimal.Decimal
}

// Fee implements FeeModel.
func (m PercentageFeeModel) Fee(exec Execution) (decimal.Decimal, error) {
	if m.Bips.IsNegative() || m.Minimum.IsNegative() {
		return decimal.Zero, fmt.Errorf("fee model: negative bips %s or minimum %s", m.Bips, m.Minimum)
	}
	fee := exec.Qty.Mul(exec.Price).Abs().Mul(m.Bips).Div(bipsDivisor)
	return decimal.Max(fee, m.Minimum), nil
}
