package broker

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

// validate splits orders into those entering the execution engine and the
// rejected states of the rest. Buying power is consumed cumulatively, so
// later orders in the same call see what earlier ones reserved.
func (b *SimBroker) validate(orders []domain.Order, event domain.Event) ([]domain.Order, []domain.OrderState) {
	var (
		accepted []domain.Order
		rejected []domain.OrderState
	)
	budget := b.account.BuyingPower.Value
	pending := make(map[domain.Asset]decimal.Decimal)

	for _, o := range orders {
		cost, delta, err := b.check(o, event, pending)
		if err == nil && cost.GreaterThan(budget) {
			err = fmt.Errorf("cost %s exceeds buying power %s", cost, budget)
		}
		if err != nil {
			b.log.Info("order rejected", "order", o.ID, "type", o.Type, "asset", o.Asset.Symbol, "reason", err.Error())
			rejected = append(rejected, domain.NewOrderState(o).Copy(event.Time, domain.OrderStatusRejected))
			continue
		}
		budget = budget.Sub(cost)
		pending[o.Asset] = pending[o.Asset].Add(delta)
		accepted = append(accepted, o)
	}
	return accepted, rejected
}

// check returns the buying power o needs, in the base currency, and the
// position change it was sized on.
func (b *SimBroker) check(o domain.Order, event domain.Event, pending map[domain.Asset]decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if err := o.Validate(); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if b.universe != nil {
		if _, ok := b.universe[o.Asset]; !ok {
			return decimal.Zero, decimal.Zero, fmt.Errorf("%s: %w", o.Asset, domain.ErrUnknownAsset)
		}
	}
	if o.Type == domain.OrderTypeCancel {
		return decimal.Zero, decimal.Zero, nil
	}

	current := b.account.Positions[o.Asset].Size.Add(pending[o.Asset])
	var worst, worstDelta decimal.Decimal
	for _, delta := range positionDeltas(o) {
		if increasesShort(current, delta) && !b.model.AllowShortSelling() {
			return decimal.Zero, decimal.Zero, fmt.Errorf("short selling %s not allowed", o.Asset)
		}
		if inc := exposureIncrease(current, delta); inc.GreaterThan(worst) {
			worst, worstDelta = inc, delta
		}
	}
	if worst.IsZero() {
		return decimal.Zero, positionDeltas(o)[0], nil
	}

	price := b.referencePrice(o, event)
	if !price.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("no price for %s", o.Asset)
	}
	cost, err := b.account.Convert(o.Asset.Value(worst, price))
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return cost.Value, worstDelta, nil
}

// positionDeltas lists the position changes an order can produce. Either leg
// of an oco may fill; an oto holds the first leg and then both; a bracket is
// sized on its entry since the legs only unwind it.
func positionDeltas(o domain.Order) []decimal.Decimal {
	switch o.Type {
	case domain.OrderTypeOCO:
		return append(positionDeltas(o.First()), positionDeltas(o.Second())...)
	case domain.OrderTypeOTO:
		first := positionDeltas(o.First())
		out := append([]decimal.Decimal(nil), first...)
		for _, f := range first {
			for _, s := range positionDeltas(o.Second()) {
				out = append(out, f.Add(s))
			}
		}
		return out
	case domain.OrderTypeBracket:
		return positionDeltas(o.Entry())
	default:
		return []decimal.Decimal{o.Qty}
	}
}

// exposureIncrease is how much the absolute position grows when delta is
// traded on top of current. A flip counts the whole new position.
func exposureIncrease(current, delta decimal.Decimal) decimal.Decimal {
	next := current.Add(delta)
	if current.Sign()*next.Sign() < 0 {
		return next.Abs()
	}
	return decimal.Max(decimal.Zero, next.Abs().Sub(current.Abs()))
}

func increasesShort(current, delta decimal.Decimal) bool {
	next := current.Add(delta)
	return next.IsNegative() && next.LessThan(decimal.Min(current, decimal.Zero))
}

// referencePrice values an order at the event price, the last known price,
// or failing both its own limit or stop price.
func (b *SimBroker) referencePrice(o domain.Order, event domain.Event) decimal.Decimal {
	if action, ok := event.Price(o.Asset); ok {
		return action.Price(b.priceType)
	}
	if p, ok := b.lastPrices[o.Asset]; ok {
		return p
	}
	for o.Composite() && len(o.Legs) > 0 {
		o = o.Legs[0]
	}
	if o.Limit.IsPositive() {
		return o.Limit
	}
	return o.Stop
}
