package sim

import (
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
	"tradesim/internal/util"
)

// OrderCommand drives one order through its lifecycle. Commands are owned by
// an ExecutionEngine and mutated in place; callers only ever see the
// immutable OrderState they expose.
type OrderCommand interface {
	Order() domain.Order
	State() domain.OrderState

	// Filled is the signed quantity executed so far; Remaining is what is
	// left of the order quantity. Composite orders report their own view.
	Filled() decimal.Decimal
	Remaining() decimal.Decimal

	// Execute advances the command to t, then tries to fill it against p.
	Execute(p Pricing, t time.Time) []Execution

	// Update advances the command to t without a price: it accepts an
	// initial order and applies time-in-force expiry.
	Update(t time.Time)

	// Close moves an open command to status at t. Closed commands ignore it.
	Close(status domain.OrderStatus, t time.Time)
}

// singleCommand drives market, limit, stop and stop-limit orders.
type singleCommand struct {
	state         domain.OrderState
	filled        decimal.Decimal
	participation decimal.Decimal // zero means no volume cap
	calendar      *util.TradingCalendar
	triggered     bool // stop-limit stop has fired
}

func newSingleCommand(order domain.Order, participation decimal.Decimal, cal *util.TradingCalendar) *singleCommand {
	return &singleCommand{
		state:         domain.NewOrderState(order),
		participation: participation,
		calendar:      cal,
	}
}

func (c *singleCommand) Order() domain.Order        { return c.state.Order }
func (c *singleCommand) State() domain.OrderState   { return c.state }
func (c *singleCommand) Filled() decimal.Decimal    { return c.filled }
func (c *singleCommand) Remaining() decimal.Decimal { return c.state.Order.Qty.Sub(c.filled) }

// resizer is implemented by commands whose quantity can be changed before
// they fill.
type resizer interface {
	resize(qty decimal.Decimal)
}

func (c *singleCommand) resize(qty decimal.Decimal) {
	if c.filled.IsZero() {
		c.state.Order.Qty = qty
	}
}

func (c *singleCommand) Close(status domain.OrderStatus, t time.Time) {
	c.state = c.state.Copy(t, status)
}

func (c *singleCommand) Update(t time.Time) {
	c.state = c.state.Copy(t, domain.OrderStatusAccepted)
	if c.state.Closed() {
		return
	}
	if expired(c.state, c.calendar, t) {
		c.state = c.state.Copy(t, domain.OrderStatusExpired)
	}
}

func (c *singleCommand) Execute(p Pricing, t time.Time) []Execution {
	c.Update(t)
	if c.state.Closed() {
		return nil
	}

	remaining := c.Remaining()
	qty := c.fillable(remaining, p.Volume())
	if qty.IsZero() {
		return nil
	}
	if c.state.Order.TIF.Policy == domain.TIFFillOrKill && !qty.Equal(remaining) {
		return nil
	}

	price, ok := c.fillPrice(p, qty)
	if !ok {
		return nil
	}

	c.filled = c.filled.Add(qty)
	if c.Remaining().IsZero() {
		c.state = c.state.Copy(t, domain.OrderStatusCompleted)
	}
	return []Execution{{
		OrderID: c.state.ID(),
		Asset:   c.state.Asset(),
		Qty:     qty,
		Price:   price,
		Time:    t,
	}}
}

// fillable caps remaining at the participation share of volume.
func (c *singleCommand) fillable(remaining, volume decimal.Decimal) decimal.Decimal {
	if !c.participation.IsPositive() || !volume.IsPositive() {
		return remaining
	}
	limit := volume.Mul(c.participation)
	if remaining.Abs().LessThanOrEqual(limit) {
		return remaining
	}
	if remaining.IsNegative() {
		return limit.Neg()
	}
	return limit
}

func (c *singleCommand) fillPrice(p Pricing, qty decimal.Decimal) (decimal.Decimal, bool) {
	o := c.state.Order
	switch o.Type {
	case domain.OrderTypeMarket:
		return p.MarketPrice(qty), true
	case domain.OrderTypeLimit:
		return limitPrice(o, p, qty)
	case domain.OrderTypeStop:
		if !stopTriggered(o, p, qty) {
			return decimal.Zero, false
		}
		return p.MarketPrice(qty), true
	case domain.OrderTypeStopLimit:
		if !c.triggered {
			c.triggered = stopTriggered(o, p, qty)
		}
		if !c.triggered {
			return decimal.Zero, false
		}
		return limitPrice(o, p, qty)
	}
	return decimal.Zero, false
}

func limitPrice(o domain.Order, p Pricing, qty decimal.Decimal) (decimal.Decimal, bool) {
	if o.Buy() {
		return o.Limit, p.LowPrice(qty).LessThanOrEqual(o.Limit)
	}
	return o.Limit, p.HighPrice(qty).GreaterThanOrEqual(o.Limit)
}

func stopTriggered(o domain.Order, p Pricing, qty decimal.Decimal) bool {
	if o.Buy() {
		return p.HighPrice(qty).GreaterThanOrEqual(o.Stop)
	}
	return p.LowPrice(qty).LessThanOrEqual(o.Stop)
}
