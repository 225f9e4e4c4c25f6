package sim

import (
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

// cancelCommand closes its target as cancelled. It completes when the
// target was open and is rejected otherwise. Cancels need no price.
type cancelCommand struct {
	state  domain.OrderState
	lookup func(id int64) (OrderCommand, bool)
}

func (c *cancelCommand) Order() domain.Order        { return c.state.Order }
func (c *cancelCommand) State() domain.OrderState   { return c.state }
func (c *cancelCommand) Filled() decimal.Decimal    { return decimal.Zero }
func (c *cancelCommand) Remaining() decimal.Decimal { return decimal.Zero }

func (c *cancelCommand) Close(status domain.OrderStatus, t time.Time) {
	c.state = c.state.Copy(t, status)
}

func (c *cancelCommand) Update(t time.Time) {
	if c.state.Closed() {
		return
	}
	target, ok := c.lookup(c.state.Order.CancelID)
	if !ok || target.State().Closed() {
		c.state = c.state.Copy(t, domain.OrderStatusRejected)
		return
	}
	c.state = c.state.Copy(t, domain.OrderStatusAccepted)
	target.Close(domain.OrderStatusCancelled, t)
	c.state = c.state.Copy(t, domain.OrderStatusCompleted)
}

func (c *cancelCommand) Execute(_ Pricing, t time.Time) []Execution {
	c.Update(t)
	return nil
}
