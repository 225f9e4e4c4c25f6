package sim

import (
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

type compositeState struct {
	state domain.OrderState
}

func (c *compositeState) Order() domain.Order      { return c.state.Order }
func (c *compositeState) State() domain.OrderState { return c.state }

// accept moves an initial composite to accepted and reports whether it is
// still open.
func (c *compositeState) accept(t time.Time) bool {
	c.state = c.state.Copy(t, domain.OrderStatusAccepted)
	return c.state.Open()
}

// finish closes the composite with status and cancels any child that is
// still open.
func (c *compositeState) finish(status domain.OrderStatus, t time.Time, children ...OrderCommand) {
	if c.state.Closed() {
		return
	}
	c.state = c.state.Copy(t, status)
	for _, child := range children {
		if child.State().Open() {
			child.Close(domain.OrderStatusCancelled, t)
		}
	}
}

const (
	ocoNone = iota
	ocoFirst
	ocoSecond
)

// ocoCommand runs two children until one of them fills; from then on only
// that child runs and the other is cancelled.
type ocoCommand struct {
	compositeState
	first, second OrderCommand
	active        int
}

func (c *ocoCommand) children() []OrderCommand { return []OrderCommand{c.first, c.second} }

func (c *ocoCommand) current() OrderCommand {
	switch c.active {
	case ocoFirst:
		return c.first
	case ocoSecond:
		return c.second
	}
	return nil
}

func (c *ocoCommand) Filled() decimal.Decimal {
	if cur := c.current(); cur != nil {
		return cur.Filled()
	}
	return decimal.Zero
}

func (c *ocoCommand) Remaining() decimal.Decimal {
	if cur := c.current(); cur != nil {
		return cur.Remaining()
	}
	return c.first.Remaining()
}

func (c *ocoCommand) Close(status domain.OrderStatus, t time.Time) {
	c.finish(status, t, c.children()...)
}

func (c *ocoCommand) Update(t time.Time) {
	if !c.accept(t) {
		return
	}
	if cur := c.current(); cur != nil {
		cur.Update(t)
	} else {
		c.first.Update(t)
		c.second.Update(t)
	}
	c.sync(t)
}

func (c *ocoCommand) Execute(p Pricing, t time.Time) []Execution {
	if !c.accept(t) {
		return nil
	}

	var execs []Execution
	switch c.active {
	case ocoNone:
		execs = c.first.Execute(p, t)
		if len(execs) > 0 {
			c.lock(ocoFirst, t)
			break
		}
		execs = c.second.Execute(p, t)
		if len(execs) > 0 {
			c.lock(ocoSecond, t)
		}
	default:
		execs = c.current().Execute(p, t)
	}
	c.sync(t)
	return execs
}

func (c *ocoCommand) lock(active int, t time.Time) {
	c.active = active
	other := c.second
	if active == ocoSecond {
		other = c.first
	}
	other.Close(domain.OrderStatusCancelled, t)
}

// sync mirrors the locked child onto the composite. Without a locked child
// the composite closes once both children are closed, taking the status of
// the second.
func (c *ocoCommand) sync(t time.Time) {
	if cur := c.current(); cur != nil {
		if cur.State().Closed() {
			c.finish(cur.State().Status, t)
		}
		return
	}
	if c.first.State().Closed() && c.second.State().Closed() {
		c.finish(c.second.State().Status, t)
	}
}

// otoCommand runs first; once first completes, second runs and the
// composite tracks it.
type otoCommand struct {
	compositeState
	first, second OrderCommand
}

func (c *otoCommand) Filled() decimal.Decimal {
	return c.first.Filled().Add(c.second.Filled())
}

func (c *otoCommand) Remaining() decimal.Decimal {
	return c.first.Remaining().Add(c.second.Remaining())
}

func (c *otoCommand) Close(status domain.OrderStatus, t time.Time) {
	c.finish(status, t, c.first, c.second)
}

func (c *otoCommand) triggered() bool {
	return c.first.State().Status == domain.OrderStatusCompleted
}

func (c *otoCommand) Update(t time.Time) {
	if !c.accept(t) {
		return
	}
	if c.triggered() {
		c.second.Update(t)
	} else {
		c.first.Update(t)
	}
	c.sync(t)
}

func (c *otoCommand) Execute(p Pricing, t time.Time) []Execution {
	if !c.accept(t) {
		return nil
	}

	var execs []Execution
	if !c.triggered() {
		execs = c.first.Execute(p, t)
	}
	if c.triggered() {
		execs = append(execs, c.second.Execute(p, t)...)
	}
	c.sync(t)
	return execs
}

func (c *otoCommand) sync(t time.Time) {
	first := c.first.State()
	switch {
	case first.Status.Aborted():
		c.finish(first.Status, t, c.second)
	case c.triggered() && c.second.State().Closed():
		c.finish(c.second.State().Status, t)
	}
}

// bracketCommand runs the entry order, then protects the position with a
// take-profit and a stop-loss leg. A leg is only attempted while the other
// has no fill.
type bracketCommand struct {
	compositeState
	entry, profit, loss OrderCommand
	armed               bool // legs sized to the entry fill
}

// Filled is the net position the bracket holds.
func (c *bracketCommand) Filled() decimal.Decimal {
	return c.entry.Filled().Add(c.profit.Filled()).Add(c.loss.Filled())
}

func (c *bracketCommand) Remaining() decimal.Decimal {
	return c.entry.Remaining()
}

func (c *bracketCommand) Close(status domain.OrderStatus, t time.Time) {
	c.finish(status, t, c.entry, c.profit, c.loss)
}

// entered reports whether the entry has closed holding a position.
func (c *bracketCommand) entered() bool {
	return c.entry.State().Closed() && !c.entry.Filled().IsZero()
}

// arm resizes the legs to offset a partial entry fill, once.
func (c *bracketCommand) arm() {
	if c.armed || !c.entered() {
		return
	}
	c.armed = true
	size := c.entry.Filled().Neg()
	for _, leg := range []OrderCommand{c.profit, c.loss} {
		if r, ok := leg.(resizer); ok && !leg.Order().Qty.Equal(size) {
			r.resize(size)
		}
	}
}

func (c *bracketCommand) Update(t time.Time) {
	if !c.accept(t) {
		return
	}
	if c.entry.State().Open() {
		c.entry.Update(t)
	}
	c.arm()
	if c.entered() {
		if c.loss.Filled().IsZero() {
			c.profit.Update(t)
		}
		if c.profit.Filled().IsZero() {
			c.loss.Update(t)
		}
	}
	c.sync(t)
}

func (c *bracketCommand) Execute(p Pricing, t time.Time) []Execution {
	if !c.accept(t) {
		return nil
	}

	var execs []Execution
	if c.entry.State().Open() {
		execs = c.entry.Execute(p, t)
	}
	c.arm()
	if c.entered() {
		if c.loss.Filled().IsZero() {
			execs = append(execs, c.profit.Execute(p, t)...)
		}
		if c.profit.Filled().IsZero() {
			execs = append(execs, c.loss.Execute(p, t)...)
		}
	}
	c.sync(t)
	return execs
}

// sync completes the bracket once the legs have flattened the entry fill.
// A leg that closes holding a fill, or both legs closing empty, closes the
// bracket with that leg's status (the stop-loss wins a tie). An entry that
// closes without any fill takes the legs down with it.
func (c *bracketCommand) sync(t time.Time) {
	entry := c.entry.State()
	if entry.Open() {
		return
	}
	if !c.entered() {
		c.finish(entry.Status, t, c.profit, c.loss)
		return
	}

	loss, profit := c.loss.State(), c.profit.State()
	switch {
	case c.Filled().IsZero():
		c.finish(domain.OrderStatusCompleted, t, c.profit, c.loss)
	case loss.Closed() && (profit.Closed() || !c.loss.Filled().IsZero()):
		c.finish(loss.Status, t, c.profit)
	case profit.Closed() && !c.profit.Filled().IsZero():
		c.finish(profit.Status, t, c.loss)
	}
}
