package sim

import (
	"fmt"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
	"tradesim/internal/util"
)

type activeEntry struct {
	seq uint64
	cmd OrderCommand
}

func activeLess(a, b activeEntry) bool { return a.seq < b.seq }

// Option configures an ExecutionEngine.
type Option func(*ExecutionEngine)

// WithPricing sets the pricing engine. The default fills at the default
// price of each action without cost.
func WithPricing(p PricingEngine) Option {
	return func(e *ExecutionEngine) { e.pricing = p }
}

// WithParticipation caps every fill at fraction of the action volume. Zero
// disables the cap.
func WithParticipation(fraction decimal.Decimal) Option {
	return func(e *ExecutionEngine) { e.participation = fraction }
}

// ExecutionEngine is the arena owning every command of a run. Top-level
// orders sit in an active set ordered by placement; composite children are
// registered in the arena so cancels can reach them, but only run through
// their parent.
type ExecutionEngine struct {
	pricing       PricingEngine
	participation decimal.Decimal
	calendars     map[domain.Market]*util.TradingCalendar

	commands map[int64]OrderCommand
	children map[int64][]int64
	seen     map[int64]struct{}
	active   *btree.BTreeG[activeEntry]
	seq      uint64
}

// NewExecutionEngine returns an empty engine.
func NewExecutionEngine(opts ...Option) *ExecutionEngine {
	const degree = 16
	e := &ExecutionEngine{
		pricing:   NoCostPricingEngine{PriceType: domain.PriceTypeDefault},
		calendars: make(map[domain.Market]*util.TradingCalendar),
		commands:  make(map[int64]OrderCommand),
		children:  make(map[int64][]int64),
		seen:      make(map[int64]struct{}),
		active:    btree.NewG[activeEntry](degree, activeLess),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Add places order in the active set. Placing an order id twice, including
// after it closed, is an invariant violation.
func (e *ExecutionEngine) Add(order domain.Order) error {
	if err := e.checkIDs(order, make(map[int64]struct{})); err != nil {
		return err
	}
	cmd, err := e.newCommand(order)
	if err != nil {
		return err
	}
	e.seq++
	e.active.ReplaceOrInsert(activeEntry{seq: e.seq, cmd: cmd})
	return nil
}

func (e *ExecutionEngine) checkIDs(order domain.Order, ids map[int64]struct{}) error {
	_, placed := e.seen[order.ID]
	_, repeated := ids[order.ID]
	if placed || repeated {
		return fmt.Errorf("order %d placed twice: %w", order.ID, domain.ErrInvariant)
	}
	ids[order.ID] = struct{}{}
	for _, leg := range order.Legs {
		if err := e.checkIDs(leg, ids); err != nil {
			return err
		}
	}
	return nil
}

func (e *ExecutionEngine) newCommand(order domain.Order) (OrderCommand, error) {
	var cmd OrderCommand
	switch order.Type {
	case domain.OrderTypeMarket, domain.OrderTypeLimit, domain.OrderTypeStop, domain.OrderTypeStopLimit:
		cmd = newSingleCommand(order, e.participation, e.calendar(order.Asset.Market))
	case domain.OrderTypeCancel:
		cmd = &cancelCommand{state: domain.NewOrderState(order), lookup: e.Command}
	case domain.OrderTypeOCO, domain.OrderTypeOTO, domain.OrderTypeBracket:
		legs := make([]OrderCommand, len(order.Legs))
		for i, leg := range order.Legs {
			c, err := e.newCommand(leg)
			if err != nil {
				return nil, err
			}
			legs[i] = c
			e.children[order.ID] = append(e.children[order.ID], leg.ID)
		}
		composite := compositeState{state: domain.NewOrderState(order)}
		switch {
		case order.Type == domain.OrderTypeOCO && len(legs) == 2:
			cmd = &ocoCommand{compositeState: composite, first: legs[0], second: legs[1]}
		case order.Type == domain.OrderTypeOTO && len(legs) == 2:
			cmd = &otoCommand{compositeState: composite, first: legs[0], second: legs[1]}
		case order.Type == domain.OrderTypeBracket && len(legs) == 3:
			cmd = &bracketCommand{compositeState: composite, entry: legs[0], profit: legs[1], loss: legs[2]}
		default:
			return nil, fmt.Errorf("order %d: %s with %d legs: %w", order.ID, order.Type, len(legs), domain.ErrInvariant)
		}
	default:
		return nil, fmt.Errorf("order %d: no command for type %q: %w", order.ID, order.Type, domain.ErrInvariant)
	}
	e.commands[order.ID] = cmd
	e.seen[order.ID] = struct{}{}
	return cmd, nil
}

func (e *ExecutionEngine) calendar(m domain.Market) *util.TradingCalendar {
	cal, ok := e.calendars[m]
	if !ok {
		cal = util.NewTradingCalendar(m)
		e.calendars[m] = cal
	}
	return cal
}

// Command returns the command driving order id, including composite
// children. Evicted orders are no longer reachable.
func (e *ExecutionEngine) Command(id int64) (OrderCommand, bool) {
	cmd, ok := e.commands[id]
	return cmd, ok
}

// Execute runs every active command against event. Cancels run first; the
// rest run in placement order. Commands whose asset has no price in the
// event only get a time update.
func (e *ExecutionEngine) Execute(event domain.Event) ([]Execution, error) {
	t := event.Time
	prices := event.Prices()

	e.active.Ascend(func(entry activeEntry) bool {
		if entry.cmd.Order().Type == domain.OrderTypeCancel {
			entry.cmd.Update(t)
		}
		return true
	})

	var (
		execs []Execution
		err   error
	)
	e.active.Ascend(func(entry activeEntry) bool {
		cmd := entry.cmd
		if cmd.Order().Type == domain.OrderTypeCancel || cmd.State().Closed() {
			return true
		}
		action, ok := prices[cmd.Order().Asset]
		if !ok {
			cmd.Update(t)
			return true
		}
		var p Pricing
		p, err = e.pricing.Pricing(action, t)
		if err != nil {
			err = fmt.Errorf("pricing order %d: %w", cmd.Order().ID, err)
			return false
		}
		execs = append(execs, cmd.Execute(p, t)...)
		return true
	})
	return execs, err
}

// OrderStates returns the state of every active top-level order in
// placement order.
func (e *ExecutionEngine) OrderStates() []domain.OrderState {
	out := make([]domain.OrderState, 0, e.active.Len())
	e.active.Ascend(func(entry activeEntry) bool {
		out = append(out, entry.cmd.State())
		return true
	})
	return out
}

// RemoveClosed evicts closed top-level orders and their children from the
// arena and returns their final states in placement order.
func (e *ExecutionEngine) RemoveClosed() []domain.OrderState {
	var closed []activeEntry
	e.active.Ascend(func(entry activeEntry) bool {
		if entry.cmd.State().Closed() {
			closed = append(closed, entry)
		}
		return true
	})

	out := make([]domain.OrderState, 0, len(closed))
	for _, entry := range closed {
		e.active.Delete(entry)
		e.evict(entry.cmd.Order().ID)
		out = append(out, entry.cmd.State())
	}
	return out
}

func (e *ExecutionEngine) evict(id int64) {
	for _, child := range e.children[id] {
		e.evict(child)
	}
	delete(e.children, id)
	delete(e.commands, id)
}

// Len returns the number of active top-level orders.
func (e *ExecutionEngine) Len() int { return e.active.Len() }

// Clear drops every command. Ids placed before stay reserved.
func (e *ExecutionEngine) Clear() {
	e.active.Clear(false)
	clear(e.commands)
	clear(e.children)
}
