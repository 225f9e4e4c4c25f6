package domain

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order, derived from the sign of its
// quantity.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType tags the variant an Order represents.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
	OrderTypeCancel    OrderType = "cancel"
	OrderTypeOCO       OrderType = "oco"
	OrderTypeOTO       OrderType = "oto"
	OrderTypeBracket   OrderType = "bracket"
)

// TIFPolicy names a time-in-force policy.
type TIFPolicy string

const (
	TIFGoodTillCancelled TIFPolicy = "gtc"
	TIFDay               TIFPolicy = "day"
	TIFGoodTillDate      TIFPolicy = "gtd"
	TIFImmediateOrCancel TIFPolicy = "ioc"
	TIFFillOrKill        TIFPolicy = "fok"
)

// TimeInForce governs how long an order stays eligible to fill.
type TimeInForce struct {
	Policy TIFPolicy
	Until  time.Time // only used by TIFGoodTillDate
}

func GTC() TimeInForce { return TimeInForce{Policy: TIFGoodTillCancelled} }
func DAY() TimeInForce { return TimeInForce{Policy: TIFDay} }
func IOC() TimeInForce { return TimeInForce{Policy: TIFImmediateOrCancel} }
func FOK() TimeInForce { return TimeInForce{Policy: TIFFillOrKill} }

// GTD returns a good-till-date policy expiring after until.
func GTD(until time.Time) TimeInForce {
	return TimeInForce{Policy: TIFGoodTillDate, Until: until}
}

func (t TimeInForce) String() string {
	if t.Policy == TIFGoodTillDate {
		return fmt.Sprintf("gtd(%s)", t.Until.Format(time.RFC3339))
	}
	return string(t.Policy)
}

var orderIDs atomic.Int64

func nextOrderID() int64 {
	return orderIDs.Add(1)
}

// Order is an immutable trade intent. Type selects the variant; only the
// fields relevant to that variant are set.
//
// Composite orders (oco, oto, bracket) carry their children by value in
// Legs: [first, second] for oco and oto, [entry, takeProfit, stopLoss] for
// bracket. Their Asset is the asset of the first leg.
type Order struct {
	ID       int64
	Type     OrderType
	Asset    Asset
	Qty      decimal.Decimal // signed, positive buys
	Limit    decimal.Decimal
	Stop     decimal.Decimal
	TIF      TimeInForce
	CancelID int64 // target order of a cancel order
	Legs     []Order
	Tag      string
}

// NewMarketOrder returns a good-till-cancelled market order.
func NewMarketOrder(asset Asset, qty decimal.Decimal) Order {
	return Order{ID: nextOrderID(), Type: OrderTypeMarket, Asset: asset, Qty: qty, TIF: GTC()}
}

// NewLimitOrder returns a good-till-cancelled limit order.
func NewLimitOrder(asset Asset, qty, limit decimal.Decimal) Order {
	return Order{ID: nextOrderID(), Type: OrderTypeLimit, Asset: asset, Qty: qty, Limit: limit, TIF: GTC()}
}

// NewStopOrder returns a good-till-cancelled stop (market) order.
func NewStopOrder(asset Asset, qty, stop decimal.Decimal) Order {
	return Order{ID: nextOrderID(), Type: OrderTypeStop, Asset: asset, Qty: qty, Stop: stop, TIF: GTC()}
}

// NewStopLimitOrder returns a good-till-cancelled stop-limit order.
func NewStopLimitOrder(asset Asset, qty, stop, limit decimal.Decimal) Order {
	return Order{
		ID:    nextOrderID(),
		Type:  OrderTypeStopLimit,
		Asset: asset,
		Qty:   qty,
		Stop:  stop,
		Limit: limit,
		TIF:   GTC(),
	}
}

// NewCancelOrder returns an order cancelling target.
func NewCancelOrder(target OrderState) Order {
	return Order{ID: nextOrderID(), Type: OrderTypeCancel, Asset: target.Asset(), CancelID: target.ID()}
}

// NewOCOOrder returns a one-cancels-other order over first and second.
func NewOCOOrder(first, second Order) Order {
	return Order{ID: nextOrderID(), Type: OrderTypeOCO, Asset: first.Asset, Legs: []Order{first, second}}
}

// NewOTOOrder returns a one-triggers-other order: second starts once first
// completes.
func NewOTOOrder(first, second Order) Order {
	return Order{ID: nextOrderID(), Type: OrderTypeOTO, Asset: first.Asset, Legs: []Order{first, second}}
}

// NewBracketOrder returns an entry order protected by a take-profit and a
// stop-loss leg. Both legs must offset the entry quantity.
func NewBracketOrder(entry, takeProfit, stopLoss Order) Order {
	return Order{
		ID:    nextOrderID(),
		Type:  OrderTypeBracket,
		Asset: entry.Asset,
		Legs:  []Order{entry, takeProfit, stopLoss},
	}
}

// WithTIF returns a copy of o using tif.
func (o Order) WithTIF(tif TimeInForce) Order {
	o.TIF = tif
	return o
}

// WithTag returns a copy of o carrying tag.
func (o Order) WithTag(tag string) Order {
	o.Tag = tag
	return o
}

// Side returns buy for positive quantities and sell otherwise.
func (o Order) Side() OrderSide {
	if o.Qty.IsPositive() {
		return OrderSideBuy
	}
	return OrderSideSell
}

// Buy reports whether the order buys.
func (o Order) Buy() bool { return o.Qty.IsPositive() }

// Composite reports whether the order wraps child orders.
func (o Order) Composite() bool {
	return o.Type == OrderTypeOCO || o.Type == OrderTypeOTO || o.Type == OrderTypeBracket
}

// Single reports whether the order trades a quantity by itself.
func (o Order) Single() bool {
	switch o.Type {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit:
		return true
	}
	return false
}

func (o Order) leg(i int) Order {
	if i < len(o.Legs) {
		return o.Legs[i]
	}
	return Order{}
}

// First returns the first leg of an oco or oto order.
func (o Order) First() Order { return o.leg(0) }

// Second returns the second leg of an oco or oto order.
func (o Order) Second() Order { return o.leg(1) }

// Entry returns the entry leg of a bracket order.
func (o Order) Entry() Order { return o.leg(0) }

// TakeProfit returns the take-profit leg of a bracket order.
func (o Order) TakeProfit() Order { return o.leg(1) }

// StopLoss returns the stop-loss leg of a bracket order.
func (o Order) StopLoss() Order { return o.leg(2) }

// Validate checks the order is well formed. Errors wrap ErrInvalidOrder.
func (o Order) Validate() error {
	switch o.Type {
	case OrderTypeMarket:
		return o.validateSingle()
	case OrderTypeLimit:
		if !o.Limit.IsPositive() {
			return fmt.Errorf("order %d: limit price must be positive: %w", o.ID, ErrInvalidOrder)
		}
		return o.validateSingle()
	case OrderTypeStop:
		if !o.Stop.IsPositive() {
			return fmt.Errorf("order %d: stop price must be positive: %w", o.ID, ErrInvalidOrder)
		}
		return o.validateSingle()
	case OrderTypeStopLimit:
		if !o.Stop.IsPositive() || !o.Limit.IsPositive() {
			return fmt.Errorf("order %d: stop and limit prices must be positive: %w", o.ID, ErrInvalidOrder)
		}
		return o.validateSingle()
	case OrderTypeCancel:
		if o.CancelID == 0 {
			return fmt.Errorf("order %d: cancel without target: %w", o.ID, ErrInvalidOrder)
		}
		return nil
	case OrderTypeOCO, OrderTypeOTO:
		return o.validateLegs(2)
	case OrderTypeBracket:
		if err := o.validateLegs(3); err != nil {
			return err
		}
		entry, tp, sl := o.Entry(), o.TakeProfit(), o.StopLoss()
		if !entry.Single() || !tp.Single() || !sl.Single() {
			return fmt.Errorf("order %d: bracket legs must be single orders: %w", o.ID, ErrInvalidOrder)
		}
		if !tp.Qty.Equal(entry.Qty.Neg()) || !sl.Qty.Equal(entry.Qty.Neg()) {
			return fmt.Errorf("order %d: bracket legs must offset the entry quantity: %w", o.ID, ErrInvalidOrder)
		}
		return nil
	default:
		return fmt.Errorf("order %d: unknown type %q: %w", o.ID, o.Type, ErrInvalidOrder)
	}
}

func (o Order) validateSingle() error {
	if o.Qty.IsZero() {
		return fmt.Errorf("order %d: zero quantity: %w", o.ID, ErrInvalidOrder)
	}
	if o.TIF.Policy == TIFGoodTillDate && o.TIF.Until.IsZero() {
		return fmt.Errorf("order %d: gtd without date: %w", o.ID, ErrInvalidOrder)
	}
	return nil
}

func (o Order) validateLegs(n int) error {
	if len(o.Legs) != n {
		return fmt.Errorf("order %d: %s needs %d legs, got %d: %w", o.ID, o.Type, n, len(o.Legs), ErrInvalidOrder)
	}
	for _, leg := range o.Legs {
		if leg.Type == OrderTypeCancel {
			return fmt.Errorf("order %d: cancel orders cannot be legs: %w", o.ID, ErrInvalidOrder)
		}
		if leg.Asset != o.Asset {
			return fmt.Errorf("order %d: legs must share one asset: %w", o.ID, ErrInvalidOrder)
		}
		if err := leg.Validate(); err != nil {
			return err
		}
	}
	return nil
}
