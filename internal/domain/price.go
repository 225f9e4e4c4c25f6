package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceType selects which price of an action to use.
type PriceType string

const (
	PriceTypeDefault PriceType = "default"
	PriceTypeOpen    PriceType = "open"
	PriceTypeHigh    PriceType = "high"
	PriceTypeLow     PriceType = "low"
	PriceTypeClose   PriceType = "close"
	PriceTypeTypical PriceType = "typical"
)

// PriceKind tags the shape of a PriceAction.
type PriceKind string

const (
	PriceKindTrade PriceKind = "trade"
	PriceKindBar   PriceKind = "bar"
	PriceKindQuote PriceKind = "quote"
)

var three = decimal.NewFromInt(3)
var two = decimal.NewFromInt(2)

// PriceAction is a single price observation for one asset.
type PriceAction struct {
	Asset  Asset
	Kind   PriceKind
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Volume decimal.Decimal
}

// NewTradePrice returns a trade print at price.
func NewTradePrice(asset Asset, price, volume decimal.Decimal) PriceAction {
	return PriceAction{
		Asset:  asset,
		Kind:   PriceKindTrade,
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
		Volume: volume,
	}
}

// NewPriceBar returns an OHLCV bar.
func NewPriceBar(asset Asset, open, high, low, close, volume decimal.Decimal) PriceAction {
	return PriceAction{
		Asset:  asset,
		Kind:   PriceKindBar,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: volume,
	}
}

// NewPriceQuote returns a top-of-book quote.
func NewPriceQuote(asset Asset, ask, bid, volume decimal.Decimal) PriceAction {
	return PriceAction{
		Asset:  asset,
		Kind:   PriceKindQuote,
		Ask:    ask,
		Bid:    bid,
		Volume: volume,
	}
}

// Price returns the price of the requested type. Quotes use the mid price
// by default, the ask as high and the bid as low.
func (p PriceAction) Price(t PriceType) decimal.Decimal {
	if p.Kind == PriceKindQuote {
		switch t {
		case PriceTypeHigh:
			return p.Ask
		case PriceTypeLow:
			return p.Bid
		default:
			return p.Ask.Add(p.Bid).Div(two)
		}
	}
	switch t {
	case PriceTypeOpen:
		return p.Open
	case PriceTypeHigh:
		return p.High
	case PriceTypeLow:
		return p.Low
	case PriceTypeTypical:
		return p.High.Add(p.Low).Add(p.Close).Div(three)
	default:
		return p.Close
	}
}

// Event is the set of price actions observed at one moment in time.
type Event struct {
	Time    time.Time
	Actions []PriceAction
}

// NewEvent returns an event at t.
func NewEvent(t time.Time, actions ...PriceAction) Event {
	return Event{Time: t, Actions: actions}
}

// Price returns the last action for asset in the event.
func (e Event) Price(asset Asset) (PriceAction, bool) {
	for i := len(e.Actions) - 1; i >= 0; i-- {
		if e.Actions[i].Asset == asset {
			return e.Actions[i], true
		}
	}
	return PriceAction{}, false
}

// Prices returns the actions keyed by asset; later actions win.
func (e Event) Prices() map[Asset]PriceAction {
	out := make(map[Asset]PriceAction, len(e.Actions))
	for _, a := range e.Actions {
		out[a.Asset] = a
	}
	return out
}

// Bar is an OHLCV bar as stored on disk.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Action converts the bar into a PriceAction for asset.
func (b Bar) Action(asset Asset) PriceAction {
	return NewPriceBar(
		asset,
		decimal.NewFromFloat(b.Open),
		decimal.NewFromFloat(b.High),
		decimal.NewFromFloat(b.Low),
		decimal.NewFromFloat(b.Close),
		decimal.NewFromInt(b.Volume),
	)
}

// Timeframe is the half-open interval [Start, End). A zero bound is
// unbounded on that side.
type Timeframe struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the timeframe.
func (tf Timeframe) Contains(t time.Time) bool {
	if !tf.Start.IsZero() && t.Before(tf.Start) {
		return false
	}
	if !tf.End.IsZero() && !t.Before(tf.End) {
		return false
	}
	return true
}
