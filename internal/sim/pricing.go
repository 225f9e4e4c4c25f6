// Package sim simulates order execution. OrderCommands drive single and
// composite orders through their lifecycle against priced events; the
// ExecutionEngine is the per-run arena that owns them.
//
// Nothing in this package is safe for concurrent use. A run owns its engine.
package sim

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
)

var bipsDivisor = decimal.NewFromInt(10_000)

// Pricing quotes the prices an order of a given size could trade at for a
// single price action.
type Pricing interface {
	// MarketPrice is the price a market order of qty fills at.
	MarketPrice(qty decimal.Decimal) decimal.Decimal
	// LowPrice is the lowest price seen, used to trigger buy limits and sell stops.
	LowPrice(qty decimal.Decimal) decimal.Decimal
	// HighPrice is the highest price seen, used to trigger sell limits and buy stops.
	HighPrice(qty decimal.Decimal) decimal.Decimal
	// Volume is the traded volume of the action, zero when unknown.
	Volume() decimal.Decimal
}

// PricingEngine turns a price action into a Pricing.
type PricingEngine interface {
	Pricing(action domain.PriceAction, t time.Time) (Pricing, error)
}

type actionPricing struct {
	market, low, high, volume decimal.Decimal
	spread                    decimal.Decimal // fraction applied against the order
}

func (p actionPricing) MarketPrice(qty decimal.Decimal) decimal.Decimal {
	if p.spread.IsZero() {
		return p.market
	}
	adj := p.market.Mul(p.spread)
	if qty.IsNegative() {
		return p.market.Sub(adj)
	}
	return p.market.Add(adj)
}

func (p actionPricing) LowPrice(decimal.Decimal) decimal.Decimal  { return p.low }
func (p actionPricing) HighPrice(decimal.Decimal) decimal.Decimal { return p.high }
func (p actionPricing) Volume() decimal.Decimal                   { return p.volume }

func newActionPricing(action domain.PriceAction, priceType domain.PriceType) (actionPricing, error) {
	p := actionPricing{
		market: action.Price(priceType),
		low:    action.Price(domain.PriceTypeLow),
		high:   action.Price(domain.PriceTypeHigh),
		volume: action.Volume,
	}
	if !p.market.IsPositive() {
		return p, fmt.Errorf("pricing %s: non-positive %s price %s", action.Asset, priceType, p.market)
	}
	return p, nil
}

// NoCostPricingEngine fills market orders at the selected price of the
// action with no spread or slippage.
type NoCostPricingEngine struct {
	PriceType domain.PriceType
}

// Pricing implements PricingEngine.
func (e NoCostPricingEngine) Pricing(action domain.PriceAction, _ time.Time) (Pricing, error) {
	return newActionPricing(action, e.PriceType)
}

// SpreadPricingEngine moves the market price against the order by Bips
// basis points: buys pay more and sells receive less. Trigger prices for
// limit and stop orders are not adjusted.
type SpreadPricingEngine struct {
	Bips      decimal.Decimal
	PriceType domain.PriceType
}

// Pricing implements PricingEngine.
func (e SpreadPricingEngine) Pricing(action domain.PriceAction, _ time.Time) (Pricing, error) {
	p, err := newActionPricing(action, e.PriceType)
	if err != nil {
		return nil, err
	}
	p.spread = e.Bips.Div(bipsDivisor)
	return p, nil
}
