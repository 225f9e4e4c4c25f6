// Package builtins provides built-in strategy implementations that ship with
// tradesim.
package builtins

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"tradesim/internal/domain"
	"tradesim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACrossName is the registry name of SMACross.
const SMACrossName = "sma-cross"

// SMACross implements a simple moving average crossover strategy. It generates
// a buy signal when the short-period SMA crosses above the long-period SMA,
// and a sell signal when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	series      map[domain.Asset]*smaSeries
	nextID      int64
}

type smaSeries struct {
	closes []decimal.Decimal // at most longPeriod, oldest first
	ready  bool
	above  bool
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods.
func NewSMACross(short, long int) (*SMACross, error) {
	if short <= 0 || long <= short {
		return nil, fmt.Errorf("sma-cross: need 0 < short < long, got short=%d long=%d", short, long)
	}
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
		series:      make(map[domain.Asset]*smaSeries),
	}, nil
}

func newSMACross(p strategy.Params) (strategy.Strategy, error) {
	return NewSMACross(int(p.Get("short", 5)), int(p.Get("long", 20)))
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return SMACrossName
}

// Init resets the price history.
func (s *SMACross) Init(_ context.Context) error {
	s.series = make(map[domain.Asset]*smaSeries)
	s.nextID = 0
	return nil
}

// Generate appends each asset's close to its history and signals on
// crossovers. The first time both averages are available only records the
// current side.
func (s *SMACross) Generate(_ context.Context, event domain.Event) ([]domain.Signal, error) {
	prices := event.Prices()
	assets := make([]domain.Asset, 0, len(prices))
	for a := range prices {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Symbol < assets[j].Symbol })

	var signals []domain.Signal
	for _, asset := range assets {
		sig, ok := s.update(asset, prices[asset].Price(domain.PriceTypeClose), event)
		if ok {
			signals = append(signals, sig)
		}
	}
	return signals, nil
}

func (s *SMACross) update(asset domain.Asset, price decimal.Decimal, event domain.Event) (domain.Signal, bool) {
	ser, ok := s.series[asset]
	if !ok {
		ser = &smaSeries{closes: make([]decimal.Decimal, 0, s.longPeriod)}
		s.series[asset] = ser
	}
	if len(ser.closes) == s.longPeriod {
		ser.closes = append(ser.closes[:0], ser.closes[1:]...)
	}
	ser.closes = append(ser.closes, price)
	if len(ser.closes) < s.longPeriod {
		return domain.Signal{}, false
	}

	short := mean(ser.closes[s.longPeriod-s.shortPeriod:])
	long := mean(ser.closes)
	if short.Equal(long) {
		return domain.Signal{}, false
	}
	above := short.GreaterThan(long)
	if !ser.ready {
		ser.ready, ser.above = true, above
		return domain.Signal{}, false
	}
	if above == ser.above {
		return domain.Signal{}, false
	}
	ser.above = above

	typ := domain.SignalTypeSell
	if above {
		typ = domain.SignalTypeBuy
	}
	strength := short.Sub(long).Abs().Div(long).InexactFloat64()
	s.nextID++
	return domain.Signal{
		ID:         s.nextID,
		StrategyID: SMACrossName,
		Asset:      asset,
		Type:       typ,
		Strength:   min(strength, 1),
		Metadata: map[string]string{
			"short_sma": short.StringFixed(4),
			"long_sma":  long.StringFixed(4),
		},
		CreatedAt: event.Time,
	}, true
}

func mean(xs []decimal.Decimal) decimal.Decimal {
	return decimal.Sum(xs[0], xs[1:]...).Div(decimal.NewFromInt(int64(len(xs))))
}
