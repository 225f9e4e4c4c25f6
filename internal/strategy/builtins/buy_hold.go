package builtins

import (
	"context"

	"tradesim/internal/domain"
	"tradesim/internal/strategy"
)

var _ strategy.Strategy = (*BuyAndHold)(nil)

// BuyAndHoldName is the registry name of BuyAndHold.
const BuyAndHoldName = "buy-and-hold"

// BuyAndHold emits one buy signal per asset, the first time it is priced.
// It is the usual benchmark for other strategies.
type BuyAndHold struct {
	bought map[domain.Asset]bool
	nextID int64
}

// NewBuyAndHold returns a buy-and-hold strategy.
func NewBuyAndHold() *BuyAndHold {
	return &BuyAndHold{bought: make(map[domain.Asset]bool)}
}

func (b *BuyAndHold) Name() string { return BuyAndHoldName }

func (b *BuyAndHold) Init(_ context.Context) error {
	b.bought = make(map[domain.Asset]bool)
	b.nextID = 0
	return nil
}

func (b *BuyAndHold) Generate(_ context.Context, event domain.Event) ([]domain.Signal, error) {
	var signals []domain.Signal
	for _, a := range event.Actions {
		if b.bought[a.Asset] {
			continue
		}
		b.bought[a.Asset] = true
		b.nextID++
		signals = append(signals, domain.Signal{
			ID:         b.nextID,
			StrategyID: BuyAndHoldName,
			Asset:      a.Asset,
			Type:       domain.SignalTypeBuy,
			Strength:   1,
			CreatedAt:  event.Time,
		})
	}
	return signals, nil
}

// Register adds every builtin strategy to r.
func Register(r *strategy.Registry) {
	r.Register(SMACrossName, newSMACross)
	r.Register(BuyAndHoldName, func(strategy.Params) (strategy.Strategy, error) {
		return NewBuyAndHold(), nil
	})
}

// Registry returns a registry holding the builtin strategies.
func Registry() *strategy.Registry {
	r := strategy.NewRegistry()
	Register(r)
	return r
}
