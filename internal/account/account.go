// Package account keeps the per-run ledger of cash, positions, orders and
// trades, and derives buying power from it through an AccountModel.
package account

import (
	"fmt"
	"sort"
	"time"

	"tradesim/internal/domain"
)

// InternalAccount is the mutable ledger of a single run. It is owned by one
// broker and never shared between goroutines.
type InternalAccount struct {
	BaseCurrency domain.Currency
	Cash         domain.Wallet
	Positions    map[domain.Asset]domain.Position
	OpenOrders   map[int64]domain.OrderState
	ClosedOrders []domain.OrderState
	Trades       []domain.Trade
	BuyingPower  domain.Amount
	LastUpdate   time.Time

	closedIDs map[int64]struct{}
	converter Converter
}

// NewInternalAccount returns an empty ledger reporting in base. converter
// may be nil when every asset trades in the base currency.
func NewInternalAccount(base domain.Currency, converter Converter) *InternalAccount {
	return &InternalAccount{
		BaseCurrency: base,
		Positions:    make(map[domain.Asset]domain.Position),
		OpenOrders:   make(map[int64]domain.OrderState),
		BuyingPower:  domain.Amount{Currency: base},
		closedIDs:    make(map[int64]struct{}),
		converter:    converter,
	}
}

// PutOrders records order states. Open states replace earlier ones; closed
// states move the order to the closed history. An open state for an order
// that is already closed is an invariant violation.
func (a *InternalAccount) PutOrders(states ...domain.OrderState) error {
	for _, s := range states {
		id := s.ID()
		if _, closed := a.closedIDs[id]; closed {
			if s.Open() {
				return fmt.Errorf("order %d reopened as %s: %w", id, s.Status, domain.ErrInvariant)
			}
			continue
		}
		if s.Closed() {
			delete(a.OpenOrders, id)
			a.closedIDs[id] = struct{}{}
			a.ClosedOrders = append(a.ClosedOrders, s)
			continue
		}
		a.OpenOrders[id] = s
	}
	return nil
}

// HasOpenOrders reports whether any open order trades asset.
func (a *InternalAccount) HasOpenOrders(asset domain.Asset) bool {
	for _, s := range a.OpenOrders {
		if s.Asset() == asset {
			return true
		}
	}
	return false
}

// ApplyTrade books tr: cash moves by the trade value and fee, the position
// is updated and the realized profit is filled in. It returns the booked
// trade.
func (a *InternalAccount) ApplyTrade(tr domain.Trade) domain.Trade {
	pos, ok := a.Positions[tr.Asset]
	if !ok {
		pos = domain.Position{Asset: tr.Asset}
	}
	pos, tr.PNL = pos.Apply(tr.Qty, tr.Price)
	pos.LastUpdate = tr.Time

	if pos.Closed() {
		delete(a.Positions, tr.Asset)
	} else {
		a.Positions[tr.Asset] = pos
	}

	a.Cash.Withdraw(tr.Value())
	a.Cash.Withdraw(tr.FeeAmount())
	a.Trades = append(a.Trades, tr)
	return tr
}

// UpdateMarketPrices marks every position with a price in event.
func (a *InternalAccount) UpdateMarketPrices(event domain.Event, priceType domain.PriceType) {
	prices := event.Prices()
	for asset, pos := range a.Positions {
		action, ok := prices[asset]
		if !ok {
			continue
		}
		pos.MktPrice = action.Price(priceType)
		pos.LastUpdate = event.Time
		a.Positions[asset] = pos
	}
	if event.Time.After(a.LastUpdate) {
		a.LastUpdate = event.Time
	}
}

// Convert expresses amount in the base currency at the last update time.
func (a *InternalAccount) Convert(amount domain.Amount) (domain.Amount, error) {
	if amount.Currency == a.BaseCurrency {
		return amount, nil
	}
	if a.converter == nil {
		return domain.Amount{}, fmt.Errorf("converting %s to %s: %w", amount.Currency, a.BaseCurrency, domain.ErrNoConversion)
	}
	return a.converter.Convert(amount, a.BaseCurrency, a.LastUpdate)
}

func (a *InternalAccount) sum(amounts []domain.Amount) (domain.Amount, error) {
	total := domain.Amount{Currency: a.BaseCurrency}
	for _, amt := range amounts {
		v, err := a.Convert(amt)
		if err != nil {
			return total, err
		}
		total = total.Add(v)
	}
	return total, nil
}

func (a *InternalAccount) positionSum(include func(domain.Position) bool, value func(domain.Position) domain.Amount) (domain.Amount, error) {
	var amounts []domain.Amount
	for _, p := range a.Positions {
		if include(p) {
			amounts = append(amounts, value(p))
		}
	}
	return a.sum(amounts)
}

func all(domain.Position) bool { return true }

// CashValue is the total cash in the base currency.
func (a *InternalAccount) CashValue() (domain.Amount, error) {
	return a.sum(a.Cash.Amounts())
}

// MarketValue is the signed market value of all positions.
func (a *InternalAccount) MarketValue() (domain.Amount, error) {
	return a.positionSum(all, domain.Position.MarketValue)
}

// LongExposure is the market value of the long positions.
func (a *InternalAccount) LongExposure() (domain.Amount, error) {
	return a.positionSum(domain.Position.Long, domain.Position.Exposure)
}

// ShortExposure is the absolute market value of the short positions.
func (a *InternalAccount) ShortExposure() (domain.Amount, error) {
	return a.positionSum(domain.Position.Short, domain.Position.Exposure)
}

// Equity is cash plus the market value of all positions.
func (a *InternalAccount) Equity() (domain.Amount, error) {
	cash, err := a.CashValue()
	if err != nil {
		return cash, err
	}
	mv, err := a.MarketValue()
	if err != nil {
		return mv, err
	}
	return cash.Add(mv), nil
}

// Snapshot returns an immutable copy of the ledger.
func (a *InternalAccount) Snapshot() (Account, error) {
	equity, err := a.Equity()
	if err != nil {
		return Account{}, fmt.Errorf("valuing account: %w", err)
	}

	positions := make([]domain.Position, 0, len(a.Positions))
	for _, p := range a.Positions {
		positions = append(positions, p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Asset.Symbol < positions[j].Asset.Symbol })

	open := make([]domain.OrderState, 0, len(a.OpenOrders))
	for _, s := range a.OpenOrders {
		open = append(open, s)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID() < open[j].ID() })

	return Account{
		BaseCurrency: a.BaseCurrency,
		LastUpdate:   a.LastUpdate,
		Cash:         a.Cash.Clone(),
		BuyingPower:  a.BuyingPower,
		Equity:       equity,
		Positions:    positions,
		OpenOrders:   open,
		ClosedOrders: append([]domain.OrderState(nil), a.ClosedOrders...),
		Trades:       append([]domain.Trade(nil), a.Trades...),
	}, nil
}

// Account is a point-in-time view of an InternalAccount.
type Account struct {
	BaseCurrency domain.Currency
	LastUpdate   time.Time
	Cash         domain.Wallet
	BuyingPower  domain.Amount
	Equity       domain.Amount
	Positions    []domain.Position
	OpenOrders   []domain.OrderState
	ClosedOrders []domain.OrderState
	Trades       []domain.Trade
}

// Position returns the open position in asset.
func (a Account) Position(asset domain.Asset) (domain.Position, bool) {
	for _, p := range a.Positions {
		if p.Asset == asset {
			return p, true
		}
	}
	return domain.Position{}, false
}

// RealizedPNL sums the realized profit of all trades per currency.
func (a Account) RealizedPNL() domain.Wallet {
	var w domain.Wallet
	for _, tr := range a.Trades {
		w.Deposit(tr.PNLAmount())
	}
	return w
}

// Fees sums the fees of all trades per currency.
func (a Account) Fees() domain.Wallet {
	var w domain.Wallet
	for _, tr := range a.Trades {
		w.Deposit(tr.FeeAmount())
	}
	return w
}

// DayTrades returns the trades executed on the same calendar day as t in
// t's location.
func (a Account) DayTrades(t time.Time) []domain.Trade {
	y, m, d := t.Date()
	var out []domain.Trade
	for _, tr := range a.Trades {
		ty, tm, td := tr.Time.In(t.Location()).Date()
		if ty == y && tm == m && td == d {
			out = append(out, tr)
		}
	}
	return out
}
