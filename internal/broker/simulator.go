package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"tradesim/internal/account"
	"tradesim/internal/domain"
	"tradesim/internal/sim"
)

// Compile-time interface check.
var _ Broker = (*SimBroker)(nil)

// Option configures a SimBroker.
type Option func(*SimBroker)

// WithDeposit sets the initial cash. The currency of the first amount is the
// base currency unless WithBaseCurrency overrides it.
func WithDeposit(amounts ...domain.Amount) Option {
	return func(b *SimBroker) {
		b.deposit = domain.NewWallet(amounts...)
		b.base = firstCurrency(amounts, b.base)
	}
}

// WithBaseCurrency sets the reporting currency of the account.
func WithBaseCurrency(c domain.Currency) Option {
	return func(b *SimBroker) { b.baseOverride = c }
}

// WithAccountModel sets how buying power is derived.
func WithAccountModel(m account.AccountModel) Option {
	return func(b *SimBroker) { b.model = m }
}

// WithFeeModel sets the commission model.
func WithFeeModel(m sim.FeeModel) Option {
	return func(b *SimBroker) { b.fees = m }
}

// WithPricingEngine sets the pricing engine used to fill orders.
func WithPricingEngine(p sim.PricingEngine) Option {
	return func(b *SimBroker) { b.pricing = p }
}

// WithPriceType sets the price used to mark positions and value orders.
func WithPriceType(t domain.PriceType) Option {
	return func(b *SimBroker) { b.priceType = t }
}

// WithParticipation caps fills at a fraction of the traded volume.
func WithParticipation(fraction decimal.Decimal) Option {
	return func(b *SimBroker) { b.participation = fraction }
}

// WithConverter sets the currency converter for multi-currency accounts.
func WithConverter(c account.Converter) Option {
	return func(b *SimBroker) { b.converter = c }
}

// WithUniverse restricts trading to assets. Orders for other assets are
// rejected.
func WithUniverse(assets ...domain.Asset) Option {
	return func(b *SimBroker) {
		b.universe = make(map[domain.Asset]struct{}, len(assets))
		for _, a := range assets {
			b.universe[a] = struct{}{}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *SimBroker) { b.log = l }
}

func firstCurrency(amounts []domain.Amount, fallback domain.Currency) domain.Currency {
	if len(amounts) > 0 {
		return amounts[0].Currency
	}
	return fallback
}

// SimBroker simulates a broker for backtesting. It owns one ledger and one
// execution engine and must be driven from a single goroutine.
type SimBroker struct {
	deposit       domain.Wallet
	base          domain.Currency
	baseOverride  domain.Currency
	model         account.AccountModel
	fees          sim.FeeModel
	pricing       sim.PricingEngine
	priceType     domain.PriceType
	participation decimal.Decimal
	converter     account.Converter
	universe      map[domain.Asset]struct{}
	log           *slog.Logger

	account    *account.InternalAccount
	engine     *sim.ExecutionEngine
	lastPrices map[domain.Asset]decimal.Decimal
}

// NewSimBroker creates a SimBroker. Without options it starts with
// USD 1,000,000 on a cash account, without fees, filling at the default
// price of each action.
func NewSimBroker(opts ...Option) *SimBroker {
	b := &SimBroker{
		deposit:   domain.NewWallet(domain.NewAmount(domain.USD, 1_000_000)),
		base:      domain.USD,
		model:     account.CashAccount{},
		fees:      sim.NoFeeModel{},
		priceType: domain.PriceTypeDefault,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.baseOverride != "" {
		b.base = b.baseOverride
	}
	if b.pricing == nil {
		b.pricing = sim.NoCostPricingEngine{PriceType: b.priceType}
	}
	b.log = b.log.With("component", "broker", "broker", b.Name())
	b.Reset()
	return b
}

// Name returns "sim".
func (b *SimBroker) Name() string {
	return "sim"
}

// Reset restores the initial deposit and drops every order, position and
// trade.
func (b *SimBroker) Reset() {
	b.account = account.NewInternalAccount(b.base, b.converter)
	b.account.Cash = b.deposit.Clone()
	b.engine = sim.NewExecutionEngine(
		sim.WithPricing(b.pricing),
		sim.WithParticipation(b.participation),
	)
	b.lastPrices = make(map[domain.Asset]decimal.Decimal)
	if bp, err := b.model.BuyingPower(b.account); err == nil {
		b.account.BuyingPower = bp
	}
}

// Account returns a snapshot of the current account.
func (b *SimBroker) Account() (account.Account, error) {
	return b.account.Snapshot()
}

// Place implements Broker.
func (b *SimBroker) Place(ctx context.Context, orders []domain.Order, event domain.Event) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}

	b.markPrices(event)
	if err := b.updateBuyingPower(); err != nil {
		return account.Account{}, err
	}

	accepted, rejected := b.validate(orders, event)
	if err := b.account.PutOrders(rejected...); err != nil {
		return account.Account{}, err
	}
	for _, o := range accepted {
		if err := b.engine.Add(o); err != nil {
			return account.Account{}, fmt.Errorf("placing order %d: %w", o.ID, err)
		}
	}

	execs, err := b.engine.Execute(event)
	if err != nil {
		return account.Account{}, fmt.Errorf("executing orders at %s: %w", event.Time, err)
	}
	for _, exec := range execs {
		if err := b.book(exec); err != nil {
			return account.Account{}, err
		}
	}

	if err := b.account.PutOrders(b.engine.RemoveClosed()...); err != nil {
		return account.Account{}, err
	}
	if err := b.account.PutOrders(b.engine.OrderStates()...); err != nil {
		return account.Account{}, err
	}

	b.markPrices(event)
	if err := b.updateBuyingPower(); err != nil {
		return account.Account{}, err
	}
	return b.account.Snapshot()
}

func (b *SimBroker) book(exec sim.Execution) error {
	fee, err := b.fees.Fee(exec)
	if err != nil {
		return fmt.Errorf("fee for order %d: %w", exec.OrderID, err)
	}
	tr := b.account.ApplyTrade(domain.Trade{
		Time:    exec.Time,
		Asset:   exec.Asset,
		Qty:     exec.Qty,
		Price:   exec.Price,
		Fee:     fee,
		OrderID: exec.OrderID,
	})
	b.log.Debug("trade",
		"order", tr.OrderID,
		"asset", tr.Asset.Symbol,
		"qty", tr.Qty.String(),
		"price", tr.Price.String(),
		"pnl", tr.PNL.String(),
	)
	return nil
}

func (b *SimBroker) markPrices(event domain.Event) {
	for asset, action := range event.Prices() {
		b.lastPrices[asset] = action.Price(b.priceType)
	}
	b.account.UpdateMarketPrices(event, b.priceType)
}

func (b *SimBroker) updateBuyingPower() error {
	bp, err := b.model.BuyingPower(b.account)
	if err != nil {
		return fmt.Errorf("buying power: %w", err)
	}
	b.account.BuyingPower = bp
	return nil
}
