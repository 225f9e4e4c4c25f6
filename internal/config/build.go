package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/internal/account"
	"tradesim/internal/broker"
	"tradesim/internal/domain"
	"tradesim/internal/engine"
	"tradesim/internal/jobs"
	"tradesim/internal/sim"
	"tradesim/internal/util"
)

const dateLayout = "2006-01-02"

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// BrokerOptions translates the simulation section into SimBroker options.
func (c *Config) BrokerOptions() []broker.Option {
	s := c.Simulation
	base := domain.Currency(strings.ToUpper(s.BaseCurrency))
	opts := []broker.Option{
		broker.WithDeposit(domain.Amount{Currency: base, Value: dec(s.Deposit)}),
		broker.WithBaseCurrency(base),
		broker.WithPriceType(domain.PriceType(s.PriceType)),
		broker.WithParticipation(dec(s.Participation)),
	}

	switch s.AccountModel {
	case "margin":
		opts = append(opts, broker.WithAccountModel(account.MarginAccount{
			Leverage:         dec(s.Leverage),
			MaintenanceLong:  dec(s.Maintenance),
			MaintenanceShort: dec(s.Maintenance),
			MinimumEquity:    dec(s.MinimumEquity),
		}))
	default:
		opts = append(opts, broker.WithAccountModel(account.CashAccount{Minimum: dec(s.MinimumEquity)}))
	}

	if s.FeeBips > 0 || s.FeeMinimum > 0 {
		opts = append(opts, broker.WithFeeModel(sim.PercentageFeeModel{Bips: dec(s.FeeBips), Minimum: dec(s.FeeMinimum)}))
	}
	if s.SpreadBips > 0 {
		opts = append(opts, broker.WithPricingEngine(sim.SpreadPricingEngine{
			Bips:      dec(s.SpreadBips),
			PriceType: domain.PriceType(s.PriceType),
		}))
	}
	if len(s.Rates) > 0 {
		rates := make(account.FixedRates, len(s.Rates))
		for cur, v := range s.Rates {
			rates[domain.Currency(strings.ToUpper(cur))] = dec(v)
		}
		opts = append(opts, broker.WithConverter(rates))
	}
	return opts
}

// Policy builds the order policy from the trading section.
func (c *Config) Policy() engine.DefaultPolicy {
	t := c.Trading
	p := engine.DefaultPolicy{
		OrderPct:      dec(t.OrderPct),
		TakeProfitPct: dec(t.TakeProfitPct),
		StopLossPct:   dec(t.StopLossPct),
		AllowShort:    t.AllowShort,
		QtyPrecision:  t.QtyPrecision,
		TIF:           domain.TimeInForce{Policy: domain.TIFPolicy(strings.ToLower(t.TIF))},
	}
	if p.TIF.Policy == "" {
		p.TIF = domain.GTC()
	}
	if t.MaxPositionPct > 0 || t.MaxDailyLossPct > 0 {
		p.Risk = engine.NewRiskManager(t.MaxPositionPct, t.MaxDailyLossPct)
	}
	return p
}

// JobOptions returns the ParallelJobs options for the backtest section.
func (c *Config) JobOptions() []jobs.Option {
	var opts []jobs.Option
	if c.Backtest.Sequential {
		opts = append(opts, jobs.WithSequential())
	}
	if c.Backtest.MaxParallel > 0 {
		opts = append(opts, jobs.WithLimit(c.Backtest.MaxParallel))
	}
	return opts
}

// Assets returns the backtest symbols as assets of the configured market.
func (c *Config) Assets() []domain.Asset {
	market := domain.Market(strings.ToLower(c.Backtest.Market))
	currency := domain.USD
	if market == domain.MarketCN {
		currency = domain.CNY
	}
	assets := make([]domain.Asset, 0, len(c.Backtest.Symbols))
	for _, sym := range c.Backtest.Symbols {
		a := domain.NewStock(strings.ToUpper(sym), currency)
		a.Market = market
		assets = append(assets, a)
	}
	return assets
}

// Timeframe parses the backtest start and end dates in the exchange time
// zone. Both dates are inclusive; an empty date leaves that side open.
func (c *Config) Timeframe() (domain.Timeframe, error) {
	loc := util.NewTradingCalendar(domain.Market(strings.ToLower(c.Backtest.Market))).Location()
	var tf domain.Timeframe
	if c.Backtest.Start != "" {
		t, err := time.ParseInLocation(dateLayout, c.Backtest.Start, loc)
		if err != nil {
			return tf, fmt.Errorf("backtest.start: %w", err)
		}
		tf.Start = t
	}
	if c.Backtest.End != "" {
		t, err := time.ParseInLocation(dateLayout, c.Backtest.End, loc)
		if err != nil {
			return tf, fmt.Errorf("backtest.end: %w", err)
		}
		tf.End = t.AddDate(0, 0, 1)
	}
	if !tf.Start.IsZero() && !tf.End.IsZero() && !tf.Start.Before(tf.End) {
		return tf, fmt.Errorf("backtest: start %s after end %s", c.Backtest.Start, c.Backtest.End)
	}
	return tf, nil
}

// Specs returns one RunSpec per configured run. Runs without a strategy
// name are an error.
func (c *Config) Specs() ([]engine.RunSpec, error) {
	tf, err := c.Timeframe()
	if err != nil {
		return nil, err
	}
	assets := c.Assets()
	market := domain.Market(strings.ToLower(c.Backtest.Market))

	specs := make([]engine.RunSpec, 0, len(c.Backtest.Runs))
	for i, r := range c.Backtest.Runs {
		if r.Strategy == "" {
			return nil, fmt.Errorf("backtest.runs[%d]: missing strategy", i)
		}
		specs = append(specs, engine.RunSpec{
			Strategy:  r.Strategy,
			Params:    r.Params,
			Market:    market,
			Assets:    assets,
			Timeframe: tf,
		})
	}
	return specs, nil
}
