// Package engine drives simulation runs: it feeds price events through a
// strategy and a policy into a broker, and fans independent runs out over
// ParallelJobs for backtesting.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tradesim/internal/account"
	"tradesim/internal/broker"
	"tradesim/internal/domain"
	"tradesim/internal/feed"
	"tradesim/internal/strategy"
)

// EquityPoint is the account equity after one event.
type EquityPoint struct {
	Time   time.Time
	Equity domain.Amount
}

// RunResult is the outcome of one Engine.Run.
type RunResult struct {
	Initial account.Account
	Final   account.Account
	Steps   int
	Equity  []EquityPoint
}

// Engine runs one strategy against one broker. It is not safe for
// concurrent use; build one per run.
type Engine struct {
	strategy strategy.Strategy
	policy   Policy
	broker   broker.Broker
	buffer   int
	log      *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// WithBuffer sets how many events the feed may run ahead of the broker.
func WithBuffer(n int) EngineOption {
	return func(e *Engine) { e.buffer = n }
}

// NewEngine creates a new Engine wired with the given dependencies.
func NewEngine(s strategy.Strategy, p Policy, b broker.Broker, opts ...EngineOption) *Engine {
	e := &Engine{
		strategy: s,
		policy:   p,
		broker:   b,
		buffer:   64,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "engine", "strategy", s.Name())
	return e
}

// Run plays f restricted to tf through the strategy, policy and broker. The
// feed runs in its own goroutine; events must arrive in strictly increasing
// time order or the run fails with domain.ErrInvariant.
func (e *Engine) Run(ctx context.Context, f feed.Feed, tf domain.Timeframe) (*RunResult, error) {
	if err := e.strategy.Init(ctx); err != nil {
		return nil, fmt.Errorf("initialising %s: %w", e.strategy.Name(), err)
	}
	initial, err := e.broker.Account()
	if err != nil {
		return nil, err
	}
	res := &RunResult{Initial: initial, Final: initial}

	events := make(chan domain.Event, e.buffer)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		if rf, ok := f.(feed.RangeFeed); ok {
			return rf.PlayRange(gctx, tf, events)
		}
		return f.Play(gctx, events)
	})
	g.Go(func() error {
		var last time.Time
		for ev := range events {
			if !tf.Contains(ev.Time) {
				continue
			}
			if !last.IsZero() && !ev.Time.After(last) {
				return fmt.Errorf("event at %s does not follow %s: %w",
					ev.Time.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano), domain.ErrInvariant)
			}
			last = ev.Time

			acct, err := e.step(gctx, ev, res.Final)
			if err != nil {
				return err
			}
			res.Final = acct
			res.Steps++
			res.Equity = append(res.Equity, EquityPoint{Time: ev.Time, Equity: acct.Equity})
		}
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return res, err
	}

	e.log.Info("run finished",
		"steps", res.Steps,
		"trades", len(res.Final.Trades),
		"equity", res.Final.Equity.Value.StringFixed(2),
	)
	return res, nil
}

func (e *Engine) step(ctx context.Context, ev domain.Event, acct account.Account) (account.Account, error) {
	signals, err := e.strategy.Generate(ctx, ev)
	if err != nil {
		return acct, fmt.Errorf("%s at %s: %w", e.strategy.Name(), ev.Time.Format(time.RFC3339), err)
	}
	var orders []domain.Order
	if len(signals) > 0 {
		orders, err = e.policy.Orders(ctx, signals, acct, ev)
		if err != nil {
			return acct, fmt.Errorf("policy at %s: %w", ev.Time.Format(time.RFC3339), err)
		}
	}
	return e.broker.Place(ctx, orders, ev)
}
