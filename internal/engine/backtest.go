package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradesim/internal/account"
	"tradesim/internal/broker"
	"tradesim/internal/domain"
	"tradesim/internal/feed"
	"tradesim/internal/jobs"
	"tradesim/internal/store"
	"tradesim/internal/strategy"
)

// RunSpec describes one backtest run.
type RunSpec struct {
	Strategy  string
	Params    strategy.Params
	Market    domain.Market
	Assets    []domain.Asset
	Timeframe domain.Timeframe
	Feed      feed.Feed // overrides the backtester feed when set
}

// BacktestResult holds the outcome of one run. Err is set when the run
// failed; Result then holds what was reached before the failure.
type BacktestResult struct {
	RunID   string
	Spec    RunSpec
	Result  *RunResult
	Metrics Metrics
	Err     error
}

// FillWriter exports the fills of a finished run.
type FillWriter interface {
	WriteFills(runID string, trades []store.TradeRecord) error
}

// Backtester runs independent simulations in parallel. Every run gets its
// own strategy instance, broker and ledger; only the feed is shared.
type Backtester struct {
	registry   *strategy.Registry
	feed       feed.Feed
	policy     Policy
	brokerOpts []broker.Option
	jobOpts    []jobs.Option
	journal    store.RunJournal
	fills      FillWriter
	log        *slog.Logger
}

// BacktestOption configures a Backtester.
type BacktestOption func(*Backtester)

// WithPolicy sets the policy shared by all runs. Policies must be safe for
// concurrent use; DefaultPolicy is.
func WithPolicy(p Policy) BacktestOption {
	return func(bt *Backtester) { bt.policy = p }
}

// WithBrokerOptions sets the options every run's SimBroker is built with.
func WithBrokerOptions(opts ...broker.Option) BacktestOption {
	return func(bt *Backtester) { bt.brokerOpts = append(bt.brokerOpts, opts...) }
}

// WithJobOptions configures the ParallelJobs runs are scheduled on.
func WithJobOptions(opts ...jobs.Option) BacktestOption {
	return func(bt *Backtester) { bt.jobOpts = append(bt.jobOpts, opts...) }
}

// WithJournal records every finished run in j.
func WithJournal(j store.RunJournal) BacktestOption {
	return func(bt *Backtester) { bt.journal = j }
}

// WithFillExport exports the fills of every finished run to w.
func WithFillExport(w FillWriter) BacktestOption {
	return func(bt *Backtester) { bt.fills = w }
}

// WithBacktestLogger sets the logger.
func WithBacktestLogger(l *slog.Logger) BacktestOption {
	return func(bt *Backtester) { bt.log = l }
}

// NewBacktester creates a Backtester building strategies from registry and
// playing f.
func NewBacktester(registry *strategy.Registry, f feed.Feed, opts ...BacktestOption) *Backtester {
	bt := &Backtester{
		registry: registry,
		feed:     f,
		policy:   DefaultPolicy{OrderPct: decimal.NewFromFloat(0.1)},
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(bt)
	}
	bt.log = bt.log.With("component", "backtester")
	return bt
}

// Run executes every spec and returns one result per spec, in spec order.
// Cancelling ctx cancels every run still in flight. The returned error joins
// the errors of all failed runs.
func (bt *Backtester) Run(ctx context.Context, specs []RunSpec) ([]BacktestResult, error) {
	// Task contexts derive from ctx, so JoinAll still waits for runs that
	// are winding down after a cancellation.
	pool := jobs.New(append([]jobs.Option{jobs.WithContext(ctx)}, bt.jobOpts...)...)

	results := make([]BacktestResult, len(specs))
	for i, spec := range specs {
		results[i] = BacktestResult{RunID: uuid.NewString(), Spec: spec}
		pool.Add(func(ctx context.Context) error {
			results[i] = bt.runOne(ctx, results[i])
			return results[i].Err
		})
	}
	err := pool.JoinAll()

	// Runs skipped because ctx ended before they started.
	for i := range results {
		if results[i].Result == nil && results[i].Err == nil {
			if results[i].Err = ctx.Err(); results[i].Err == nil {
				results[i].Err = errors.New("run not started")
			}
		}
	}
	if err == nil {
		err = ctx.Err()
	}
	return results, err
}

func (bt *Backtester) runOne(ctx context.Context, out BacktestResult) BacktestResult {
	spec := out.Spec
	log := bt.log.With("run", out.RunID, "strategy", spec.Strategy)
	started := time.Now().UTC()

	strat, err := bt.registry.New(spec.Strategy, spec.Params)
	if err != nil {
		out.Err = err
		out.Result = &RunResult{}
		bt.record(ctx, out, started, log)
		return out
	}
	f := spec.Feed
	if f == nil {
		f = bt.feed
	}
	if f == nil {
		out.Err = fmt.Errorf("run %s: no feed", out.RunID)
		out.Result = &RunResult{}
		bt.record(ctx, out, started, log)
		return out
	}

	b := broker.NewSimBroker(append(append([]broker.Option(nil), bt.brokerOpts...), broker.WithLogger(log))...)
	eng := NewEngine(strat, bt.policy, b, WithLogger(log))
	res, err := eng.Run(ctx, f, spec.Timeframe)
	if res == nil {
		res = &RunResult{}
	}
	out.Result = res
	out.Err = err
	out.Metrics = ComputeMetrics(res)
	if err != nil {
		log.Error("run failed", "error", err)
	}
	bt.record(ctx, out, started, log)
	return out
}

// record journals and exports a finished run. Failures are logged; they do
// not fail the run.
func (bt *Backtester) record(ctx context.Context, out BacktestResult, started time.Time, log *slog.Logger) {
	if bt.journal == nil && bt.fills == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	run := runRecord(out, started)
	final := out.Result.Final
	trades := make([]store.TradeRecord, 0, len(final.Trades))
	for _, tr := range final.Trades {
		trades = append(trades, store.NewTradeRecord(tr))
	}

	if bt.journal != nil {
		if err := journalRun(ctx, bt.journal, run, final, trades); err != nil {
			log.Error("journal failed", "error", err)
		}
	}
	if bt.fills != nil && len(trades) > 0 {
		if err := bt.fills.WriteFills(out.RunID, trades); err != nil {
			log.Error("fill export failed", "error", err)
		}
	}
}

func journalRun(ctx context.Context, j store.RunJournal, run store.RunRecord, final account.Account, trades []store.TradeRecord) error {
	if err := j.SaveRun(ctx, run); err != nil {
		return err
	}
	var orders []store.OrderRecord
	for _, s := range final.ClosedOrders {
		orders = append(orders, store.NewOrderRecords(s)...)
	}
	for _, s := range final.OpenOrders {
		orders = append(orders, store.NewOrderRecords(s)...)
	}
	if err := j.SaveOrders(ctx, run.ID, orders); err != nil {
		return err
	}
	if err := j.SaveTrades(ctx, run.ID, trades); err != nil {
		return err
	}
	var positions []store.PositionRecord
	for _, p := range final.Positions {
		if !p.Closed() {
			positions = append(positions, store.NewPositionRecord(p))
		}
	}
	return j.SavePositions(ctx, run.ID, positions)
}

func runRecord(out BacktestResult, started time.Time) store.RunRecord {
	spec := out.Spec
	params := ""
	if len(spec.Params) > 0 {
		if b, err := json.Marshal(spec.Params); err == nil {
			params = string(b)
		}
	}
	symbols := make([]string, 0, len(spec.Assets))
	for _, a := range spec.Assets {
		symbols = append(symbols, a.Symbol)
	}
	status := store.RunStatusCompleted
	errText := ""
	switch {
	case out.Err == nil:
	case errors.Is(out.Err, context.Canceled), errors.Is(out.Err, context.DeadlineExceeded):
		status, errText = store.RunStatusCancelled, out.Err.Error()
	default:
		status, errText = store.RunStatusFailed, out.Err.Error()
	}

	res := out.Result
	return store.RunRecord{
		ID:            out.RunID,
		Strategy:      spec.Strategy,
		Params:        params,
		Market:        string(spec.Market),
		Symbols:       symbols,
		Start:         spec.Timeframe.Start,
		End:           spec.Timeframe.End,
		StartedAt:     started,
		FinishedAt:    time.Now().UTC(),
		Status:        status,
		Error:         errText,
		Steps:         res.Steps,
		BaseCurrency:  string(res.Initial.BaseCurrency),
		InitialEquity: res.Initial.Equity.Value.String(),
		FinalEquity:   res.Final.Equity.Value.String(),
		TotalReturn:   out.Metrics.TotalReturn,
		MaxDrawdown:   out.Metrics.MaxDrawdown,
		TotalTrades:   out.Metrics.TotalTrades,
		WinRate:       out.Metrics.WinRate,
		ProfitFactor:  out.Metrics.ProfitFactor,
	}
}
