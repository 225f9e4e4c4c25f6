package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"tradesim/internal/config"
	"tradesim/internal/engine"
	"tradesim/internal/feed"
	"tradesim/internal/store"
	"tradesim/internal/strategy/builtins"
	"tradesim/internal/util"
)

func main() {
	sequential := flag.Bool("sequential", false, "run strategies one after another")
	parallel := flag.Int("parallel", 0, "maximum concurrent runs (0 keeps the configured value)")
	flag.Parse()

	cfgPath := "config/tradesim.yaml"
	if p := os.Getenv("TRADESIM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *sequential {
		cfg.Backtest.Sequential = true
	}
	if *parallel > 0 {
		cfg.Backtest.MaxParallel = *parallel
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	specs, err := cfg.Specs()
	if err != nil {
		log.Fatalf("invalid backtest config: %v", err)
	}
	if len(specs) == 0 {
		log.Fatal("no runs configured under backtest.runs")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	f, err := feed.LoadParquet(ctx, pstore, specs[0].Market, specs[0].Assets, specs[0].Timeframe)
	if err != nil {
		log.Fatalf("loading bars: %v", err)
	}
	if f.Len() == 0 {
		log.Fatalf("no bars found for %s in %s", strings.Join(cfg.Backtest.Symbols, ","), cfg.Storage.DataDir)
	}

	journal, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening journal: %v", err)
	}
	defer journal.Close()

	policy := cfg.Policy()
	policy.Log = logger
	opts := []engine.BacktestOption{
		engine.WithPolicy(policy),
		engine.WithBrokerOptions(cfg.BrokerOptions()...),
		engine.WithJobOptions(cfg.JobOptions()...),
		engine.WithJournal(journal),
		engine.WithBacktestLogger(logger),
	}
	if cfg.Backtest.ExportFills {
		opts = append(opts, engine.WithFillExport(pstore))
	}

	slog.Info("starting backtest", "runs", len(specs), "events", f.Len(), "sequential", cfg.Backtest.Sequential)
	bt := engine.NewBacktester(builtins.Registry(), f, opts...)
	results, err := bt.Run(ctx, specs)
	printResults(results)
	if err != nil {
		slog.Error("backtest finished with errors", "error", err)
		os.Exit(1)
	}
}

func printResults(results []engine.BacktestResult) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTRATEGY\tSTEPS\tFINAL EQUITY\tRETURN\tMAX DD\tTRADES\tWIN RATE\tSTATUS")
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		var steps int
		final := "-"
		if r.Result != nil {
			steps = r.Result.Steps
			final = r.Result.Final.Equity.String()
		}
		m := r.Metrics
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.2f%%\t%.2f%%\t%d\t%.1f%%\t%s\n",
			r.RunID, r.Spec.Strategy, steps, final,
			m.TotalReturn*100, m.MaxDrawdown*100, m.TotalTrades, m.WinRate*100, status)
	}
	tw.Flush()
}
