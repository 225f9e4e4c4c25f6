package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tradesim/internal/config"
	"tradesim/internal/feed"
	"tradesim/internal/store"
	"tradesim/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbols (default: fetch.symbols, then backtest.symbols)")
	start := flag.String("start", "", "first date, YYYY-MM-DD (default: fetch.start_date)")
	end := flag.String("end", "", "last date, YYYY-MM-DD (default: latest finished trading day)")
	flag.Parse()

	cfgPath := "config/tradesim.yaml"
	if p := os.Getenv("TRADESIM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/tradesim-fetch-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: util.ParseLevel(cfg.Logging.Level)}))
	util.SetDefault(logger)

	syms := cfg.Fetch.Symbols
	if *symbols != "" {
		syms = strings.Split(*symbols, ",")
	}
	if len(syms) == 0 {
		syms = cfg.Backtest.Symbols
	}
	if len(syms) == 0 {
		log.Fatal("no symbols to fetch")
	}

	startDate := cfg.Fetch.StartDate
	if *start != "" {
		startDate = *start
	}
	from, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		log.Fatalf("invalid start date %q: %v", startDate, err)
	}

	var to time.Time
	if *end != "" {
		if to, err = time.Parse("2006-01-02", *end); err != nil {
			log.Fatalf("invalid end date %q: %v", *end, err)
		}
	} else if to, err = feed.LatestFinishedTradingDay(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL); err != nil {
		log.Fatalf("resolving latest trading day: %v", err)
	}

	fetcher := feed.NewAlpacaFetcher(
		feed.NewAlpacaClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL),
		store.NewParquetStore(cfg.Storage.DataDir),
		feed.WithBatchSize(cfg.Fetch.BatchSize),
		feed.WithRequestsPerMinute(cfg.Fetch.RateLimitPerMin),
		feed.WithDataFeed(cfg.Alpaca.Feed),
		feed.WithRetry(cfg.Fetch.MaxAttempts, time.Second),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("fetching bars", "symbols", len(syms), "start", from.Format("2006-01-02"), "end", to.Format("2006-01-02"), "logFile", logFileName)
	n, err := fetcher.Fetch(ctx, syms, from, to)
	if err != nil {
		log.Fatalf("fetch failed after %d bars: %v", n, err)
	}
	slog.Info("fetch complete", "bars", n)
}
