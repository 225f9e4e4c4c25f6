package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tradesim/internal/api"
	"tradesim/internal/config"
	"tradesim/internal/store"
	"tradesim/internal/util"
)

func main() {
	cfgPath := "config/tradesim.yaml"
	if p := os.Getenv("TRADESIM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	journal, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening journal: %v", err)
	}
	defer journal.Close()

	srv := api.NewServer(cfg, journal,
		api.WithFills(store.NewParquetStore(cfg.Storage.DataDir)),
		api.WithLogger(logger),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("tradesim-server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "grpcPort", cfg.Server.GRPCPort)
	if err := srv.ListenAndServe(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
