package api

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// JournalService is the name the journal reports its health under.
const JournalService = "tradesim.Journal"

// pinger is implemented by journals that can check their backing store.
type pinger interface {
	Ping(ctx context.Context) error
}

// newGRPCServer returns a gRPC server exposing the standard health service.
func newGRPCServer(hs *health.Server) *grpc.Server {
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return gs
}

// watchJournal keeps the journal's health status current until ctx is
// done. Journals that cannot be pinged are always reported as serving.
func watchJournal(ctx context.Context, hs *health.Server, journal any, interval time.Duration, log *slog.Logger) {
	p, ok := journal.(pinger)
	if !ok {
		hs.SetServingStatus(JournalService, healthpb.HealthCheckResponse_SERVING)
		return
	}

	check := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if err := p.Ping(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("journal health check failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(JournalService, status)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
