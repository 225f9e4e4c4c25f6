// Package api serves the run journal over HTTP and reports service health
// over gRPC.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"tradesim/internal/config"
	"tradesim/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithFills serves exported fills from r.
func WithFills(r FillReader) Option {
	return func(s *Server) { s.fills = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithHealthInterval sets how often the journal is pinged.
func WithHealthInterval(d time.Duration) Option {
	return func(s *Server) { s.healthInterval = d }
}

// Server hosts the HTTP journal API and the gRPC health service.
type Server struct {
	httpAddr       string
	grpcAddr       string
	journal        store.RunJournal
	fills          FillReader
	healthInterval time.Duration
	log            *slog.Logger

	health *health.Server
	http   *http.Server
	grpc   *grpc.Server
}

// NewServer creates a Server listening on the addresses in cfg.
func NewServer(cfg *config.Config, journal store.RunJournal, opts ...Option) *Server {
	s := &Server{
		httpAddr:       net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		grpcAddr:       net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort)),
		journal:        journal,
		healthInterval: 30 * time.Second,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "api")
	s.health = health.NewServer()
	s.http = &http.Server{
		Handler:           NewRouter(journal, s.fills, s.log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.grpc = newGRPCServer(s.health)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe listens on the configured addresses and serves until ctx
// is cancelled or a listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
	}
	grpcLn, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve serves HTTP on httpLn and gRPC on grpcLn until ctx is cancelled,
// then shuts both down gracefully.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("http listening", "addr", httpLn.Addr().String())
		if err := s.http.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.log.Info("grpc listening", "addr", grpcLn.Addr().String())
		if err := s.grpc.Serve(grpcLn); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		watchJournal(gctx, s.health, s.journal, s.healthInterval, s.log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown marks every service as not serving, then stops the HTTP and
// gRPC servers after in-flight requests complete.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	err := s.http.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("api stopped")
	return nil
}

// Compile-time check that the health server satisfies the generated interface.
var _ healthpb.HealthServer = (*health.Server)(nil)
