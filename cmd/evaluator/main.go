// Interview Coach evaluator: scores answers and delivers the results back to
// the chat server's evaluation sink.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/ashureev/interview-coach/internal/config"
	"github.com/ashureev/interview-coach/internal/llm"
	"github.com/ashureev/interview-coach/internal/rpc"
	"github.com/ashureev/interview-coach/internal/scoring"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Evaluator failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Evaluator stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	gen, err := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("init llm client: %w", err)
	}

	sink, err := rpc.NewSinkClient(rpc.DefaultClientConfig(cfg.Evaluator.SinkAddr), logger)
	if err != nil {
		return fmt.Errorf("init sink client: %w", err)
	}
	defer sink.Close()

	pool := scoring.NewPool(scoring.NewScorer(gen, logger), sink, scoring.PoolConfig{
		Workers:   cfg.Evaluator.Workers,
		QueueSize: cfg.Evaluator.QueueSize,
	}, logger)

	grpcServer := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             time.Minute,
			PermitWithoutStream: false,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    2 * time.Minute,
			Timeout: 10 * time.Second,
		}),
	)
	rpc.RegisterEvaluator(grpcServer, pool, logger)

	lis, err := net.Listen("tcp", cfg.Evaluator.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Evaluator.ListenAddr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("Evaluator listening",
			"addr", cfg.Evaluator.ListenAddr,
			"sink", cfg.Evaluator.SinkAddr,
			"workers", cfg.Evaluator.Workers)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	var metricsSrv *http.Server
	if cfg.Evaluator.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Evaluator.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			slog.Info("Metrics listening", "addr", cfg.Evaluator.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		grpcServer.GracefulStop()
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("metrics server shutdown: %w", err)
			}
		}
		return nil
	})

	return g.Wait()
}
