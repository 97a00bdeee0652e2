// Interview Coach chat server.
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/ashureev/interview-coach/internal/api"
	"github.com/ashureev/interview-coach/internal/chat"
	"github.com/ashureev/interview-coach/internal/config"
	"github.com/ashureev/interview-coach/internal/evaluation"
	"github.com/ashureev/interview-coach/internal/identity"
	"github.com/ashureev/interview-coach/internal/interview"
	"github.com/ashureev/interview-coach/internal/knowledge"
	"github.com/ashureev/interview-coach/internal/llm"
	"github.com/ashureev/interview-coach/internal/middleware"
	"github.com/ashureev/interview-coach/internal/question"
	"github.com/ashureev/interview-coach/internal/rpc"
	"github.com/ashureev/interview-coach/internal/store"
	"github.com/ashureev/interview-coach/web"
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
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

//nolint:gocyclo // Startup wiring is intentionally sequential to keep dependency setup explicit.
func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server",
		"port", cfg.Port,
		"grpc_addr", cfg.GRPCAddr,
		"store", cfg.Store.Backend,
		"questions_per_session", cfg.Interview.QuestionsPerSession,
		"dev", cfg.IsDevelopment())

	kv, err := store.Open(cfg.Store.Backend, cfg.Store.DBPath, cfg.Store.BadgerDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			slog.Error("Failed to close store", "error", closeErr)
		}
	}()
	if err := kv.Ping(context.Background()); err != nil {
		return fmt.Errorf("store health check: %w", err)
	}
	slog.Info("Store connected", "backend", cfg.Store.Backend)

	reasoner, err := knowledge.NewDefault()
	if err != nil {
		return fmt.Errorf("load knowledge seed: %w", err)
	}
	slog.Info("Knowledge base loaded", "facts", reasoner.Store().Count())

	gen, err := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("init llm client: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		slog.Warn("LLM_API_KEY not set, questions will fall back to the built-in bank")
	}

	var transport evaluation.Transport
	if cfg.DispatchEnabled() {
		client, err := rpc.NewEvaluatorClient(rpc.DefaultClientConfig(cfg.EvaluatorAddr), logger)
		if err != nil {
			return fmt.Errorf("init evaluator client: %w", err)
		}
		defer client.Close()
		transport = client

		readyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.WaitReady(readyCtx); err != nil {
			slog.Warn("Evaluator not reachable yet, dispatches will retry per call", "address", cfg.EvaluatorAddr, "error", err)
		} else {
			slog.Info("Evaluator connected", "address", cfg.EvaluatorAddr)
		}
		cancel()
	} else {
		slog.Warn("EVALUATOR_ADDR not set, answers will not be scored")
	}

	transcript, err := chat.NewTranscript(chat.TranscriptConfig{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("init transcript: %w", err)
	}
	defer func() {
		if closeErr := transcript.Close(); closeErr != nil {
			slog.Warn("Failed to close transcript", "error", closeErr)
		}
	}()

	outbox := chat.NewOutbox(0, transcript.LogOutgoing, logger)

	engine, err := interview.NewEngine(interview.Config{
		QuestionsPerSession: cfg.Interview.QuestionsPerSession,
		ReportDeadline:      cfg.Interview.ReportDeadline,
		SessionTTL:          cfg.Interview.SessionTTL,
	}, interview.Deps{
		Store:      kv,
		Reasoner:   reasoner,
		Questions:  question.NewGenerator(gen, logger),
		Dispatcher: evaluation.NewDispatcher(kv, transport, cfg.DispatchTimeout, logger),
		History:    interview.NewKVHistory(kv),
		Out:        outbox,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init interview engine: %w", err)
	}

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
	sink := rpc.RegisterSink(grpcServer, engine, logger)

	chatHandler := chat.NewHandler(engine, outbox, chat.NewLimiter(cfg.RateLimitPerMinute), transcript, chat.HandlerConfig{
		AllowedOrigins: cfg.AllowedOrigins(),
	}, logger)
	apiHandler := api.NewHandler(engine, map[string]api.Pinger{"store": kv})

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	apiHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.IsDevelopment()))
		chatHandler.RegisterRoutes(r)
		apiHandler.RegisterRoutes(r)
	})

	r.Handle("/*", web.Handler())

	// Websocket connections are long-lived; no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		slog.Info("Evaluation sink listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		sink.Wait()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		chatHandler.Wait()
		return nil
	})

	return g.Wait()
}
