// Command worker consumes generation tasks from the queue and produces
// interview questions with the configured LLM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ai "github.com/fairyhunter13/ai-mock-interview/internal/adapter/ai"
	aistub "github.com/fairyhunter13/ai-mock-interview/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/queue/kafka"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-mock-interview/internal/app"
	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/questionbank"
)

const consumerGroupID = "ai-mock-interview-workers"

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()
	go serveMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	interviewRepo := postgres.NewInterviewRepo(pool)
	jobRepo := postgres.NewGenerationJobRepo(pool)

	// The bank seeds generated questions with curated ones for common roles.
	// A missing file is not fatal; generation then relies on the LLM alone.
	bank, err := questionbank.Load(cfg.QuestionBankPath)
	if err != nil {
		slog.Warn("question bank unavailable",
			slog.String("path", cfg.QuestionBankPath), slog.Any("error", err))
		bank = nil
	}

	var gen domain.QuestionGenerator
	if cfg.LLMAPIKey != "" {
		gen = ai.NewQuestionGenerator(ai.NewClient(cfg))
	} else {
		slog.Warn("LLM_API_KEY not set, using stub question generator")
		gen = aistub.NewQuestionGenerator()
	}

	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, consumerGroupID, jobRepo, interviewRepo, gen, bank)
	if err != nil {
		slog.Error("kafka consumer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	// Recover jobs orphaned by a worker crash.
	sweeper := app.NewStuckJobSweeper(jobRepo, 5*time.Minute, time.Minute)
	go sweeper.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("worker consuming", slog.String("group", consumerGroupID))
		errCh <- consumer.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			slog.Error("consumer stopped", slog.Any("error", err))
		}
	}
}

func serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":9090",
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("worker metrics listening", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server error", slog.Any("error", err))
	}
}
