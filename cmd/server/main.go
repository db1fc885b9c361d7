// Command server starts the mock-interview HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	ai "github.com/fairyhunter13/ai-mock-interview/internal/adapter/ai"
	aistub "github.com/fairyhunter13/ai-mock-interview/internal/adapter/ai/stub"
	httpserver "github.com/fairyhunter13/ai-mock-interview/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/queue/kafka"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/recording/redisstore"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/storage/cloudinary"
	"github.com/fairyhunter13/ai-mock-interview/internal/adapter/transcriber/whisper"
	"github.com/fairyhunter13/ai-mock-interview/internal/app"
	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-mock-interview/internal/usecase"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, AI, and job instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Infra: DB pool
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Repositories
	interviewRepo := postgres.NewInterviewRepo(pool)
	jobRepo := postgres.NewGenerationJobRepo(pool)

	// Data-retention cleanup for terminal generation jobs.
	var cleanupSvc *postgres.CleanupService
	if cfg.DataRetentionDays > 0 {
		cleanupSvc = postgres.NewCleanupService(pool, cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started",
			slog.Int("retention_days", cfg.DataRetentionDays),
			slog.Duration("interval", cfg.CleanupInterval))
	}

	// Redis: transient recording sessions.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() { _ = rdb.Close() }()
	recordings := redisstore.New(rdb, cfg.RecordingTTL)

	// Queue producer (Kafka/Redpanda).
	producer, err := kafka.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("kafka producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue producer", slog.Any("error", err))
		}
	}()

	// AI clients. Without an API key the stubs keep local development working.
	var feedback domain.FeedbackClient
	if cfg.LLMAPIKey != "" {
		feedback = ai.NewFeedbackClient(ai.NewClient(cfg))
	} else {
		slog.Warn("LLM_API_KEY not set, using stub feedback client")
		feedback = aistub.NewFeedbackClient()
	}

	// Transcription and audio storage.
	transcriber := whisper.New(cfg.TranscriberURL, cfg.TranscriberAPIKey, cfg.TranscriberTimeout)
	var audio domain.AudioStore
	if cfg.CloudinaryURL != "" {
		audio, err = cloudinary.New(cfg.CloudinaryURL, cfg.CloudinaryFolder)
		if err != nil {
			slog.Error("cloudinary init failed", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		slog.Warn("CLOUDINARY_URL not set, audio URLs will not be durable")
		audio = localAudioStore{}
	}

	// Usecases
	interviews := usecase.NewInterviewService(interviewRepo)
	generate := usecase.NewGenerateService(jobRepo, producer, cfg.MaxQuestions)
	session := usecase.NewSessionService(interviews, recordings, transcriber, audio, feedback,
		cfg.MaxRecordingDuration(), cfg.MaxAudioMB*1024*1024)

	// Per-user quota on LLM-backed endpoints, persisted across restarts.
	aiQuota := ratelimiter.New(rdb, pool, map[string]ratelimiter.BucketConfig{
		ratelimiter.BucketAIQuota: ratelimiter.PerMinute(cfg.AIQuotaPerMin),
	})
	if err := aiQuota.WarmFromPostgres(ctx); err != nil {
		slog.Warn("failed to warm AI quota buckets", slog.Any("error", err))
	}

	// Readiness checks
	dbCheck, redisCheck, kafkaCheck := app.BuildReadinessChecks(pool, rdb, producer)

	// HTTP server
	srv := httpserver.NewServer(cfg, interviews, generate, session, dbCheck, redisCheck, kafkaCheck)
	auth := httpserver.NewAuthManager(cfg)
	handler := app.BuildRouter(cfg, srv, auth, cleanupSvc, aiQuota)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// localAudioStore is the dev fallback when Cloudinary is not configured. The
// blob is dropped and a placeholder URL returned.
type localAudioStore struct{}

func (localAudioStore) Save(_ domain.Context, key string, _ []byte) (string, error) {
	return "local://" + key, nil
}
