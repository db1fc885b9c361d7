package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// staleJobStore is the slice of the generation-job repository the sweeper needs.
type staleJobStore interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.GenerationJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.GenerationJobStatus, interviewID string, errMsg *string) error
}

// StuckJobSweeper fails generation jobs left in processing by a crashed
// worker so pollers don't wait forever.
type StuckJobSweeper struct {
	jobs             staleJobStore
	maxProcessingAge time.Duration
	interval         time.Duration
}

// NewStuckJobSweeper constructs a sweeper; nil jobs disables it.
func NewStuckJobSweeper(jobs staleJobStore, maxProcessingAge, interval time.Duration) *StuckJobSweeper {
	if jobs == nil {
		return nil
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 5 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckJobSweeper{jobs: jobs, maxProcessingAge: maxProcessingAge, interval: interval}
}

// Run sweeps on the configured interval until the context is done.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil || s.jobs == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckJobSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "StuckJobSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.maxProcessingAge)
	const pageSize = 100
	span.SetAttributes(
		attribute.Int("jobs.page_size", pageSize),
		attribute.Float64("jobs.max_processing_age_seconds", s.maxProcessingAge.Seconds()),
	)

	marked := 0
	jobs, err := s.jobs.ListStale(ctx, cutoff, pageSize)
	if err != nil {
		span.RecordError(err)
		slog.Error("stuck job sweep failed to list jobs", slog.Any("error", err))
		return
	}
	for _, j := range jobs {
		msg := fmt.Sprintf("generation exceeded maximum age %v; marked failed by sweeper", s.maxProcessingAge)
		if err := s.jobs.UpdateStatus(ctx, j.ID, domain.GenerationFailed, "", &msg); err != nil {
			slog.Error("stuck job sweep failed to update job status",
				slog.String("job_id", j.ID), slog.Any("error", err))
			continue
		}
		marked++
	}
	if marked > 0 {
		slog.Warn("stuck generation jobs failed by sweeper", slog.Int("count", marked))
	}
	span.SetAttributes(
		attribute.Int("jobs.total_checked", len(jobs)),
		attribute.Int("jobs.total_marked_failed", marked),
	)
}
