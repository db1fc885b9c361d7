package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// CleanupService removes finished generation jobs older than the retention
// period. Interviews are user data and are only deleted on request.
type CleanupService struct {
	Pool          PgxPool
	RetentionDays int
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(pool PgxPool, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{Pool: pool, RetentionDays: retentionDays}
}

// CleanupOldData removes terminal generation jobs past the retention cutoff.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.RetentionDays)

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("cleanup begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM generation_jobs WHERE created_at < $1 AND status IN ('completed','failed')`, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup generation_jobs: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("cleanup commit: %w", err)
	}
	slog.Info("cleanup pass finished",
		slog.Int64("deleted_jobs", tag.RowsAffected()),
		slog.Time("cutoff", cutoff))
	return nil
}

// RunPeriodic runs cleanup on the given interval until the context is done.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("cleanup failed", slog.Any("error", err))
			}
		}
	}
}
