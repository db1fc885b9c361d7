package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// GenerationJobRepo persists question-generation jobs using a minimal pgx pool.
type GenerationJobRepo struct{ Pool PgxPool }

// NewGenerationJobRepo constructs a GenerationJobRepo with the given pool.
func NewGenerationJobRepo(p PgxPool) *GenerationJobRepo { return &GenerationJobRepo{Pool: p} }

const jobCols = `id, owner_id, status, COALESCE(error,''), COALESCE(interview_id,''), job_title,
	COALESCE(job_description,''), skills, num_questions, idempotency_key, created_at, updated_at`

// Create inserts a new generation job and returns its id.
func (r *GenerationJobRepo) Create(ctx domain.Context, j domain.GenerationJob) (string, error) {
	tracer := otel.Tracer("repo.generation_jobs")
	ctx, span := tracer.Start(ctx, "generation_jobs.Create")
	defer span.End()
	id := j.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	q := `INSERT INTO generation_jobs (id, owner_id, status, error, interview_id, job_title, job_description, skills, num_questions, idempotency_key, created_at, updated_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.Pool.Exec(ctx, q, id, j.OwnerID, j.Status, j.Error, j.InterviewID, j.JobTitle, j.JobDescription, j.Skills, j.NumQuestions, j.IdemKey, now, now)
	if err != nil {
		return "", fmt.Errorf("op=generation_job.create: %w", err)
	}
	return id, nil
}

// Get loads a generation job by id.
func (r *GenerationJobRepo) Get(ctx domain.Context, id string) (domain.GenerationJob, error) {
	tracer := otel.Tracer("repo.generation_jobs")
	ctx, span := tracer.Start(ctx, "generation_jobs.Get")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+jobCols+` FROM generation_jobs WHERE id=$1`, id)
	return scanJob(row)
}

// FindByIdempotencyKey loads a generation job by idempotency key.
func (r *GenerationJobRepo) FindByIdempotencyKey(ctx domain.Context, key string) (domain.GenerationJob, error) {
	tracer := otel.Tracer("repo.generation_jobs")
	ctx, span := tracer.Start(ctx, "generation_jobs.FindByIdempotencyKey")
	defer span.End()
	row := r.Pool.QueryRow(ctx, `SELECT `+jobCols+` FROM generation_jobs WHERE idempotency_key=$1 LIMIT 1`, key)
	return scanJob(row)
}

func scanJob(row pgx.Row) (domain.GenerationJob, error) {
	var j domain.GenerationJob
	var idem *string
	if err := row.Scan(&j.ID, &j.OwnerID, &j.Status, &j.Error, &j.InterviewID, &j.JobTitle,
		&j.JobDescription, &j.Skills, &j.NumQuestions, &idem, &j.CreatedAt, &j.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GenerationJob{}, fmt.Errorf("op=generation_job.get: %w", domain.ErrNotFound)
		}
		return domain.GenerationJob{}, fmt.Errorf("op=generation_job.get: %w", err)
	}
	j.IdemKey = idem
	return j, nil
}

// ListStale returns processing jobs whose last update is older than cutoff.
// The sweeper uses it to fail jobs abandoned by a crashed worker.
func (r *GenerationJobRepo) ListStale(ctx domain.Context, cutoff time.Time, limit int) ([]domain.GenerationJob, error) {
	tracer := otel.Tracer("repo.generation_jobs")
	ctx, span := tracer.Start(ctx, "generation_jobs.ListStale")
	defer span.End()
	rows, err := r.Pool.Query(ctx,
		`SELECT `+jobCols+` FROM generation_jobs WHERE status=$1 AND updated_at < $2 ORDER BY updated_at LIMIT $3`,
		domain.GenerationProcessing, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("op=generation_job.list_stale: %w", err)
	}
	defer rows.Close()
	var out []domain.GenerationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=generation_job.list_stale: %w", err)
	}
	return out, nil
}

// UpdateStatus updates a job's status, resulting interview id, and optional
// error message.
func (r *GenerationJobRepo) UpdateStatus(ctx domain.Context, id string, status domain.GenerationJobStatus, interviewID string, errMsg *string) error {
	tracer := otel.Tracer("repo.generation_jobs")
	ctx, span := tracer.Start(ctx, "generation_jobs.UpdateStatus")
	defer span.End()
	// nil errMsg maps to empty string to satisfy the NOT NULL error column
	errVal := ""
	if errMsg != nil {
		errVal = *errMsg
	}
	q := `UPDATE generation_jobs SET status=$2, error=$3, interview_id=NULLIF($4,''), updated_at=$5 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, status, errVal, interviewID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=generation_job.update_status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=generation_job.update_status: %w", domain.ErrNotFound)
	}
	return nil
}
