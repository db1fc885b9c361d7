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

// InterviewRepo persists interviews and their questions using a minimal pgx pool.
type InterviewRepo struct{ Pool PgxPool }

// NewInterviewRepo constructs an InterviewRepo with the given pool.
func NewInterviewRepo(p PgxPool) *InterviewRepo { return &InterviewRepo{Pool: p} }

const questionCols = `id, interview_id, text, suggested_answer, suggested_audio_url, answer, audio_url,
	feedback, improvements, key_takeaways, grade, skills, saved, created_at`

// Create inserts the interview and its questions in one transaction and
// returns the stored aggregate with generated ids.
func (r *InterviewRepo) Create(ctx domain.Context, iv domain.Interview) (domain.Interview, error) {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.Create")
	defer span.End()

	if iv.ID == "" {
		iv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	iv.CreatedAt = now

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Interview{}, fmt.Errorf("op=interview.create.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `INSERT INTO interviews (id, owner_id, job_title, job_description, skills, scheduled_at, completed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,false,$7)`
	if _, err := tx.Exec(ctx, q, iv.ID, iv.OwnerID, iv.JobTitle, iv.JobDescription, iv.Skills, iv.ScheduledAt, now); err != nil {
		return domain.Interview{}, fmt.Errorf("op=interview.create: %w", err)
	}
	for i := range iv.Questions {
		qu := &iv.Questions[i]
		if qu.ID == "" {
			qu.ID = uuid.New().String()
		}
		qu.InterviewID = iv.ID
		qu.CreatedAt = now
		ins := `INSERT INTO questions (id, interview_id, position, text, suggested_answer, suggested_audio_url, skills, saved, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,false,$8)`
		if _, err := tx.Exec(ctx, ins, qu.ID, iv.ID, i, qu.Text, qu.SuggestedAnswer, qu.SuggestedAudioURL, qu.Skills, now); err != nil {
			return domain.Interview{}, fmt.Errorf("op=interview.create.question: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Interview{}, fmt.Errorf("op=interview.create.commit: %w", err)
	}
	return iv, nil
}

// Get loads an interview with its questions ordered by position.
func (r *InterviewRepo) Get(ctx domain.Context, id string) (domain.Interview, error) {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.Get")
	defer span.End()

	q := `SELECT id, owner_id, job_title, COALESCE(job_description,''), skills, scheduled_at, completed, created_at
		FROM interviews WHERE id=$1`
	var iv domain.Interview
	row := r.Pool.QueryRow(ctx, q, id)
	if err := row.Scan(&iv.ID, &iv.OwnerID, &iv.JobTitle, &iv.JobDescription, &iv.Skills, &iv.ScheduledAt, &iv.Completed, &iv.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Interview{}, fmt.Errorf("op=interview.get: %w", domain.ErrNotFound)
		}
		return domain.Interview{}, fmt.Errorf("op=interview.get: %w", err)
	}

	rows, err := r.Pool.Query(ctx, `SELECT `+questionCols+` FROM questions WHERE interview_id=$1 ORDER BY position`, id)
	if err != nil {
		return domain.Interview{}, fmt.Errorf("op=interview.get.questions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		qu, err := scanQuestion(rows)
		if err != nil {
			return domain.Interview{}, fmt.Errorf("op=interview.get.questions: %w", err)
		}
		iv.Questions = append(iv.Questions, qu)
	}
	if err := rows.Err(); err != nil {
		return domain.Interview{}, fmt.Errorf("op=interview.get.questions: %w", err)
	}
	return iv, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanQuestion(row rowScanner) (domain.Question, error) {
	var qu domain.Question
	err := row.Scan(&qu.ID, &qu.InterviewID, &qu.Text, &qu.SuggestedAnswer, &qu.SuggestedAudioURL,
		&qu.Answer, &qu.AudioURL, &qu.Feedback, &qu.Improvements, &qu.KeyTakeaways, &qu.Grade,
		&qu.Skills, &qu.Saved, &qu.CreatedAt)
	return qu, err
}

// UpdateQuestion applies one tagged update variant to a question of the given
// interview. MarkSaved additionally flips the interview's completed flag when
// every sibling is saved, inside the same transaction.
func (r *InterviewRepo) UpdateQuestion(ctx domain.Context, interviewID, questionID string, upd domain.QuestionUpdate) (domain.Question, error) {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.UpdateQuestion")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Question{}, fmt.Errorf("op=question.update.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var set string
	var args []any
	switch u := upd.(type) {
	case domain.AnswerUpdate:
		set = `answer=$3, audio_url=$4`
		args = []any{questionID, interviewID, u.Answer, u.AudioURL}
	case domain.FeedbackUpdate:
		set = `feedback=$3, improvements=$4, key_takeaways=$5, grade=$6`
		args = []any{questionID, interviewID, u.Feedback, u.Improvements, u.KeyTakeaways, u.Grade}
	case domain.SkillsUpdate:
		set = `skills=$3`
		args = []any{questionID, interviewID, u.Skills}
	case domain.MarkSaved:
		set = `saved=true`
		args = []any{questionID, interviewID}
	default:
		return domain.Question{}, fmt.Errorf("op=question.update: %w: unknown update variant %T", domain.ErrInvalidArgument, upd)
	}

	tag, err := tx.Exec(ctx, `UPDATE questions SET `+set+` WHERE id=$1 AND interview_id=$2`, args...)
	if err != nil {
		return domain.Question{}, fmt.Errorf("op=question.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Question{}, fmt.Errorf("op=question.update: %w", domain.ErrNotFound)
	}

	if _, saved := upd.(domain.MarkSaved); saved {
		var unsaved int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM questions WHERE interview_id=$1 AND NOT saved`, interviewID).Scan(&unsaved); err != nil {
			return domain.Question{}, fmt.Errorf("op=question.update.siblings: %w", err)
		}
		if unsaved == 0 {
			if _, err := tx.Exec(ctx, `UPDATE interviews SET completed=true WHERE id=$1`, interviewID); err != nil {
				return domain.Question{}, fmt.Errorf("op=question.update.complete: %w", err)
			}
		}
	}

	row := tx.QueryRow(ctx, `SELECT `+questionCols+` FROM questions WHERE id=$1`, questionID)
	qu, err := scanQuestion(row)
	if err != nil {
		return domain.Question{}, fmt.Errorf("op=question.update.reload: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Question{}, fmt.Errorf("op=question.update.commit: %w", err)
	}
	return qu, nil
}

// Complete marks the interview completed. It fails with ErrConflict when any
// question is still unsaved.
func (r *InterviewRepo) Complete(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.Complete")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=interview.complete.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var unsaved int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM questions WHERE interview_id=$1 AND NOT saved`, id).Scan(&unsaved); err != nil {
		return fmt.Errorf("op=interview.complete.siblings: %w", err)
	}
	if unsaved > 0 {
		return fmt.Errorf("op=interview.complete: %w: %d questions unsaved", domain.ErrConflict, unsaved)
	}
	tag, err := tx.Exec(ctx, `UPDATE interviews SET completed=true WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=interview.complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=interview.complete: %w", domain.ErrNotFound)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=interview.complete.commit: %w", err)
	}
	return nil
}

// Delete removes the interview and all its questions as one atomic unit.
func (r *InterviewRepo) Delete(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.interviews")
	ctx, span := tracer.Start(ctx, "interviews.Delete")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=interview.delete.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE interview_id=$1`, id); err != nil {
		return fmt.Errorf("op=interview.delete.questions: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM interviews WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=interview.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=interview.delete: %w", domain.ErrNotFound)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=interview.delete.commit: %w", err)
	}
	return nil
}
