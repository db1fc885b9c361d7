package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/questionbank"
)

// generationTimeout bounds one job end to end, model call included.
const generationTimeout = 3 * time.Minute

// HandleGenerate processes one question-generation task: it asks the model
// for questions, tops up from the seed bank when the model under-delivers,
// creates the interview, and marks the job completed. Offsets commit after
// handling, so a redelivered record for a job already in a terminal state is
// acknowledged without re-running generation.
func HandleGenerate(
	ctx context.Context,
	jobs domain.GenerationJobRepository,
	interviews domain.InterviewRepository,
	gen domain.QuestionGenerator,
	bank *questionbank.Bank,
	payload domain.GenerateTaskPayload,
) error {
	tracer := otel.Tracer("queue.handler")
	ctx, span := tracer.Start(ctx, "HandleGenerate")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, generationTimeout)
	defer cancel()

	job, err := jobs.Get(ctx, payload.JobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status == domain.GenerationCompleted || job.Status == domain.GenerationFailed {
		slog.Info("skipping replayed generation task",
			slog.String("job_id", payload.JobID),
			slog.String("status", string(job.Status)))
		return nil
	}

	if err := jobs.UpdateStatus(ctx, payload.JobID, domain.GenerationProcessing, "", nil); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	generated, err := gen.GenerateQuestions(ctx, payload.JobTitle, payload.JobDescription, payload.Skills, payload.NumQuestions)
	if err != nil {
		slog.Error("question generation failed",
			slog.String("job_id", payload.JobID), slog.Any("error", err))
		failJob(ctx, jobs, payload.JobID, fmt.Sprintf("generation: %v", err))
		observability.JobsFailedTotal.WithLabelValues("generate").Inc()
		return fmt.Errorf("generate questions: %w", err)
	}

	if len(generated) > payload.NumQuestions {
		generated = generated[:payload.NumQuestions]
	}
	if missing := payload.NumQuestions - len(generated); missing > 0 && bank != nil {
		seeds := bank.Pick(payload.Skills, missing)
		slog.Info("topping up from question bank",
			slog.String("job_id", payload.JobID),
			slog.Int("generated", len(generated)),
			slog.Int("seeded", len(seeds)))
		generated = append(generated, seeds...)
	}
	if len(generated) == 0 {
		failJob(ctx, jobs, payload.JobID, "generation: model returned no questions")
		observability.JobsFailedTotal.WithLabelValues("generate").Inc()
		return fmt.Errorf("generate questions: %w: empty result", domain.ErrFeedbackGeneration)
	}

	iv := domain.Interview{
		OwnerID:        payload.OwnerID,
		JobTitle:       payload.JobTitle,
		JobDescription: payload.JobDescription,
		Skills:         payload.Skills,
		ScheduledAt:    time.Now().UTC(),
	}
	for _, g := range generated {
		iv.Questions = append(iv.Questions, domain.Question{
			Text:            g.Question,
			SuggestedAnswer: g.SuggestedAnswer,
			Skills:          g.Skills,
		})
	}
	created, err := interviews.Create(ctx, iv)
	if err != nil {
		slog.Error("interview create failed",
			slog.String("job_id", payload.JobID), slog.Any("error", err))
		failJob(ctx, jobs, payload.JobID, "persistence: interview create failed")
		observability.JobsFailedTotal.WithLabelValues("generate").Inc()
		return fmt.Errorf("create interview: %w", err)
	}

	if err := jobs.UpdateStatus(ctx, payload.JobID, domain.GenerationCompleted, created.ID, nil); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	observability.JobsCompletedTotal.WithLabelValues("generate").Inc()
	slog.Info("generation job completed",
		slog.String("job_id", payload.JobID),
		slog.String("interview_id", created.ID),
		slog.Int("questions", len(created.Questions)))
	return nil
}

func failJob(ctx context.Context, jobs domain.GenerationJobRepository, id, msg string) {
	if err := jobs.UpdateStatus(ctx, id, domain.GenerationFailed, "", &msg); err != nil {
		slog.Error("failed to mark job failed", slog.String("job_id", id), slog.Any("error", err))
	}
}
