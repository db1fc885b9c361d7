package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// GenerateService creates question-generation jobs and enqueues them for the
// worker.
type GenerateService struct {
	Jobs         domain.GenerationJobRepository
	Queue        domain.Queue
	MaxQuestions int
}

// NewGenerateService constructs a GenerateService with its dependencies.
func NewGenerateService(j domain.GenerationJobRepository, q domain.Queue, maxQuestions int) GenerateService {
	if maxQuestions <= 0 {
		maxQuestions = 10
	}
	return GenerateService{Jobs: j, Queue: q, MaxQuestions: maxQuestions}
}

// Enqueue validates inputs, creates a job, and enqueues the generation task.
// A repeated idempotency key returns the existing job id without enqueueing.
func (s GenerateService) Enqueue(ctx domain.Context, ownerID, jobTitle, jobDescription string, skills []string, numQuestions int, idemKey string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("%w: missing caller identity", domain.ErrUnauthorized)
	}
	if strings.TrimSpace(jobTitle) == "" {
		return "", fmt.Errorf("%w: job title is blank", domain.ErrInvalidArgument)
	}
	if numQuestions < 1 || numQuestions > s.MaxQuestions {
		return "", fmt.Errorf("%w: num questions must be 1-%d", domain.ErrInvalidArgument, s.MaxQuestions)
	}
	if idemKey != "" {
		if j, err := s.Jobs.FindByIdempotencyKey(ctx, idemKey); err == nil && j.ID != "" {
			return j.ID, nil
		}
	}
	j := domain.GenerationJob{
		OwnerID:        ownerID,
		Status:         domain.GenerationQueued,
		JobTitle:       strings.TrimSpace(jobTitle),
		JobDescription: strings.TrimSpace(jobDescription),
		Skills:         skills,
		NumQuestions:   numQuestions,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if idemKey != "" {
		j.IdemKey = &idemKey
	}
	jobID, err := s.Jobs.Create(ctx, j)
	if err != nil {
		return "", err
	}
	payload := domain.GenerateTaskPayload{
		JobID:          jobID,
		OwnerID:        ownerID,
		JobTitle:       j.JobTitle,
		JobDescription: j.JobDescription,
		Skills:         skills,
		NumQuestions:   numQuestions,
	}
	if _, err := s.Queue.EnqueueGenerate(ctx, payload); err != nil {
		_ = s.Jobs.UpdateStatus(ctx, jobID, domain.GenerationFailed, "", ptr("enqueue failed"))
		return "", err
	}
	return jobID, nil
}

// GetJob loads a generation job and enforces ownership.
func (s GenerateService) GetJob(ctx domain.Context, ownerID, id string) (domain.GenerationJob, error) {
	j, err := s.Jobs.Get(ctx, id)
	if err != nil {
		return domain.GenerationJob{}, err
	}
	if j.OwnerID != ownerID {
		return domain.GenerationJob{}, fmt.Errorf("%w: job %s", domain.ErrUnauthorized, id)
	}
	return j, nil
}

func ptr(s string) *string { return &s }
