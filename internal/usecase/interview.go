// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// InterviewService wraps the persistence gateway with validation and
// ownership checks.
type InterviewService struct {
	Repo domain.InterviewRepository
}

// NewInterviewService constructs an InterviewService with the given repo.
func NewInterviewService(r domain.InterviewRepository) InterviewService {
	return InterviewService{Repo: r}
}

// Create validates inputs and persists a new interview with its questions.
func (s InterviewService) Create(ctx domain.Context, ownerID, jobTitle, jobDescription string, skills []string, scheduledAt time.Time, questions []domain.NewQuestion) (domain.Interview, error) {
	if ownerID == "" {
		return domain.Interview{}, fmt.Errorf("%w: missing caller identity", domain.ErrUnauthorized)
	}
	if strings.TrimSpace(jobTitle) == "" {
		return domain.Interview{}, fmt.Errorf("%w: job title is blank", domain.ErrInvalidArgument)
	}
	if len(questions) == 0 {
		return domain.Interview{}, fmt.Errorf("%w: questions are empty", domain.ErrInvalidArgument)
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Text) == "" {
			return domain.Interview{}, fmt.Errorf("%w: question %d is blank", domain.ErrInvalidArgument, i)
		}
	}
	if scheduledAt.IsZero() {
		scheduledAt = time.Now().UTC()
	}
	iv := domain.Interview{
		OwnerID:        ownerID,
		JobTitle:       strings.TrimSpace(jobTitle),
		JobDescription: strings.TrimSpace(jobDescription),
		Skills:         skills,
		ScheduledAt:    scheduledAt,
	}
	for _, q := range questions {
		iv.Questions = append(iv.Questions, domain.Question{
			Text:            strings.TrimSpace(q.Text),
			SuggestedAnswer: q.SuggestedAnswer,
			Skills:          q.Skills,
		})
	}
	return s.Repo.Create(ctx, iv)
}

// Get loads an interview and enforces ownership.
func (s InterviewService) Get(ctx domain.Context, ownerID, id string) (domain.Interview, error) {
	iv, err := s.Repo.Get(ctx, id)
	if err != nil {
		return domain.Interview{}, err
	}
	if iv.OwnerID != ownerID {
		return domain.Interview{}, fmt.Errorf("%w: interview %s", domain.ErrUnauthorized, id)
	}
	return iv, nil
}

// UpdateQuestion applies a tagged update after re-checking ownership through
// the parent interview. An unauthorized caller mutates nothing.
func (s InterviewService) UpdateQuestion(ctx domain.Context, ownerID, interviewID, questionID string, upd domain.QuestionUpdate) (domain.Question, error) {
	if _, err := s.Get(ctx, ownerID, interviewID); err != nil {
		return domain.Question{}, err
	}
	return s.Repo.UpdateQuestion(ctx, interviewID, questionID, upd)
}

// Complete explicitly marks the interview complete. The gateway rejects it
// with ErrConflict while any question is unsaved.
func (s InterviewService) Complete(ctx domain.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.Repo.Complete(ctx, id)
}

// Delete removes the interview and all its questions atomically.
func (s InterviewService) Delete(ctx domain.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.Repo.Delete(ctx, id)
}
