package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// fakeInterviewRepo is an in-memory InterviewRepository recording mutations.
type fakeInterviewRepo struct {
	interviews    map[string]*domain.Interview
	updates       []domain.QuestionUpdate
	completeCalls int
	deleteCalls   int
}

func newFakeInterviewRepo() *fakeInterviewRepo {
	return &fakeInterviewRepo{interviews: make(map[string]*domain.Interview)}
}

func (f *fakeInterviewRepo) Create(_ domain.Context, iv domain.Interview) (domain.Interview, error) {
	iv.ID = uuid.NewString()
	iv.CreatedAt = time.Now().UTC()
	for i := range iv.Questions {
		iv.Questions[i].ID = uuid.NewString()
		iv.Questions[i].InterviewID = iv.ID
	}
	cp := iv
	f.interviews[iv.ID] = &cp
	return iv, nil
}

func (f *fakeInterviewRepo) Get(_ domain.Context, id string) (domain.Interview, error) {
	iv, ok := f.interviews[id]
	if !ok {
		return domain.Interview{}, fmt.Errorf("%w: interview %s", domain.ErrNotFound, id)
	}
	return *iv, nil
}

func (f *fakeInterviewRepo) UpdateQuestion(_ domain.Context, interviewID, questionID string, upd domain.QuestionUpdate) (domain.Question, error) {
	iv, ok := f.interviews[interviewID]
	if !ok {
		return domain.Question{}, domain.ErrNotFound
	}
	for i := range iv.Questions {
		q := &iv.Questions[i]
		if q.ID != questionID {
			continue
		}
		f.updates = append(f.updates, upd)
		switch u := upd.(type) {
		case domain.AnswerUpdate:
			q.Answer = &u.Answer
			q.AudioURL = &u.AudioURL
		case domain.FeedbackUpdate:
			q.Feedback = &u.Feedback
			q.Improvements = u.Improvements
			q.KeyTakeaways = u.KeyTakeaways
			grade := u.Grade
			q.Grade = &grade
		case domain.SkillsUpdate:
			q.Skills = u.Skills
		case domain.MarkSaved:
			q.Saved = true
			all := true
			for _, sib := range iv.Questions {
				if !sib.Saved {
					all = false
					break
				}
			}
			if all {
				iv.Completed = true
			}
		}
		return *q, nil
	}
	return domain.Question{}, domain.ErrNotFound
}

func (f *fakeInterviewRepo) Complete(_ domain.Context, id string) error {
	iv, ok := f.interviews[id]
	if !ok {
		return domain.ErrNotFound
	}
	for _, q := range iv.Questions {
		if !q.Saved {
			return fmt.Errorf("%w: unsaved questions remain", domain.ErrConflict)
		}
	}
	f.completeCalls++
	iv.Completed = true
	return nil
}

func (f *fakeInterviewRepo) Delete(_ domain.Context, id string) error {
	if _, ok := f.interviews[id]; !ok {
		return domain.ErrNotFound
	}
	f.deleteCalls++
	delete(f.interviews, id)
	return nil
}

func TestCreate_ScenarioA(t *testing.T) {
	t.Parallel()
	repo := newFakeInterviewRepo()
	svc := NewInterviewService(repo)

	iv, err := svc.Create(context.Background(), "user-1", "Backend Engineer", "Build APIs",
		[]string{"Go", "SQL"}, time.Time{},
		[]domain.NewQuestion{{Text: "Explain indexing", SuggestedAnswer: "..."}})
	require.NoError(t, err)
	require.Len(t, iv.Questions, 1)
	assert.False(t, iv.Completed)
	assert.Equal(t, "user-1", iv.OwnerID)
	assert.NotEmpty(t, iv.ID)
	assert.NotEmpty(t, iv.Questions[0].ID)
}

func TestCreate_Validation(t *testing.T) {
	t.Parallel()
	svc := NewInterviewService(newFakeInterviewRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, "user-1", "  ", "", nil, time.Time{},
		[]domain.NewQuestion{{Text: "q"}})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.Create(ctx, "user-1", "Backend Engineer", "", nil, time.Time{}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.Create(ctx, "", "Backend Engineer", "", nil, time.Time{},
		[]domain.NewQuestion{{Text: "q"}})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestGet_OwnershipEnforced(t *testing.T) {
	t.Parallel()
	repo := newFakeInterviewRepo()
	svc := NewInterviewService(repo)
	ctx := context.Background()

	iv, err := svc.Create(ctx, "user-1", "Backend Engineer", "", nil, time.Time{},
		[]domain.NewQuestion{{Text: "q"}})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "user-2", iv.ID)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = svc.Get(ctx, "user-1", "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateQuestion_ScenarioD_UnauthorizedMutatesNothing(t *testing.T) {
	t.Parallel()
	repo := newFakeInterviewRepo()
	svc := NewInterviewService(repo)
	ctx := context.Background()

	iv, err := svc.Create(ctx, "user-1", "Backend Engineer", "", nil, time.Time{},
		[]domain.NewQuestion{{Text: "q"}})
	require.NoError(t, err)

	_, err = svc.UpdateQuestion(ctx, "intruder", iv.ID, iv.Questions[0].ID,
		domain.AnswerUpdate{Answer: "hijack", AudioURL: "http://x"})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, repo.updates)

	got, err := svc.Get(ctx, "user-1", iv.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Questions[0].Answer)
}

func TestComplete_ConflictWhileUnsaved(t *testing.T) {
	t.Parallel()
	repo := newFakeInterviewRepo()
	svc := NewInterviewService(repo)
	ctx := context.Background()

	iv, err := svc.Create(ctx, "user-1", "Backend Engineer", "", nil, time.Time{},
		[]domain.NewQuestion{{Text: "q"}})
	require.NoError(t, err)

	err = svc.Complete(ctx, "user-1", iv.ID)
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = svc.UpdateQuestion(ctx, "user-1", iv.ID, iv.Questions[0].ID, domain.MarkSaved{})
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, "user-1", iv.ID))
}

func TestMarkSaved_FlipsCompletedWhenAllSaved(t *testing.T) {
	t.Parallel()
	repo := newFakeInterviewRepo()
	svc := NewInterviewService(repo)
	ctx := context.Background()

	iv, err := svc.Create(ctx, "user-1", "Backend Engineer", "", nil, time.Time{},
		[]domain.NewQuestion{{Text: "q1"}, {Text: "q2"}})
	require.NoError(t, err)

	_, err = svc.UpdateQuestion(ctx, "user-1", iv.ID, iv.Questions[0].ID, domain.MarkSaved{})
	require.NoError(t, err)
	got, _ := svc.Get(ctx, "user-1", iv.ID)
	assert.False(t, got.Completed)

	_, err = svc.UpdateQuestion(ctx, "user-1", iv.ID, iv.Questions[1].ID, domain.MarkSaved{})
	require.NoError(t, err)
	got, _ = svc.Get(ctx, "user-1", iv.ID)
	assert.True(t, got.Completed)
}

func TestDelete_OwnershipAndRemoval(t *testing.T) {
	t.Parallel()
	repo := newFakeInterviewRepo()
	svc := NewInterviewService(repo)
	ctx := context.Background()

	iv, err := svc.Create(ctx, "user-1", "Backend Engineer", "", nil, time.Time{},
		[]domain.NewQuestion{{Text: "q"}})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(ctx, "user-2", iv.ID), domain.ErrUnauthorized)
	require.NoError(t, svc.Delete(ctx, "user-1", iv.ID))
	_, err = svc.Get(ctx, "user-1", iv.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
