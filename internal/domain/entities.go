// Package domain defines the entities, error taxonomy, and ports of the
// mock-interview service.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrRateLimited        = errors.New("rate limited")
	ErrCaptureFailed      = errors.New("capture failed")
	ErrTranscription      = errors.New("transcription failed")
	ErrFeedbackGeneration = errors.New("feedback generation failed")
	ErrPersistence        = errors.New("persistence failed")
	ErrInternal           = errors.New("internal error")
)

// Interview is one mock-interview session owned by a user.
// Invariant: Completed becomes true only when every owned Question is saved.
type Interview struct {
	ID             string
	OwnerID        string
	JobTitle       string
	JobDescription string
	Skills         []string
	ScheduledAt    time.Time
	Completed      bool
	CreatedAt      time.Time
	Questions      []Question
}

// Question is a single interview prompt plus its answer/feedback lifecycle.
// Invariants: Answer and AudioURL are set together; Feedback, Improvements,
// KeyTakeaways and Grade are set together.
type Question struct {
	ID                string
	InterviewID       string
	Text              string
	SuggestedAnswer   string
	SuggestedAudioURL string
	Answer            *string
	AudioURL          *string
	Feedback          *string
	Improvements      []string
	KeyTakeaways      []string
	Grade             *float64
	Skills            []string
	Saved             bool
	CreatedAt         time.Time
}

// Answered reports whether the transcription step completed for this question.
func (q Question) Answered() bool { return q.Answer != nil && q.AudioURL != nil }

// Graded reports whether the feedback step completed for this question.
func (q Question) Graded() bool {
	return q.Feedback != nil && q.Grade != nil && q.Improvements != nil && q.KeyTakeaways != nil
}

// QuestionUpdate is a tagged variant for UpdateQuestion. Each variant names
// the exact field set it writes, so partial writes of coupled fields are
// unrepresentable.
type QuestionUpdate interface{ isQuestionUpdate() }

// AnswerUpdate sets the transcribed answer and its audio URL together.
type AnswerUpdate struct {
	Answer   string
	AudioURL string
}

// FeedbackUpdate sets all feedback-derived fields together.
type FeedbackUpdate struct {
	Feedback     string
	Improvements []string
	KeyTakeaways []string
	Grade        float64
}

// SkillsUpdate replaces the question's skill subset.
type SkillsUpdate struct {
	Skills []string
}

// MarkSaved marks the question as saved. When every sibling question is
// already saved, the gateway flips the parent interview's completed flag in
// the same transaction.
type MarkSaved struct{}

func (AnswerUpdate) isQuestionUpdate()   {}
func (FeedbackUpdate) isQuestionUpdate() {}
func (SkillsUpdate) isQuestionUpdate()   {}
func (MarkSaved) isQuestionUpdate()      {}

// NewQuestion is the creation shape for a question inside CreateInterview.
type NewQuestion struct {
	Text            string
	SuggestedAnswer string
	Skills          []string
}

// InterviewRepository is the persistence gateway for interviews and their
// questions.
type InterviewRepository interface {
	Create(ctx Context, iv Interview) (Interview, error)
	Get(ctx Context, id string) (Interview, error)
	UpdateQuestion(ctx Context, interviewID, questionID string, upd QuestionUpdate) (Question, error)
	Complete(ctx Context, id string) error
	Delete(ctx Context, id string) error
}

// GenerationJobStatus enumerates generation job states.
type GenerationJobStatus string

// Generation job states.
const (
	GenerationQueued     GenerationJobStatus = "queued"
	GenerationProcessing GenerationJobStatus = "processing"
	GenerationCompleted  GenerationJobStatus = "completed"
	GenerationFailed     GenerationJobStatus = "failed"
)

// GenerationJob tracks an asynchronous question-generation request.
type GenerationJob struct {
	ID             string
	OwnerID        string
	Status         GenerationJobStatus
	Error          string
	InterviewID    string
	JobTitle       string
	JobDescription string
	Skills         []string
	NumQuestions   int
	IdemKey        *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// GenerationJobRepository persists generation jobs.
type GenerationJobRepository interface {
	Create(ctx Context, j GenerationJob) (string, error)
	Get(ctx Context, id string) (GenerationJob, error)
	UpdateStatus(ctx Context, id string, status GenerationJobStatus, interviewID string, errMsg *string) error
	FindByIdempotencyKey(ctx Context, key string) (GenerationJob, error)
}

// GenerateTaskPayload is the queue message for a generation job.
type GenerateTaskPayload struct {
	JobID          string   `json:"job_id"`
	OwnerID        string   `json:"owner_id"`
	JobTitle       string   `json:"job_title"`
	JobDescription string   `json:"job_description"`
	Skills         []string `json:"skills"`
	NumQuestions   int      `json:"num_questions"`
}

// Queue enqueues generation tasks for the worker.
type Queue interface {
	EnqueueGenerate(ctx Context, payload GenerateTaskPayload) (string, error)
}

// Transcriber converts a finalized audio blob into text.
type Transcriber interface {
	Transcribe(ctx Context, filename string, audio []byte) (string, error)
}

// AudioStore persists a finalized audio blob and returns a durable public URL.
type AudioStore interface {
	Save(ctx Context, key string, audio []byte) (string, error)
}

// Context aliases context.Context so ports stay readable.
type Context = context.Context
