// Package stub provides fast, deterministic model clients for local runs
// without an API key.
package stub

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// FeedbackClient returns a canned critique for any answer.
type FeedbackClient struct{}

// NewFeedbackClient constructs a stub feedback client.
func NewFeedbackClient() *FeedbackClient { return &FeedbackClient{} }

func cannedEnvelope(req domain.FeedbackRequest) domain.FeedbackEnvelope {
	return domain.FeedbackEnvelope{
		SuggestedAnswer: "A concise answer covering the core concept with a concrete example.",
		ConstructiveFeedback: domain.ConstructiveFeedback{
			Strengths:           []string{"Clear structure", "Relevant example"},
			AreasForImprovement: []string{"Quantify the impact of your work"},
			ActionableTips:      []string{"Lead with the outcome, then explain the approach"},
		},
		KeyPoints: []string{"Addressed the question directly"},
		ToneAnalysis: domain.ToneAnalysis{
			OverallTone:     "confident",
			Professionalism: 85,
			Confidence:      80,
			Clarity:         82,
		},
		Grade: domain.Grade{
			Score:       78,
			Explanation: fmt.Sprintf("Solid answer for a %s position.", req.Position),
		},
	}
}

// Generate returns the canned envelope after a small simulated latency.
func (c *FeedbackClient) Generate(_ domain.Context, req domain.FeedbackRequest) (domain.FeedbackEnvelope, error) {
	if err := req.Validate(); err != nil {
		return domain.FeedbackEnvelope{}, err
	}
	time.Sleep(50 * time.Millisecond)
	return cannedEnvelope(req), nil
}

// GenerateStream emits the canned envelope once and closes.
func (c *FeedbackClient) GenerateStream(ctx domain.Context, req domain.FeedbackRequest) (<-chan domain.FeedbackEnvelope, <-chan error) {
	out := make(chan domain.FeedbackEnvelope)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		if err := req.Validate(); err != nil {
			errs <- err
			return
		}
		select {
		case out <- cannedEnvelope(req):
		case <-ctx.Done():
			errs <- ctx.Err()
		}
	}()
	return out, errs
}

// QuestionGenerator returns templated questions for any position.
type QuestionGenerator struct{}

// NewQuestionGenerator constructs a stub question generator.
func NewQuestionGenerator() *QuestionGenerator { return &QuestionGenerator{} }

// GenerateQuestions returns n templated questions tagged with the given skills.
func (g *QuestionGenerator) GenerateQuestions(_ domain.Context, jobTitle, _ string, skills []string, n int) ([]domain.GeneratedQuestion, error) {
	if jobTitle == "" || n <= 0 {
		return nil, fmt.Errorf("%w: job title and question count required", domain.ErrInvalidArgument)
	}
	qs := make([]domain.GeneratedQuestion, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, domain.GeneratedQuestion{
			Question:        fmt.Sprintf("Question %d: describe a challenge you solved as a %s.", i+1, jobTitle),
			SuggestedAnswer: "Describe the situation, your action, and the measurable result.",
			Skills:          skills,
		})
	}
	return qs, nil
}
