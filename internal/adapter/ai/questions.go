package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// QuestionGenerator produces interview questions via chat completions. It
// implements domain.QuestionGenerator.
type QuestionGenerator struct {
	client *Client
}

// NewQuestionGenerator wraps a chat client as a question generator.
func NewQuestionGenerator(client *Client) *QuestionGenerator {
	return &QuestionGenerator{client: client}
}

// GenerateQuestions asks the model for n questions for the given position.
// Blank questions are dropped rather than failing the batch.
func (g *QuestionGenerator) GenerateQuestions(ctx domain.Context, jobTitle, jobDescription string, skills []string, n int) ([]domain.GeneratedQuestion, error) {
	if jobTitle == "" || n <= 0 {
		return nil, fmt.Errorf("%w: job title and question count required", domain.ErrInvalidArgument)
	}
	user := buildQuestionsUserPrompt(jobTitle, jobDescription, skills, n)
	raw, err := g.client.ChatJSON(ctx, questionsSystemPrompt, user, g.client.cfg.LLMMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeedbackGeneration, err)
	}

	var out struct {
		Questions []domain.GeneratedQuestion `json:"questions"`
	}
	cleaned := CleanJSONResponse(raw)
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		if isRefusal(raw) {
			slog.Warn("question model refused", slog.String("response", snippet([]byte(raw))))
			return nil, fmt.Errorf("%w: model refused the request", domain.ErrFeedbackGeneration)
		}
		slog.Error("question response rejected", slog.Any("error", err))
		return nil, fmt.Errorf("%w: decode questions: %v", domain.ErrFeedbackGeneration, err)
	}

	qs := make([]domain.GeneratedQuestion, 0, len(out.Questions))
	for _, q := range out.Questions {
		if strings.TrimSpace(q.Question) == "" {
			continue
		}
		qs = append(qs, q)
	}
	return qs, nil
}
