package ai

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

const feedbackSystemPrompt = `You are a strict but supportive interview coach.
You grade candidate answers to interview questions for a specific position.
Respond with ONLY a single valid JSON object matching this schema, no prose,
no markdown fences:
{
  "suggested_answer": string,
  "constructive_feedback": {
    "strengths": [string],
    "areas_for_improvement": [string],
    "actionable_tips": [string]
  },
  "key_points": [string],
  "tone_analysis": {
    "overall_tone": string,
    "professionalism": number (0-100),
    "confidence": number (0-100),
    "clarity": number (0-100)
  },
  "grade": { "score": number (0-100), "explanation": string }
}`

const questionsSystemPrompt = `You are an experienced technical interviewer.
You produce interview questions tailored to a position and its skills.
Respond with ONLY a single valid JSON object, no prose, no markdown fences:
{ "questions": [ { "question": string, "suggested_answer": string, "skills": [string] } ] }`

func buildFeedbackUserPrompt(question, answer, position string, skills []string, answerTokenCap int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Position: %s\n", position)
	if len(skills) > 0 {
		fmt.Fprintf(&sb, "Skills under evaluation: %s\n", strings.Join(skills, ", "))
	}
	fmt.Fprintf(&sb, "Interview question: %s\n", question)
	fmt.Fprintf(&sb, "Candidate answer: %s\n", truncateTokens(answer, answerTokenCap))
	return sb.String()
}

func buildQuestionsUserPrompt(jobTitle, jobDescription string, skills []string, n int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Position: %s\n", jobTitle)
	if jobDescription != "" {
		fmt.Fprintf(&sb, "Job description: %s\n", jobDescription)
	}
	if len(skills) > 0 {
		fmt.Fprintf(&sb, "Skills to cover: %s\n", strings.Join(skills, ", "))
	}
	fmt.Fprintf(&sb, "Generate exactly %d questions. Tag each with the skills it probes.\n", n)
	return sb.String()
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		// cl100k_base covers GPT-4 era models and is a close enough bound
		// for the rest.
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	return enc, encErr
}

// truncateTokens caps text at maxTokens, keeping the head of the answer. A
// cap of zero or an encoder failure leaves the text untouched.
func truncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	e, err := encoding()
	if err != nil {
		slog.Warn("token encoder unavailable, skipping truncation", slog.Any("error", err))
		return text
	}
	tokens := e.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	slog.Info("truncating answer for prompt",
		slog.Int("tokens", len(tokens)), slog.Int("cap", maxTokens))
	return e.Decode(tokens[:maxTokens])
}
