package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// FeedbackClient generates structured answer critiques via chat completions.
// It implements domain.FeedbackClient.
type FeedbackClient struct {
	client *Client
}

// NewFeedbackClient wraps a chat client as a feedback generator.
func NewFeedbackClient(client *Client) *FeedbackClient {
	return &FeedbackClient{client: client}
}

// Generate asks the model for a complete critique and parses it strictly.
func (f *FeedbackClient) Generate(ctx domain.Context, req domain.FeedbackRequest) (domain.FeedbackEnvelope, error) {
	if err := req.Validate(); err != nil {
		return domain.FeedbackEnvelope{}, err
	}
	user := buildFeedbackUserPrompt(req.Question, req.Answer, req.Position, req.Skills, f.client.cfg.AnswerTokenCap)
	raw, err := f.client.ChatJSON(ctx, feedbackSystemPrompt, user, f.client.cfg.LLMMaxTokens)
	if err != nil {
		return domain.FeedbackEnvelope{}, fmt.Errorf("%w: %v", domain.ErrFeedbackGeneration, err)
	}
	env, err := parseEnvelope(raw)
	if err != nil {
		if isRefusal(raw) {
			slog.Warn("feedback model refused", slog.String("response", snippet([]byte(raw))))
			return domain.FeedbackEnvelope{}, fmt.Errorf("%w: model refused the request", domain.ErrFeedbackGeneration)
		}
		slog.Error("feedback response rejected", slog.Any("error", err))
		return domain.FeedbackEnvelope{}, fmt.Errorf("%w: %v", domain.ErrFeedbackGeneration, err)
	}
	return env, nil
}

// GenerateStream streams the critique. After every fragment the accumulated
// buffer is re-parsed from scratch; each successful parse is emitted, so the
// receiver should keep only the latest envelope. A buffer that never parses
// produces no envelopes and no error, mirroring a model that answered with
// unusable text.
func (f *FeedbackClient) GenerateStream(ctx domain.Context, req domain.FeedbackRequest) (<-chan domain.FeedbackEnvelope, <-chan error) {
	out := make(chan domain.FeedbackEnvelope)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)

		if err := req.Validate(); err != nil {
			errs <- err
			return
		}
		user := buildFeedbackUserPrompt(req.Question, req.Answer, req.Position, req.Skills, f.client.cfg.AnswerTokenCap)
		frags, ferrs := f.client.ChatStream(ctx, feedbackSystemPrompt, user, f.client.cfg.LLMMaxTokens)

		var buf strings.Builder
		for frag := range frags {
			buf.WriteString(frag)
			env, err := parseEnvelopeLoose(buf.String())
			if err != nil {
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := <-ferrs; err != nil {
			errs <- fmt.Errorf("%w: %v", domain.ErrFeedbackGeneration, err)
		}
	}()
	return out, errs
}

// parseEnvelope cleans, decodes and validates a final model response.
func parseEnvelope(raw string) (domain.FeedbackEnvelope, error) {
	var env domain.FeedbackEnvelope
	cleaned := CleanJSONResponse(raw)
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		return domain.FeedbackEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := ValidateEnvelope(env); err != nil {
		return domain.FeedbackEnvelope{}, fmt.Errorf("invalid envelope: %w", err)
	}
	return env, nil
}

// parseEnvelopeLoose decodes a possibly partial buffer. Validation is skipped
// so intermediate envelopes can surface before every field has streamed in.
func parseEnvelopeLoose(raw string) (domain.FeedbackEnvelope, error) {
	var env domain.FeedbackEnvelope
	cleaned := CleanJSONResponse(raw)
	if err := json.Unmarshal([]byte(cleaned), &env); err != nil {
		return domain.FeedbackEnvelope{}, err
	}
	return env, nil
}
