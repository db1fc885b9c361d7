package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

const envelopeJSON = `{
  "suggested_answer": "Walk through the request lifecycle end to end.",
  "constructive_feedback": {
    "strengths": ["good structure"],
    "areas_for_improvement": ["add numbers"],
    "actionable_tips": ["quantify impact"]
  },
  "key_points": ["lifecycle"],
  "tone_analysis": {"overall_tone": "confident", "professionalism": 90, "confidence": 85, "clarity": 88},
  "grade": {"score": 82, "explanation": "solid"}
}`

func testConfig(baseURL string) config.Config {
	return config.Config{
		AppEnv:       "test",
		LLMBaseURL:   baseURL,
		LLMAPIKey:    "test-key",
		LLMModel:     "test-model",
		LLMMaxTokens: 512,
	}
}

func feedbackRequest() domain.FeedbackRequest {
	return domain.FeedbackRequest{
		Question: "How does a request flow through your service?",
		Answer:   "It goes through the router, then the handler.",
		Position: "Backend Engineer",
		Skills:   []string{"go"},
	}
}

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	return string(b)
}

func TestFeedbackGenerate_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, chatResponse("```json\n"+envelopeJSON+"\n```"))
	}))
	defer srv.Close()

	fc := NewFeedbackClient(NewClient(testConfig(srv.URL)))
	env, err := fc.Generate(context.Background(), feedbackRequest())
	require.NoError(t, err)
	assert.Equal(t, 82.0, env.Grade.Score)
	assert.Equal(t, "confident", env.ToneAnalysis.OverallTone)
}

func TestFeedbackGenerate_InvalidRequest(t *testing.T) {
	t.Parallel()
	fc := NewFeedbackClient(NewClient(testConfig("http://unused")))
	_, err := fc.Generate(context.Background(), domain.FeedbackRequest{Question: "q"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestFeedbackGenerate_4xxNotRetried(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	fc := NewFeedbackClient(NewClient(testConfig(srv.URL)))
	_, err := fc.Generate(context.Background(), feedbackRequest())
	require.ErrorIs(t, err, domain.ErrFeedbackGeneration)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFeedbackGenerate_5xxRetried(t *testing.T) {
	t.Parallel()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, chatResponse(envelopeJSON))
	}))
	defer srv.Close()

	fc := NewFeedbackClient(NewClient(testConfig(srv.URL)))
	env, err := fc.Generate(context.Background(), feedbackRequest())
	require.NoError(t, err)
	assert.Equal(t, 82.0, env.Grade.Score)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestFeedbackGenerate_UnparsableContent(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, chatResponse("here is some feedback without any json"))
	}))
	defer srv.Close()

	fc := NewFeedbackClient(NewClient(testConfig(srv.URL)))
	_, err := fc.Generate(context.Background(), feedbackRequest())
	require.ErrorIs(t, err, domain.ErrFeedbackGeneration)
}

func TestFeedbackGenerate_RefusalDetected(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, chatResponse("I cannot answer that, it goes against my guidelines."))
	}))
	defer srv.Close()

	fc := NewFeedbackClient(NewClient(testConfig(srv.URL)))
	_, err := fc.Generate(context.Background(), feedbackRequest())
	require.ErrorIs(t, err, domain.ErrFeedbackGeneration)
	assert.Contains(t, err.Error(), "refused")
}

func sseServer(t *testing.T, fragments []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, frag := range fragments {
			b, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{
					{"delta": map[string]string{"content": frag}},
				},
			})
			fmt.Fprintf(w, "data: %s\n\n", b)
			fl.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		fl.Flush()
	}))
}

func drainStream(t *testing.T, out <-chan domain.FeedbackEnvelope, errs <-chan error) ([]domain.FeedbackEnvelope, error) {
	t.Helper()
	var got []domain.FeedbackEnvelope
	for env := range out {
		got = append(got, env)
	}
	return got, <-errs
}

func TestFeedbackStream_EmitsMergedEnvelopes(t *testing.T) {
	t.Parallel()
	// The buffer only parses once the closing brace of the object arrives.
	srv := sseServer(t, []string{
		`{"suggested_answer": "partial`,
		`...", "grade": {"score": 50, "explanation": "wip"}}`,
	})
	defer srv.Close()

	fc := NewFeedbackClient(NewClient(testConfig(srv.URL)))
	out, errs := fc.GenerateStream(context.Background(), feedbackRequest())
	got, err := drainStream(t, out, errs)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, 50.0, last.Grade.Score)
	assert.Equal(t, "partial...", last.SuggestedAnswer)
}

func TestFeedbackStream_OnlyValidAtEnd(t *testing.T) {
	t.Parallel()
	// No prefix of the stream parses until the very last fragment.
	srv := sseServer(t, []string{
		`{"suggested_answer"`,
		`: "answer", "grade"`,
		`: {"score": 70, "explanation": "done"}}`,
	})
	defer srv.Close()

	fc := NewFeedbackClient(NewClient(testConfig(srv.URL)))
	out, errs := fc.GenerateStream(context.Background(), feedbackRequest())
	got, err := drainStream(t, out, errs)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 70.0, got[0].Grade.Score)
}

func TestFeedbackStream_NeverParsable(t *testing.T) {
	t.Parallel()
	srv := sseServer(t, []string{"this is ", "not json at all"})
	defer srv.Close()

	fc := NewFeedbackClient(NewClient(testConfig(srv.URL)))
	out, errs := fc.GenerateStream(context.Background(), feedbackRequest())
	got, err := drainStream(t, out, errs)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFeedbackStream_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	fc := NewFeedbackClient(NewClient(testConfig(srv.URL)))
	out, errs := fc.GenerateStream(context.Background(), feedbackRequest())
	got, err := drainStream(t, out, errs)
	assert.Empty(t, got)
	require.ErrorIs(t, err, domain.ErrFeedbackGeneration)
}

func TestFeedbackStream_InvalidRequest(t *testing.T) {
	t.Parallel()
	fc := NewFeedbackClient(NewClient(testConfig("http://unused")))
	out, errs := fc.GenerateStream(context.Background(), domain.FeedbackRequest{})
	got, err := drainStream(t, out, errs)
	assert.Empty(t, got)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestChatJSON_MissingAPIKey(t *testing.T) {
	t.Parallel()
	cfg := testConfig("http://unused")
	cfg.LLMAPIKey = ""
	_, err := NewClient(cfg).ChatJSON(context.Background(), "s", "u", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}
