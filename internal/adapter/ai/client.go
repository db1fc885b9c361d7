// Package ai implements the feedback and question-generation ports against an
// OpenAI-compatible chat completions API.
package ai

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/observability"
)

// Client is a thin chat-completions client with retry, tracing, and a
// circuit breaker baked in.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	breaker *circuitBreaker
}

// NewClient constructs a Client with the configured chat timeout.
func NewClient(cfg config.Config) *Client {
	timeout := cfg.ChatTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:     cfg,
		breaker: newCircuitBreaker(cfg.LLMModel),
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// errCircuitOpen is returned without touching the network while the provider
// is considered down.
var errCircuitOpen = errors.New("ai provider circuit open")

func (c *Client) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsedTime, initialInterval, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

// ChatJSON sends one chat completion request and returns the message content.
// 429 and 5xx responses are retried with exponential backoff; other 4xx
// responses abort immediately.
func (c *Client) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if c.cfg.LLMAPIKey == "" {
		return "", fmt.Errorf("%w: LLM_API_KEY missing", domain.ErrInvalidArgument)
	}
	if !c.breaker.shouldAttempt() {
		return "", errCircuitOpen
	}
	body := map[string]any{
		"model":       c.cfg.LLMModel,
		"temperature": 0.2,
		"max_tokens":  maxTokens,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	b, _ := json.Marshal(body)

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	op := func() error {
		start := time.Now()
		// Recreate request each attempt to avoid reusing consumed bodies.
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LLMBaseURL+"/chat/completions", bytes.NewReader(b))
		r.Header.Set("Authorization", "Bearer "+c.cfg.LLMAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(r)
		observability.AIRequestsTotal.WithLabelValues("llm", "chat").Inc()
		observability.AIRequestDuration.WithLabelValues("llm", "chat").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("ai provider rate limited",
				slog.String("op", "chat"),
				slog.Int("status", resp.StatusCode),
				slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
			return fmt.Errorf("rate limited: 429")
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			slog.Warn("ai provider 4xx",
				slog.String("op", "chat"),
				slog.Int("status", resp.StatusCode),
				slog.String("model", c.cfg.LLMModel),
				slog.String("body", snippet(bodyBytes)))
			return backoff.Permanent(fmt.Errorf("chat status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Error("ai provider non-2xx",
				slog.String("op", "chat"),
				slog.Int("status", resp.StatusCode),
				slog.String("model", c.cfg.LLMModel),
				slog.String("body", snippet(bodyBytes)))
			return fmt.Errorf("chat status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Error("ai provider decode error",
				slog.String("op", "chat"),
				slog.String("model", c.cfg.LLMModel),
				slog.Any("error", err))
			return err
		}
		return nil
	}
	bo := backoff.WithContext(c.getBackoffConfig(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		c.breaker.recordFailure()
		return "", fmt.Errorf("chat completions failed: %w", err)
	}
	c.breaker.recordSuccess()
	if len(out.Choices) == 0 {
		return "", errors.New("empty choices from chat completions")
	}
	return out.Choices[0].Message.Content, nil
}

// ChatStream opens a streaming chat completion and emits content fragments as
// they arrive. Both channels close when the stream ends; a single error may be
// sent before close. Streaming requests are not retried: a consumer that has
// already observed fragments cannot safely replay them.
func (c *Client) ChatStream(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (<-chan string, <-chan error) {
	frags := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(frags)
		defer close(errs)

		if c.cfg.LLMAPIKey == "" {
			errs <- fmt.Errorf("%w: LLM_API_KEY missing", domain.ErrInvalidArgument)
			return
		}
		if !c.breaker.shouldAttempt() {
			errs <- errCircuitOpen
			return
		}
		body := map[string]any{
			"model":       c.cfg.LLMModel,
			"temperature": 0.2,
			"max_tokens":  maxTokens,
			"stream":      true,
			"messages": []map[string]string{
				{"role": "system", "content": systemPrompt},
				{"role": "user", "content": userPrompt},
			},
		}
		b, _ := json.Marshal(body)

		start := time.Now()
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LLMBaseURL+"/chat/completions", bytes.NewReader(b))
		if err != nil {
			errs <- err
			return
		}
		r.Header.Set("Authorization", "Bearer "+c.cfg.LLMAPIKey)
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Accept", "text/event-stream")
		resp, err := c.hc.Do(r)
		observability.AIRequestsTotal.WithLabelValues("llm", "chat_stream").Inc()
		if err != nil {
			c.breaker.recordFailure()
			errs <- err
			return
		}
		defer func() { _ = resp.Body.Close() }()
		observability.AIRequestDuration.WithLabelValues("llm", "chat_stream").Observe(time.Since(start).Seconds())

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			slog.Error("ai provider non-2xx",
				slog.String("op", "chat_stream"),
				slog.Int("status", resp.StatusCode),
				slog.String("body", string(bodyBytes)))
			c.breaker.recordFailure()
			errs <- fmt.Errorf("chat stream status %d", resp.StatusCode)
			return
		}
		c.breaker.recordSuccess()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				return
			}
			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
			}
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				slog.Debug("skipping unparsable stream event", slog.Any("error", err))
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case frags <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := sc.Err(); err != nil {
			errs <- fmt.Errorf("read stream: %w", err)
		}
	}()
	return frags, errs
}

func snippet(b []byte) string {
	if len(b) > 512 {
		b = b[:512]
	}
	return string(b)
}
