// Package whisper provides speech-to-text over a Whisper-compatible HTTP
// service. It posts finalized audio blobs and returns the cleaned transcript.
package whisper

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/observability"
	"github.com/fairyhunter13/ai-mock-interview/pkg/textx"
)

// Client is a minimal Whisper-compatible HTTP client implementing
// domain.Transcriber. It performs POST /transcribe with the audio blob as a
// multipart field named "audio".
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New constructs a transcription client with the given timeout.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Transcribe uploads the audio blob and returns its transcript. All transport
// and service failures map to domain.ErrTranscription so callers can halt the
// answer pipeline uniformly.
func (c *Client) Transcribe(ctx domain.Context, filename string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio blob", domain.ErrInvalidArgument)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return "", fmt.Errorf("%w: build form: %v", domain.ErrTranscription, err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("%w: write form: %v", domain.ErrTranscription, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: close form: %v", domain.ErrTranscription, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", &body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscription, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.TranscriptionsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %v", domain.ErrTranscription, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("transcriber non-2xx",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(snippet)))
		observability.TranscriptionsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: status %d", domain.ErrTranscription, resp.StatusCode)
	}

	var out struct {
		Transcription string `json:"transcription"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		observability.TranscriptionsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: decode: %v", domain.ErrTranscription, err)
	}

	transcript := textx.CleanTranscript(out.Transcription)
	if transcript == "" {
		observability.TranscriptionsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: response missing transcription", domain.ErrTranscription)
	}

	observability.TranscriptionsTotal.WithLabelValues("ok").Inc()
	return transcript, nil
}
