package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

// FeedbackStreamHandler is the streaming variant of the feedback action. Each
// merged envelope is pushed as one SSE data event; the stream ends with a
// done event carrying the summary location, or an error event mirroring the
// buffered error taxonomy.
func (s *Server) FeedbackStreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interviewID, questionID, ok := pathIDs(w, r)
		if !ok {
			return
		}
		flusher, canFlush := w.(http.Flusher)
		if !canFlush {
			writeError(w, r, fmt.Errorf("%w: streaming unsupported", domain.ErrInternal), nil)
			return
		}
		envs, errs := s.Session.StreamFeedback(r.Context(), UserID(r.Context()), interviewID, questionID)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for env := range envs {
			b, err := json.Marshal(env)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: feedback\ndata: %s\n\n", b)
			flusher.Flush()
		}
		if err := <-errs; err != nil {
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", sseError(err))
			flusher.Flush()
			return
		}
		done := map[string]string{
			"summary_path": fmt.Sprintf("/v1/interviews/%s/questions/%s/summary", interviewID, questionID),
		}
		b, _ := json.Marshal(done)
		fmt.Fprintf(w, "event: done\ndata: %s\n\n", b)
		flusher.Flush()
	}
}

// sseError renders an error into the same envelope shape as writeError, since
// headers are already committed once streaming starts.
func sseError(err error) []byte {
	body, _ := json.Marshal(errorEnvelope{Error: apiError{Code: sseErrorCode(err), Message: err.Error()}})
	return body
}

func sseErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, domain.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		return "CONFLICT"
	case errors.Is(err, domain.ErrFeedbackGeneration):
		return "FEEDBACK_FAILED"
	case errors.Is(err, domain.ErrPersistence):
		return "PERSISTENCE"
	default:
		return "INTERNAL"
	}
}
