// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the REST surface of the mock-interview service: interview
// creation and generation, the per-question recording machine, answer
// submission, and feedback retrieval (buffered and streamed). The package
// keeps HTTP concerns separate from the orchestration logic in usecase.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrUnauthorized):
		code = http.StatusUnauthorized
		codeStr = "UNAUTHORIZED"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		code = http.StatusConflict
		codeStr = "CONFLICT"
	case errors.Is(err, domain.ErrCaptureFailed):
		code = http.StatusUnprocessableEntity
		codeStr = "CAPTURE_FAILED"
	case errors.Is(err, domain.ErrRateLimited):
		code = http.StatusTooManyRequests
		codeStr = "RATE_LIMITED"
	case errors.Is(err, domain.ErrTranscription):
		code = http.StatusBadGateway
		codeStr = "TRANSCRIPTION_FAILED"
	case errors.Is(err, domain.ErrFeedbackGeneration):
		code = http.StatusBadGateway
		codeStr = "FEEDBACK_FAILED"
	case errors.Is(err, domain.ErrPersistence):
		code = http.StatusInternalServerError
		codeStr = "PERSISTENCE"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}
