package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Interviews usecase.InterviewService
	Generate   usecase.GenerateService
	Session    *usecase.SessionService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	KafkaCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, interviews usecase.InterviewService, gen usecase.GenerateService, session *usecase.SessionService, dbCheck, redisCheck, kafkaCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Interviews: interviews, Generate: gen, Session: session, DBCheck: dbCheck, RedisCheck: redisCheck, KafkaCheck: kafkaCheck}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

func validationDetails(err error) map[string]string {
	verrs := map[string]string{}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	return verrs
}

// pathIDs extracts and validates the interview and question ids of a route.
func pathIDs(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	interviewID := chi.URLParam(r, "id")
	questionID := chi.URLParam(r, "qid")
	if res := ValidateResourceID("id", interviewID); !res.Valid {
		writeError(w, r, fmt.Errorf("%w: invalid interview id", domain.ErrInvalidArgument), res.Errors)
		return "", "", false
	}
	if res := ValidateResourceID("qid", questionID); !res.Valid {
		writeError(w, r, fmt.Errorf("%w: invalid question id", domain.ErrInvalidArgument), res.Errors)
		return "", "", false
	}
	return interviewID, questionID, true
}

// CreateInterviewHandler creates an interview with explicit questions.
func (s *Server) CreateInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Accept negotiation: only JSON responses supported
		if a := r.Header.Get("Accept"); a != "" && a != "*/*" && !strings.Contains(a, "application/json") {
			writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a}}})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			JobTitle       string `json:"job_title" validate:"required,max=200"`
			JobDescription string `json:"job_description" validate:"max=5000"`
			Skills         []string
			ScheduledAt    time.Time `json:"scheduled_at"`
			Questions      []struct {
				Question        string   `json:"question" validate:"required,max=2000"`
				SuggestedAnswer string   `json:"suggested_answer" validate:"max=5000"`
				Skills          []string `json:"skills"`
			} `json:"questions" validate:"required,min=1,dive"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		questions := make([]domain.NewQuestion, 0, len(req.Questions))
		for _, q := range req.Questions {
			questions = append(questions, domain.NewQuestion{
				Text:            SanitizeString(q.Question),
				SuggestedAnswer: q.SuggestedAnswer,
				Skills:          q.Skills,
			})
		}
		iv, err := s.Interviews.Create(r.Context(), UserID(r.Context()), SanitizeString(req.JobTitle), req.JobDescription, req.Skills, req.ScheduledAt, questions)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, toInterviewJSON(iv))
	}
}

// GenerateHandler enqueues an asynchronous question-generation job.
func (s *Server) GenerateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Accept negotiation: only JSON responses supported
		if a := r.Header.Get("Accept"); a != "" && a != "*/*" && !strings.Contains(a, "application/json") {
			writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a}}})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			JobTitle       string   `json:"job_title" validate:"required,max=200"`
			JobDescription string   `json:"job_description" validate:"max=5000"`
			Skills         []string `json:"skills"`
			NumQuestions   int      `json:"num_questions" validate:"required,min=1"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		jobID, err := s.Generate.Enqueue(r.Context(), UserID(r.Context()), SanitizeString(req.JobTitle), req.JobDescription, req.Skills, req.NumQuestions, r.Header.Get("Idempotency-Key"))
		if err != nil {
			writeError(w, r, fmt.Errorf("enqueue: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "status": string(domain.GenerationQueued)})
	}
}

// GenerationStatusHandler reports job status with an ETag; terminal states
// answer 304 on a matching If-None-Match.
func (s *Server) GenerationStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if res := ValidateResourceID("id", id); !res.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid job id", domain.ErrInvalidArgument), res.Errors)
			return
		}
		j, err := s.Generate.GetJob(r.Context(), UserID(r.Context()), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		etag := fmt.Sprintf("%q", string(j.Status)+"."+j.InterviewID)
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		body := map[string]any{"id": j.ID, "status": string(j.Status)}
		if j.InterviewID != "" {
			body["interview_id"] = j.InterviewID
		}
		if j.Status == domain.GenerationFailed && j.Error != "" {
			body["error"] = j.Error
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// GetInterviewHandler returns an interview with its ordered questions.
func (s *Server) GetInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if res := ValidateResourceID("id", id); !res.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid interview id", domain.ErrInvalidArgument), res.Errors)
			return
		}
		iv, err := s.Interviews.Get(r.Context(), UserID(r.Context()), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toInterviewJSON(iv))
	}
}

// DeleteInterviewHandler removes an interview and all dependent state.
func (s *Server) DeleteInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if res := ValidateResourceID("id", id); !res.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid interview id", domain.ErrInvalidArgument), res.Errors)
			return
		}
		if err := s.Interviews.Delete(r.Context(), UserID(r.Context()), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// UpdateQuestionHandler applies one tagged question update. The update type
// names the exact field set being written.
func (s *Server) UpdateQuestionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interviewID, questionID, ok := pathIDs(w, r)
		if !ok {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			Type         string   `json:"type" validate:"required,oneof=answer feedback skills saved"`
			Answer       string   `json:"answer"`
			AudioURL     string   `json:"audio_url"`
			Feedback     string   `json:"feedback"`
			Improvements []string `json:"improvements"`
			KeyTakeaways []string `json:"key_takeaways"`
			Grade        float64  `json:"grade"`
			Skills       []string `json:"skills"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		var upd domain.QuestionUpdate
		switch req.Type {
		case "answer":
			if strings.TrimSpace(req.Answer) == "" || req.AudioURL == "" {
				writeError(w, r, fmt.Errorf("%w: answer and audio_url are set together", domain.ErrInvalidArgument), nil)
				return
			}
			upd = domain.AnswerUpdate{Answer: req.Answer, AudioURL: req.AudioURL}
		case "feedback":
			if req.Feedback == "" || req.Grade < 0 || req.Grade > 100 {
				writeError(w, r, fmt.Errorf("%w: feedback requires text and a grade 0-100", domain.ErrInvalidArgument), nil)
				return
			}
			upd = domain.FeedbackUpdate{Feedback: req.Feedback, Improvements: req.Improvements, KeyTakeaways: req.KeyTakeaways, Grade: req.Grade}
		case "skills":
			upd = domain.SkillsUpdate{Skills: req.Skills}
		case "saved":
			upd = domain.MarkSaved{}
		}
		q, err := s.Interviews.UpdateQuestion(r.Context(), UserID(r.Context()), interviewID, questionID, upd)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toQuestionJSON(q))
	}
}

// StartRecordingHandler moves the question's recording machine into recording.
func (s *Server) StartRecordingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interviewID, questionID, ok := pathIDs(w, r)
		if !ok {
			return
		}
		sess, err := s.Session.StartRecording(r.Context(), UserID(r.Context()), interviewID, questionID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toRecordingJSON(sess))
	}
}

// ChunkHandler appends one raw audio chunk to the active recording.
func (s *Server) ChunkHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interviewID, questionID, ok := pathIDs(w, r)
		if !ok {
			return
		}
		maxBytes := s.Cfg.MaxAudioMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		chunk, err := io.ReadAll(r.Body)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{Code: "CAPTURE_FAILED", Message: "chunk too large", Details: map[string]any{"max_mb": s.Cfg.MaxAudioMB}}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		sess, err := s.Session.AppendChunk(r.Context(), UserID(r.Context()), interviewID, questionID, chunk)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toRecordingJSON(sess))
	}
}

// StopRecordingHandler finalizes the recording buffer.
func (s *Server) StopRecordingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interviewID, questionID, ok := pathIDs(w, r)
		if !ok {
			return
		}
		sess, err := s.Session.StopRecording(r.Context(), UserID(r.Context()), interviewID, questionID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toRecordingJSON(sess))
	}
}

// ResetRecordingHandler discards the recording and returns the machine to idle.
func (s *Server) ResetRecordingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interviewID, questionID, ok := pathIDs(w, r)
		if !ok {
			return
		}
		if err := s.Session.ResetRecording(r.Context(), UserID(r.Context()), interviewID, questionID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetRecordingHandler reports the current recording state.
func (s *Server) GetRecordingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interviewID, questionID, ok := pathIDs(w, r)
		if !ok {
			return
		}
		sess, err := s.Session.GetRecording(r.Context(), UserID(r.Context()), interviewID, questionID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toRecordingJSON(sess))
	}
}

// AnswerHandler runs the answer-submission sequence on a finalized recording.
func (s *Server) AnswerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interviewID, questionID, ok := pathIDs(w, r)
		if !ok {
			return
		}
		res, err := s.Session.SubmitAnswer(r.Context(), UserID(r.Context()), interviewID, questionID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toFeedbackResultJSON(res))
	}
}

// FeedbackHandler drives the feedback machine for an answered question.
func (s *Server) FeedbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interviewID, questionID, ok := pathIDs(w, r)
		if !ok {
			return
		}
		res, err := s.Session.RunFeedbackAction(r.Context(), UserID(r.Context()), interviewID, questionID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, toFeedbackResultJSON(res))
	}
}

// AdvanceHandler moves past a question; past the last one it completes the
// interview and points at its summary.
func (s *Server) AdvanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interviewID := chi.URLParam(r, "id")
		if res := ValidateResourceID("id", interviewID); !res.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid interview id", domain.ErrInvalidArgument), res.Errors)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			QuestionID string `json:"question_id" validate:"required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		res, err := s.Session.Advance(r.Context(), UserID(r.Context()), interviewID, req.QuestionID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		body := map[string]any{"done": res.Done}
		if res.NextQuestionID != "" {
			body["next_question_id"] = res.NextQuestionID
		}
		if res.SummaryPath != "" {
			body["summary_path"] = res.SummaryPath
		}
		writeJSON(w, http.StatusOK, body)
	}
}

// ReadyzHandler returns a readiness handler that probes DB, Redis and Kafka.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 3)
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				checks = append(checks, check{Name: "db", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "db", OK: true})
			}
		}
		if s.RedisCheck != nil {
			if err := s.RedisCheck(ctx); err != nil {
				checks = append(checks, check{Name: "redis", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "redis", OK: true})
			}
		}
		if s.KafkaCheck != nil {
			if err := s.KafkaCheck(ctx); err != nil {
				checks = append(checks, check{Name: "kafka", OK: false, Details: err.Error()})
			} else {
				checks = append(checks, check{Name: "kafka", OK: true})
			}
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
