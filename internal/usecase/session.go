package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/observability"
)

// FeedbackState enumerates the per-question feedback sub-machine states.
type FeedbackState string

// Feedback sub-machine states.
const (
	FeedbackGenerate FeedbackState = "generate"
	FeedbackThinking FeedbackState = "thinking"
	FeedbackReady    FeedbackState = "ready"
)

// FeedbackResult is the outcome of one feedback action.
type FeedbackResult struct {
	State       FeedbackState
	SummaryPath string
	Question    domain.Question
}

// AdvanceResult is the outcome of advancing past a question.
type AdvanceResult struct {
	Done           bool
	NextQuestionID string
	SummaryPath    string
}

// questionState is the transient per-question orchestrator state. It lives
// for one question and is reset on advance.
type questionState struct {
	fb      FeedbackState
	lastErr string
}

// SessionService is the interview session orchestrator. It owns the recording
// state machine, the answer-submission sequence, the feedback sub-machine,
// and question advancement. At most one network sequence runs per question:
// a second call while one is in flight is a conflict, never a parallel call.
type SessionService struct {
	Interviews   InterviewService
	Recordings   domain.RecordingStore
	Transcriber  domain.Transcriber
	Audio        domain.AudioStore
	Feedback     domain.FeedbackClient
	MaxRecording time.Duration
	MaxAudio     int64

	mu       sync.Mutex
	states   map[string]*questionState
	inFlight map[string]struct{}
}

// NewSessionService constructs the orchestrator.
func NewSessionService(interviews InterviewService, recordings domain.RecordingStore, tr domain.Transcriber, audio domain.AudioStore, fb domain.FeedbackClient, maxRecording time.Duration, maxAudioBytes int64) *SessionService {
	if maxRecording <= 0 {
		maxRecording = 3 * time.Minute
	}
	if maxAudioBytes <= 0 {
		maxAudioBytes = 25 << 20
	}
	return &SessionService{
		Interviews:   interviews,
		Recordings:   recordings,
		Transcriber:  tr,
		Audio:        audio,
		Feedback:     fb,
		MaxRecording: maxRecording,
		MaxAudio:     maxAudioBytes,
		states:       make(map[string]*questionState),
		inFlight:     make(map[string]struct{}),
	}
}

func sessionKey(interviewID, questionID string) string {
	return interviewID + ":" + questionID
}

func (s *SessionService) state(key string) *questionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	if !ok {
		st = &questionState{}
		s.states[key] = st
	}
	return st
}

// acquire takes the per-question in-flight guard.
func (s *SessionService) acquire(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return fmt.Errorf("%w: operation already running for question", domain.ErrConflict)
	}
	s.inFlight[key] = struct{}{}
	return nil
}

func (s *SessionService) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, key)
}

// question loads the interview with ownership enforced and returns the
// addressed question.
func (s *SessionService) question(ctx domain.Context, ownerID, interviewID, questionID string) (domain.Interview, domain.Question, error) {
	iv, err := s.Interviews.Get(ctx, ownerID, interviewID)
	if err != nil {
		return domain.Interview{}, domain.Question{}, err
	}
	for _, q := range iv.Questions {
		if q.ID == questionID {
			return iv, q, nil
		}
	}
	return domain.Interview{}, domain.Question{}, fmt.Errorf("%w: question %s", domain.ErrNotFound, questionID)
}

// StartRecording moves the recording machine idle → recording. Starting while
// already recording is a no-op.
func (s *SessionService) StartRecording(ctx domain.Context, ownerID, interviewID, questionID string) (domain.RecordingSession, error) {
	if _, _, err := s.question(ctx, ownerID, interviewID, questionID); err != nil {
		return domain.RecordingSession{}, err
	}
	sess, err := s.Recordings.Get(ctx, interviewID, questionID)
	if err == nil {
		sess = s.enforceDeadline(ctx, sess)
		if sess.State == domain.RecordingActive {
			return sess, nil // no-op
		}
		if sess.State == domain.RecordingStopped {
			return sess, fmt.Errorf("%w: recording already finalized, reset first", domain.ErrConflict)
		}
	}
	now := time.Now().UTC()
	sess = domain.RecordingSession{
		InterviewID: interviewID,
		QuestionID:  questionID,
		State:       domain.RecordingActive,
		StartedAt:   now,
		Deadline:    now.Add(s.MaxRecording),
	}
	if err := s.Recordings.Put(ctx, sess); err != nil {
		return domain.RecordingSession{}, err
	}
	observability.RecordingsActive.Inc()
	return sess, nil
}

// AppendChunk buffers one audio chunk in arrival order. The first chunk fixes
// the session MIME; non-audio content fails the capture and returns the
// machine to idle.
func (s *SessionService) AppendChunk(ctx domain.Context, ownerID, interviewID, questionID string, chunk []byte) (domain.RecordingSession, error) {
	if _, _, err := s.question(ctx, ownerID, interviewID, questionID); err != nil {
		return domain.RecordingSession{}, err
	}
	sess, err := s.Recordings.Get(ctx, interviewID, questionID)
	if err != nil {
		return domain.RecordingSession{}, err
	}
	sess = s.enforceDeadline(ctx, sess)
	if sess.State != domain.RecordingActive {
		return sess, fmt.Errorf("%w: not recording", domain.ErrConflict)
	}
	if len(chunk) == 0 {
		return sess, fmt.Errorf("%w: empty audio chunk", domain.ErrCaptureFailed)
	}
	if sess.Size+int64(len(chunk)) > s.MaxAudio {
		return sess, fmt.Errorf("%w: audio exceeds %d bytes", domain.ErrCaptureFailed, s.MaxAudio)
	}
	if sess.ChunkCount == 0 {
		mt := mimetype.Detect(chunk)
		if !isAudioMIME(mt.String()) {
			// Capture failed before any audio buffered: back to idle.
			if derr := s.Recordings.Delete(ctx, interviewID, questionID); derr != nil {
				slog.Error("failed to reset capture session", slog.Any("error", derr))
			}
			observability.RecordingsActive.Dec()
			return domain.RecordingSession{}, fmt.Errorf("%w: unsupported content type %s", domain.ErrCaptureFailed, mt.String())
		}
		sess.MIME = mt.String()
	}
	if err := s.Recordings.AppendChunk(ctx, interviewID, questionID, chunk); err != nil {
		return sess, err
	}
	sess.ChunkCount++
	sess.Size += int64(len(chunk))
	if err := s.Recordings.Put(ctx, sess); err != nil {
		return sess, err
	}
	return sess, nil
}

// StopRecording finalizes the chunk buffer. Stopping while idle is a no-op
// with no store mutation.
func (s *SessionService) StopRecording(ctx domain.Context, ownerID, interviewID, questionID string) (domain.RecordingSession, error) {
	if _, _, err := s.question(ctx, ownerID, interviewID, questionID); err != nil {
		return domain.RecordingSession{}, err
	}
	sess, err := s.Recordings.Get(ctx, interviewID, questionID)
	if err != nil {
		// Stop while idle: no-op.
		return domain.RecordingSession{InterviewID: interviewID, QuestionID: questionID, State: domain.RecordingIdle}, nil
	}
	if sess.State != domain.RecordingActive {
		return sess, nil // already stopped
	}
	sess.State = domain.RecordingStopped
	if err := s.Recordings.Put(ctx, sess); err != nil {
		return sess, err
	}
	observability.RecordingsActive.Dec()
	return sess, nil
}

// ResetRecording returns stopped → idle and clears the buffer.
func (s *SessionService) ResetRecording(ctx domain.Context, ownerID, interviewID, questionID string) error {
	if _, _, err := s.question(ctx, ownerID, interviewID, questionID); err != nil {
		return err
	}
	sess, err := s.Recordings.Get(ctx, interviewID, questionID)
	if err != nil {
		return nil // already idle
	}
	if sess.State == domain.RecordingActive {
		observability.RecordingsActive.Dec()
	}
	return s.Recordings.Delete(ctx, interviewID, questionID)
}

// GetRecording reports the current recording session, defaulting to idle.
func (s *SessionService) GetRecording(ctx domain.Context, ownerID, interviewID, questionID string) (domain.RecordingSession, error) {
	if _, _, err := s.question(ctx, ownerID, interviewID, questionID); err != nil {
		return domain.RecordingSession{}, err
	}
	sess, err := s.Recordings.Get(ctx, interviewID, questionID)
	if err != nil {
		return domain.RecordingSession{InterviewID: interviewID, QuestionID: questionID, State: domain.RecordingIdle}, nil
	}
	return s.enforceDeadline(ctx, sess), nil
}

// enforceDeadline applies the hard timeout lazily: a session past its
// deadline is forced into stopped with the timed_out flag set.
func (s *SessionService) enforceDeadline(ctx domain.Context, sess domain.RecordingSession) domain.RecordingSession {
	if sess.State != domain.RecordingActive || sess.Deadline.IsZero() || time.Now().Before(sess.Deadline) {
		return sess
	}
	sess.State = domain.RecordingStopped
	sess.TimedOut = true
	if err := s.Recordings.Put(ctx, sess); err != nil {
		slog.Error("failed to persist forced stop", slog.Any("error", err))
	}
	observability.RecordingsActive.Dec()
	slog.Info("recording force-stopped by timeout",
		slog.String("interview_id", sess.InterviewID),
		slog.String("question_id", sess.QuestionID))
	return sess
}

// SubmitAnswer runs the answer-submission sequence for a finalized recording:
// store audio, transcribe, persist answer+audio URL, arm the feedback machine
// and immediately run the feedback action. Any step failure halts the
// sequence; state persisted by earlier steps is kept.
func (s *SessionService) SubmitAnswer(ctx domain.Context, ownerID, interviewID, questionID string) (FeedbackResult, error) {
	key := sessionKey(interviewID, questionID)
	if err := s.acquire(key); err != nil {
		return FeedbackResult{}, err
	}
	defer s.release(key)

	iv, q, err := s.question(ctx, ownerID, interviewID, questionID)
	if err != nil {
		return FeedbackResult{}, err
	}
	sess, err := s.Recordings.Get(ctx, interviewID, questionID)
	if err != nil {
		return FeedbackResult{}, fmt.Errorf("%w: no finalized recording", domain.ErrCaptureFailed)
	}
	sess = s.enforceDeadline(ctx, sess)
	if sess.State != domain.RecordingStopped {
		return FeedbackResult{}, fmt.Errorf("%w: recording not finalized", domain.ErrConflict)
	}
	blob, err := s.Recordings.Blob(ctx, interviewID, questionID)
	if err != nil {
		return FeedbackResult{}, err
	}
	if len(blob) == 0 {
		return FeedbackResult{}, s.halt(key, fmt.Errorf("%w: empty recording", domain.ErrCaptureFailed))
	}

	filename := "answer" + extensionFor(sess.MIME)
	audioURL, err := s.Audio.Save(ctx, interviewID+"_"+questionID, blob)
	if err != nil {
		return FeedbackResult{}, s.halt(key, err)
	}
	text, err := s.Transcriber.Transcribe(ctx, filename, blob)
	if err != nil {
		return FeedbackResult{}, s.halt(key, err)
	}
	if strings.TrimSpace(text) == "" {
		return FeedbackResult{}, s.halt(key, fmt.Errorf("%w: empty transcript", domain.ErrTranscription))
	}
	q, err = s.Interviews.Repo.UpdateQuestion(ctx, interviewID, questionID, domain.AnswerUpdate{Answer: text, AudioURL: audioURL})
	if err != nil {
		return FeedbackResult{}, s.halt(key, err)
	}

	st := s.state(key)
	s.mu.Lock()
	st.fb = FeedbackGenerate
	st.lastErr = ""
	s.mu.Unlock()

	return s.runFeedback(ctx, key, iv, q)
}

// RunFeedbackAction drives the feedback sub-machine for an answered question.
// In ready state it returns the summary location without a model call.
func (s *SessionService) RunFeedbackAction(ctx domain.Context, ownerID, interviewID, questionID string) (FeedbackResult, error) {
	key := sessionKey(interviewID, questionID)

	st := s.state(key)
	s.mu.Lock()
	if st.fb == FeedbackReady {
		s.mu.Unlock()
		return FeedbackResult{
			State:       FeedbackReady,
			SummaryPath: summaryPath(interviewID, questionID),
		}, nil
	}
	s.mu.Unlock()

	if err := s.acquire(key); err != nil {
		return FeedbackResult{}, err
	}
	defer s.release(key)

	iv, q, err := s.question(ctx, ownerID, interviewID, questionID)
	if err != nil {
		return FeedbackResult{}, err
	}
	if !q.Answered() {
		return FeedbackResult{}, fmt.Errorf("%w: answer required before feedback", domain.ErrInvalidArgument)
	}
	if q.Graded() {
		// Persisted feedback survives orchestrator restarts.
		s.mu.Lock()
		st.fb = FeedbackReady
		s.mu.Unlock()
		return FeedbackResult{State: FeedbackReady, SummaryPath: summaryPath(interviewID, questionID), Question: q}, nil
	}
	s.mu.Lock()
	st.fb = FeedbackGenerate
	s.mu.Unlock()
	return s.runFeedback(ctx, key, iv, q)
}

// runFeedback executes the generate → thinking → ready transition. Callers
// hold the in-flight guard.
func (s *SessionService) runFeedback(ctx domain.Context, key string, iv domain.Interview, q domain.Question) (FeedbackResult, error) {
	st := s.state(key)
	s.mu.Lock()
	st.fb = FeedbackThinking
	s.mu.Unlock()

	req := feedbackRequestFor(iv, q)
	env, err := s.Feedback.Generate(ctx, req)
	if err != nil {
		s.mu.Lock()
		st.fb = FeedbackGenerate
		st.lastErr = err.Error()
		s.mu.Unlock()
		return FeedbackResult{State: FeedbackGenerate, Question: q}, err
	}
	q, err = s.persistFeedback(ctx, iv.ID, q.ID, env)
	if err != nil {
		s.mu.Lock()
		st.fb = FeedbackGenerate
		st.lastErr = err.Error()
		s.mu.Unlock()
		return FeedbackResult{State: FeedbackGenerate, Question: q}, err
	}
	s.mu.Lock()
	st.fb = FeedbackReady
	st.lastErr = ""
	s.mu.Unlock()
	observability.GradeHistogram.Observe(env.Grade.Score)
	return FeedbackResult{State: FeedbackReady, SummaryPath: summaryPath(iv.ID, q.ID), Question: q}, nil
}

// StreamFeedback is the streaming variant of the feedback action. Envelopes
// are forwarded as they merge; the final envelope is persisted exactly as the
// buffered path would persist it. A ready question streams nothing and
// reports the summary location through the result channel closing
// immediately after one terminal envelope-free send.
func (s *SessionService) StreamFeedback(ctx domain.Context, ownerID, interviewID, questionID string) (<-chan domain.FeedbackEnvelope, <-chan error) {
	out := make(chan domain.FeedbackEnvelope)
	errs := make(chan error, 1)
	key := sessionKey(interviewID, questionID)

	go func() {
		defer close(out)
		defer close(errs)

		st := s.state(key)
		s.mu.Lock()
		if st.fb == FeedbackReady {
			s.mu.Unlock()
			return // idempotent: nothing to stream
		}
		s.mu.Unlock()

		if err := s.acquire(key); err != nil {
			errs <- err
			return
		}
		defer s.release(key)

		iv, q, err := s.question(ctx, ownerID, interviewID, questionID)
		if err != nil {
			errs <- err
			return
		}
		if !q.Answered() {
			errs <- fmt.Errorf("%w: answer required before feedback", domain.ErrInvalidArgument)
			return
		}
		s.mu.Lock()
		st.fb = FeedbackThinking
		s.mu.Unlock()

		envs, cerrs := s.Feedback.GenerateStream(ctx, feedbackRequestFor(iv, q))
		var last *domain.FeedbackEnvelope
		for env := range envs {
			env := env
			last = &env
			select {
			case out <- env:
			case <-ctx.Done():
				s.fail(key, ctx.Err())
				errs <- ctx.Err()
				return
			}
		}
		if err := <-cerrs; err != nil {
			s.fail(key, err)
			errs <- err
			return
		}
		if last == nil || !envelopeComplete(*last) {
			err := fmt.Errorf("%w: stream produced no usable envelope", domain.ErrFeedbackGeneration)
			s.fail(key, err)
			errs <- err
			return
		}
		if _, err := s.persistFeedback(ctx, interviewID, questionID, *last); err != nil {
			s.fail(key, err)
			errs <- err
			return
		}
		s.mu.Lock()
		st.fb = FeedbackReady
		st.lastErr = ""
		s.mu.Unlock()
		observability.GradeHistogram.Observe(last.Grade.Score)
	}()
	return out, errs
}

// Advance moves past the current question: transient state is reset; past the
// last question exactly one complete-interview call is issued.
func (s *SessionService) Advance(ctx domain.Context, ownerID, interviewID, questionID string) (AdvanceResult, error) {
	iv, _, err := s.question(ctx, ownerID, interviewID, questionID)
	if err != nil {
		return AdvanceResult{}, err
	}
	key := sessionKey(interviewID, questionID)
	if err := s.acquire(key); err != nil {
		return AdvanceResult{}, err
	}
	defer s.release(key)

	// Reset per-question transient state.
	if err := s.Recordings.Delete(ctx, interviewID, questionID); err != nil {
		slog.Error("failed to clear recording session", slog.Any("error", err))
	}
	s.mu.Lock()
	delete(s.states, key)
	s.mu.Unlock()

	idx := -1
	for i, q := range iv.Questions {
		if q.ID == questionID {
			idx = i
			break
		}
	}
	if idx >= 0 && idx < len(iv.Questions)-1 {
		return AdvanceResult{NextQuestionID: iv.Questions[idx+1].ID}, nil
	}
	// Past the last question: one complete call, then the summary.
	if err := s.Interviews.Repo.Complete(ctx, interviewID); err != nil {
		return AdvanceResult{}, err
	}
	return AdvanceResult{Done: true, SummaryPath: interviewSummaryPath(interviewID)}, nil
}

// SessionState reports the feedback machine state and last error for a
// question.
func (s *SessionService) SessionState(interviewID, questionID string) (FeedbackState, string) {
	st := s.state(sessionKey(interviewID, questionID))
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.fb == "" {
		return FeedbackGenerate, st.lastErr
	}
	return st.fb, st.lastErr
}

func (s *SessionService) halt(key string, err error) error {
	s.fail(key, err)
	return err
}

func (s *SessionService) fail(key string, err error) {
	st := s.state(key)
	s.mu.Lock()
	if st.fb == FeedbackThinking {
		st.fb = FeedbackGenerate
	}
	st.lastErr = err.Error()
	s.mu.Unlock()
	slog.Error("session sequence halted", slog.String("question", key), slog.Any("error", err))
}

func (s *SessionService) persistFeedback(ctx domain.Context, interviewID, questionID string, env domain.FeedbackEnvelope) (domain.Question, error) {
	improvements := append([]string{}, env.ConstructiveFeedback.AreasForImprovement...)
	improvements = append(improvements, env.ConstructiveFeedback.ActionableTips...)
	_, err := s.Interviews.Repo.UpdateQuestion(ctx, interviewID, questionID, domain.FeedbackUpdate{
		Feedback:     env.Grade.Explanation,
		Improvements: improvements,
		KeyTakeaways: env.KeyPoints,
		Grade:        env.Grade.Score,
	})
	if err != nil {
		return domain.Question{}, err
	}
	return s.Interviews.Repo.UpdateQuestion(ctx, interviewID, questionID, domain.MarkSaved{})
}

func feedbackRequestFor(iv domain.Interview, q domain.Question) domain.FeedbackRequest {
	skills := q.Skills
	if len(skills) == 0 {
		skills = iv.Skills
	}
	if skills == nil {
		skills = []string{}
	}
	answer := ""
	if q.Answer != nil {
		answer = *q.Answer
	}
	return domain.FeedbackRequest{
		Question: q.Text,
		Answer:   answer,
		Position: iv.JobTitle,
		Skills:   skills,
	}
}

func envelopeComplete(env domain.FeedbackEnvelope) bool {
	return env.Grade.Explanation != "" && env.Grade.Score >= 0 && env.Grade.Score <= 100
}

func summaryPath(interviewID, questionID string) string {
	return fmt.Sprintf("/v1/interviews/%s/questions/%s/summary", interviewID, questionID)
}

func interviewSummaryPath(interviewID string) string {
	return fmt.Sprintf("/v1/interviews/%s/summary", interviewID)
}

func isAudioMIME(m string) bool {
	// Browsers commonly label webm/ogg audio with their container types.
	return strings.HasPrefix(m, "audio/") ||
		strings.HasPrefix(m, "video/webm") ||
		strings.HasPrefix(m, "application/ogg")
}

func extensionFor(m string) string {
	switch {
	case strings.Contains(m, "webm"):
		return ".webm"
	case strings.Contains(m, "ogg"):
		return ".ogg"
	case strings.Contains(m, "wav"):
		return ".wav"
	case strings.Contains(m, "mpeg"), strings.Contains(m, "mp3"):
		return ".mp3"
	default:
		return ".bin"
	}
}
