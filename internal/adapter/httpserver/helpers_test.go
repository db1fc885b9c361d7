package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/usecase"
)

// memRepo is an in-memory InterviewRepository for handler tests.
type memRepo struct {
	mu         sync.Mutex
	interviews map[string]*domain.Interview
}

func newMemRepo() *memRepo {
	return &memRepo{interviews: make(map[string]*domain.Interview)}
}

func (f *memRepo) Create(_ domain.Context, iv domain.Interview) (domain.Interview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	iv.ID = uuid.NewString()
	iv.CreatedAt = time.Now().UTC()
	for i := range iv.Questions {
		iv.Questions[i].ID = uuid.NewString()
		iv.Questions[i].InterviewID = iv.ID
	}
	cp := iv
	f.interviews[iv.ID] = &cp
	return iv, nil
}

func (f *memRepo) Get(_ domain.Context, id string) (domain.Interview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	iv, ok := f.interviews[id]
	if !ok {
		return domain.Interview{}, fmt.Errorf("%w: interview %s", domain.ErrNotFound, id)
	}
	return *iv, nil
}

func (f *memRepo) UpdateQuestion(_ domain.Context, interviewID, questionID string, upd domain.QuestionUpdate) (domain.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	iv, ok := f.interviews[interviewID]
	if !ok {
		return domain.Question{}, domain.ErrNotFound
	}
	for i := range iv.Questions {
		q := &iv.Questions[i]
		if q.ID != questionID {
			continue
		}
		switch u := upd.(type) {
		case domain.AnswerUpdate:
			q.Answer = &u.Answer
			q.AudioURL = &u.AudioURL
		case domain.FeedbackUpdate:
			q.Feedback = &u.Feedback
			q.Improvements = u.Improvements
			q.KeyTakeaways = u.KeyTakeaways
			grade := u.Grade
			q.Grade = &grade
		case domain.SkillsUpdate:
			q.Skills = u.Skills
		case domain.MarkSaved:
			q.Saved = true
			all := true
			for _, sib := range iv.Questions {
				if !sib.Saved {
					all = false
					break
				}
			}
			if all {
				iv.Completed = true
			}
		}
		return *q, nil
	}
	return domain.Question{}, domain.ErrNotFound
}

func (f *memRepo) Complete(_ domain.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	iv, ok := f.interviews[id]
	if !ok {
		return domain.ErrNotFound
	}
	for _, q := range iv.Questions {
		if !q.Saved {
			return fmt.Errorf("%w: unsaved questions remain", domain.ErrConflict)
		}
	}
	iv.Completed = true
	return nil
}

func (f *memRepo) Delete(_ domain.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.interviews[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.interviews, id)
	return nil
}

// memJobs is an in-memory GenerationJobRepository.
type memJobs struct {
	mu     sync.Mutex
	jobs   map[string]domain.GenerationJob
	byIdem map[string]string
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[string]domain.GenerationJob{}, byIdem: map[string]string{}}
}

func (f *memJobs) Create(_ domain.Context, j domain.GenerationJob) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j.ID = uuid.NewString()
	f.jobs[j.ID] = j
	if j.IdemKey != nil {
		f.byIdem[*j.IdemKey] = j.ID
	}
	return j.ID, nil
}

func (f *memJobs) Get(_ domain.Context, id string) (domain.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return domain.GenerationJob{}, domain.ErrNotFound
	}
	return j, nil
}

func (f *memJobs) UpdateStatus(_ domain.Context, id string, status domain.GenerationJobStatus, interviewID string, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status = status
	j.InterviewID = interviewID
	if errMsg != nil {
		j.Error = *errMsg
	}
	f.jobs[id] = j
	return nil
}

func (f *memJobs) FindByIdempotencyKey(_ domain.Context, key string) (domain.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byIdem[key]
	if !ok {
		return domain.GenerationJob{}, domain.ErrNotFound
	}
	return f.jobs[id], nil
}

type memQueue struct {
	mu       sync.Mutex
	enqueued []domain.GenerateTaskPayload
}

func (f *memQueue) EnqueueGenerate(_ domain.Context, p domain.GenerateTaskPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, p)
	return p.JobID, nil
}

// memRecordings buffers recording sessions and chunks in memory.
type memRecordings struct {
	mu       sync.Mutex
	sessions map[string]domain.RecordingSession
	chunks   map[string][][]byte
}

func newMemRecordings() *memRecordings {
	return &memRecordings{sessions: map[string]domain.RecordingSession{}, chunks: map[string][][]byte{}}
}

func (f *memRecordings) key(iv, q string) string { return iv + ":" + q }

func (f *memRecordings) Get(_ domain.Context, iv, q string) (domain.RecordingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[f.key(iv, q)]
	if !ok {
		return domain.RecordingSession{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *memRecordings) Put(_ domain.Context, s domain.RecordingSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.Key()] = s
	return nil
}

func (f *memRecordings) AppendChunk(_ domain.Context, iv, q string, chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(iv, q)
	f.chunks[k] = append(f.chunks[k], append([]byte(nil), chunk...))
	return nil
}

func (f *memRecordings) Blob(_ domain.Context, iv, q string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []byte
	for _, c := range f.chunks[f.key(iv, q)] {
		out = append(out, c...)
	}
	return out, nil
}

func (f *memRecordings) Delete(_ domain.Context, iv, q string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, f.key(iv, q))
	delete(f.chunks, f.key(iv, q))
	return nil
}

type stubTranscriber struct{ text string }

func (s stubTranscriber) Transcribe(_ domain.Context, _ string, _ []byte) (string, error) {
	return s.text, nil
}

type stubAudioStore struct{}

func (stubAudioStore) Save(_ domain.Context, key string, _ []byte) (string, error) {
	return "https://cdn.example.com/" + key + ".webm", nil
}

type stubFeedbackClient struct {
	env domain.FeedbackEnvelope
	err error
}

func (s stubFeedbackClient) Generate(_ domain.Context, _ domain.FeedbackRequest) (domain.FeedbackEnvelope, error) {
	if s.err != nil {
		return domain.FeedbackEnvelope{}, s.err
	}
	return s.env, nil
}

func (s stubFeedbackClient) GenerateStream(_ domain.Context, _ domain.FeedbackRequest) (<-chan domain.FeedbackEnvelope, <-chan error) {
	envs := make(chan domain.FeedbackEnvelope, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(envs)
		defer close(errs)
		if s.err != nil {
			errs <- s.err
			return
		}
		envs <- s.env
	}()
	return envs, errs
}

func testEnvelope() domain.FeedbackEnvelope {
	return domain.FeedbackEnvelope{
		SuggestedAnswer: "Mention replication and failover.",
		ConstructiveFeedback: domain.ConstructiveFeedback{
			Strengths:           []string{"clear structure"},
			AreasForImprovement: []string{"quantify impact"},
			ActionableTips:      []string{"use STAR"},
		},
		KeyPoints: []string{"replication", "failover"},
		Grade:     domain.Grade{Score: 81, Explanation: "solid answer"},
	}
}

// wavChunk returns bytes that sniff as audio/wav.
func wavChunk() []byte {
	b := []byte("RIFF")
	b = append(b, 0x24, 0x00, 0x00, 0x00)
	b = append(b, []byte("WAVE")...)
	b = append(b, bytes.Repeat([]byte{0}, 32)...)
	return b
}

type testEnv struct {
	srv   *Server
	auth  *AuthManager
	repo  *memRepo
	jobs  *memJobs
	queue *memQueue
	mux   *chi.Mux
	token string
}

const testUser = "user-1"

// newTestEnv wires a Server with in-memory ports behind a router that mirrors
// the production route shape.
func newTestEnv(fb domain.FeedbackClient, tr domain.Transcriber) *testEnv {
	cfg := config.Config{AppEnv: "test", JWTSecret: "test-secret", MaxAudioMB: 25, MaxQuestions: 10}
	repo := newMemRepo()
	jobs := newMemJobs()
	queue := &memQueue{}
	interviews := usecase.NewInterviewService(repo)
	gen := usecase.NewGenerateService(jobs, queue, cfg.MaxQuestions)
	session := usecase.NewSessionService(interviews, newMemRecordings(), tr, stubAudioStore{}, fb, time.Minute, 25<<20)
	srv := NewServer(cfg, interviews, gen, session, nil, nil, nil)
	auth := NewAuthManager(cfg)
	token, _ := auth.IssueToken(testUser)

	mux := chi.NewRouter()
	mux.Post("/v1/auth/login", auth.LoginHandler())
	mux.Group(func(pr chi.Router) {
		pr.Use(auth.AuthRequired)
		pr.Post("/v1/interviews", srv.CreateInterviewHandler())
		pr.Post("/v1/interviews/generate", srv.GenerateHandler())
		pr.Get("/v1/generations/{id}", srv.GenerationStatusHandler())
		pr.Get("/v1/interviews/{id}", srv.GetInterviewHandler())
		pr.Delete("/v1/interviews/{id}", srv.DeleteInterviewHandler())
		pr.Patch("/v1/interviews/{id}/questions/{qid}", srv.UpdateQuestionHandler())
		pr.Post("/v1/interviews/{id}/questions/{qid}/recording/start", srv.StartRecordingHandler())
		pr.Post("/v1/interviews/{id}/questions/{qid}/recording/chunk", srv.ChunkHandler())
		pr.Post("/v1/interviews/{id}/questions/{qid}/recording/stop", srv.StopRecordingHandler())
		pr.Post("/v1/interviews/{id}/questions/{qid}/recording/reset", srv.ResetRecordingHandler())
		pr.Get("/v1/interviews/{id}/questions/{qid}/recording", srv.GetRecordingHandler())
		pr.Post("/v1/interviews/{id}/questions/{qid}/answer", srv.AnswerHandler())
		pr.Post("/v1/interviews/{id}/questions/{qid}/feedback", srv.FeedbackHandler())
		pr.Get("/v1/interviews/{id}/questions/{qid}/feedback/stream", srv.FeedbackStreamHandler())
		pr.Post("/v1/interviews/{id}/advance", srv.AdvanceHandler())
	})
	mux.Get("/readyz", srv.ReadyzHandler())

	return &testEnv{srv: srv, auth: auth, repo: repo, jobs: jobs, queue: queue, mux: mux, token: token}
}

// do performs an authenticated request against the test router.
func (e *testEnv) do(method, path string, body []byte, hdr map[string]string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body == nil {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+e.token)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

// seedInterview creates an interview for testUser directly through the service.
func (e *testEnv) seedInterview(questions ...string) domain.Interview {
	qs := make([]domain.NewQuestion, 0, len(questions))
	for _, q := range questions {
		qs = append(qs, domain.NewQuestion{Text: q})
	}
	iv, err := e.srv.Interviews.Create(context.Background(), testUser, "Backend Engineer", "Build APIs", []string{"go"}, time.Time{}, qs)
	if err != nil {
		panic(err)
	}
	return iv
}

func bcryptHash(pw string) string {
	h, _ := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	return string(h)
}
