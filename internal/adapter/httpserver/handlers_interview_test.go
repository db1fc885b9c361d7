package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInterview_Success(t *testing.T) {
	t.Parallel()
	e := newTestEnv(stubFeedbackClient{env: testEnvelope()}, stubTranscriber{text: "hi"})

	body := []byte(`{"job_title":"Backend Engineer","job_description":"Build APIs","skills":["go"],"questions":[{"question":"Explain indexing","suggested_answer":"b-trees"}]}`)
	rr := e.do(http.MethodPost, "/v1/interviews", body, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var got interviewJSON
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Completed)
	require.Len(t, got.Questions, 1)
	assert.Equal(t, "Explain indexing", got.Questions[0].Question)
}

func TestCreateInterview_Validation(t *testing.T) {
	t.Parallel()
	e := newTestEnv(stubFeedbackClient{env: testEnvelope()}, stubTranscriber{text: "hi"})

	rr := e.do(http.MethodPost, "/v1/interviews", []byte(`{"job_title":"","questions":[]}`), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "INVALID_ARGUMENT")

	rr = e.do(http.MethodPost, "/v1/interviews", []byte(`{not json`), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateInterview_NotAcceptable(t *testing.T) {
	t.Parallel()
	e := newTestEnv(stubFeedbackClient{env: testEnvelope()}, stubTranscriber{text: "hi"})

	rr := e.do(http.MethodPost, "/v1/interviews",
		[]byte(`{"job_title":"x","questions":[{"question":"q"}]}`),
		map[string]string{"Accept": "text/html"})
	assert.Equal(t, http.StatusNotAcceptable, rr.Code)
}

func TestInterview_RequiresAuth(t *testing.T) {
	t.Parallel()
	e := newTestEnv(stubFeedbackClient{env: testEnvelope()}, stubTranscriber{text: "hi"})

	req := httptest.NewRequest(http.MethodGet, "/v1/interviews/some-id", nil)
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetInterview_NotFoundAndOwnership(t *testing.T) {
	t.Parallel()
	e := newTestEnv(stubFeedbackClient{env: testEnvelope()}, stubTranscriber{text: "hi"})
	iv := e.seedInterview("Explain indexing")

	rr := e.do(http.MethodGet, "/v1/interviews/"+iv.ID, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(http.MethodGet, "/v1/interviews/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// Another caller cannot see the interview.
	otherToken, err := e.auth.IssueToken("intruder")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/interviews/"+iv.ID, nil)
	req.Header.Set("Authorization", "Bearer "+otherToken)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteInterview(t *testing.T) {
	t.Parallel()
	e := newTestEnv(stubFeedbackClient{env: testEnvelope()}, stubTranscriber{text: "hi"})
	iv := e.seedInterview("Explain indexing")

	rr := e.do(http.MethodDelete, "/v1/interviews/"+iv.ID, nil, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = e.do(http.MethodGet, "/v1/interviews/"+iv.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateQuestion_TaggedVariants(t *testing.T) {
	t.Parallel()
	e := newTestEnv(stubFeedbackClient{env: testEnvelope()}, stubTranscriber{text: "hi"})
	iv := e.seedInterview("Explain indexing")
	qid := iv.Questions[0].ID

	rr := e.do(http.MethodPatch, "/v1/interviews/"+iv.ID+"/questions/"+qid,
		[]byte(`{"type":"answer","answer":"b-trees","audio_url":"https://cdn/a.webm"}`), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var q questionJSON
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &q))
	require.NotNil(t, q.Answer)
	assert.Equal(t, "b-trees", *q.Answer)

	// Answer and audio URL must travel together.
	rr = e.do(http.MethodPatch, "/v1/interviews/"+iv.ID+"/questions/"+qid,
		[]byte(`{"type":"answer","answer":"only text"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = e.do(http.MethodPatch, "/v1/interviews/"+iv.ID+"/questions/"+qid,
		[]byte(`{"type":"bogus"}`), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Marking the only question saved completes the interview.
	rr = e.do(http.MethodPatch, "/v1/interviews/"+iv.ID+"/questions/"+qid,
		[]byte(`{"type":"saved"}`), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(http.MethodGet, "/v1/interviews/"+iv.ID, nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got interviewJSON
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.True(t, got.Completed)
}
