//go:build e2e

package e2e_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_InterviewLifecycle exercises create, read, update, and delete
// against a running stack without relying on asynchronous workers.
func TestE2E_InterviewLifecycle(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping E2E tests in short mode")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	skipUnlessUp(t, client)
	token := mintToken(t, uniqueUser())

	code, created := doJSON(t, client, token, http.MethodPost, "/interviews", map[string]any{
		"job_title":    "Backend Engineer",
		"scheduled_at": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"questions": []map[string]any{
			{"question": "Explain database indexing.", "skills": []string{"sql"}},
		},
	})
	require.Equal(t, http.StatusCreated, code, "create failed: %#v", created)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	questions, _ := created["questions"].([]any)
	require.Len(t, questions, 1)
	qid, _ := questions[0].(map[string]any)["id"].(string)
	require.NotEmpty(t, qid)

	code, fetched := doJSON(t, client, token, http.MethodGet, "/interviews/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Backend Engineer", fetched["job_title"])
	assert.Equal(t, false, fetched["completed"])

	// Saving the only question completes the interview.
	code, _ = doJSON(t, client, token, http.MethodPatch, "/interviews/"+id+"/questions/"+qid,
		map[string]any{"type": "saved"})
	require.Equal(t, http.StatusOK, code)
	code, fetched = doJSON(t, client, token, http.MethodGet, "/interviews/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, fetched["completed"])

	code, _ = doJSON(t, client, token, http.MethodDelete, "/interviews/"+id, nil)
	require.Equal(t, http.StatusNoContent, code)
	code, _ = doJSON(t, client, token, http.MethodGet, "/interviews/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

// TestE2E_GenerationFlow enqueues a generation job and waits for a terminal
// status. The worker and queue must be running; the LLM may be stubbed.
func TestE2E_GenerationFlow(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping E2E tests in short mode")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	skipUnlessUp(t, client)
	token := mintToken(t, uniqueUser())

	code, enq := doJSON(t, client, token, http.MethodPost, "/interviews/generate", map[string]any{
		"job_title":     "Site Reliability Engineer",
		"skills":        []string{"kubernetes", "incident response"},
		"num_questions": 3,
	})
	require.Equal(t, http.StatusAccepted, code, "enqueue failed: %#v", enq)
	jobID, _ := enq["id"].(string)
	require.NotEmpty(t, jobID)

	final := waitForGeneration(t, client, token, jobID, 90*time.Second)
	st, _ := final["status"].(string)
	require.NotEqual(t, "queued", st, "terminal state expected: %#v", final)

	switch st {
	case "completed":
		ivID, _ := final["interview_id"].(string)
		require.NotEmpty(t, ivID, "completed job must carry interview_id")
		code, iv := doJSON(t, client, token, http.MethodGet, "/interviews/"+ivID, nil)
		require.Equal(t, http.StatusOK, code)
		qs, _ := iv["questions"].([]any)
		assert.NotEmpty(t, qs)
	case "failed":
		assert.NotEmpty(t, final["error"], "failed job must carry an error message")
	default:
		t.Fatalf("unexpected status: %v", st)
	}
}

// TestE2E_OwnershipIsolation verifies another user's token cannot read a
// foreign interview.
func TestE2E_OwnershipIsolation(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping E2E tests in short mode")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	skipUnlessUp(t, client)
	owner := mintToken(t, uniqueUser())
	intruder := mintToken(t, uniqueUser())

	code, created := doJSON(t, client, owner, http.MethodPost, "/interviews", map[string]any{
		"job_title":    "Data Engineer",
		"scheduled_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		"questions":    []map[string]any{{"question": "What is a star schema?"}},
	})
	require.Equal(t, http.StatusCreated, code)
	id, _ := created["id"].(string)

	code, _ = doJSON(t, client, intruder, http.MethodGet, "/interviews/"+id, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = doJSON(t, client, owner, http.MethodDelete, "/interviews/"+id, nil)
	assert.Equal(t, http.StatusNoContent, code)
}
