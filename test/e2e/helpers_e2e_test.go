//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/ai-mock-interview/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-mock-interview/internal/config"
)

// getenv returns the value of the environment variable k or def if empty.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

var baseURL = getenv("E2E_BASE_URL", "http://localhost:8080/v1")

// mintToken issues a bearer token with the same secret the server under test
// uses (JWT_SECRET must match).
func mintToken(t *testing.T, userID string) string {
	t.Helper()
	secret := os.Getenv("JWT_SECRET")
	require.NotEmpty(t, secret, "JWT_SECRET must be set for E2E runs")
	auth := httpserver.NewAuthManager(config.Config{JWTSecret: secret})
	tok, err := auth.IssueToken(userID)
	require.NoError(t, err)
	return tok
}

// skipUnlessUp skips the test when the target server is not reachable.
func skipUnlessUp(t *testing.T, client *http.Client) {
	t.Helper()
	healthz := strings.TrimSuffix(baseURL, "/v1") + "/healthz"
	resp, err := client.Get(healthz)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Skip("app not available; skipping E2E")
	}
}

func doJSON(t *testing.T, client *http.Client, token, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, baseURL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

// waitForGeneration polls the generation status endpoint until the job leaves
// the queue or the deadline passes.
func waitForGeneration(t *testing.T, client *http.Client, token, jobID string, max time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(max)
	var last map[string]any
	for time.Now().Before(deadline) {
		code, body := doJSON(t, client, token, http.MethodGet, "/generations/"+jobID, nil)
		require.Equal(t, http.StatusOK, code, "status poll failed: %#v", body)
		last = body
		if st, _ := body["status"].(string); st == "completed" || st == "failed" {
			return body
		}
		time.Sleep(2 * time.Second)
	}
	return last
}

func uniqueUser() string {
	return fmt.Sprintf("e2e-user-%d", time.Now().UnixNano())
}
