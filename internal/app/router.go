// Package app wires application components and startup helpers.
package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/ai-mock-interview/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-mock-interview/internal/config"
	"github.com/fairyhunter13/ai-mock-interview/internal/observability"
	"github.com/fairyhunter13/ai-mock-interview/internal/service/ratelimiter"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// CleanupRunner triggers one data-retention pass; implemented by the postgres
// cleanup service.
type CleanupRunner interface {
	CleanupOldData(ctx context.Context) error
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
// aiQuota may be nil to disable per-user AI quotas.
func BuildRouter(cfg config.Config, srv *httpserver.Server, auth *httpserver.AuthManager, cleanup CleanupRunner, aiQuota ratelimiter.Limiter) http.Handler {
	quota := httpserver.AIQuota(aiQuota)
	r := chi.NewRouter()
	// Security & instrumentation middleware
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(cfg.HTTPWriteTimeout))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Post("/v1/auth/login", auth.LoginHandler())

	// Authenticated API surface.
	r.Group(func(ar chi.Router) {
		ar.Use(auth.AuthRequired)

		// Rate limit mutating endpoints per client IP.
		ar.Group(func(wr chi.Router) {
			wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))
			wr.Post("/v1/interviews", srv.CreateInterviewHandler())
			wr.Post("/v1/interviews/generate", srv.GenerateHandler())
			wr.Delete("/v1/interviews/{id}", srv.DeleteInterviewHandler())
			wr.Patch("/v1/interviews/{id}/questions/{qid}", srv.UpdateQuestionHandler())
			wr.Post("/v1/interviews/{id}/questions/{qid}/recording/start", srv.StartRecordingHandler())
			wr.Post("/v1/interviews/{id}/questions/{qid}/recording/chunk", srv.ChunkHandler())
			wr.Post("/v1/interviews/{id}/questions/{qid}/recording/stop", srv.StopRecordingHandler())
			wr.Post("/v1/interviews/{id}/questions/{qid}/recording/reset", srv.ResetRecordingHandler())
			wr.With(quota).Post("/v1/interviews/{id}/questions/{qid}/answer", srv.AnswerHandler())
			wr.With(quota).Post("/v1/interviews/{id}/questions/{qid}/feedback", srv.FeedbackHandler())
			wr.Post("/v1/interviews/{id}/advance", srv.AdvanceHandler())
		})

		// Read-only endpoints.
		ar.Get("/v1/generations/{id}", srv.GenerationStatusHandler())
		ar.Get("/v1/interviews/{id}", srv.GetInterviewHandler())
		ar.Get("/v1/interviews/{id}/questions/{qid}/recording", srv.GetRecordingHandler())
		ar.With(quota).Get("/v1/interviews/{id}/questions/{qid}/feedback/stream", srv.FeedbackStreamHandler())

		// Admin maintenance.
		if cfg.AdminEnabled() && cleanup != nil {
			ar.With(auth.AdminRequired).Post("/v1/admin/cleanup", func(w http.ResponseWriter, req *http.Request) {
				if err := cleanup.CleanupOldData(req.Context()); err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})
		}
	})

	// Health and metrics
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) { promhttp.Handler().ServeHTTP(w, req) })
	r.Get("/readyz", srv.ReadyzHandler())

	return httpserver.SecurityHeaders(r)
}
