package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/fairyhunter13/ai-mock-interview/internal/domain"
	"github.com/fairyhunter13/ai-mock-interview/internal/service/ratelimiter"
)

// AIQuota caps LLM-backed operations per authenticated user. It sits behind
// AuthRequired so the subject is always present. Limiter errors fail open;
// the limiter logs them itself.
func AIQuota(limiter ratelimiter.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			allowed, retryAfter, err := limiter.Allow(ctx, ratelimiter.BucketAIQuota, UserID(ctx), 1)
			if err == nil && !allowed {
				secs := int(retryAfter.Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, r, fmt.Errorf("%w: AI quota exceeded, retry in %ds", domain.ErrRateLimited, secs), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
