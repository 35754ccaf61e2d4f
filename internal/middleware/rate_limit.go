package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/khayashi/engawa/internal/models"
	"github.com/khayashi/engawa/internal/services"
	pkghttp "github.com/khayashi/engawa/pkg/http"
)

// EdgeRateLimit is a coarse per-IP limiter applied router-wide, in front of
// the policy-aware limiter. It sheds floods before they reach any handler.
func EdgeRateLimit(requestsPerMinute int) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
		}),
	)
}

// RateLimit enforces one named policy per client IP through the
// RateLimitService, exposing the window state via X-RateLimit headers.
func RateLimit(limiter *services.RateLimitService, policy models.RateLimitPolicy, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := pkghttp.ExtractClientIP(r, ipConfig)
			result := limiter.Check(r.Context(), identifier, policy)

			setRateLimitHeaders(w, policy, result)

			if !result.Success {
				pkghttp.WriteTooManyRequests(w, services.FormatRetryMessage(result.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, policy models.RateLimitPolicy, result models.RateLimitResult) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(policy.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	if !result.Success {
		h.Set("Retry-After", strconv.Itoa(result.RetryAfter))
	}
}
