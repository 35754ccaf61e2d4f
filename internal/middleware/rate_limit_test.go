package middleware_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/khayashi/engawa/internal/clock"
	"github.com/khayashi/engawa/internal/middleware"
	"github.com/khayashi/engawa/internal/models"
	"github.com/khayashi/engawa/internal/services"
	"github.com/khayashi/engawa/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiterHandler(t *testing.T, policy models.RateLimitPolicy) (http.Handler, *clock.Fake) {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := services.NewRateLimitService(store.NewMemory(clk), clk, services.RateLimitConfig{}, logger)

	handler := middleware.RateLimit(limiter, policy, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	return handler, clk
}

func doRequest(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/internal/security/password-check", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitMiddleware_AllowsWithinLimit(t *testing.T) {
	policy := models.RateLimitPolicy{Limit: 3, Window: time.Minute, Prefix: "api"}
	handler, _ := newTestLimiterHandler(t, policy)

	for i := 0; i < 3; i++ {
		rec := doRequest(handler, "203.0.113.10:1234")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, strconv.Itoa(2-i), rec.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimitMiddleware_BlocksOverLimit(t *testing.T) {
	policy := models.RateLimitPolicy{Limit: 2, Window: time.Minute, Prefix: "api"}
	handler, _ := newTestLimiterHandler(t, policy)

	doRequest(handler, "203.0.113.10:1234")
	doRequest(handler, "203.0.113.10:1234")

	rec := doRequest(handler, "203.0.113.10:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitMiddleware_RecoversAfterWindow(t *testing.T) {
	policy := models.RateLimitPolicy{Limit: 1, Window: time.Minute, Prefix: "api"}
	handler, clk := newTestLimiterHandler(t, policy)

	require.Equal(t, http.StatusOK, doRequest(handler, "203.0.113.10:1234").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(handler, "203.0.113.10:1234").Code)

	clk.Advance(time.Minute)

	assert.Equal(t, http.StatusOK, doRequest(handler, "203.0.113.10:1234").Code)
}

func TestRateLimitMiddleware_IndependentClients(t *testing.T) {
	policy := models.RateLimitPolicy{Limit: 1, Window: time.Minute, Prefix: "api"}
	handler, _ := newTestLimiterHandler(t, policy)

	require.Equal(t, http.StatusOK, doRequest(handler, "203.0.113.10:1234").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(handler, "203.0.113.10:1234").Code)

	// Another client keeps its own budget.
	assert.Equal(t, http.StatusOK, doRequest(handler, "198.51.100.7:9999").Code)
}
