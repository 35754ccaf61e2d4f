package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/khayashi/engawa/internal/clock"
	"github.com/khayashi/engawa/internal/models"
	"github.com/khayashi/engawa/internal/store"
)

// RateLimitConfig holds configuration for rate limiting behavior
type RateLimitConfig struct {
	// FailClosed denies requests when the backing store is unreachable.
	// The default is fail-open: the limiter is a defense-in-depth control,
	// not the primary gate, so availability wins.
	FailClosed bool
}

// RateLimitService decides whether a request identified by an arbitrary
// string (IP, user ID, email) is allowed under a fixed-window policy.
//
// The window is a fixed bucket, not a sliding log: the count resets entirely
// once the window elapses, which permits short bursts up to twice the nominal
// limit across a window boundary. That trade-off is deliberate (O(1) per
// check) and load-bearing for callers; do not tighten it here.
type RateLimitService struct {
	store  store.Store
	clk    clock.Clock
	config RateLimitConfig
	logger *slog.Logger
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(st store.Store, clk clock.Clock, config RateLimitConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		store:  st,
		clk:    clk,
		config: config,
		logger: logger,
	}
}

// Check counts the current request against the policy's window and reports
// whether it is allowed, how many requests remain, and when the window
// resets. It never returns an error: a store failure degrades to the
// configured open/closed behavior and is logged.
func (s *RateLimitService) Check(ctx context.Context, identifier string, policy models.RateLimitPolicy) models.RateLimitResult {
	now := s.clk.Now()

	count, resetAt, err := s.store.Incr(ctx, policy.Key(identifier), policy.Window)
	if err != nil {
		s.logger.Error("rate limit store unavailable",
			slog.String("prefix", policy.Prefix),
			slog.Any("error", err))

		if s.config.FailClosed {
			return models.RateLimitResult{
				Success:    false,
				Remaining:  0,
				ResetAt:    now.Add(policy.Window),
				RetryAfter: ceilSeconds(policy.Window),
			}
		}
		return models.RateLimitResult{
			Success:   true,
			Remaining: policy.Limit - 1,
			ResetAt:   now.Add(policy.Window),
		}
	}

	remaining := policy.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if int(count) > policy.Limit {
		return models.RateLimitResult{
			Success:    false,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: ceilSeconds(resetAt.Sub(now)),
		}
	}

	return models.RateLimitResult{
		Success:   true,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// FormatRetryMessage renders a denial as a user-facing wait instruction.
func FormatRetryMessage(retryAfter int) string {
	if retryAfter < 60 {
		return fmt.Sprintf("Too many requests. Retry in %d seconds.", retryAfter)
	}
	minutes := (retryAfter + 59) / 60
	return fmt.Sprintf("Too many requests. Retry in %d minutes.", minutes)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
