package models

import (
	"fmt"
	"time"
)

// RateLimitPolicy describes one logical rate limit bucket: at most Limit
// requests per Window, namespaced under Prefix so independent policies can
// share a single store without colliding.
type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
	Prefix string
}

// Validate rejects malformed policies. Policies are validated once at
// construction time; a bad policy is a programming error, not a per-call
// condition.
func (p RateLimitPolicy) Validate() error {
	if p.Limit <= 0 {
		return fmt.Errorf("rate limit policy %q: limit must be positive, got %d", p.Prefix, p.Limit)
	}
	if p.Window <= 0 {
		return fmt.Errorf("rate limit policy %q: window must be positive, got %s", p.Prefix, p.Window)
	}
	if p.Prefix == "" {
		return fmt.Errorf("rate limit policy: prefix is required")
	}
	return nil
}

// Key composes the effective store key for an identifier under this policy.
func (p RateLimitPolicy) Key(identifier string) string {
	return p.Prefix + ":" + identifier
}

// Preset policies for common endpoint classes.
var (
	// AuthRateLimit is the strict policy for login and signup endpoints.
	AuthRateLimit = RateLimitPolicy{Limit: 5, Window: time.Minute, Prefix: "auth"}

	// APIRateLimit is the standard policy for general API requests.
	APIRateLimit = RateLimitPolicy{Limit: 60, Window: time.Minute, Prefix: "api"}

	// UploadRateLimit covers file upload endpoints.
	UploadRateLimit = RateLimitPolicy{Limit: 100, Window: time.Hour, Prefix: "upload"}

	// PasswordResetRateLimit is very strict: resets are rare and abusable.
	PasswordResetRateLimit = RateLimitPolicy{Limit: 3, Window: time.Hour, Prefix: "pwd_reset"}
)

// RateLimitResult reports the outcome of a single rate limit check.
// A denied request is a normal result, not an error.
type RateLimitResult struct {
	// Success is true when the request is allowed.
	Success bool `json:"success"`
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`
	// ResetAt is when the current window ends and the count resets.
	ResetAt time.Time `json:"reset_at"`
	// RetryAfter is the number of seconds until ResetAt; zero when allowed.
	RetryAfter int `json:"retry_after"`
}
