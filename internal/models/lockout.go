package models

import "time"

// LockoutRecord is the stored failed-login history for one lockout key
// (email, or email+ip). Persisted as JSON in the security store.
type LockoutRecord struct {
	FailedAttempts int        `json:"failed_attempts"`
	FirstFailureAt time.Time  `json:"first_failure_at"`
	LastAttemptAt  time.Time  `json:"last_attempt_at"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
}

// LockoutStatus is the caller-facing view of an account's lockout state.
type LockoutStatus struct {
	IsLocked         bool `json:"is_locked"`
	FailedAttempts   int  `json:"failed_attempts"`
	RemainingMinutes int  `json:"remaining_minutes"`
}
