package store

import (
	"context"
	"time"
)

// Store is the key-value backing store shared by the rate limiter, the
// lockout guard and the breach cache. Records are opaque bytes; each
// consumer owns its own key namespace.
//
// Incr is the atomic fixed-window counter used by the rate limiter. The
// first increment of a window starts it; once the window elapses the count
// resets to zero and a fresh window begins. Implementations backed by a
// shared external cache must make Incr atomic (e.g. a single INCR command)
// so concurrent processes count each request exactly once.
type Store interface {
	// Get returns the record for key, or ok=false when absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set writes the record for key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the record for key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Incr increments the windowed counter for key and returns the new count
	// together with the time the current window resets.
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)

	// Clear removes everything. Test-only reset hook.
	Clear(ctx context.Context) error
}
