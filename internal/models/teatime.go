package models

import "time"

// MatchStatus is the lifecycle state of a tea time match.
type MatchStatus string

const (
	MatchStatusScheduled MatchStatus = "scheduled"
	MatchStatusDone      MatchStatus = "done"
	MatchStatusSkipped   MatchStatus = "skipped"
)

// TeaTimeSetting records a resident's opt-in state for tea time matching.
type TeaTimeSetting struct {
	UserID        string    `db:"user_id"`
	IsEnabled     bool      `db:"is_enabled"`
	PreferredTime *string   `db:"preferred_time"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// TeaTimeMatch is one scheduled pairing between two residents.
type TeaTimeMatch struct {
	ID        string      `db:"id"`
	User1ID   string      `db:"user1_id"`
	User2ID   string      `db:"user2_id"`
	MatchedAt time.Time   `db:"matched_at"`
	Status    MatchStatus `db:"status"`
	CreatedAt time.Time   `db:"created_at"`
}
