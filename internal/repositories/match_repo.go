package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/khayashi/engawa/internal/database"
	"github.com/khayashi/engawa/internal/models"
	"github.com/khayashi/engawa/internal/services"
)

// MatchRepository handles database operations for tea time settings and matches
type MatchRepository struct {
	db *database.DB
}

// NewMatchRepository creates a new MatchRepository
func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// ListParticipants returns the user IDs of residents opted in to tea time
func (r *MatchRepository) ListParticipants(ctx context.Context) ([]string, error) {
	query := `SELECT user_id FROM tea_time_settings WHERE is_enabled = true`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}

// ListRecentMatches returns matches created at or after the given time
func (r *MatchRepository) ListRecentMatches(ctx context.Context, since time.Time) ([]models.TeaTimeMatch, error) {
	query := `
		SELECT id, user1_id, user2_id, matched_at, status, created_at
		FROM tea_time_matches
		WHERE matched_at >= $1
	`

	rows, err := r.db.Pool.Query(ctx, query, since)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	var matches []models.TeaTimeMatch
	for rows.Next() {
		var match models.TeaTimeMatch
		if err := rows.Scan(
			&match.ID,
			&match.User1ID,
			&match.User2ID,
			&match.MatchedAt,
			&match.Status,
			&match.CreatedAt,
		); err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

// InsertMatches persists all matches within one transaction. Either every
// pair of the run is committed or none is.
func (r *MatchRepository) InsertMatches(ctx context.Context, matches []models.TeaTimeMatch) error {
	if len(matches) == 0 {
		return nil
	}

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO tea_time_matches (id, user1_id, user2_id, matched_at, status)
			VALUES ($1, $2, $3, $4, $5)
		`
		for _, match := range matches {
			if _, err := tx.Exec(ctx, query,
				match.ID,
				match.User1ID,
				match.User2ID,
				match.MatchedAt,
				match.Status,
			); err != nil {
				return err
			}
		}
		return nil
	})

	return database.MapPostgresError(err)
}

// DeleteMatchesBefore prunes match history older than the cutoff. Called by
// the background cleanup manager; history beyond the pairing window only
// grows the table.
func (r *MatchRepository) DeleteMatchesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM tea_time_matches WHERE matched_at < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}

// GetContacts resolves user IDs to notification contact details
func (r *MatchRepository) GetContacts(ctx context.Context, userIDs []string) (map[string]services.ResidentContact, error) {
	query := `SELECT id, display_name, email FROM profiles WHERE id = ANY($1)`

	rows, err := r.db.Pool.Query(ctx, query, userIDs)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	contacts := make(map[string]services.ResidentContact, len(userIDs))
	for rows.Next() {
		var id string
		var contact services.ResidentContact
		if err := rows.Scan(&id, &contact.Name, &contact.Email); err != nil {
			return nil, err
		}
		contacts[id] = contact
	}
	return contacts, rows.Err()
}
