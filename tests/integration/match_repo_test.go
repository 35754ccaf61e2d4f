package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/khayashi/engawa/internal/models"
	"github.com/khayashi/engawa/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMatchRepoTest(t *testing.T) (*TestDB, *repositories.MatchRepository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		testDB.Teardown(context.Background())
	})

	return testDB, repositories.NewMatchRepository(testDB.DB)
}

func TestMatchRepository_ListParticipants(t *testing.T) {
	testDB, repo := setupMatchRepoTest(t)
	ctx := context.Background()

	aliceName, aliceEmail := TestResident("alice")
	aliceID, err := SeedResident(ctx, testDB.Pool, aliceName, aliceEmail)
	require.NoError(t, err)
	require.NoError(t, SeedTeaTimeSetting(ctx, testDB.Pool, aliceID, true))

	bobName, bobEmail := TestResident("bob")
	bobID, err := SeedResident(ctx, testDB.Pool, bobName, bobEmail)
	require.NoError(t, err)
	require.NoError(t, SeedTeaTimeSetting(ctx, testDB.Pool, bobID, false))

	// No setting row at all.
	carolName, carolEmail := TestResident("carol")
	_, err = SeedResident(ctx, testDB.Pool, carolName, carolEmail)
	require.NoError(t, err)

	participants, err := repo.ListParticipants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{aliceID}, participants)
}

func TestMatchRepository_InsertAndListMatches(t *testing.T) {
	testDB, repo := setupMatchRepoTest(t)
	ctx := context.Background()

	aliceName, aliceEmail := TestResident("alice")
	aliceID, err := SeedResident(ctx, testDB.Pool, aliceName, aliceEmail)
	require.NoError(t, err)

	bobName, bobEmail := TestResident("bob")
	bobID, err := SeedResident(ctx, testDB.Pool, bobName, bobEmail)
	require.NoError(t, err)

	matchedAt := time.Now().UTC().Truncate(time.Second)
	match := models.TeaTimeMatch{
		ID:        uuid.New().String(),
		User1ID:   aliceID,
		User2ID:   bobID,
		MatchedAt: matchedAt,
		Status:    models.MatchStatusScheduled,
	}
	require.NoError(t, repo.InsertMatches(ctx, []models.TeaTimeMatch{match}))

	recent, err := repo.ListRecentMatches(ctx, matchedAt.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, match.ID, recent[0].ID)
	assert.Equal(t, aliceID, recent[0].User1ID)
	assert.Equal(t, bobID, recent[0].User2ID)
	assert.Equal(t, models.MatchStatusScheduled, recent[0].Status)

	// A cutoff after the match excludes it.
	older, err := repo.ListRecentMatches(ctx, matchedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, older)
}

func TestMatchRepository_InsertMatchesIsAtomic(t *testing.T) {
	testDB, repo := setupMatchRepoTest(t)
	ctx := context.Background()

	aliceName, aliceEmail := TestResident("alice")
	aliceID, err := SeedResident(ctx, testDB.Pool, aliceName, aliceEmail)
	require.NoError(t, err)

	bobName, bobEmail := TestResident("bob")
	bobID, err := SeedResident(ctx, testDB.Pool, bobName, bobEmail)
	require.NoError(t, err)

	now := time.Now().UTC()
	good := models.TeaTimeMatch{
		ID:        uuid.New().String(),
		User1ID:   aliceID,
		User2ID:   bobID,
		MatchedAt: now,
		Status:    models.MatchStatusScheduled,
	}
	// References a nonexistent profile, so the insert violates the FK.
	bad := models.TeaTimeMatch{
		ID:        uuid.New().String(),
		User1ID:   aliceID,
		User2ID:   uuid.New().String(),
		MatchedAt: now,
		Status:    models.MatchStatusScheduled,
	}

	err = repo.InsertMatches(ctx, []models.TeaTimeMatch{good, bad})
	require.Error(t, err)

	recent, err := repo.ListRecentMatches(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, recent, "failed batch must not leave partial rows")
}

func TestMatchRepository_DeleteMatchesBefore(t *testing.T) {
	testDB, repo := setupMatchRepoTest(t)
	ctx := context.Background()

	aliceName, aliceEmail := TestResident("alice")
	aliceID, err := SeedResident(ctx, testDB.Pool, aliceName, aliceEmail)
	require.NoError(t, err)

	bobName, bobEmail := TestResident("bob")
	bobID, err := SeedResident(ctx, testDB.Pool, bobName, bobEmail)
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = SeedMatch(ctx, testDB.Pool, aliceID, bobID, now.Add(-100*24*time.Hour))
	require.NoError(t, err)
	recentID, err := SeedMatch(ctx, testDB.Pool, aliceID, bobID, now.Add(-time.Hour))
	require.NoError(t, err)

	deleted, err := repo.DeleteMatchesBefore(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := repo.ListRecentMatches(ctx, now.Add(-365*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, recentID, remaining[0].ID)
}

func TestMatchRepository_GetContacts(t *testing.T) {
	testDB, repo := setupMatchRepoTest(t)
	ctx := context.Background()

	aliceName, aliceEmail := TestResident("alice")
	aliceID, err := SeedResident(ctx, testDB.Pool, aliceName, aliceEmail)
	require.NoError(t, err)

	bobName, bobEmail := TestResident("bob")
	bobID, err := SeedResident(ctx, testDB.Pool, bobName, bobEmail)
	require.NoError(t, err)

	contacts, err := repo.GetContacts(ctx, []string{aliceID, bobID})
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, aliceName, contacts[aliceID].Name)
	assert.Equal(t, aliceEmail, contacts[aliceID].Email)
	assert.Equal(t, bobEmail, contacts[bobID].Email)
}
