package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/google/uuid"
	"github.com/khayashi/engawa/internal/database"
	"github.com/khayashi/engawa/internal/models"
)

// TestDB manages PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("engawa"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

// runMigrations executes all goose migrations
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	// Suppress goose logs
	goose.SetLogger(log.New(io.Discard, "", 0))

	// Goose needs a stdlib DB connection
	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"tea_time_matches",
		"tea_time_settings",
		"profiles",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// SeedResident inserts a profile row and returns its ID
func SeedResident(ctx context.Context, pool *pgxpool.Pool, name, email string) (string, error) {
	id := uuid.New().String()

	query := `
		INSERT INTO profiles (id, display_name, email)
		VALUES ($1, $2, $3)
	`
	if _, err := pool.Exec(ctx, query, id, name, email); err != nil {
		return "", fmt.Errorf("failed to insert profile: %w", err)
	}

	return id, nil
}

// SeedTeaTimeSetting opts a resident in or out of tea time
func SeedTeaTimeSetting(ctx context.Context, pool *pgxpool.Pool, userID string, enabled bool) error {
	query := `
		INSERT INTO tea_time_settings (user_id, is_enabled)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET is_enabled = EXCLUDED.is_enabled
	`
	if _, err := pool.Exec(ctx, query, userID, enabled); err != nil {
		return fmt.Errorf("failed to insert tea time setting: %w", err)
	}
	return nil
}

// SeedMatch inserts a historical match row
func SeedMatch(ctx context.Context, pool *pgxpool.Pool, user1ID, user2ID string, matchedAt time.Time) (string, error) {
	id := uuid.New().String()

	query := `
		INSERT INTO tea_time_matches (id, user1_id, user2_id, matched_at, status)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := pool.Exec(ctx, query, id, user1ID, user2ID, matchedAt, models.MatchStatusScheduled); err != nil {
		return "", fmt.Errorf("failed to insert match: %w", err)
	}

	return id, nil
}
