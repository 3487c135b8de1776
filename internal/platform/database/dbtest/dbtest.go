// Package dbtest starts a throwaway PostgreSQL container for integration tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-courseware/internal/platform/database"
)

const image = "postgres:16-alpine"

// NewPool returns a pool connected to a fresh, migrated database. The test is
// skipped in short mode or when no container runtime is reachable.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, image,
		postgres.WithDatabase("learn"),
		postgres.WithUsername("learn"),
		postgres.WithPassword("learn"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := database.New(ctx, url, 10, 1)
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db.Pool
}

// Reset empties every table so subtests sharing one container start clean.
func Reset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`TRUNCATE learning_events, quiz_attempts, user_lesson_progress, certificates, enrollments,
		 users, quiz_questions, module_lessons, course_modules, lessons, modules, courses`)
	if err != nil {
		t.Fatalf("reset database: %v", err)
	}
}
