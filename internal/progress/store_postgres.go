package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
)

const (
	dbTimeout             = 5 * time.Second
	pgForeignKeyViolation = "23503"
)

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// MarkCompleted relies on the (user_id, lesson_id) key: concurrent callers
// all observe the row written by the first one.
func (s *PostgresStore) MarkCompleted(ctx context.Context, userID, lessonID uuid.UUID, at time.Time) (*UserLessonProgress, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p := UserLessonProgress{UserID: userID, LessonID: lessonID}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO user_lesson_progress (user_id, lesson_id, completed, completed_at)
		 VALUES ($1, $2, TRUE, $3)
		 ON CONFLICT (user_id, lesson_id) DO NOTHING
		 RETURNING completed, completed_at`,
		userID, lessonID, at,
	).Scan(&p.Completed, &p.CompletedAt)
	if err == nil {
		return &p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, false, apperr.NotFound("lesson not found: %s", lessonID)
		}
		return nil, false, fmt.Errorf("insert lesson progress: %w", err)
	}

	existing, ok, err := s.LessonProgress(ctx, userID, lessonID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, fmt.Errorf("lesson progress vanished: user %s lesson %s", userID, lessonID)
	}
	return existing, false, nil
}

func (s *PostgresStore) LessonProgress(ctx context.Context, userID, lessonID uuid.UUID) (*UserLessonProgress, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	p := UserLessonProgress{UserID: userID, LessonID: lessonID}
	var completedAt *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT completed, completed_at FROM user_lesson_progress WHERE user_id = $1 AND lesson_id = $2`,
		userID, lessonID,
	).Scan(&p.Completed, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get lesson progress: %w", err)
	}
	if completedAt != nil {
		p.CompletedAt = *completedAt
	}
	return &p, true, nil
}

func (s *PostgresStore) CompletedLessons(ctx context.Context, userID uuid.UUID, lessonIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	done := make(map[uuid.UUID]bool)
	if len(lessonIDs) == 0 {
		return done, nil
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT lesson_id FROM user_lesson_progress
		 WHERE user_id = $1 AND lesson_id = ANY($2) AND completed`,
		userID, lessonIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query completed lessons: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan completed lessons: %w", err)
	}
	for _, id := range ids {
		done[id] = true
	}
	return done, nil
}

func (s *PostgresStore) AddQuizAttempt(ctx context.Context, a *QuizAttempt) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_attempts (id, user_id, lesson_id, score, total, passed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, a.LessonID, a.Score, a.Total, a.Passed, a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return apperr.NotFound("lesson not found: %s", a.LessonID)
		}
		return fmt.Errorf("insert quiz attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) QuizAttempts(ctx context.Context, userID, lessonID uuid.UUID) ([]QuizAttempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, lesson_id, score, total, passed, created_at
		 FROM quiz_attempts
		 WHERE user_id = $1 AND lesson_id = $2
		 ORDER BY created_at, id`,
		userID, lessonID,
	)
	if err != nil {
		return nil, fmt.Errorf("query quiz attempts: %w", err)
	}
	attempts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (QuizAttempt, error) {
		var a QuizAttempt
		err := row.Scan(&a.ID, &a.UserID, &a.LessonID, &a.Score, &a.Total, &a.Passed, &a.CreatedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan quiz attempts: %w", err)
	}
	return attempts, nil
}

func (s *PostgresStore) HasPassedQuiz(ctx context.Context, userID, lessonID uuid.UUID, total, required int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var passed bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM quiz_attempts
		   WHERE user_id = $1 AND lesson_id = $2 AND total = $3 AND score >= $4
		 )`,
		userID, lessonID, total, required,
	).Scan(&passed)
	if err != nil {
		return false, fmt.Errorf("check quiz pass: %w", err)
	}
	return passed, nil
}

func (s *PostgresStore) HasLessonActivity(ctx context.Context, lessonID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var busy bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_lesson_progress WHERE lesson_id = $1)
		     OR EXISTS (SELECT 1 FROM quiz_attempts WHERE lesson_id = $1)`,
		lessonID,
	).Scan(&busy)
	if err != nil {
		return false, fmt.Errorf("check lesson activity: %w", err)
	}
	return busy, nil
}
