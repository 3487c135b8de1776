package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
)

func (s *PostgresStore) CreateUser(ctx context.Context, u *User) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, org_id, name, email, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.OrgID, u.Name, u.Email, u.CreatedAt,
	)
	return mapWriteErr("create user", err)
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, name, email, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.OrgID, &u.Name, &u.Email, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// DeleteUser refuses while enrollments or certificates reference the user.
// Progress rows carry no foreign key and are kept for audit.
func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockRow(ctx, tx, "users", "user", id); err != nil {
			return err
		}
		if err := refuseIfExists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM enrollments WHERE user_id = $1)`, id,
			"user has enrollments"); err != nil {
			return err
		}
		if err := refuseIfExists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM certificates WHERE user_id = $1)`, id,
			"user has certificates"); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		return err
	})
	return mapWriteErr("delete user", err)
}

func (s *PostgresStore) CreateEnrollment(ctx context.Context, e *Enrollment) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO enrollments (id, user_id, course_id, created_at) VALUES ($1, $2, $3, $4)`,
		e.ID, e.UserID, e.CourseID, e.CreatedAt,
	)
	return mapWriteErr("create enrollment", err)
}

func (s *PostgresStore) DeleteEnrollment(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("enrollment not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListEnrollments(ctx context.Context, courseID uuid.UUID) ([]Enrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, course_id, created_at
		 FROM enrollments
		 WHERE course_id = $1
		 ORDER BY created_at, id`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Enrollment, error) {
		var e Enrollment
		err := row.Scan(&e.ID, &e.UserID, &e.CourseID, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan enrollments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateCertificate(ctx context.Context, c *Certificate) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO certificates (id, user_id, course_id, number, issued_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, c.CourseID, c.Number, c.IssuedAt,
	)
	return mapWriteErr("create certificate", err)
}

func (s *PostgresStore) DeleteCertificate(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, `DELETE FROM certificates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete certificate: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("certificate not found: %s", id)
	}
	return nil
}
