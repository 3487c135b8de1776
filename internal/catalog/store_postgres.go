package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
	"github.com/p-n-ai/pai-courseware/internal/status"
)

const (
	dbTimeout = 5 * time.Second

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	courseColumns = `id, org_id, title, description, status, category, difficulty, tags, position, slug, created_at, updated_at`
	moduleColumns = `id, org_id, title, description, status, category, difficulty, tags, position, slug, duration, created_at, updated_at`
	lessonColumns = `id, org_id, title, description, status, category, difficulty, content_type, duration_minutes,
		content, video_url, tags, position, slug, created_at, updated_at`
)

// PostgresStore is a PostgreSQL-backed Store implementation. Link writes lock
// the parent row, so writers to one parent are serialized while different
// parents proceed in parallel.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed catalog store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// junction describes one of the two ordered link tables.
type junction struct {
	table       string
	parentCol   string
	childCol    string
	parentTable string
	childTable  string
	parentName  string
	childName   string
}

var (
	courseModuleLinks = junction{
		table: "course_modules", parentCol: "course_id", childCol: "module_id",
		parentTable: "courses", childTable: "modules", parentName: "course", childName: "module",
	}
	moduleLessonLinks = junction{
		table: "module_lessons", parentCol: "module_id", childCol: "lesson_id",
		parentTable: "modules", childTable: "lessons", parentName: "module", childName: "lesson",
	}
)

type rowScanner interface {
	Scan(dest ...any) error
}

// Courses

func (s *PostgresStore) CreateCourse(ctx context.Context, c *Course) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := checkSlugFree(ctx, tx, "courses", c.Slug, uuid.Nil); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO courses (`+courseColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			c.ID, c.OrgID, c.Title, c.Description, string(c.Status), c.Category,
			string(c.Difficulty), cloneTags(c.Tags), c.Order, c.Slug, c.CreatedAt, c.UpdatedAt,
		)
		return err
	})
	return mapWriteErr("create course", err)
}

func (s *PostgresStore) GetCourse(ctx context.Context, id uuid.UUID) (*Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	c, err := scanCourse(s.pool.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("course not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) GetCourseBySlug(ctx context.Context, slug string) (*Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	c, err := scanCourse(s.pool.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("course not found: %s", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("get course by slug: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListCourses(ctx context.Context, orgID uuid.UUID) ([]Course, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+courseColumns+` FROM courses
		 WHERE org_id = $1
		 ORDER BY position, created_at, id`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	out := []Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateCourse(ctx context.Context, c *Course) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := checkSlugFree(ctx, tx, "courses", c.Slug, c.ID); err != nil {
			return err
		}
		cmd, err := tx.Exec(ctx,
			`UPDATE courses
			 SET title = $2, description = $3, status = $4, category = $5, difficulty = $6,
			     tags = $7, position = $8, slug = $9, updated_at = $10
			 WHERE id = $1`,
			c.ID, c.Title, c.Description, string(c.Status), c.Category, string(c.Difficulty),
			cloneTags(c.Tags), c.Order, c.Slug, c.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return apperr.NotFound("course not found: %s", c.ID)
		}
		return nil
	})
	return mapWriteErr("update course", err)
}

// DeleteCourse refuses while enrollments or certificates reference the
// course. Its module links go with it; the modules stay.
func (s *PostgresStore) DeleteCourse(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockRow(ctx, tx, "courses", "course", id); err != nil {
			return err
		}
		if err := refuseIfExists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM enrollments WHERE course_id = $1)`, id,
			"course has enrollments"); err != nil {
			return err
		}
		if err := refuseIfExists(ctx, tx, `SELECT EXISTS (SELECT 1 FROM certificates WHERE course_id = $1)`, id,
			"course has certificates"); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id)
		return err
	})
	return mapWriteErr("delete course", err)
}

func scanCourse(row rowScanner) (Course, error) {
	var c Course
	var st, diff string
	err := row.Scan(&c.ID, &c.OrgID, &c.Title, &c.Description, &st, &c.Category, &diff,
		&c.Tags, &c.Order, &c.Slug, &c.CreatedAt, &c.UpdatedAt)
	c.Status = status.ToInternal(st)
	c.Difficulty = Difficulty(diff)
	c.Tags = cloneTags(c.Tags)
	return c, err
}

// Modules

func (s *PostgresStore) CreateModule(ctx context.Context, m *Module) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := checkSlugFree(ctx, tx, "modules", m.Slug, uuid.Nil); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO modules (`+moduleColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			m.ID, m.OrgID, m.Title, m.Description, string(m.Status), m.Category,
			string(m.Difficulty), cloneTags(m.Tags), m.Order, m.Slug, m.Duration, m.CreatedAt, m.UpdatedAt,
		)
		return err
	})
	return mapWriteErr("create module", err)
}

func (s *PostgresStore) GetModule(ctx context.Context, id uuid.UUID) (*Module, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	m, err := scanModule(s.pool.QueryRow(ctx, `SELECT `+moduleColumns+` FROM modules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("module not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get module: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) GetModuleBySlug(ctx context.Context, slug string) (*Module, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	m, err := scanModule(s.pool.QueryRow(ctx, `SELECT `+moduleColumns+` FROM modules WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("module not found: %s", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("get module by slug: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) ListModules(ctx context.Context, orgID uuid.UUID) ([]Module, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+moduleColumns+` FROM modules
		 WHERE org_id = $1
		 ORDER BY position, created_at, id`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("query modules: %w", err)
	}
	defer rows.Close()

	out := []Module{}
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate modules: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateModule(ctx context.Context, m *Module) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := checkSlugFree(ctx, tx, "modules", m.Slug, m.ID); err != nil {
			return err
		}
		cmd, err := tx.Exec(ctx,
			`UPDATE modules
			 SET title = $2, description = $3, status = $4, category = $5, difficulty = $6,
			     tags = $7, position = $8, slug = $9, duration = $10, updated_at = $11
			 WHERE id = $1`,
			m.ID, m.Title, m.Description, string(m.Status), m.Category, string(m.Difficulty),
			cloneTags(m.Tags), m.Order, m.Slug, m.Duration, m.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return apperr.NotFound("module not found: %s", m.ID)
		}
		return nil
	})
	return mapWriteErr("update module", err)
}

// DeleteModule removes the module and its links, then closes the gaps it
// leaves in every course that listed it. Lessons are untouched.
func (s *PostgresStore) DeleteModule(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return deleteChild(ctx, tx, courseModuleLinks, id, func() error {
			_, err := tx.Exec(ctx, `DELETE FROM modules WHERE id = $1`, id)
			return err
		})
	})
	return mapWriteErr("delete module", err)
}

// DetachModule removes every course link to the module and compacts those
// courses. The module row and its lesson links stay.
func (s *PostgresStore) DetachModule(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return deleteChild(ctx, tx, courseModuleLinks, id, func() error { return nil })
	})
	return mapWriteErr("detach module", err)
}

func scanModule(row rowScanner, lead ...any) (Module, error) {
	var m Module
	var st, diff string
	dest := append(lead, &m.ID, &m.OrgID, &m.Title, &m.Description, &st, &m.Category, &diff,
		&m.Tags, &m.Order, &m.Slug, &m.Duration, &m.CreatedAt, &m.UpdatedAt)
	err := row.Scan(dest...)
	m.Status = status.ToInternal(st)
	m.Difficulty = Difficulty(diff)
	m.Tags = cloneTags(m.Tags)
	return m, err
}

// Lessons

func (s *PostgresStore) CreateLesson(ctx context.Context, l *Lesson) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := checkSlugFree(ctx, tx, "lessons", l.Slug, uuid.Nil); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO lessons (`+lessonColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			l.ID, l.OrgID, l.Title, l.Description, string(l.Status), l.Category,
			string(l.Difficulty), string(l.Type), l.DurationMinutes, l.Content, nullIfEmpty(l.VideoURL),
			cloneTags(l.Tags), l.Order, l.Slug, l.CreatedAt, l.UpdatedAt,
		)
		return err
	})
	return mapWriteErr("create lesson", err)
}

func (s *PostgresStore) GetLesson(ctx context.Context, id uuid.UUID) (*Lesson, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	l, err := scanLesson(s.pool.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lesson not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}
	return &l, nil
}

func (s *PostgresStore) GetLessonBySlug(ctx context.Context, slug string) (*Lesson, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	l, err := scanLesson(s.pool.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lesson not found: %s", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("get lesson by slug: %w", err)
	}
	return &l, nil
}

func (s *PostgresStore) ListLessons(ctx context.Context, orgID uuid.UUID) ([]Lesson, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+lessonColumns+` FROM lessons
		 WHERE org_id = $1
		 ORDER BY position, created_at, id`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	out := []Lesson{}
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lessons: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateLesson(ctx context.Context, l *Lesson) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := checkSlugFree(ctx, tx, "lessons", l.Slug, l.ID); err != nil {
			return err
		}
		cmd, err := tx.Exec(ctx,
			`UPDATE lessons
			 SET title = $2, description = $3, status = $4, category = $5, difficulty = $6,
			     content_type = $7, duration_minutes = $8, content = $9, video_url = $10,
			     tags = $11, position = $12, slug = $13, updated_at = $14
			 WHERE id = $1`,
			l.ID, l.Title, l.Description, string(l.Status), l.Category, string(l.Difficulty),
			string(l.Type), l.DurationMinutes, l.Content, nullIfEmpty(l.VideoURL),
			cloneTags(l.Tags), l.Order, l.Slug, l.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return apperr.NotFound("lesson not found: %s", l.ID)
		}
		return nil
	})
	return mapWriteErr("update lesson", err)
}

// DeleteLesson refuses while learner progress or quiz attempts reference the
// lesson. Otherwise it removes the lesson, its quiz questions and its module
// links, and compacts the affected modules.
func (s *PostgresStore) DeleteLesson(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return deleteChild(ctx, tx, moduleLessonLinks, id, func() error {
			if err := refuseIfExists(ctx, tx,
				`SELECT EXISTS (SELECT 1 FROM user_lesson_progress WHERE lesson_id = $1)
				     OR EXISTS (SELECT 1 FROM quiz_attempts WHERE lesson_id = $1)`,
				id, "lesson has learner progress"); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `DELETE FROM lessons WHERE id = $1`, id)
			return err
		})
	})
	return mapWriteErr("delete lesson", err)
}

// HasLessonActivity reports whether any progress row or quiz attempt
// references the lesson.
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

func scanLesson(row rowScanner, lead ...any) (Lesson, error) {
	var l Lesson
	var st, diff, typ string
	var videoURL *string
	dest := append(lead, &l.ID, &l.OrgID, &l.Title, &l.Description, &st, &l.Category, &diff, &typ,
		&l.DurationMinutes, &l.Content, &videoURL, &l.Tags, &l.Order, &l.Slug, &l.CreatedAt, &l.UpdatedAt)
	err := row.Scan(dest...)
	l.Status = status.ToInternal(st)
	l.Difficulty = Difficulty(diff)
	l.Type = ContentType(typ)
	if videoURL != nil {
		l.VideoURL = *videoURL
	}
	l.Tags = cloneTags(l.Tags)
	return l, err
}

// Links

func (s *PostgresStore) LinkCourseModule(ctx context.Context, courseID, moduleID uuid.UUID, order int) error {
	return s.link(ctx, courseModuleLinks, courseID, moduleID, order)
}

func (s *PostgresStore) UnlinkCourseModule(ctx context.Context, courseID, moduleID uuid.UUID) error {
	return s.unlink(ctx, courseModuleLinks, courseID, moduleID)
}

func (s *PostgresStore) ReplaceCourseModules(ctx context.Context, courseID uuid.UUID, moduleIDs []uuid.UUID) error {
	return s.replace(ctx, courseModuleLinks, courseID, moduleIDs)
}

func (s *PostgresStore) ReorderCourseModules(ctx context.Context, courseID uuid.UUID, moduleIDs []uuid.UUID) error {
	return s.reorder(ctx, courseModuleLinks, courseID, moduleIDs)
}

func (s *PostgresStore) CourseModules(ctx context.Context, courseID uuid.UUID) ([]LinkedModule, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := s.requireRow(ctx, "courses", "course", courseID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT cm.position, cm.created_at, `+prefixColumns("m", moduleColumns)+`
		 FROM course_modules cm
		 JOIN modules m ON m.id = cm.module_id
		 WHERE cm.course_id = $1
		 ORDER BY cm.position, cm.created_at, cm.module_id`,
		courseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query course modules: %w", err)
	}
	defer rows.Close()

	out := []LinkedModule{}
	for rows.Next() {
		link := CourseModule{CourseID: courseID}
		m, err := scanModule(rows, &link.Order, &link.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan course module: %w", err)
		}
		link.ModuleID = m.ID
		out = append(out, LinkedModule{Link: link, Module: m})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate course modules: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) LinkModuleLesson(ctx context.Context, moduleID, lessonID uuid.UUID, order int) error {
	return s.link(ctx, moduleLessonLinks, moduleID, lessonID, order)
}

func (s *PostgresStore) UnlinkModuleLesson(ctx context.Context, moduleID, lessonID uuid.UUID) error {
	return s.unlink(ctx, moduleLessonLinks, moduleID, lessonID)
}

func (s *PostgresStore) ReplaceModuleLessons(ctx context.Context, moduleID uuid.UUID, lessonIDs []uuid.UUID) error {
	return s.replace(ctx, moduleLessonLinks, moduleID, lessonIDs)
}

func (s *PostgresStore) ReorderModuleLessons(ctx context.Context, moduleID uuid.UUID, lessonIDs []uuid.UUID) error {
	return s.reorder(ctx, moduleLessonLinks, moduleID, lessonIDs)
}

func (s *PostgresStore) ModuleLessons(ctx context.Context, moduleID uuid.UUID) ([]LinkedLesson, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := s.requireRow(ctx, "modules", "module", moduleID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT ml.position, ml.created_at, `+prefixColumns("l", lessonColumns)+`
		 FROM module_lessons ml
		 JOIN lessons l ON l.id = ml.lesson_id
		 WHERE ml.module_id = $1
		 ORDER BY ml.position, ml.created_at, ml.lesson_id`,
		moduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("query module lessons: %w", err)
	}
	defer rows.Close()

	out := []LinkedLesson{}
	for rows.Next() {
		link := ModuleLesson{ModuleID: moduleID}
		l, err := scanLesson(rows, &link.Order, &link.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan module lesson: %w", err)
		}
		link.LessonID = l.ID
		out = append(out, LinkedLesson{Link: link, Lesson: l})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate module lessons: %w", err)
	}
	return out, nil
}

// link upserts (parent, child) and moves it to order, renumbering siblings.
func (s *PostgresStore) link(ctx context.Context, j junction, parentID, childID uuid.UUID, order int) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockRow(ctx, tx, j.parentTable, j.parentName, parentID); err != nil {
			return err
		}
		if err := requireRowTx(ctx, tx, j.childTable, j.childName, childID); err != nil {
			return err
		}
		current, err := childIDs(ctx, tx, j, parentID)
		if err != nil {
			return err
		}
		next := placeAt(current, childID, order)
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, %s, position, created_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (%s, %s) DO NOTHING`, j.table, j.parentCol, j.childCol, j.parentCol, j.childCol),
			parentID, childID, slices.Index(next, childID),
		); err != nil {
			return fmt.Errorf("insert %s link: %w", j.childName, err)
		}
		return writePositions(ctx, tx, j, parentID, next)
	})
	return mapWriteErr("link "+j.childName, err)
}

func (s *PostgresStore) unlink(ctx context.Context, j junction, parentID, childID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockRow(ctx, tx, j.parentTable, j.parentName, parentID); err != nil {
			return err
		}
		cmd, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`, j.table, j.parentCol, j.childCol),
			parentID, childID,
		)
		if err != nil {
			return fmt.Errorf("delete %s link: %w", j.childName, err)
		}
		if cmd.RowsAffected() == 0 {
			return apperr.NotFound("%s %s is not linked to %s %s", j.childName, childID, j.parentName, parentID)
		}
		return compact(ctx, tx, j, parentID)
	})
	return mapWriteErr("unlink "+j.childName, err)
}

// replace swaps the parent's whole child list inside one transaction.
func (s *PostgresStore) replace(ctx context.Context, j junction, parentID uuid.UUID, ids []uuid.UUID) error {
	if err := checkDistinct(ids); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockRow(ctx, tx, j.parentTable, j.parentName, parentID); err != nil {
			return err
		}
		if err := requireAll(ctx, tx, j, ids); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, j.table, j.parentCol), parentID,
		); err != nil {
			return fmt.Errorf("clear %s links: %w", j.childName, err)
		}
		if _, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (%s, %s, position, created_at)
			 SELECT $1, v.child_id, v.ord - 1, NOW()
			 FROM unnest($2::uuid[]) WITH ORDINALITY AS v(child_id, ord)`, j.table, j.parentCol, j.childCol),
			parentID, ids,
		); err != nil {
			return fmt.Errorf("insert %s links: %w", j.childName, err)
		}
		return nil
	})
	return mapWriteErr("replace "+j.childName+" links", err)
}

func (s *PostgresStore) reorder(ctx context.Context, j junction, parentID uuid.UUID, ids []uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockRow(ctx, tx, j.parentTable, j.parentName, parentID); err != nil {
			return err
		}
		current, err := childIDs(ctx, tx, j, parentID)
		if err != nil {
			return err
		}
		if err := checkFullSet(current, ids); err != nil {
			return err
		}
		return writePositions(ctx, tx, j, parentID, ids)
	})
	return mapWriteErr("reorder "+j.childName+"s", err)
}

// deleteChild removes every link to a module or lesson, runs drop (which
// usually deletes the row itself), then compacts each parent that lost a
// link. Parents are locked in id order before the child so link writers,
// which lock the parent first, queue behind this transaction instead of
// deadlocking with it. Once the child is locked no new link to it can
// commit, so the parents are read again and any that appeared in between
// are locked too.
func deleteChild(ctx context.Context, tx pgx.Tx, j junction, childID uuid.UUID, drop func() error) error {
	parents, err := parentIDs(ctx, tx, j, childID)
	if err != nil {
		return err
	}
	if err := lockRows(ctx, tx, j.parentTable, parents); err != nil {
		return err
	}
	if err := lockRow(ctx, tx, j.childTable, j.childName, childID); err != nil {
		return err
	}
	current, err := parentIDs(ctx, tx, j, childID)
	if err != nil {
		return err
	}
	var added []uuid.UUID
	for _, id := range current {
		if !slices.Contains(parents, id) {
			added = append(added, id)
		}
	}
	if err := lockRows(ctx, tx, j.parentTable, added); err != nil {
		return err
	}

	rows, err := tx.Query(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 RETURNING %s`, j.table, j.childCol, j.parentCol),
		childID,
	)
	if err != nil {
		return fmt.Errorf("delete %s links: %w", j.childName, err)
	}
	affected, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("collect %s links: %w", j.childName, err)
	}

	if err := drop(); err != nil {
		return err
	}

	slices.SortFunc(affected, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	for _, parentID := range slices.Compact(affected) {
		if err := compact(ctx, tx, j, parentID); err != nil {
			return err
		}
	}
	return nil
}

func childIDs(ctx context.Context, tx pgx.Tx, j junction, parentID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY position, created_at, %s`,
			j.childCol, j.table, j.parentCol, j.childCol),
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s links: %w", j.childName, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect %s links: %w", j.childName, err)
	}
	return ids, nil
}

func parentIDs(ctx context.Context, tx pgx.Tx, j junction, childID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, j.parentCol, j.table, j.childCol),
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("query %s parents: %w", j.childName, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("collect %s parents: %w", j.childName, err)
	}
	return ids, nil
}

// writePositions sets position = index for every child in ids. Uniqueness
// of (parent, position) is deferred to commit.
func writePositions(ctx context.Context, tx pgx.Tx, j junction, parentID uuid.UUID, ids []uuid.UUID) error {
	positions := make([]int32, len(ids))
	for i := range ids {
		positions[i] = int32(i)
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %s AS j SET position = v.pos
		 FROM unnest($2::uuid[], $3::int[]) AS v(child_id, pos)
		 WHERE j.%s = $1 AND j.%s = v.child_id AND j.position <> v.pos`, j.table, j.parentCol, j.childCol),
		parentID, ids, positions,
	); err != nil {
		return fmt.Errorf("write %s positions: %w", j.childName, err)
	}
	return nil
}

// compact renumbers a parent's remaining children 0..N-1, keeping their
// relative order.
func compact(ctx context.Context, tx pgx.Tx, j junction, parentID uuid.UUID) error {
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %[1]s AS j SET position = r.pos
		 FROM (
		   SELECT %[3]s AS child_id,
		          (ROW_NUMBER() OVER (ORDER BY position, created_at, %[3]s) - 1)::int AS pos
		   FROM %[1]s WHERE %[2]s = $1
		 ) r
		 WHERE j.%[2]s = $1 AND j.%[3]s = r.child_id AND j.position <> r.pos`, j.table, j.parentCol, j.childCol),
		parentID,
	); err != nil {
		return fmt.Errorf("compact %s positions: %w", j.childName, err)
	}
	return nil
}

func requireAll(ctx context.Context, tx pgx.Tx, j junction, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	rows, err := tx.Query(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1)`, j.childTable), ids)
	if err != nil {
		return fmt.Errorf("query %ss: %w", j.childName, err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("collect %ss: %w", j.childName, err)
	}
	for _, id := range ids {
		if !slices.Contains(found, id) {
			return apperr.NotFound("%s not found: %s", j.childName, id)
		}
	}
	return nil
}

// Quiz questions

func (s *PostgresStore) SetQuizQuestions(ctx context.Context, lessonID uuid.UUID, questions []QuizQuestion) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockRow(ctx, tx, "lessons", "lesson", lessonID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM quiz_questions WHERE lesson_id = $1`, lessonID); err != nil {
			return fmt.Errorf("clear quiz questions: %w", err)
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"quiz_questions"},
			[]string{"id", "lesson_id", "prompt", "answers", "correct_index", "explanation", "position"},
			pgx.CopyFromSlice(len(questions), func(i int) ([]any, error) {
				q := questions[i]
				return []any{q.ID, lessonID, q.Prompt, q.Answers, int32(q.CorrectIndex), q.Explanation, int32(i)}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy quiz questions: %w", err)
		}
		return nil
	})
	return mapWriteErr("set quiz questions", err)
}

func (s *PostgresStore) QuizQuestions(ctx context.Context, lessonID uuid.UUID) ([]QuizQuestion, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := s.requireRow(ctx, "lessons", "lesson", lessonID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, lesson_id, prompt, answers, correct_index, explanation, position
		 FROM quiz_questions
		 WHERE lesson_id = $1
		 ORDER BY position`,
		lessonID,
	)
	if err != nil {
		return nil, fmt.Errorf("query quiz questions: %w", err)
	}
	defer rows.Close()

	out := []QuizQuestion{}
	for rows.Next() {
		var q QuizQuestion
		if err := rows.Scan(&q.ID, &q.LessonID, &q.Prompt, &q.Answers, &q.CorrectIndex, &q.Explanation, &q.Order); err != nil {
			return nil, fmt.Errorf("scan quiz question: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quiz questions: %w", err)
	}
	return out, nil
}

// Row helpers

func (s *PostgresStore) requireRow(ctx context.Context, table, name string, id uuid.UUID) error {
	var ok bool
	if err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table), id,
	).Scan(&ok); err != nil {
		return fmt.Errorf("lookup %s: %w", name, err)
	}
	if !ok {
		return apperr.NotFound("%s not found: %s", name, id)
	}
	return nil
}

func requireRowTx(ctx context.Context, tx pgx.Tx, table, name string, id uuid.UUID) error {
	var ok bool
	if err := tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table), id,
	).Scan(&ok); err != nil {
		return fmt.Errorf("lookup %s: %w", name, err)
	}
	if !ok {
		return apperr.NotFound("%s not found: %s", name, id)
	}
	return nil
}

// lockRow takes the row lock that serializes writers of one parent.
func lockRow(ctx context.Context, tx pgx.Tx, table, name string, id uuid.UUID) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR UPDATE`, table), id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("%s not found: %s", name, id)
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", name, err)
	}
	return nil
}

func lockRows(ctx context.Context, tx pgx.Tx, table string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1) ORDER BY id FOR UPDATE`, table), ids,
	); err != nil {
		return fmt.Errorf("lock %s: %w", table, err)
	}
	return nil
}

func checkSlugFree(ctx context.Context, tx pgx.Tx, table, slug string, self uuid.UUID) error {
	var taken bool
	if err := tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE slug = $1 AND id <> $2)`, table),
		slug, self,
	).Scan(&taken); err != nil {
		return fmt.Errorf("check slug: %w", err)
	}
	if taken {
		return apperr.Conflict("slug in use: %s", slug)
	}
	return nil
}

func refuseIfExists(ctx context.Context, tx pgx.Tx, query string, id uuid.UUID, reason string) error {
	var exists bool
	if err := tx.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("check dependents: %w", err)
	}
	if exists {
		return apperr.Conflict("%s", reason)
	}
	return nil
}

// mapWriteErr turns constraint violations into typed errors. The slug check
// runs first inside each transaction; the unique index is the backstop for
// two writers racing past it.
func mapWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if strings.Contains(pgErr.ConstraintName, "slug") {
				return apperr.New(apperr.KindConflict, "slug in use", err)
			}
			return apperr.New(apperr.KindConflict, op+": duplicate "+pgErr.ConstraintName, err)
		case pgForeignKeyViolation:
			return apperr.New(apperr.KindNotFound, op+": referenced row not found", err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
