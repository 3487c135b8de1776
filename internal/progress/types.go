package progress

import (
	"time"

	"github.com/google/uuid"
)

// LessonStatus is a learner's position in a lesson's lifecycle.
type LessonStatus string

const (
	NotStarted LessonStatus = "NOT_STARTED"
	InProgress LessonStatus = "IN_PROGRESS" // derived from quiz attempts, never stored
	Completed  LessonStatus = "COMPLETED"
)

// UserLessonProgress is the completion row for one (user, lesson) pair. It is
// created on first completion and never changed afterwards.
type UserLessonProgress struct {
	UserID      uuid.UUID `json:"user_id"`
	LessonID    uuid.UUID `json:"lesson_id"`
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completed_at"`
}

// QuizAttempt is one scored submission. Attempts are append-only.
type QuizAttempt struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	LessonID  uuid.UUID `json:"lesson_id"`
	Score     int       `json:"score"`
	Total     int       `json:"total"`
	Passed    bool      `json:"passed"`
	CreatedAt time.Time `json:"created_at"`
}

// QuizResult is returned to the learner after a submission.
type QuizResult struct {
	Attempt  QuizAttempt `json:"attempt"`
	Required int         `json:"required"` // minimum score to pass
	Correct  []bool      `json:"correct"`  // per question, in question order
}

// LessonState summarizes where a learner stands on one lesson.
type LessonState struct {
	LessonID     uuid.UUID    `json:"lesson_id"`
	Status       LessonStatus `json:"status"`
	QuizRequired bool         `json:"quiz_required"`
	QuizPassed   bool         `json:"quiz_passed"`
	Attempts     int          `json:"attempts"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// ModuleProgress reports completion over a module's linked lessons.
type ModuleProgress struct {
	ModuleID         uuid.UUID `json:"module_id"`
	Title            string    `json:"title"`
	Order            int       `json:"order"`
	TotalLessons     int       `json:"total_lessons"`
	CompletedLessons int       `json:"completed_lessons"`
	Percentage       int       `json:"percentage"`
	Completed        bool      `json:"completed"`
}

// CourseProgress reports completion over the distinct lessons reachable
// through a course's modules.
type CourseProgress struct {
	CourseID         uuid.UUID        `json:"course_id"`
	Title            string           `json:"title"`
	TotalLessons     int              `json:"total_lessons"`
	CompletedLessons int              `json:"completed_lessons"`
	Percentage       int              `json:"percentage"`
	TotalModules     int              `json:"total_modules"`
	CompletedModules int              `json:"completed_modules"`
	Modules          []ModuleProgress `json:"modules"`
}
