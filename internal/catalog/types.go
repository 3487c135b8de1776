// Package catalog stores the course hierarchy: courses, modules and lessons,
// the ordered links between them, and the quiz questions attached to lessons.
package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
	"github.com/p-n-ai/pai-courseware/internal/status"
)

// Difficulty is the audience level of a course, module or lesson.
type Difficulty string

const (
	Beginner     Difficulty = "BEGINNER"
	Intermediate Difficulty = "INTERMEDIATE"
	Expert       Difficulty = "EXPERT"
)

// ParseDifficulty accepts the stored value or its label in any case. Empty
// input means Beginner.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(Beginner):
		return Beginner, nil
	case string(Intermediate):
		return Intermediate, nil
	case string(Expert):
		return Expert, nil
	}
	return "", apperr.ValidationFields("invalid difficulty", map[string]string{
		"difficulty": "must be Beginner, Intermediate or Expert",
	})
}

// ContentType is the kind of material a lesson carries.
type ContentType string

const (
	Video       ContentType = "VIDEO"
	Article     ContentType = "ARTICLE"
	Quiz        ContentType = "QUIZ"
	Interactive ContentType = "INTERACTIVE"
)

// ParseContentType accepts the stored value or its label in any case. Empty
// input means Article.
func ParseContentType(s string) (ContentType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(Article):
		return Article, nil
	case string(Video):
		return Video, nil
	case string(Quiz):
		return Quiz, nil
	case string(Interactive):
		return Interactive, nil
	}
	return "", apperr.ValidationFields("invalid content type", map[string]string{
		"type": "must be Video, Article, Quiz or Interactive",
	})
}

// Course is the top of the hierarchy.
type Course struct {
	ID          uuid.UUID     `json:"id"`
	OrgID       uuid.UUID     `json:"org_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      status.Status `json:"status"`
	Category    string        `json:"category"`
	Difficulty  Difficulty    `json:"difficulty"`
	Tags        []string      `json:"tags"`
	Order       int           `json:"order"`
	Slug        string        `json:"slug"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Module groups lessons and may be shared by several courses.
type Module struct {
	ID          uuid.UUID     `json:"id"`
	OrgID       uuid.UUID     `json:"org_id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      status.Status `json:"status"`
	Category    string        `json:"category"`
	Difficulty  Difficulty    `json:"difficulty"`
	Tags        []string      `json:"tags"`
	Order       int           `json:"order"`
	Slug        string        `json:"slug"`
	Duration    int           `json:"duration"` // minutes, operator-entered
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Lesson is a unit of learning material. Content is opaque to the core.
type Lesson struct {
	ID              uuid.UUID     `json:"id"`
	OrgID           uuid.UUID     `json:"org_id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Status          status.Status `json:"status"`
	Category        string        `json:"category"`
	Difficulty      Difficulty    `json:"difficulty"`
	Type            ContentType   `json:"type"`
	DurationMinutes int           `json:"duration_minutes"`
	Content         string        `json:"content"`
	VideoURL        string        `json:"video_url,omitempty"`
	Tags            []string      `json:"tags"`
	Order           int           `json:"order"`
	Slug            string        `json:"slug"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// CourseModule places a module at a position inside a course.
type CourseModule struct {
	CourseID  uuid.UUID `json:"course_id"`
	ModuleID  uuid.UUID `json:"module_id"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

// ModuleLesson places a lesson at a position inside a module.
type ModuleLesson struct {
	ModuleID  uuid.UUID `json:"module_id"`
	LessonID  uuid.UUID `json:"lesson_id"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

// LinkedModule is a module read through its course link.
type LinkedModule struct {
	Link   CourseModule
	Module Module
}

// LinkedLesson is a lesson read through its module link.
type LinkedLesson struct {
	Link   ModuleLesson
	Lesson Lesson
}

// QuizQuestion belongs to exactly one lesson.
type QuizQuestion struct {
	ID           uuid.UUID `json:"id"`
	LessonID     uuid.UUID `json:"lesson_id"`
	Prompt       string    `json:"prompt"`
	Answers      []string  `json:"answers"`
	CorrectIndex int       `json:"correct_index"`
	Explanation  string    `json:"explanation,omitempty"`
	Order        int       `json:"order"`
}

// User is the minimal learner record kept for delete guards.
type User struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Enrollment is owned by the enrollment subsystem.
type Enrollment struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	CourseID  uuid.UUID `json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Certificate is owned by the certification subsystem.
type Certificate struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	CourseID uuid.UUID `json:"course_id"`
	Number   string    `json:"number"`
	IssuedAt time.Time `json:"issued_at"`
}

func cloneTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return append([]string(nil), tags...)
}
