package catalog

import (
	"github.com/google/uuid"

	"github.com/p-n-ai/pai-courseware/internal/status"
)

// Label returns the presentation name of the difficulty.
func (d Difficulty) Label() string {
	switch d {
	case Intermediate:
		return "Intermediate"
	case Expert:
		return "Expert"
	default:
		return "Beginner"
	}
}

// Label returns the presentation name of the content type.
func (t ContentType) Label() string {
	switch t {
	case Video:
		return "Video"
	case Quiz:
		return "Quiz"
	case Interactive:
		return "Interactive"
	default:
		return "Article"
	}
}

// CourseView is what the presentation layer renders for a course.
type CourseView struct {
	ID            uuid.UUID       `json:"id"`
	OrgID         uuid.UUID       `json:"org_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Status        string          `json:"status"`
	Category      string          `json:"category"`
	Difficulty    string          `json:"difficulty"`
	Tags          []string        `json:"tags"`
	Order         int             `json:"order"`
	Slug          string          `json:"slug"`
	ModuleCount   int             `json:"module_count"`
	LessonCount   int             `json:"lesson_count"`
	TotalDuration int             `json:"total_duration"`
	Modules       []ModuleSummary `json:"modules"`
}

// ModuleView is what the presentation layer renders for a module. Duration
// is the effective one from the summary.
type ModuleView struct {
	ID          uuid.UUID   `json:"id"`
	OrgID       uuid.UUID   `json:"org_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      string      `json:"status"`
	Category    string      `json:"category"`
	Difficulty  string      `json:"difficulty"`
	Tags        []string    `json:"tags"`
	Order       int         `json:"order"`
	Slug        string      `json:"slug"`
	Duration    int         `json:"duration"`
	LessonCount int         `json:"lesson_count"`
	Lessons     []LessonRef `json:"lessons"`
}

// LessonView is what the presentation layer renders for a lesson. Content is
// passed through untouched.
type LessonView struct {
	ID              uuid.UUID `json:"id"`
	OrgID           uuid.UUID `json:"org_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Status          string    `json:"status"`
	Category        string    `json:"category"`
	Difficulty      string    `json:"difficulty"`
	Type            string    `json:"type"`
	DurationMinutes int       `json:"duration_minutes"`
	Content         string    `json:"content"`
	VideoURL        string    `json:"video_url,omitempty"`
	Tags            []string  `json:"tags"`
	Order           int       `json:"order"`
	Slug            string    `json:"slug"`
}

func NewCourseView(c Course, sum *CourseSummary) CourseView {
	v := CourseView{
		ID:          c.ID,
		OrgID:       c.OrgID,
		Title:       c.Title,
		Description: c.Description,
		Status:      status.ToExternal(c.Status),
		Category:    c.Category,
		Difficulty:  c.Difficulty.Label(),
		Tags:        cloneTags(c.Tags),
		Order:       c.Order,
		Slug:        c.Slug,
		Modules:     []ModuleSummary{},
	}
	if sum != nil {
		v.ModuleCount = sum.ModuleCount
		v.LessonCount = sum.LessonCount
		v.TotalDuration = sum.TotalDuration
		v.Modules = sum.Modules
	}
	return v
}

func NewModuleView(m Module, sum *ModuleSummary) ModuleView {
	v := ModuleView{
		ID:          m.ID,
		OrgID:       m.OrgID,
		Title:       m.Title,
		Description: m.Description,
		Status:      status.ToExternal(m.Status),
		Category:    m.Category,
		Difficulty:  m.Difficulty.Label(),
		Tags:        cloneTags(m.Tags),
		Order:       m.Order,
		Slug:        m.Slug,
		Duration:    m.Duration,
		Lessons:     []LessonRef{},
	}
	if sum != nil {
		v.Duration = sum.Duration
		v.LessonCount = sum.LessonCount
		v.Lessons = sum.Lessons
	}
	return v
}

func NewLessonView(l Lesson) LessonView {
	return LessonView{
		ID:              l.ID,
		OrgID:           l.OrgID,
		Title:           l.Title,
		Description:     l.Description,
		Status:          status.ToExternal(l.Status),
		Category:        l.Category,
		Difficulty:      l.Difficulty.Label(),
		Type:            l.Type.Label(),
		DurationMinutes: l.DurationMinutes,
		Content:         l.Content,
		VideoURL:        l.VideoURL,
		Tags:            cloneTags(l.Tags),
		Order:           l.Order,
		Slug:            l.Slug,
	}
}
